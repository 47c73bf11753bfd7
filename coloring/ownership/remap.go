package ownership

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"

	"github.com/notargets/gohalo/comm"
	"github.com/notargets/gohalo/utils"
)

// Remap rewrites the Offset of every ghost to its position in the owner's
// shared set. Owners check that each requested id is shared with the
// requester. Both exchange rounds always run, a rejected request fails the
// owner and the requester.
func Remap(c *comm.Comm, ic *IndexColoring) (err error) {
	requests := make([][]int, c.Size())
	for _, g := range ic.Ghost {
		if g.Rank < 0 || g.Rank >= c.Size() || g.Rank == c.Rank() {
			err = multierr.Append(err, fmt.Errorf("%w: ghost %d owned by rank %d",
				ErrInconsistent, g.ID, g.Rank))
			continue
		}
		requests[g.Rank] = append(requests[g.Rank], g.ID)
	}
	incoming, cerr := comm.Alltoallv(c, requests)
	if cerr != nil {
		return multierr.Append(err, fmt.Errorf("remap requests: %w", cerr))
	}
	replies := make([][]int, c.Size())
	for q, ids := range incoming {
		replies[q] = make([]int, len(ids))
		for i, gid := range ids {
			k := sort.Search(len(ic.Shared), func(k int) bool { return ic.Shared[k].ID >= gid })
			switch {
			case k == len(ic.Shared) || ic.Shared[k].ID != gid:
				err = multierr.Append(err, fmt.Errorf("%w: rank %d asked for %d, not shared here",
					ErrInconsistent, q, gid))
				k = -1
			case !utils.SetContains(ic.Shared[k].Shared, q):
				err = multierr.Append(err, fmt.Errorf("%w: rank %d ghosts %d but is not a user of it",
					ErrInconsistent, q, gid))
				k = -1
			}
			replies[q][i] = k
		}
	}
	answers, cerr := comm.Alltoallv(c, replies)
	if cerr != nil {
		return multierr.Append(err, fmt.Errorf("remap replies: %w", cerr))
	}
	next := make([]int, c.Size())
	for i := range ic.Ghost {
		g := &ic.Ghost[i]
		if g.Rank < 0 || g.Rank >= c.Size() || g.Rank == c.Rank() {
			continue
		}
		k := answers[g.Rank][next[g.Rank]]
		next[g.Rank]++
		if k < 0 {
			err = multierr.Append(err, fmt.Errorf("%w: rank %d rejected ghost %d",
				ErrInconsistent, g.Rank, g.ID))
			continue
		}
		g.Offset = k
	}
	return
}
