package ownership

import (
	"fmt"
	"sort"

	"github.com/notargets/gohalo/comm"
	"github.com/notargets/gohalo/utils"
)

// Ownership maps a global id to its owning rank and the offset of the id
// among that rank's primary entities. Unknown ids map to (-1, -1).
type Ownership interface {
	Owner(gid int) (rank, offset int)
}

// NaiveOwnership owns contiguous blocks of ids given by a prefix sum.
type NaiveOwnership struct {
	Distribution []int
}

func (n NaiveOwnership) Owner(gid int) (rank, offset int) {
	last := len(n.Distribution) - 1
	if gid < 0 || last < 1 || gid >= n.Distribution[last] {
		return -1, -1
	}
	// First rank whose upper bound exceeds gid
	rank = sort.Search(last, func(r int) bool { return n.Distribution[r+1] > gid })
	return rank, gid - n.Distribution[rank]
}

// PartitionedOwnership owns arbitrary sorted id lists, one per rank.
type PartitionedOwnership struct {
	owner map[int][2]int
}

// NewPartitionedOwnership builds the lookup from the primary ids of every
// rank. An id listed twice is an error.
func NewPartitionedOwnership(primary [][]int) (*PartitionedOwnership, error) {
	po := &PartitionedOwnership{owner: make(map[int][2]int)}
	for r, ids := range primary {
		sorted := utils.SortedUnique(append([]int{}, ids...))
		if len(sorted) != len(ids) {
			return nil, fmt.Errorf("%w: rank %d lists primary ids more than once", ErrInconsistent, r)
		}
		for off, gid := range sorted {
			if prev, dup := po.owner[gid]; dup {
				return nil, fmt.Errorf("%w: id %d claimed by ranks %d and %d",
					ErrInconsistent, gid, prev[0], r)
			}
			po.owner[gid] = [2]int{r, off}
		}
	}
	return po, nil
}

// GatherOwnership Allgathers the primary ids of every rank.
func GatherOwnership(c *comm.Comm, primary []int) (*PartitionedOwnership, error) {
	all, err := comm.Allgatherv(c, primary)
	if err != nil {
		return nil, fmt.Errorf("gather ownership: %w", err)
	}
	return NewPartitionedOwnership(all)
}

func (po *PartitionedOwnership) Owner(gid int) (rank, offset int) {
	ro, ok := po.owner[gid]
	if !ok {
		return -1, -1
	}
	return ro[0], ro[1]
}

func (po *PartitionedOwnership) Len() int { return len(po.owner) }
