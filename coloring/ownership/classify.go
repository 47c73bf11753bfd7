package ownership

import (
	"fmt"

	"github.com/notargets/gohalo/coloring/dcrs"
	"github.com/notargets/gohalo/utils"
)

// Classify sorts the local rows of d into exclusive and shared entities and
// collects the off-rank neighbours as ghosts. Every row must be owned by rank.
func Classify(rank int, d *dcrs.DCRS, own Ownership) (*IndexColoring, ColoringInfo, error) {
	var (
		ic     = &IndexColoring{}
		ghosts = make(map[int]EntityInfo)
		users  []int
		owners []int
	)
	for i := 0; i < d.RowCount(); i++ {
		gid := d.GlobalID(i)
		r, off := own.Owner(gid)
		if r != rank {
			return nil, ColoringInfo{}, fmt.Errorf("%w: rank %d holds row %d owned by rank %d",
				ErrInconsistent, rank, gid, r)
		}
		var sharedWith []int
		for _, j := range d.Row(i) {
			jr, joff := own.Owner(j)
			switch {
			case jr < 0:
				return nil, ColoringInfo{}, fmt.Errorf("%w: neighbour %d of %d has no owner",
					ErrInconsistent, j, gid)
			case jr == rank:
				continue
			}
			sharedWith = utils.SetInsert(sharedWith, jr)
			if _, seen := ghosts[j]; !seen {
				ghosts[j] = EntityInfo{ID: j, Rank: jr, Offset: joff}
				owners = utils.SetInsert(owners, jr)
			}
		}
		info := EntityInfo{ID: gid, Rank: rank, Offset: off}
		if len(sharedWith) == 0 {
			ic.Exclusive = append(ic.Exclusive, info)
			continue
		}
		info.Shared = sharedWith
		ic.Shared = append(ic.Shared, info)
		users = utils.SetUnion(users, sharedWith)
	}
	for _, g := range ghosts {
		ic.Ghost = append(ic.Ghost, g)
	}
	sortByID(ic.Exclusive)
	sortByID(ic.Shared)
	sortByID(ic.Ghost)
	ic.SharedUsers, ic.GhostOwners = users, owners
	return ic, ic.Info(), nil
}
