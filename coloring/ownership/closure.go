package ownership

import (
	"fmt"

	"github.com/notargets/gohalo/coloring/dcrs"
	"github.com/notargets/gohalo/comm"
	"github.com/notargets/gohalo/mesh"
	"github.com/notargets/gohalo/utils"
)

// ColorClosure colors the toDim entities touched by the primary fromDim
// entities of cells. An entity is owned by the lowest rank whose primary
// entities touch it. The other touching ranks ghost it. Decisions are taken
// at a home rank given by the naive distribution of the toDim ids. Ghost
// offsets are owner-local, run Remap to turn them into shared offsets.
func ColorClosure(c *comm.Comm, def mesh.Definition, cells *IndexColoring,
	fromDim, toDim int) (*IndexColoring, ColoringInfo, error) {
	var (
		nTo     = def.NumEntities(toDim)
		touched []int
	)
	for _, cell := range cells.Primary() {
		for _, v := range def.Entities(fromDim, toDim, cell) {
			if v < 0 || v >= nTo {
				return nil, ColoringInfo{}, fmt.Errorf("%w: entity %d references %d outside [0,%d)",
					dcrs.ErrPrecondition, cell, v, nTo)
			}
			touched = append(touched, v)
		}
	}
	touched = utils.SortedUnique(touched)

	home := NaiveOwnership{Distribution: dcrs.NaiveDistribution(nTo, c.Size())}
	requests := make([][]int, c.Size())
	for _, v := range touched {
		r, _ := home.Owner(v)
		requests[r] = append(requests[r], v)
	}
	incoming, err := comm.Alltoallv(c, requests)
	if err != nil {
		return nil, ColoringInfo{}, fmt.Errorf("closure requests: %w", err)
	}
	touchers := make(map[int][]int)
	for q, ids := range incoming {
		for _, v := range ids {
			touchers[v] = utils.SetInsert(touchers[v], q)
		}
	}
	// Each reply entry is: id, count, touching ranks... The owner is the first.
	replies := make([][]int, c.Size())
	for q, ids := range incoming {
		for _, v := range ids {
			ranks := touchers[v]
			replies[q] = append(replies[q], v, len(ranks))
			replies[q] = append(replies[q], ranks...)
		}
	}
	answers, err := comm.Alltoallv(c, replies)
	if err != nil {
		return nil, ColoringInfo{}, fmt.Errorf("closure replies: %w", err)
	}

	var (
		ic        = &IndexColoring{}
		users     []int
		owners    []int
		primary   []int
		ghostRank = make(map[int]int)
	)
	for _, buf := range answers {
		for p := 0; p < len(buf); {
			v, n := buf[p], buf[p+1]
			ranks := buf[p+2 : p+2+n]
			p += 2 + n
			if ranks[0] != c.Rank() {
				ghostRank[v] = ranks[0]
				owners = utils.SetInsert(owners, ranks[0])
				continue
			}
			primary = append(primary, v)
			others := utils.SetDifference(ranks, []int{c.Rank()})
			info := EntityInfo{ID: v, Rank: c.Rank()}
			if len(others) == 0 {
				ic.Exclusive = append(ic.Exclusive, info)
				continue
			}
			info.Shared = others
			ic.Shared = append(ic.Shared, info)
			users = utils.SetUnion(users, others)
		}
	}
	own, err := GatherOwnership(c, primary)
	if err != nil {
		return nil, ColoringInfo{}, err
	}
	for v, r := range ghostRank {
		or, off := own.Owner(v)
		if or != r {
			return nil, ColoringInfo{}, fmt.Errorf("%w: entity %d decided for rank %d, owned by %d",
				ErrInconsistent, v, r, or)
		}
		ic.Ghost = append(ic.Ghost, EntityInfo{ID: v, Rank: r, Offset: off})
	}
	sortByID(ic.Exclusive)
	sortByID(ic.Shared)
	sortByID(ic.Ghost)
	if both := Intersection(primary, ic.IDs(Ghost)); len(both) > 0 {
		return nil, ColoringInfo{}, fmt.Errorf("%w: rank %d both owns and ghosts %v",
			ErrInconsistent, c.Rank(), both)
	}
	for _, set := range [][]EntityInfo{ic.Exclusive, ic.Shared} {
		for i := range set {
			_, set[i].Offset = own.Owner(set[i].ID)
		}
	}
	ic.SharedUsers, ic.GhostOwners = users, owners
	return ic, ic.Info(), nil
}
