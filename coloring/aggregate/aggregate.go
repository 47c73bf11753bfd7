// Package aggregate collects the coloring summaries of every rank.
package aggregate

import (
	"fmt"

	"github.com/notargets/gohalo/coloring/box"
	"github.com/notargets/gohalo/coloring/ownership"
	"github.com/notargets/gohalo/comm"
)

const overlayTag = 0

// Gather returns the ColoringInfo of every rank keyed by rank.
func Gather(c *comm.Comm, info ownership.ColoringInfo) (map[int]ownership.ColoringInfo, error) {
	counts, err := comm.Allgatherv(c, []int{info.Exclusive, info.Shared, info.Ghost})
	if err != nil {
		return nil, fmt.Errorf("gather coloring info: %w", err)
	}
	users, err := comm.Allgatherv(c, info.SharedUsers)
	if err != nil {
		return nil, fmt.Errorf("gather shared users: %w", err)
	}
	owners, err := comm.Allgatherv(c, info.GhostOwners)
	if err != nil {
		return nil, fmt.Errorf("gather ghost owners: %w", err)
	}
	all := make(map[int]ownership.ColoringInfo, c.Size())
	for r := 0; r < c.Size(); r++ {
		all[r] = ownership.ColoringInfo{
			Exclusive:   counts[r][0],
			Shared:      counts[r][1],
			Ghost:       counts[r][2],
			SharedUsers: users[r],
			GhostOwners: owners[r],
		}
	}
	return all, nil
}

// Sizes returns n from every rank.
func Sizes(c *comm.Comm, n int) ([]int, error) { return comm.Allgather(c, n) }

// MaxRequestSize returns the largest n over all ranks.
func MaxRequestSize(c *comm.Comm, n int) (int, error) { return comm.Allreduce(c, n, comm.Max) }

// GatherBoxes summarizes bc and fills GhostOverlays with the overlay of every
// ghost owner. Each rank sends its overlay to its shared users only.
func GatherBoxes(c *comm.Comm, bc *box.Coloring) (*box.AggregateInfo, error) {
	info := bc.Info()
	var (
		D     = bc.Overlay.Dim()
		sbuf  = append(append([]int{}, bc.Overlay.Lower...), bc.Overlay.Upper...)
		rbufs = make([][]int, len(info.GhostOwners))
		reqs  []*comm.Request
	)
	for i, owner := range info.GhostOwners {
		reqs = append(reqs, comm.Irecv(c, owner, overlayTag, &rbufs[i]))
	}
	for _, user := range info.SharedUsers {
		reqs = append(reqs, comm.Isend(c, user, overlayTag, sbuf))
	}
	if err := comm.Waitall(reqs...); err != nil {
		return nil, fmt.Errorf("gather overlays: %w", err)
	}
	for i, owner := range info.GhostOwners {
		if len(rbufs[i]) != 2*D {
			return nil, fmt.Errorf("gather overlays: rank %d sent %d bounds, want %d",
				owner, len(rbufs[i]), 2*D)
		}
		info.GhostOverlays[owner] = box.New(rbufs[i][:D], rbufs[i][D:])
	}
	return &info, nil
}
