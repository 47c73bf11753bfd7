package exchange

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/notargets/gohalo/coloring/ownership"
	"github.com/notargets/gohalo/comm"
	"github.com/notargets/gohalo/utils"
)

// Peer lists the rows moved between this rank and one other rank. For a
// receive, Local holds ghost positions and Remote the matching offsets in
// the owner's shared set. For a send, Local holds shared positions in the
// order the peer asked for them and Remote is nil.
type Peer struct {
	Rank   int
	Local  []int
	Remote []int
}

// Plan is the communication schedule of one index space on one rank.
type Plan struct {
	Rank  int
	Space int
	Info  ownership.ColoringInfo
	Recv  []Peer // One per ghost owner
	Send  []Peer // One per shared user
}

// NewPlan builds the plan of ic, which must have been remapped so ghost
// offsets address the owner's shared set. It is collective.
func NewPlan(c *comm.Comm, space int, ic *ownership.IndexColoring) (*Plan, error) {
	var (
		info = ic.Info()
		p    = &Plan{Rank: c.Rank(), Space: space, Info: info}
		err  error
		peer = make(map[int]int)
		send = make([][]int, c.Size())
	)
	for k, g := range ic.Ghost {
		if g.Offset < 0 {
			err = multierr.Append(err, fmt.Errorf("%w: space %d: ghost %d has no shared offset on rank %d",
				ownership.ErrInconsistent, space, g.ID, g.Rank))
			continue
		}
		if g.Rank < 0 || g.Rank >= c.Size() {
			err = multierr.Append(err, fmt.Errorf("%w: space %d: ghost %d owned by rank %d",
				ownership.ErrInconsistent, space, g.ID, g.Rank))
			continue
		}
		i, ok := peer[g.Rank]
		if !ok {
			i = len(p.Recv)
			peer[g.Rank] = i
			p.Recv = append(p.Recv, Peer{Rank: g.Rank})
		}
		p.Recv[i].Local = append(p.Recv[i].Local, k)
		p.Recv[i].Remote = append(p.Recv[i].Remote, g.Offset)
		send[g.Rank] = append(send[g.Rank], g.Offset)
	}
	for _, r := range p.Recv {
		if !utils.SetContains(info.GhostOwners, r.Rank) {
			err = multierr.Append(err, fmt.Errorf("%w: space %d: rank %d owns ghosts but is not a ghost owner",
				ownership.ErrInconsistent, space, r.Rank))
		}
	}

	recv, cerr := comm.Alltoallv(c, send)
	if cerr != nil {
		return nil, multierr.Append(err, fmt.Errorf("plan space %d: %w", space, cerr))
	}
	for user, offs := range recv {
		if len(offs) == 0 {
			continue
		}
		if !utils.SetContains(info.SharedUsers, user) {
			err = multierr.Append(err, fmt.Errorf("%w: space %d: rank %d requests rows but is not a shared user",
				ownership.ErrInconsistent, space, user))
			continue
		}
		for _, o := range offs {
			if o >= info.Shared {
				err = multierr.Append(err, fmt.Errorf("%w: space %d: rank %d requests shared row %d of %d",
					ownership.ErrInconsistent, space, user, o, info.Shared))
			}
		}
		p.Send = append(p.Send, Peer{Rank: user, Local: offs})
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Requests returns the number of ghost rows received.
func (p *Plan) Requests() (n int) {
	for _, r := range p.Recv {
		n += len(r.Local)
	}
	return
}
