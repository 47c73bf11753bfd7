package exchange

import (
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/exp/slices"

	"github.com/notargets/gohalo/comm"
)

// LegionExchange orders copies with phase barriers instead of epochs. Each
// rank owns a "ready" barrier it arrives on when its shared rows may be read
// and a "consumed" barrier its readers arrive on once they have copied.
type LegionExchange struct {
	engine
	regions map[FieldID]*legionRegion
}

type legionRegion struct {
	windows       []*comm.Window[byte]
	ready         *comm.PhaseBarrier
	consumed      *comm.PhaseBarrier
	ownerReady    map[int]*comm.PhaseBarrier
	ownerConsumed map[int]*comm.PhaseBarrier
	generation    int
	ownedBarriers []string
}

func barrierName(id FieldID, what string, rank int) string {
	return fmt.Sprintf("field/%d/%s/%d", id, what, rank)
}

func (x *LegionExchange) Backend() Backend { return Legion }

func (x *LegionExchange) Register(f *Field) error {
	if f.Kind == Global {
		return nil
	}
	if _, ok := x.regions[f.ID]; ok {
		return fmt.Errorf("%w: field %d registered twice", ErrField, f.ID)
	}
	p, err := x.plan(f)
	if err != nil {
		return err
	}
	ls, err := layers(f)
	if err != nil {
		return err
	}
	var (
		w    = x.c.World()
		rank = x.c.Rank()
		reg  = &legionRegion{
			windows:       make([]*comm.Window[byte], len(ls)),
			ownerReady:    make(map[int]*comm.PhaseBarrier),
			ownerConsumed: make(map[int]*comm.PhaseBarrier),
		}
	)
	// Region memory is registered through windows; CreateWindow is also the
	// barrier that makes every rank's phase barriers visible below.
	if reg.ready, err = w.CreatePhaseBarrier(barrierName(f.ID, "ready", rank), 1); err != nil {
		return err
	}
	if reg.consumed, err = w.CreatePhaseBarrier(barrierName(f.ID, "consumed", rank), len(p.Send)); err != nil {
		return err
	}
	reg.ownedBarriers = []string{reg.ready.Name(), reg.consumed.Name()}
	for i, l := range ls {
		if reg.windows[i], err = comm.CreateWindow(x.c, l.shared); err != nil {
			return fmt.Errorf("register field %d: %w", f.ID, err)
		}
	}
	for _, peer := range p.Recv {
		if reg.ownerReady[peer.Rank], err = w.LookupPhaseBarrier(barrierName(f.ID, "ready", peer.Rank)); err != nil {
			return err
		}
		if reg.ownerConsumed[peer.Rank], err = w.LookupPhaseBarrier(barrierName(f.ID, "consumed", peer.Rank)); err != nil {
			return err
		}
	}
	x.regions[f.ID] = reg
	return nil
}

func (x *LegionExchange) Exchange(f *Field) error {
	reg, ok := x.regions[f.ID]
	if !ok {
		return fmt.Errorf("%w: field %d not registered", ErrField, f.ID)
	}
	return x.visit(f, func(p *Plan, round int, l layer) error {
		g := reg.generation
		reg.generation = comm.Advance(g)
		reg.ready.Arrive(g)
		for _, peer := range p.Recv {
			reg.ownerReady[peer.Rank].Wait(g)
			for i, k := range peer.Local {
				if err := reg.windows[round].Copy(l.ghostRow(k), peer.Rank, peer.Remote[i]*l.stride); err != nil {
					return err
				}
			}
			reg.ownerConsumed[peer.Rank].Arrive(g)
		}
		// Shared rows stay untouched until every reader is done with them.
		reg.consumed.Wait(g)
		return nil
	})
}

// Free releases the regions and barriers of every registered field. It is
// collective.
func (x *LegionExchange) Free() (err error) {
	ids := make([]FieldID, 0, len(x.regions))
	for id := range x.regions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		reg := x.regions[id]
		for _, w := range reg.windows {
			err = multierr.Append(err, w.Free())
		}
		for _, name := range reg.ownedBarriers {
			x.c.World().DestroyPhaseBarrier(name)
		}
		delete(x.regions, id)
	}
	return
}
