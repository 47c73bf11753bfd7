package exchange

import (
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/exp/slices"

	"github.com/notargets/gohalo/comm"
)

// ScopedExchangeWindow is one exposure and access epoch on a window. Opening
// it posts to the shared users and starts on the ghost owners, Close
// completes and waits.
type ScopedExchangeWindow struct {
	w    *comm.Window[byte]
	open bool
}

func OpenExchangeWindow(w *comm.Window[byte], users, owners []int) (*ScopedExchangeWindow, error) {
	if err := w.Post(users); err != nil {
		return nil, fmt.Errorf("window %d post: %w", w.ID(), err)
	}
	if err := w.Start(owners); err != nil {
		return nil, fmt.Errorf("window %d start: %w", w.ID(), err)
	}
	return &ScopedExchangeWindow{w: w, open: true}, nil
}

// Get reads len(dst) bytes at disp in target's window.
func (s *ScopedExchangeWindow) Get(dst []byte, target, disp int) error {
	if !s.open {
		return fmt.Errorf("%w: get on closed window %d", comm.ErrComm, s.w.ID())
	}
	return s.w.Get(dst, target, disp)
}

// Close ends both epochs. It is a no-op on a closed scope.
func (s *ScopedExchangeWindow) Close() error {
	if !s.open {
		return nil
	}
	s.open = false
	if err := s.w.Complete(); err != nil {
		return fmt.Errorf("window %d complete: %w", s.w.ID(), err)
	}
	if err := s.w.Wait(); err != nil {
		return fmt.Errorf("window %d wait: %w", s.w.ID(), err)
	}
	return nil
}

// MpiExchange reads ghost rows straight out of the owners' shared memory,
// one Get per ghost.
type MpiExchange struct {
	engine
	windows map[FieldID][]*comm.Window[byte]
}

func (x *MpiExchange) Backend() Backend { return MPI }

func (x *MpiExchange) Register(f *Field) error {
	if f.Kind == Global {
		return nil
	}
	if _, ok := x.windows[f.ID]; ok {
		return fmt.Errorf("%w: field %d registered twice", ErrField, f.ID)
	}
	ls, err := layers(f)
	if err != nil {
		return err
	}
	ws := make([]*comm.Window[byte], len(ls))
	for i, l := range ls {
		if ws[i], err = comm.CreateWindow(x.c, l.shared); err != nil {
			return fmt.Errorf("register field %d: %w", f.ID, err)
		}
	}
	x.windows[f.ID] = ws
	return nil
}

func (x *MpiExchange) Exchange(f *Field) error {
	ws, ok := x.windows[f.ID]
	if !ok {
		return fmt.Errorf("%w: field %d not registered", ErrField, f.ID)
	}
	return x.visit(f, func(p *Plan, round int, l layer) (err error) {
		scope, err := OpenExchangeWindow(ws[round], p.Info.SharedUsers, p.Info.GhostOwners)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, scope.Close()) }()
		for _, peer := range p.Recv {
			for i, k := range peer.Local {
				if err = scope.Get(l.ghostRow(k), peer.Rank, peer.Remote[i]*l.stride); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Free releases the windows of every registered field. It is collective.
func (x *MpiExchange) Free() (err error) {
	ids := make([]FieldID, 0, len(x.windows))
	for id := range x.windows {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		for _, w := range x.windows[id] {
			err = multierr.Append(err, w.Free())
		}
		delete(x.windows, id)
	}
	return
}
