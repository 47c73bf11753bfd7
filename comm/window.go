package comm

import (
	"fmt"

	"github.com/notargets/gohalo/utils"
)

const (
	phasePost = iota
	phaseComplete
	windowPhases
)

// Window exposes a slice of each rank's memory to the other ranks. Access
// follows the general active target pattern: a target opens an exposure
// epoch with Post and closes it with Wait, an origin opens an access epoch
// with Start, issues Gets and closes it with Complete.
type Window[T any] struct {
	c        *Comm
	id       int
	base     []T
	exposure []int
	access   []int
	epoch    int
}

// CreateWindow registers base as this rank's window memory. It is collective
// and returns only after every rank has registered.
func CreateWindow[T any](c *Comm, base []T) (*Window[T], error) {
	w := &Window[T]{c: c, id: c.nextWindow, base: base}
	c.nextWindow++
	c.world.register(winKey{w.id, c.rank}, base)
	if err := Barrier(c); err != nil {
		return nil, fmt.Errorf("window create: %w", err)
	}
	return w, nil
}

func (w *Window[T]) ID() int   { return w.id }
func (w *Window[T]) Base() []T { return w.base }

func (w *Window[T]) tag(phase int) int {
	return (w.epoch*windowPhases+phase)<<16 | w.id
}

// Post grants the ranks in group access to this rank's memory.
func (w *Window[T]) Post(group []int) error {
	if w.exposure != nil {
		return fmt.Errorf("%w: window %d: post inside an open exposure epoch", ErrComm, w.id)
	}
	w.exposure = utils.SortedUnique(append([]int{}, group...))
	for _, r := range w.exposure {
		if err := w.c.post(r, kindWindow, w.tag(phasePost), nil); err != nil {
			return err
		}
	}
	return nil
}

// Start blocks until every rank in group has posted to this rank.
func (w *Window[T]) Start(group []int) error {
	if w.access != nil {
		return fmt.Errorf("%w: window %d: start inside an open access epoch", ErrComm, w.id)
	}
	w.access = utils.SortedUnique(append([]int{}, group...))
	for _, r := range w.access {
		if _, err := w.c.take(r, kindWindow, w.tag(phasePost)); err != nil {
			return err
		}
	}
	return nil
}

// Get copies len(dst) elements starting at disp in target's window into dst.
// The target must be part of the current access epoch.
func (w *Window[T]) Get(dst []T, target, disp int) error {
	if !utils.SetContains(w.access, target) {
		return fmt.Errorf("%w: window %d: get from rank %d outside the access epoch",
			ErrComm, w.id, target)
	}
	return w.Copy(dst, target, disp)
}

// Copy reads target's window memory without epoch checks. Callers order it
// against the target's writes by other means, phase barriers for instance.
func (w *Window[T]) Copy(dst []T, target, disp int) error {
	if err := w.c.checkRank(target, "get"); err != nil {
		return err
	}
	raw, ok := w.c.world.lookup(winKey{w.id, target})
	if !ok {
		return fmt.Errorf("%w: window %d not registered on rank %d", ErrComm, w.id, target)
	}
	src, ok := raw.([]T)
	if !ok {
		return fmt.Errorf("%w: window %d on rank %d holds %T", ErrComm, w.id, target, raw)
	}
	if disp < 0 || disp+len(dst) > len(src) {
		return fmt.Errorf("%w: window %d: get [%d,%d) outside rank %d window of %d",
			ErrComm, w.id, disp, disp+len(dst), target, len(src))
	}
	copy(dst, src[disp:disp+len(dst)])
	return nil
}

// Complete ends the access epoch, telling every target this rank is done.
func (w *Window[T]) Complete() error {
	for _, r := range w.access {
		if err := w.c.post(r, kindWindow, w.tag(phaseComplete), nil); err != nil {
			return err
		}
	}
	w.access = nil
	return nil
}

// Wait blocks until every rank granted access by Post has completed.
func (w *Window[T]) Wait() error {
	for _, r := range w.exposure {
		if _, err := w.c.take(r, kindWindow, w.tag(phaseComplete)); err != nil {
			return err
		}
	}
	w.exposure = nil
	w.epoch++
	return nil
}

// Free unregisters the window. It is collective.
func (w *Window[T]) Free() error {
	if err := Barrier(w.c); err != nil {
		return fmt.Errorf("window free: %w", err)
	}
	w.c.world.unregister(winKey{w.id, w.c.rank})
	return nil
}
