package comm

import (
	"fmt"
	"sync"
)

// PhaseBarrier counts arrivals per phase. Phase p completes once it has
// received the expected number of arrivals and every earlier phase has
// completed. Waiters on p are released when p completes.
type PhaseBarrier struct {
	name     string
	expected int

	mu        sync.Mutex
	cond      *sync.Cond
	arrivals  map[int]int
	completed int // phases [0, completed) are done
}

func newPhaseBarrier(name string, expected int) *PhaseBarrier {
	pb := &PhaseBarrier{
		name:     name,
		expected: expected,
		arrivals: make(map[int]int),
	}
	pb.cond = sync.NewCond(&pb.mu)
	return pb
}

func (pb *PhaseBarrier) Name() string  { return pb.name }
func (pb *PhaseBarrier) Expected() int { return pb.expected }

// Arrive records one arrival on phase.
func (pb *PhaseBarrier) Arrive(phase int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.expected == 0 {
		return
	}
	pb.arrivals[phase]++
	advanced := false
	for pb.arrivals[pb.completed] >= pb.expected {
		delete(pb.arrivals, pb.completed)
		pb.completed++
		advanced = true
	}
	if advanced {
		pb.cond.Broadcast()
	}
}

// Wait blocks until phase has completed. A barrier expecting no arrivals
// never blocks.
func (pb *PhaseBarrier) Wait(phase int) {
	if pb.expected == 0 {
		return
	}
	pb.mu.Lock()
	for pb.completed <= phase {
		pb.cond.Wait()
	}
	pb.mu.Unlock()
}

// Completed returns the number of completed phases.
func (pb *PhaseBarrier) Completed() int {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.completed
}

// Advance returns the phase following p.
func Advance(p int) int { return p + 1 }

// CreatePhaseBarrier registers a barrier under name. It is not collective;
// peers look it up with LookupPhaseBarrier once the owner has created it.
func (w *World) CreatePhaseBarrier(name string, expected int) (*PhaseBarrier, error) {
	if expected < 0 {
		return nil, fmt.Errorf("%w: phase barrier %q: negative arrival count %d", ErrComm, name, expected)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.barriers[name]; exists {
		return nil, fmt.Errorf("%w: phase barrier %q already exists", ErrComm, name)
	}
	pb := newPhaseBarrier(name, expected)
	w.barriers[name] = pb
	return pb, nil
}

func (w *World) LookupPhaseBarrier(name string) (*PhaseBarrier, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	pb, ok := w.barriers[name]
	if !ok {
		return nil, fmt.Errorf("%w: phase barrier %q not found", ErrComm, name)
	}
	return pb, nil
}

func (w *World) DestroyPhaseBarrier(name string) {
	w.mu.Lock()
	delete(w.barriers, name)
	w.mu.Unlock()
}
