// Package comm is an in-process SPMD communicator. A World holds a fixed
// number of ranks, each driven by its own goroutine through a Comm. The
// primitives mirror the subset of MPI the coloring and exchange code needs:
// tagged point-to-point messages, collectives, one-sided windows with
// post/start/complete/wait epochs and phase barriers.
//
// Every collective must be called by all ranks in the same order.
package comm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/notargets/gohalo/utils"
)

// ErrComm is wrapped by every communication failure.
var ErrComm = errors.New("communication failure")

// DefaultDepth is the number of undelivered messages a rank can have queued
// from all peers before senders block.
const DefaultDepth = 1024

type kind uint8

const (
	kindP2P kind = iota
	kindCollective
	kindWindow
)

type envelope struct {
	src  int
	kind kind
	tag  int
	data any
}

type winKey struct {
	id, rank int
}

// World is the set of ranks sharing one mailbox.
type World struct {
	size int
	mb   *utils.MailBox[envelope]

	mu       sync.RWMutex
	windows  map[winKey]any
	barriers map[string]*PhaseBarrier

	comms []*Comm
}

func NewWorld(size int) *World {
	return NewWorldDepth(size, DefaultDepth)
}

func NewWorldDepth(size, depth int) *World {
	if size < 1 {
		panic(fmt.Sprintf("world size must be positive, got %d", size))
	}
	w := &World{
		size:     size,
		mb:       utils.NewMailBox[envelope](size, depth),
		windows:  make(map[winKey]any),
		barriers: make(map[string]*PhaseBarrier),
		comms:    make([]*Comm, size),
	}
	for r := 0; r < size; r++ {
		w.comms[r] = &Comm{
			world: w,
			rank:  r,
			Log:   utils.RankLogger(r),
		}
	}
	return w
}

func (w *World) Size() int { return w.size }

// Comm returns the handle for rank. A handle must only be used from one
// goroutine at a time.
func (w *World) Comm(rank int) *Comm { return w.comms[rank] }

// Run executes fn once per rank, each on its own goroutine, and waits for all
// of them. Rank errors are combined.
func (w *World) Run(fn func(c *Comm) error) error {
	var (
		wg   sync.WaitGroup
		errs = make([]error, w.size)
	)
	wg.Add(w.size)
	for r := 0; r < w.size; r++ {
		go func(rank int) {
			defer wg.Done()
			if err := fn(w.comms[rank]); err != nil {
				errs[rank] = fmt.Errorf("rank %d: %w", rank, err)
			}
		}(r)
	}
	wg.Wait()
	return multierr.Combine(errs...)
}

func (w *World) register(key winKey, base any) {
	w.mu.Lock()
	w.windows[key] = base
	w.mu.Unlock()
}

func (w *World) lookup(key winKey) (base any, ok bool) {
	w.mu.RLock()
	base, ok = w.windows[key]
	w.mu.RUnlock()
	return
}

func (w *World) unregister(key winKey) {
	w.mu.Lock()
	delete(w.windows, key)
	w.mu.Unlock()
}

// Comm is one rank's view of the World.
type Comm struct {
	world      *World
	rank       int
	seq        int
	nextWindow int
	stash      []envelope
	Log        zerolog.Logger
}

func (c *Comm) Rank() int     { return c.rank }
func (c *Comm) Size() int     { return c.world.size }
func (c *Comm) World() *World { return c.world }

func (c *Comm) nextSeq() (tag int) {
	tag = c.seq
	c.seq++
	return
}

func (c *Comm) checkRank(r int, op string) error {
	if r < 0 || r >= c.world.size {
		return fmt.Errorf("%w: %s: rank %d outside [0,%d)", ErrComm, op, r, c.world.size)
	}
	return nil
}

func (c *Comm) post(dst int, k kind, tag int, data any) error {
	if err := c.checkRank(dst, "send"); err != nil {
		return err
	}
	c.world.mb.PostMessage(c.rank, dst, envelope{src: c.rank, kind: k, tag: tag, data: data})
	c.world.mb.DeliverMyMessages(c.rank)
	return nil
}

// take blocks until a message from src with the given kind and tag arrives.
// Messages that do not match are kept for later receives.
func (c *Comm) take(src int, k kind, tag int) (data any, err error) {
	if err = c.checkRank(src, "receive"); err != nil {
		return
	}
	for {
		for i, env := range c.stash {
			if env.src == src && env.kind == k && env.tag == tag {
				c.stash = append(c.stash[:i], c.stash[i+1:]...)
				return env.data, nil
			}
		}
		c.world.mb.WaitMyMessages(c.rank)
		c.stash = append(c.stash, c.world.mb.ReceiveMsgQs[c.rank].Cells()...)
		c.world.mb.ClearMyMessages(c.rank)
	}
}

func typed[T any](data any, src, tag int) ([]T, error) {
	v, ok := data.([]T)
	if !ok {
		var zero T
		return nil, fmt.Errorf("%w: message from rank %d tag %d holds %T, want []%T",
			ErrComm, src, tag, data, zero)
	}
	return v, nil
}
