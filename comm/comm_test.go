package comm

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointToPoint(t *testing.T) {
	w := NewWorld(3)
	err := w.Run(func(c *Comm) error {
		next, prev := (c.Rank()+1)%c.Size(), (c.Rank()+c.Size()-1)%c.Size()
		// Two tags in flight at once, received in reverse order
		if err := Send(c, next, 1, []int{c.Rank()}); err != nil {
			return err
		}
		if err := Send(c, next, 2, []int{10 * c.Rank()}); err != nil {
			return err
		}
		v2, err := Recv[int](c, prev, 2)
		if err != nil {
			return err
		}
		v1, err := Recv[int](c, prev, 1)
		if err != nil {
			return err
		}
		if v1[0] != prev || v2[0] != 10*prev {
			return fmt.Errorf("got %v %v from %d", v1, v2, prev)
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestIsendIrecv(t *testing.T) {
	w := NewWorld(4)
	got := make([][][]float64, 4)
	err := w.Run(func(c *Comm) error {
		var reqs []*Request
		recv := make([][]float64, c.Size())
		for r := 0; r < c.Size(); r++ {
			if r == c.Rank() {
				continue
			}
			reqs = append(reqs, Irecv(c, r, 7, &recv[r]))
		}
		for r := 0; r < c.Size(); r++ {
			if r == c.Rank() {
				continue
			}
			reqs = append(reqs, Isend(c, r, 7, []float64{float64(c.Rank()), float64(r)}))
		}
		got[c.Rank()] = recv
		return Waitall(reqs...)
	})
	require.NoError(t, err)
	for me := 0; me < 4; me++ {
		for r := 0; r < 4; r++ {
			if r == me {
				assert.Nil(t, got[me][r])
				continue
			}
			assert.Equal(t, []float64{float64(r), float64(me)}, got[me][r])
		}
	}
}

func TestSendCopiesPayload(t *testing.T) {
	w := NewWorld(2)
	err := w.Run(func(c *Comm) error {
		if c.Rank() == 0 {
			buf := []int{1, 2, 3}
			if err := Send(c, 1, 0, buf); err != nil {
				return err
			}
			buf[0] = 99
			return Barrier(c)
		}
		if err := Barrier(c); err != nil {
			return err
		}
		v, err := Recv[int](c, 0, 0)
		if err != nil {
			return err
		}
		if v[0] != 1 {
			return fmt.Errorf("payload aliased sender memory: %v", v)
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestCollectives(t *testing.T) {
	const np = 5
	w := NewWorld(np)
	var (
		mu      sync.Mutex
		results = make(map[int][]any)
	)
	err := w.Run(func(c *Comm) error {
		var out []any
		all, err := Allgather(c, c.Rank()*c.Rank())
		if err != nil {
			return err
		}
		out = append(out, all)

		// Odd ranks contribute nothing
		var mine []int
		if c.Rank()%2 == 0 {
			mine = []int{c.Rank(), c.Rank()}
		}
		allv, err := Allgatherv(c, mine)
		if err != nil {
			return err
		}
		out = append(out, allv)

		send := make([]int, c.Size())
		for r := range send {
			send[r] = 100*c.Rank() + r
		}
		a2a, err := Alltoall(c, send)
		if err != nil {
			return err
		}
		out = append(out, a2a)

		// Only rank 0 sends, and only to odd ranks
		sendv := make([][]string, c.Size())
		if c.Rank() == 0 {
			for r := 1; r < c.Size(); r += 2 {
				sendv[r] = []string{fmt.Sprintf("to %d", r)}
			}
		}
		a2av, err := Alltoallv(c, sendv)
		if err != nil {
			return err
		}
		out = append(out, a2av)

		bc, err := Bcast(c, 2, []int{c.Rank(), 42})
		if err != nil {
			return err
		}
		out = append(out, bc)

		mx, err := Allreduce(c, c.Rank(), Max)
		if err != nil {
			return err
		}
		sum, err := Allreduce(c, float64(c.Rank()), Sum)
		if err != nil {
			return err
		}
		mn, err := Allreduce(c, c.Rank()+3, Min)
		if err != nil {
			return err
		}
		out = append(out, mx, sum, mn)

		mu.Lock()
		results[c.Rank()] = out
		mu.Unlock()
		return Barrier(c)
	})
	require.NoError(t, err)
	for r := 0; r < np; r++ {
		out := results[r]
		assert.Equal(t, []int{0, 1, 4, 9, 16}, out[0])
		assert.Equal(t, [][]int{{0, 0}, nil, {2, 2}, nil, {4, 4}}, out[1])
		fromEach := make([]int, np)
		for s := range fromEach {
			fromEach[s] = 100*s + r
		}
		assert.Equal(t, fromEach, out[2])
		a2av := out[3].([][]string)
		for s := 0; s < np; s++ {
			if s == 0 && r%2 == 1 {
				assert.Equal(t, []string{fmt.Sprintf("to %d", r)}, a2av[s])
			} else {
				assert.Empty(t, a2av[s])
			}
		}
		assert.Equal(t, []int{2, 42}, out[4])
		assert.Equal(t, np-1, out[5])
		assert.Equal(t, 10., out[6])
		assert.Equal(t, 3, out[7])
	}
}

func TestCommErrors(t *testing.T) {
	w := NewWorld(2)
	c := w.Comm(0)
	{
		err := Send(c, 5, 0, []int{1})
		assert.True(t, errors.Is(err, ErrComm))
		err = Send(c, 1, -1, []int{1})
		assert.True(t, errors.Is(err, ErrComm))
	}
	{
		// Type mismatch on receive, sending to self
		require.NoError(t, Send(c, 0, 3, []int{1}))
		_, err := Recv[float64](c, 0, 3)
		assert.True(t, errors.Is(err, ErrComm))
	}
	{
		_, err := Alltoall(c, []int{1, 2, 3})
		assert.True(t, errors.Is(err, ErrComm))
	}
	{
		err := w.Run(func(c *Comm) error {
			if c.Rank() == 1 {
				return errors.New("boom")
			}
			return nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rank 1: boom")
	}
}

func TestWindow(t *testing.T) {
	const np = 4
	w := NewWorld(np)
	got := make([][]int, np)
	err := w.Run(func(c *Comm) error {
		base := []int{10 * c.Rank(), 10*c.Rank() + 1, 10*c.Rank() + 2}
		win, err := CreateWindow(c, base)
		if err != nil {
			return err
		}
		// Ring: each rank reads from the next one, so is read by the previous one
		next, prev := (c.Rank()+1)%np, (c.Rank()+np-1)%np
		for epoch := 0; epoch < 3; epoch++ {
			base[0] = 10*c.Rank() + 100*epoch
			if err = win.Post([]int{prev}); err != nil {
				return err
			}
			if err = win.Start([]int{next}); err != nil {
				return err
			}
			dst := make([]int, 2)
			if err = win.Get(dst, next, 0); err != nil {
				return err
			}
			if err = win.Complete(); err != nil {
				return err
			}
			if err = win.Wait(); err != nil {
				return err
			}
			got[c.Rank()] = append(got[c.Rank()], dst...)
		}
		if err = win.Get(make([]int, 1), next, 0); !errors.Is(err, ErrComm) {
			return fmt.Errorf("get outside epoch: %v", err)
		}
		return win.Free()
	})
	require.NoError(t, err)
	for r := 0; r < np; r++ {
		next := (r + 1) % np
		assert.Equal(t, []int{
			10 * next, 10*next + 1,
			10*next + 100, 10*next + 1,
			10*next + 200, 10*next + 1,
		}, got[r])
	}
}

func TestWindowBounds(t *testing.T) {
	w := NewWorld(1)
	c := w.Comm(0)
	win, err := CreateWindow(c, []byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, win.Post([]int{0}))
	require.NoError(t, win.Start([]int{0}))
	dst := make([]byte, 2)
	assert.True(t, errors.Is(win.Get(dst, 0, 2), ErrComm))
	assert.NoError(t, win.Get(dst, 0, 1))
	assert.Equal(t, []byte{2, 3}, dst)
	require.NoError(t, win.Complete())
	require.NoError(t, win.Wait())
	assert.True(t, errors.Is(win.Copy(dst, 3, 0), ErrComm))
}

func TestPhaseBarrier(t *testing.T) {
	w := NewWorld(3)
	{
		pb, err := w.CreatePhaseBarrier("ready", 3)
		require.NoError(t, err)
		_, err = w.CreatePhaseBarrier("ready", 3)
		assert.True(t, errors.Is(err, ErrComm))
		same, err := w.LookupPhaseBarrier("ready")
		require.NoError(t, err)
		assert.Same(t, pb, same)
		_, err = w.LookupPhaseBarrier("missing")
		assert.True(t, errors.Is(err, ErrComm))

		var order sync.WaitGroup
		order.Add(3)
		for r := 0; r < 3; r++ {
			go func() {
				defer order.Done()
				for phase := 0; phase < 4; phase = Advance(phase) {
					pb.Arrive(phase)
					pb.Wait(phase)
				}
			}()
		}
		order.Wait()
		assert.Equal(t, 4, pb.Completed())
	}
	{
		// Early arrivals on a later phase do not complete an earlier one
		pb, err := w.CreatePhaseBarrier("early", 1)
		require.NoError(t, err)
		pb.Arrive(1)
		assert.Equal(t, 0, pb.Completed())
		pb.Arrive(0)
		assert.Equal(t, 2, pb.Completed())
	}
	{
		pb, err := w.CreatePhaseBarrier("nobody", 0)
		require.NoError(t, err)
		pb.Wait(10)
		w.DestroyPhaseBarrier("nobody")
		_, err = w.LookupPhaseBarrier("nobody")
		assert.Error(t, err)
	}
}

func TestFutures(t *testing.T) {
	var fs []*Future[int]
	for i := 0; i < 8; i++ {
		fs = append(fs, Async(func() (int, error) { return i * i, nil }))
	}
	values, err := WhenAll(fs...)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 4, 9, 16, 25, 36, 49}, values)

	bad := Async(func() (int, error) { return 0, errors.New("failed") })
	_, err = WhenAll(fs[0], bad)
	assert.EqualError(t, err, "failed")
}
