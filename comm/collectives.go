package comm

import (
	"fmt"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

type Op uint8

const (
	Sum Op = iota
	Max
	Min
)

func (op Op) String() string {
	switch op {
	case Sum:
		return "sum"
	case Max:
		return "max"
	case Min:
		return "min"
	default:
		return fmt.Sprintf("Op(%d)", uint8(op))
	}
}

type Number interface {
	constraints.Integer | constraints.Float
}

func sendColl[T any](c *Comm, dst, tag int, data []T) error {
	return c.post(dst, kindCollective, tag, slices.Clone(data))
}

func recvColl[T any](c *Comm, src, tag int) ([]T, error) {
	data, err := c.take(src, kindCollective, tag)
	if err != nil {
		return nil, err
	}
	return typed[T](data, src, tag)
}

func Barrier(c *Comm) (err error) {
	var (
		tag   = c.nextSeq()
		token = []struct{}{{}}
	)
	if c.rank != 0 {
		if err = sendColl(c, 0, tag, token); err != nil {
			return
		}
		_, err = recvColl[struct{}](c, 0, tag)
		return
	}
	for r := 1; r < c.Size(); r++ {
		if _, err = recvColl[struct{}](c, r, tag); err != nil {
			return
		}
	}
	for r := 1; r < c.Size(); r++ {
		if err = sendColl(c, r, tag, token); err != nil {
			return
		}
	}
	return
}

// Bcast returns root's data on every rank.
func Bcast[T any](c *Comm, root int, data []T) ([]T, error) {
	tag := c.nextSeq()
	if err := c.checkRank(root, "bcast"); err != nil {
		return nil, err
	}
	if c.rank != root {
		return recvColl[T](c, root, tag)
	}
	for r := 0; r < c.Size(); r++ {
		if r == root {
			continue
		}
		if err := sendColl(c, r, tag, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Allgather returns one value per rank, indexed by rank.
func Allgather[T any](c *Comm, v T) (all []T, err error) {
	vv, err := Allgatherv(c, []T{v})
	if err != nil {
		return
	}
	all = make([]T, len(vv))
	for r, s := range vv {
		if len(s) != 1 {
			return nil, fmt.Errorf("%w: allgather: rank %d contributed %d values",
				ErrComm, r, len(s))
		}
		all[r] = s[0]
	}
	return
}

// Allgatherv returns every rank's slice, indexed by rank.
func Allgatherv[T any](c *Comm, v []T) (all [][]T, err error) {
	tag := c.nextSeq()
	all = make([][]T, c.Size())
	for r := 0; r < c.Size(); r++ {
		if r == c.rank {
			continue
		}
		if err = sendColl(c, r, tag, v); err != nil {
			return nil, err
		}
	}
	for r := 0; r < c.Size(); r++ {
		if r == c.rank {
			all[r] = slices.Clone(v)
			continue
		}
		if all[r], err = recvColl[T](c, r, tag); err != nil {
			return nil, err
		}
	}
	return
}

// Alltoall sends send[r] to rank r and returns the value received from each
// rank.
func Alltoall[T any](c *Comm, send []T) (recv []T, err error) {
	if len(send) != c.Size() {
		return nil, fmt.Errorf("%w: alltoall: %d values for %d ranks",
			ErrComm, len(send), c.Size())
	}
	tag := c.nextSeq()
	recv = make([]T, c.Size())
	for r := 0; r < c.Size(); r++ {
		if r == c.rank {
			recv[r] = send[r]
			continue
		}
		if err = sendColl(c, r, tag, send[r:r+1]); err != nil {
			return nil, err
		}
	}
	for r := 0; r < c.Size(); r++ {
		if r == c.rank {
			continue
		}
		var v []T
		if v, err = recvColl[T](c, r, tag); err != nil {
			return nil, err
		}
		recv[r] = v[0]
	}
	return
}

// Alltoallv sends send[r] to rank r. Counts go first so that empty slices
// are neither sent nor waited for.
func Alltoallv[T any](c *Comm, send [][]T) (recv [][]T, err error) {
	if len(send) != c.Size() {
		return nil, fmt.Errorf("%w: alltoallv: %d buffers for %d ranks",
			ErrComm, len(send), c.Size())
	}
	counts := make([]int, c.Size())
	for r, s := range send {
		counts[r] = len(s)
	}
	if counts, err = Alltoall(c, counts); err != nil {
		return nil, err
	}
	tag := c.nextSeq()
	recv = make([][]T, c.Size())
	for r := 0; r < c.Size(); r++ {
		if r == c.rank || len(send[r]) == 0 {
			continue
		}
		if err = sendColl(c, r, tag, send[r]); err != nil {
			return nil, err
		}
	}
	for r := 0; r < c.Size(); r++ {
		switch {
		case r == c.rank:
			recv[r] = slices.Clone(send[r])
		case counts[r] == 0:
		default:
			if recv[r], err = recvColl[T](c, r, tag); err != nil {
				return nil, err
			}
			if len(recv[r]) != counts[r] {
				return nil, fmt.Errorf("%w: alltoallv: rank %d announced %d values, sent %d",
					ErrComm, r, counts[r], len(recv[r]))
			}
		}
	}
	return
}

func Allreduce[T Number](c *Comm, v T, op Op) (result T, err error) {
	all, err := Allgather(c, v)
	if err != nil {
		return
	}
	result = all[0]
	for _, x := range all[1:] {
		switch op {
		case Sum:
			result += x
		case Max:
			if x > result {
				result = x
			}
		case Min:
			if x < result {
				result = x
			}
		default:
			return result, fmt.Errorf("%w: allreduce: unknown op %v", ErrComm, op)
		}
	}
	return
}
