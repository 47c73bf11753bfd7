package comm

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Send copies data and queues it for dst. Sends are buffered and return
// before the matching receive.
func Send[T any](c *Comm, dst, tag int, data []T) error {
	if tag < 0 {
		return fmt.Errorf("%w: negative tag %d", ErrComm, tag)
	}
	return c.post(dst, kindP2P, tag, slices.Clone(data))
}

// Recv blocks until a message with tag arrives from src.
func Recv[T any](c *Comm, src, tag int) ([]T, error) {
	data, err := c.take(src, kindP2P, tag)
	if err != nil {
		return nil, err
	}
	return typed[T](data, src, tag)
}

// Request is an outstanding non-blocking operation completed by Waitall.
type Request struct {
	complete func() error
	done     bool
}

func completed(err error) *Request {
	return &Request{complete: func() error { return err }}
}

// Isend performs a buffered send and returns an already complete request.
func Isend[T any](c *Comm, dst, tag int, data []T) *Request {
	return completed(Send(c, dst, tag, data))
}

// Irecv defers the receive to Waitall, which stores the payload in *dst.
func Irecv[T any](c *Comm, src, tag int, dst *[]T) *Request {
	return &Request{complete: func() (err error) {
		*dst, err = Recv[T](c, src, tag)
		return
	}}
}

// Waitall completes every request in order and returns the first failure.
func Waitall(reqs ...*Request) error {
	for _, r := range reqs {
		if r == nil || r.done {
			continue
		}
		r.done = true
		if err := r.complete(); err != nil {
			return err
		}
	}
	return nil
}
