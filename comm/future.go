package comm

import "go.uber.org/multierr"

// Future is the result of work running on its own goroutine. Futures never
// touch a Comm; they are for rank-local packing and unpacking.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func Async[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = fn()
	}()
	return f
}

// Get blocks until the work has finished.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.value, f.err
}

// WhenAll waits for every future and combines their errors.
func WhenAll[T any](fs ...*Future[T]) (values []T, err error) {
	values = make([]T, len(fs))
	for i, f := range fs {
		var e error
		values[i], e = f.Get()
		err = multierr.Append(err, e)
	}
	return
}
