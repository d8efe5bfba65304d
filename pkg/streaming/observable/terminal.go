package observable

import (
	"context"
	"slices"
	"sync"
)

// ToSlice subscribes to src and blocks until it terminates, returning every
// value it emitted. If ctx ends first the subscription is cancelled and the
// values received so far are returned with ctx.Err().
func ToSlice[T any](ctx context.Context, src Observable[T]) ([]T, error) {
	var (
		mu     sync.Mutex
		values []T
		err    error
	)
	done := make(chan struct{})

	sub := src.Subscribe(Handlers[T]{
		Next: func(v T) {
			mu.Lock()
			values = append(values, v)
			mu.Unlock()
		},
		Error: func(e error) {
			mu.Lock()
			err = e
			mu.Unlock()
			close(done)
		},
		Complete: func() { close(done) },
	})

	select {
	case <-done:
	case <-ctx.Done():
		sub.Cancel()
		mu.Lock()
		defer mu.Unlock()
		return slices.Clone(values), ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	return values, err
}
