package lifecycle

import (
	"sync"

	"github.com/vnykmshr/rxflow/pkg/streaming/observable"
)

// Sink is an external state cell a pipeline pushes values into.
type Sink[T any] interface {
	Set(T)
}

// SinkFunc adapts a function to Sink.
type SinkFunc[T any] func(T)

// Set calls f(v).
func (f SinkFunc[T]) Set(v T) { f(v) }

// Cell is a concurrency-safe Sink holding the last value set.
type Cell[T any] struct {
	mu      sync.RWMutex
	value   T
	version uint64
}

// NewCell returns a Cell holding initial.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial}
}

// Set replaces the value.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	c.version++
	c.mu.Unlock()
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Version returns how many times Set has been called.
func (c *Cell[T]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Bind starts src in scope and writes every value into sink. When onError
// is non-nil an error is converted into one last value for sink; otherwise
// it is treated as unhandled.
func Bind[T any](scope *Scope, src observable.Observable[T], sink Sink[T], onError func(error) T) (*observable.Subscription, error) {
	h := observable.Handlers[T]{Next: sink.Set}
	if onError != nil {
		h.Error = func(err error) { sink.Set(onError(err)) }
	}
	return Start(scope, src, h)
}
