package observable

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	rxerrors "github.com/vnykmshr/rxflow/pkg/common/errors"
)

// Kind identifies the type of a Notification.
type Kind int

const (
	// KindNext carries a value.
	KindNext Kind = iota
	// KindError carries the terminal failure of an activation.
	KindError
	// KindComplete marks successful termination.
	KindComplete
)

func (k Kind) String() string {
	switch k {
	case KindNext:
		return "next"
	case KindError:
		return "error"
	case KindComplete:
		return "complete"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Notification is one event of an activation.
type Notification[T any] struct {
	Kind  Kind
	Value T
	Err   error
}

// NewNext returns a Next notification carrying v.
func NewNext[T any](v T) Notification[T] {
	return Notification[T]{Kind: KindNext, Value: v}
}

// NewError returns an Error notification carrying err.
func NewError[T any](err error) Notification[T] {
	return Notification[T]{Kind: KindError, Err: err}
}

// NewComplete returns a Complete notification.
func NewComplete[T any]() Notification[T] {
	return Notification[T]{Kind: KindComplete}
}

// Accept delivers the notification to obs.
func (n Notification[T]) Accept(obs Observer[T]) {
	switch n.Kind {
	case KindNext:
		obs.OnNext(n.Value)
	case KindError:
		obs.OnError(n.Err)
	case KindComplete:
		obs.OnComplete()
	}
}

func (n Notification[T]) String() string {
	switch n.Kind {
	case KindNext:
		return fmt.Sprintf("next(%v)", n.Value)
	case KindError:
		return fmt.Sprintf("error(%v)", n.Err)
	default:
		return n.Kind.String()
	}
}

// Observer receives the notifications of one activation.
type Observer[T any] interface {
	OnNext(value T)
	OnError(err error)
	OnComplete()
}

// Handlers adapts plain functions to Observer. Nil fields are skipped, except
// Error: an error reaching Handlers without an Error func is logged through
// slog.Default so it is never lost.
type Handlers[T any] struct {
	Next     func(T)
	Error    func(error)
	Complete func()
}

func (h Handlers[T]) OnNext(v T) {
	if h.Next != nil {
		h.Next(v)
	}
}

func (h Handlers[T]) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
		return
	}
	slog.Default().Error("unhandled stream error", "error", err)
}

func (h Handlers[T]) OnComplete() {
	if h.Complete != nil {
		h.Complete()
	}
}

// Subscription is one active consumption of an Observable. Cancel moves it
// from active to closed exactly once; teardown functions then run in reverse
// registration order and nothing more is delivered to the observer.
type Subscription struct {
	closed    atomic.Bool
	mu        sync.Mutex
	teardowns []func()
	done      chan struct{}
}

// NewSubscription returns an active subscription with no teardowns.
func NewSubscription() *Subscription {
	return &Subscription{done: make(chan struct{})}
}

// Active reports whether the subscription has not been cancelled.
func (s *Subscription) Active() bool {
	return !s.closed.Load()
}

// Closed reports whether the subscription has been cancelled.
func (s *Subscription) Closed() bool {
	return s.closed.Load()
}

// Done returns a channel closed when the subscription is cancelled, either
// explicitly or because the activation terminated.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Add registers a teardown run on cancellation. If the subscription is
// already closed, fn runs immediately.
func (s *Subscription) Add(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		fn()
		return
	}
	s.teardowns = append(s.teardowns, fn)
	s.mu.Unlock()
}

// Cancel closes the subscription. It is idempotent and safe to call from any
// goroutine, including from inside the subscription's own handlers.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	if !s.closed.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return
	}
	teardowns := s.teardowns
	s.teardowns = nil
	s.mu.Unlock()

	close(s.done)
	for i := len(teardowns) - 1; i >= 0; i-- {
		teardowns[i]()
	}
}

// Observable is a cold stream source: the producer runs once per Subscribe,
// and each run is an independent activation. The zero Observable completes
// immediately.
type Observable[T any] struct {
	produce func(Observer[T], *Subscription)
}

// Create builds an Observable from a producer. The producer is called on
// every Subscribe with an observer that enforces the notification grammar
// and the subscription of that activation; it should register teardowns for
// any timer, goroutine or request it starts. A panicking producer terminates
// the activation with an *errors.ApplicationError.
func Create[T any](producer func(obs Observer[T], sub *Subscription)) Observable[T] {
	return Observable[T]{produce: producer}
}

// Subscribe activates the Observable.
func (o Observable[T]) Subscribe(obs Observer[T]) *Subscription {
	sub := NewSubscription()
	o.subscribeWith(obs, sub)
	return sub
}

// SubscribeNext activates the Observable with only a Next handler. Errors
// are logged.
func (o Observable[T]) SubscribeNext(next func(T)) *Subscription {
	return o.Subscribe(Handlers[T]{Next: next})
}

// SubscribeWith activates the Observable on a subscription created by the
// caller, so that it can be registered before the producer runs.
func (o Observable[T]) SubscribeWith(obs Observer[T], sub *Subscription) {
	o.subscribeWith(obs, sub)
}

func (o Observable[T]) subscribeWith(obs Observer[T], sub *Subscription) {
	safe := &safeObserver[T]{dst: obs, sub: sub}
	if o.produce == nil {
		safe.OnComplete()
		return
	}
	defer func() {
		if r := recover(); r != nil {
			err := rxerrors.NewApplicationError("subscribe", fmt.Errorf("panic: %v", r))
			if safe.done.Load() {
				// A terminal handler panicked; the activation is already over.
				slog.Default().Error("panic in terminal handler", "error", err)
				sub.Cancel()
				return
			}
			safe.OnError(err)
		}
	}()
	o.produce(safe, sub)
}

// subscribeChild activates o on a new subscription cancelled with parent.
func (o Observable[T]) subscribeChild(obs Observer[T], parent *Subscription) *Subscription {
	child := NewSubscription()
	parent.Add(child.Cancel)
	o.subscribeWith(obs, child)
	return child
}

// safeObserver drops everything after a terminal notification or after the
// subscription is cancelled, and cancels the subscription on termination.
type safeObserver[T any] struct {
	dst  Observer[T]
	sub  *Subscription
	done atomic.Bool
}

func (s *safeObserver[T]) OnNext(v T) {
	if s.done.Load() || s.sub.Closed() {
		return
	}
	s.dst.OnNext(v)
}

func (s *safeObserver[T]) OnError(err error) {
	if s.sub.Closed() || !s.done.CompareAndSwap(false, true) {
		return
	}
	defer s.sub.Cancel()
	s.dst.OnError(err)
}

func (s *safeObserver[T]) OnComplete() {
	if s.sub.Closed() || !s.done.CompareAndSwap(false, true) {
		return
	}
	defer s.sub.Cancel()
	s.dst.OnComplete()
}

// Operator transforms one Observable into another.
type Operator[T, U any] func(Observable[T]) Observable[U]

// Pipe applies ops to src in order.
func Pipe[T any](src Observable[T], ops ...Operator[T, T]) Observable[T] {
	for _, op := range ops {
		src = op(src)
	}
	return src
}

// Pipe applies ops to o in order.
func (o Observable[T]) Pipe(ops ...Operator[T, T]) Observable[T] {
	return Pipe(o, ops...)
}

// serial holds at most one live inner subscription. Setting a new one
// cancels the previous one first.
type serial struct {
	mu      sync.Mutex
	current *Subscription
	closed  bool
}

// set installs next, cancelling the previous subscription. It returns false
// and cancels next if the serial is already closed.
func (s *serial) set(next *Subscription) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		next.Cancel()
		return false
	}
	prev := s.current
	s.current = next
	s.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	return true
}

func (s *serial) cancel() {
	s.mu.Lock()
	s.closed = true
	prev := s.current
	s.current = nil
	s.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
}

// protect calls f, converting a panic into an *errors.ApplicationError for op.
func protect[U any](op string, f func() U) (u U, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = rxerrors.NewApplicationError(op, fmt.Errorf("panic: %v", r))
		}
	}()
	return f(), nil
}
