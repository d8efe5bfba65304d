package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	rxcontext "github.com/vnykmshr/rxflow/pkg/common/context"
	rxerrors "github.com/vnykmshr/rxflow/pkg/common/errors"
	"github.com/vnykmshr/rxflow/pkg/metrics"
	"github.com/vnykmshr/rxflow/pkg/streaming/observable"
)

// Option configures a Scope.
type Option func(*Scope)

// WithLogger sets the logger receiving unhandled errors and scope events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scope) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder for unhandled errors.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Scope) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Scope owns the subscriptions of one consumer. Closing the scope cancels
// every subscription still registered, exactly once.
type Scope struct {
	name     string
	logger   *slog.Logger
	recorder metrics.Recorder

	mu      sync.Mutex
	subs    map[*observable.Subscription]struct{}
	closed  bool
	changed chan struct{}
	done    chan struct{}
}

// New creates an open scope.
func New(name string, opts ...Option) *Scope {
	s := &Scope{
		name:     name,
		logger:   slog.Default(),
		recorder: metrics.Nop{},
		subs:     make(map[*observable.Subscription]struct{}),
		changed:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("scope", name)
	return s
}

// Name returns the scope name.
func (s *Scope) Name() string {
	return s.name
}

// Len returns the number of live subscriptions owned by the scope.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done returns a channel closed when the scope is closed.
func (s *Scope) Done() <-chan struct{} {
	return s.done
}

// Add hands sub over to the scope. If the scope is already closed, sub is
// cancelled and an error wrapping errors.ErrClosed is returned. A
// subscription that ends on its own leaves the scope.
func (s *Scope) Add(sub *observable.Subscription) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Cancel()
		return fmt.Errorf("scope %q: %w", s.name, rxerrors.ErrClosed)
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	sub.Add(func() { s.remove(sub) })
	return nil
}

func (s *Scope) remove(sub *observable.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; !ok {
		return
	}
	delete(s.subs, sub)
	close(s.changed)
	s.changed = make(chan struct{})
}

// Close cancels every registered subscription. It is idempotent and may be
// called from inside a handler of one of the scope's subscriptions.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*observable.Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	close(s.done)
	s.logger.Debug("scope closed", "cancelled", len(subs))
	return nil
}

// Wait blocks until no subscription is left in the scope or ctx is done.
func (s *Scope) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		n := len(s.subs)
		changed := s.changed
		s.mu.Unlock()

		if n == 0 {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// unhandled surfaces an error no handler was given for.
func (s *Scope) unhandled(err error) {
	s.recorder.ObserveUnhandledError(s.name)
	s.logger.Error("unhandled stream error", "error", err)
}

// Start activates src inside scope. The subscription is registered before
// the source starts producing, so closing the scope from any goroutine,
// even while values are being delivered, cancels it. If h has no Error
// handler, errors are logged at ERROR level and counted.
func Start[T any](scope *Scope, src observable.Observable[T], h observable.Handlers[T]) (*observable.Subscription, error) {
	sub := observable.NewSubscription()
	if err := scope.Add(sub); err != nil {
		return sub, err
	}
	if h.Error == nil {
		h.Error = scope.unhandled
	}
	src.SubscribeWith(h, sub)
	return sub, nil
}

// Run creates a scope, calls fn with it and closes the scope on every exit
// path: normal return, error, panic, or cancellation of ctx. The context
// passed to fn is cancelled when Run returns.
func Run(ctx context.Context, name string, fn func(ctx context.Context, scope *Scope) error, opts ...Option) error {
	scope := New(name, opts...)
	defer scope.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := rxcontext.OnDone(ctx, func() { scope.Close() })
	defer stop()

	return fn(ctx, scope)
}
