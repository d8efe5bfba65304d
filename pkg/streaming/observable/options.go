package observable

import (
	"time"

	"github.com/vnykmshr/rxflow/pkg/scheduling/scheduler"
)

// Option configures time-based sources and operators.
type Option func(*options)

type options struct {
	sched    scheduler.Scheduler
	location *time.Location
	backoff  Backoff
	retryIf  func(error) bool
	onRetry  []func(RetryEvent)
}

// WithScheduler sets the scheduler that timers are registered on and
// asynchronous notifications are delivered through. Defaults to
// scheduler.Default().
func WithScheduler(s scheduler.Scheduler) Option {
	return func(o *options) {
		o.sched = s
	}
}

// WithLocation sets the time zone cron expressions are evaluated in.
// Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.location = loc
	}
}

// WithBackoff replaces the constant delay of RetryWithBackoff.
func WithBackoff(b Backoff) Option {
	return func(o *options) {
		o.backoff = b
	}
}

// WithRetryIf restricts RetryWithBackoff to errors for which pred returns
// true. Other errors are forwarded immediately.
func WithRetryIf(pred func(error) bool) Option {
	return func(o *options) {
		o.retryIf = pred
	}
}

// WithRetryObserver registers a callback invoked on every retry decision.
// It may be given several times.
func WithRetryObserver(fn func(RetryEvent)) Option {
	return func(o *options) {
		if fn != nil {
			o.onRetry = append(o.onRetry, fn)
		}
	}
}

func resolve(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.sched == nil {
		o.sched = scheduler.Default()
	}
	if o.location == nil {
		o.location = time.Local
	}
	return o
}
