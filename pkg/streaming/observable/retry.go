package observable

import (
	"math"
	"sync"
	"time"

	"github.com/vnykmshr/rxflow/pkg/common/validation"
	"github.com/vnykmshr/rxflow/pkg/scheduling/scheduler"
)

// Backoff returns the wait before the attempt following failed attempt
// number attempt (1-based), given the base delay of RetryWithBackoff.
type Backoff func(attempt int, base time.Duration) time.Duration

// ConstantBackoff always waits the base delay.
func ConstantBackoff() Backoff {
	return func(_ int, base time.Duration) time.Duration {
		return base
	}
}

// LinearBackoff waits attempt times the base delay.
func LinearBackoff() Backoff {
	return func(attempt int, base time.Duration) time.Duration {
		return time.Duration(attempt) * base
	}
}

// ExponentialBackoff doubles the base delay after every failed attempt,
// capped at limit when limit is positive. Delays that do not fit in a
// Duration saturate at the largest one.
func ExponentialBackoff(limit time.Duration) Backoff {
	return func(attempt int, base time.Duration) time.Duration {
		f := math.Ldexp(float64(base), attempt-1)
		d := time.Duration(math.MaxInt64)
		if f < math.MaxInt64 {
			d = time.Duration(f)
		}
		if limit > 0 && d > limit {
			return limit
		}
		return d
	}
}

// RetryOutcome classifies a RetryEvent.
type RetryOutcome string

const (
	// RetryScheduled: the attempt failed and another one will follow.
	RetryScheduled RetryOutcome = "retry"
	// RetryExhausted: the last allowed attempt failed; the error is forwarded.
	RetryExhausted RetryOutcome = "exhausted"
	// RetryAborted: the error was not retryable; the error is forwarded.
	RetryAborted RetryOutcome = "aborted"
	// RetryRecovered: an attempt after a failure produced its first
	// notification without failing.
	RetryRecovered RetryOutcome = "recovered"
)

// RetryEvent describes one retry decision.
type RetryEvent struct {
	// Attempt is the 1-based number of the attempt the event is about.
	Attempt     int
	MaxAttempts int
	Outcome     RetryOutcome
	// Err is the failure of the attempt; nil for RetryRecovered.
	Err error
	// Delay is the wait before the next attempt; set for RetryScheduled.
	Delay time.Duration
}

// RetryWithBackoff re-activates the source from scratch when it fails,
// waiting delay (or the WithBackoff strategy) between attempts, for at most
// maxAttempts activations in total. The attempt counter belongs to the outer
// activation and is never reset, not even after values were delivered. The
// error of the final attempt is forwarded unchanged. Every decision is
// reported to the WithRetryObserver callbacks.
//
// RetryWithBackoff panics with a ValidationError if maxAttempts < 1 or delay
// is negative.
func RetryWithBackoff[T any](maxAttempts int, delay time.Duration, opts ...Option) Operator[T, T] {
	mustPositive("retry max attempts", maxAttempts)
	if err := validation.ValidateNonNegativeDuration("observable", "retry delay", delay); err != nil {
		panic(err)
	}
	return func(src Observable[T]) Observable[T] {
		return Create(func(obs Observer[T], sub *Subscription) {
			r := &retrier[T]{
				src:         src,
				obs:         obs,
				maxAttempts: maxAttempts,
				delay:       delay,
				opts:        resolve(opts),
				attempts:    &serial{},
			}
			sub.Add(r.stop)
			r.attempt()
		})
	}
}

type retrier[T any] struct {
	src         Observable[T]
	obs         Observer[T]
	maxAttempts int
	delay       time.Duration
	opts        options
	attempts    *serial

	mu      sync.Mutex
	count   int
	pending scheduler.Timer
	stopped bool
}

func (r *retrier[T]) attempt() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.count++
	n := r.count
	r.pending = nil
	r.mu.Unlock()

	child := NewSubscription()
	if !r.attempts.set(child) {
		return
	}

	var recovered sync.Once
	markRecovered := func() {
		if n > 1 {
			recovered.Do(func() {
				r.report(RetryEvent{Attempt: n, MaxAttempts: r.maxAttempts, Outcome: RetryRecovered})
			})
		}
	}

	r.src.subscribeWith(Handlers[T]{
		Next: func(v T) {
			markRecovered()
			r.obs.OnNext(v)
		},
		Error: func(err error) { r.failed(n, err) },
		Complete: func() {
			markRecovered()
			r.obs.OnComplete()
		},
	}, child)
}

func (r *retrier[T]) failed(n int, err error) {
	if r.opts.retryIf != nil && !r.opts.retryIf(err) {
		r.report(RetryEvent{Attempt: n, MaxAttempts: r.maxAttempts, Outcome: RetryAborted, Err: err})
		r.obs.OnError(err)
		return
	}
	if n >= r.maxAttempts {
		r.report(RetryEvent{Attempt: n, MaxAttempts: r.maxAttempts, Outcome: RetryExhausted, Err: err})
		r.obs.OnError(err)
		return
	}

	wait := r.delay
	if r.opts.backoff != nil {
		wait = r.opts.backoff(n, r.delay)
	}
	r.report(RetryEvent{Attempt: n, MaxAttempts: r.maxAttempts, Outcome: RetryScheduled, Err: err, Delay: wait})

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.pending = r.opts.sched.AfterFunc(wait, r.attempt)
}

func (r *retrier[T]) report(ev RetryEvent) {
	for _, fn := range r.opts.onRetry {
		fn(ev)
	}
}

func (r *retrier[T]) stop() {
	r.mu.Lock()
	r.stopped = true
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	if pending != nil {
		pending.Stop()
	}
	r.attempts.cancel()
}
