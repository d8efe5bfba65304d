package observable

import (
	"time"

	"github.com/vnykmshr/rxflow/pkg/common/validation"
	"github.com/vnykmshr/rxflow/pkg/scheduling/scheduler"
)

// Defer calls factory on every Subscribe and activates the Observable it
// returns, so each activation starts from fresh state.
func Defer[T any](factory func() Observable[T]) Observable[T] {
	return Create(func(obs Observer[T], sub *Subscription) {
		factory().subscribeWith(obs, sub)
	})
}

// Of emits values in order, then completes.
func Of[T any](values ...T) Observable[T] {
	return FromSlice(values)
}

// FromSlice emits the elements of values in order, then completes. Emission
// stops early if the subscription is cancelled.
func FromSlice[T any](values []T) Observable[T] {
	return Create(func(obs Observer[T], sub *Subscription) {
		for _, v := range values {
			if sub.Closed() {
				return
			}
			obs.OnNext(v)
		}
		obs.OnComplete()
	})
}

// Empty completes immediately.
func Empty[T any]() Observable[T] {
	return Create(func(obs Observer[T], _ *Subscription) {
		obs.OnComplete()
	})
}

// Never emits nothing and never terminates.
func Never[T any]() Observable[T] {
	return Create(func(Observer[T], *Subscription) {})
}

// Throw fails immediately with err.
func Throw[T any](err error) Observable[T] {
	return Create(func(obs Observer[T], _ *Subscription) {
		obs.OnError(err)
	})
}

// Interval emits 0, 1, 2, ... every period and never completes.
// It panics with a ValidationError if period is not positive.
func Interval(period time.Duration, opts ...Option) Observable[int] {
	if err := validation.ValidatePositiveDuration("observable", "interval period", period); err != nil {
		panic(err)
	}
	return Create(func(obs Observer[int], sub *Subscription) {
		o := resolve(opts)
		n := 0
		t := o.sched.Every(period, func() {
			v := n
			n++
			obs.OnNext(v)
		})
		sub.Add(func() { t.Stop() })
	})
}

// Timer emits 0 once delay has elapsed, then completes.
func Timer(delay time.Duration, opts ...Option) Observable[int] {
	if err := validation.ValidateNonNegativeDuration("observable", "timer delay", delay); err != nil {
		panic(err)
	}
	return Create(func(obs Observer[int], sub *Subscription) {
		o := resolve(opts)
		t := o.sched.AfterFunc(delay, func() {
			obs.OnNext(0)
			obs.OnComplete()
		})
		sub.Add(func() { t.Stop() })
	})
}

// Cron emits the activation time of every firing of expr and never
// completes. An invalid expression fails the activation.
func Cron(expr string, opts ...Option) Observable[time.Time] {
	return Create(func(obs Observer[time.Time], sub *Subscription) {
		o := resolve(opts)
		t, err := scheduler.ScheduleCron(o.sched, expr, o.location, obs.OnNext)
		if err != nil {
			obs.OnError(err)
			return
		}
		sub.Add(func() { t.Stop() })
	})
}

// FromChannel emits values received from ch, delivered through the
// scheduler, and completes when ch is closed. The reading goroutine exits
// when the subscription is cancelled.
func FromChannel[T any](ch <-chan T, opts ...Option) Observable[T] {
	return Create(func(obs Observer[T], sub *Subscription) {
		o := resolve(opts)
		go func() {
			for {
				select {
				case <-sub.Done():
					return
				case v, ok := <-ch:
					if !ok {
						o.sched.Post(obs.OnComplete)
						return
					}
					o.sched.Post(func() { obs.OnNext(v) })
				}
			}
		}()
	})
}
