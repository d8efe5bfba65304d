package observable

import (
	"sync"

	rxerrors "github.com/vnykmshr/rxflow/pkg/common/errors"
	"github.com/vnykmshr/rxflow/pkg/common/validation"
)

// Map applies f to every value. A panic in f fails the activation with an
// *errors.ApplicationError; errors and completion pass through unchanged.
func Map[T, U any](f func(T) U) Operator[T, U] {
	return func(src Observable[T]) Observable[U] {
		return Create(func(obs Observer[U], sub *Subscription) {
			src.subscribeWith(Handlers[T]{
				Next: func(v T) {
					u, err := protect("map", func() U { return f(v) })
					if err != nil {
						obs.OnError(err)
						return
					}
					obs.OnNext(u)
				},
				Error:    obs.OnError,
				Complete: obs.OnComplete,
			}, sub)
		})
	}
}

// TryMap applies f to every value and fails the activation with an
// *errors.ApplicationError wrapping the first error f returns.
func TryMap[T, U any](f func(T) (U, error)) Operator[T, U] {
	return func(src Observable[T]) Observable[U] {
		return Create(func(obs Observer[U], sub *Subscription) {
			src.subscribeWith(Handlers[T]{
				Next: func(v T) {
					var (
						u    U
						ferr error
					)
					_, err := protect("map", func() struct{} {
						u, ferr = f(v)
						return struct{}{}
					})
					if err == nil && ferr != nil {
						err = rxerrors.NewApplicationError("map", ferr)
					}
					if err != nil {
						obs.OnError(err)
						return
					}
					obs.OnNext(u)
				},
				Error:    obs.OnError,
				Complete: obs.OnComplete,
			}, sub)
		})
	}
}

// Filter forwards only the values for which pred returns true.
func Filter[T any](pred func(T) bool) Operator[T, T] {
	return func(src Observable[T]) Observable[T] {
		return Create(func(obs Observer[T], sub *Subscription) {
			src.subscribeWith(Handlers[T]{
				Next: func(v T) {
					keep, err := protect("filter", func() bool { return pred(v) })
					if err != nil {
						obs.OnError(err)
						return
					}
					if keep {
						obs.OnNext(v)
					}
				},
				Error:    obs.OnError,
				Complete: obs.OnComplete,
			}, sub)
		})
	}
}

// Take forwards the first n values, then completes and cancels the source.
// Take(0) completes without activating the source.
func Take[T any](n int) Operator[T, T] {
	if n < 0 {
		panic(rxerrors.NewValidationError("observable", "take count", n, "cannot be negative"))
	}
	return func(src Observable[T]) Observable[T] {
		return Create(func(obs Observer[T], sub *Subscription) {
			if n == 0 {
				obs.OnComplete()
				return
			}
			var mu sync.Mutex
			seen := 0
			src.subscribeWith(Handlers[T]{
				Next: func(v T) {
					mu.Lock()
					seen++
					count := seen
					mu.Unlock()
					if count > n {
						return
					}
					obs.OnNext(v)
					if count == n {
						obs.OnComplete()
					}
				},
				Error:    obs.OnError,
				Complete: obs.OnComplete,
			}, sub)
		})
	}
}

// Tap calls the non-nil handlers of h for every notification, then forwards
// it unchanged. A nil h.Error does not log.
func Tap[T any](h Handlers[T]) Operator[T, T] {
	return func(src Observable[T]) Observable[T] {
		return Create(func(obs Observer[T], sub *Subscription) {
			src.subscribeWith(Handlers[T]{
				Next: func(v T) {
					if h.Next != nil {
						h.Next(v)
					}
					obs.OnNext(v)
				},
				Error: func(err error) {
					if h.Error != nil {
						h.Error(err)
					}
					obs.OnError(err)
				},
				Complete: func() {
					if h.Complete != nil {
						h.Complete()
					}
					obs.OnComplete()
				},
			}, sub)
		})
	}
}

// StartWith emits value before activating the source.
func StartWith[T any](value T) Operator[T, T] {
	return func(src Observable[T]) Observable[T] {
		return Create(func(obs Observer[T], sub *Subscription) {
			obs.OnNext(value)
			if sub.Closed() {
				return
			}
			src.subscribeWith(obs, sub)
		})
	}
}

// DistinctUntilChanged drops a value equal to the previously forwarded one.
func DistinctUntilChanged[T comparable]() Operator[T, T] {
	return DistinctUntilChangedFunc(func(a, b T) bool { return a == b })
}

// DistinctUntilChangedFunc is DistinctUntilChanged with a custom equality.
func DistinctUntilChangedFunc[T any](equal func(prev, next T) bool) Operator[T, T] {
	return func(src Observable[T]) Observable[T] {
		return Create(func(obs Observer[T], sub *Subscription) {
			var (
				mu   sync.Mutex
				last T
				has  bool
			)
			src.subscribeWith(Handlers[T]{
				Next: func(v T) {
					mu.Lock()
					prev, seen := last, has
					mu.Unlock()

					if seen {
						same, err := protect("distinct", func() bool { return equal(prev, v) })
						if err != nil {
							obs.OnError(err)
							return
						}
						if same {
							return
						}
					}

					mu.Lock()
					last, has = v, true
					mu.Unlock()
					obs.OnNext(v)
				},
				Error:    obs.OnError,
				Complete: obs.OnComplete,
			}, sub)
		})
	}
}

// mustPositive panics with a ValidationError when n < 1.
func mustPositive(field string, n int) {
	if err := validation.ValidatePositive("observable", field, n); err != nil {
		panic(err)
	}
}
