package observable

// CatchError replaces a failed activation with the Observable handler
// returns for the error. Values already delivered stay delivered.
func CatchError[T any](handler func(error) Observable[T]) Operator[T, T] {
	return func(src Observable[T]) Observable[T] {
		return Create(func(obs Observer[T], sub *Subscription) {
			src.subscribeChild(Handlers[T]{
				Next: obs.OnNext,
				Error: func(err error) {
					replacement, perr := protect("catchError", func() Observable[T] { return handler(err) })
					if perr != nil {
						obs.OnError(perr)
						return
					}
					replacement.subscribeChild(obs, sub)
				},
				Complete: obs.OnComplete,
			}, sub)
		})
	}
}

// Fallback turns any error into Next(value) followed by Complete, whatever
// the error payload.
func Fallback[T any](value T) Operator[T, T] {
	return CatchError(func(error) Observable[T] {
		return Of(value)
	})
}
