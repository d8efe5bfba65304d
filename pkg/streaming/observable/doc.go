// Package observable implements cold reactive streams: lazy sources, operator
// pipelines and cancellable subscriptions.
//
// An Observable does nothing until Subscribe is called; every Subscribe is an
// independent activation with its own state. An activation emits any number
// of Next notifications followed by at most one terminal notification, Error
// or Complete. Nothing is delivered after a terminal notification or after
// the Subscription is cancelled.
//
// Basic Usage:
//
//	src := observable.Pipe(
//		observable.Of(1, 2, 3, 4, 5, 6, 7, 8, 9, 10),
//		observable.Filter(func(x int) bool { return x%2 == 0 }),
//	)
//	sub := src.Subscribe(observable.Handlers[int]{
//		Next:     func(v int) { fmt.Println(v) },
//		Error:    func(err error) { log.Println(err) },
//		Complete: func() { fmt.Println("done") },
//	})
//	defer sub.Cancel()
//
// Type-changing operators are applied as functions:
//
//	labels := observable.Map(strconv.Itoa)(src)
//
// Time:
//
// Timer-backed sources and operators (Interval, Timer, Cron, Debounce,
// RetryWithBackoff) register their timers on a scheduler.Scheduler and
// deliver through it, so notifications of one activation never run
// concurrently. They use scheduler.Default() unless WithScheduler is given;
// tests pass a scheduler.Virtual to control time.
//
// Search-as-you-type:
//
//	results := observable.SwitchMap(search)(observable.Pipe(
//		terms,
//		observable.Debounce[string](400*time.Millisecond),
//		observable.DistinctUntilChanged[string](),
//	))
//
// SwitchMap cancels the previous inner activation before starting the next,
// so a slow response for an old term can never overwrite a newer result.
//
// Errors:
//
// A panic in a user function passed to an operator fails the activation with
// an *errors.ApplicationError. CatchError and Fallback turn a failure into a
// replacement stream; RetryWithBackoff re-activates the source. Every other
// operator forwards an error unchanged.
package observable
