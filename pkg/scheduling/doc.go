/*
Package scheduling groups the time-related building blocks of rxflow.

  - scheduler: the Scheduler interface every timing operator goes through,
    with a real-time Loop, a Virtual clock and cron support

Every operator that waits (Debounce, Interval, Timer, RetryWithBackoff,
Cron) takes its scheduler through observable.WithScheduler, so tests can
drive time explicitly:

	v := scheduler.NewVirtual(time.Time{})
	src := observable.Interval(time.Second, observable.WithScheduler(v))
	sub := src.SubscribeNext(func(n int) { fmt.Println(n) })
	v.Advance(3 * time.Second) // prints 0, 1, 2
	sub.Cancel()
*/
package scheduling
