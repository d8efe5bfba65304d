// Package scheduler provides the timer boundary used by rxflow pipelines: a
// place to run callbacks now, after a delay, periodically, or on a cron
// schedule, with the guarantee that callbacks never run concurrently.
//
// Implementations:
//
//   - Loop: a real-time event loop. One goroutine drains a FIFO queue of
//     callbacks; timers are runtime timers that hand their callback to the
//     queue when they fire. Panicking callbacks are recovered, logged and
//     counted, and the loop keeps running.
//   - Virtual: a manually advanced clock for tests. Callbacks run on the
//     goroutine calling Advance, in due-time order.
//
// Basic Usage:
//
//	loop := scheduler.NewLoop("ui")
//	defer func() { <-loop.Shutdown() }()
//
//	t := loop.AfterFunc(400*time.Millisecond, func() {
//		fmt.Println("quiet period elapsed")
//	})
//	t.Stop() // cancel before it fires
//
//	ticker := loop.Every(time.Second, func() { fmt.Println("tick") })
//	defer ticker.Stop()
//
// Cron Scheduling:
//
//	t, err := scheduler.ScheduleCron(loop, "*/5 * * * * *", time.UTC, func(at time.Time) {
//		fmt.Println("fired at", at)
//	})
//
// Cron expressions use github.com/robfig/cron/v3 syntax with an optional
// leading seconds field and descriptors such as "@hourly" or "@every 10s".
//
// Testing:
//
//	v := scheduler.NewVirtual(time.Time{})
//	v.AfterFunc(100*time.Millisecond, fn)
//	v.Advance(100 * time.Millisecond) // fn runs here, deterministically
//
// Default returns a process-wide Loop used when a pipeline is not given an
// explicit Scheduler.
package scheduler
