package scheduler

import (
	"sync"
	"time"
)

// Timer is a pending callback registered with a Scheduler.
type Timer interface {
	// Stop cancels the callback. It returns true if the call prevented a
	// future run, false if the timer had already fired (one-shot) or was
	// already stopped.
	Stop() bool
}

// Scheduler is the timer boundary of the library: a place to run callbacks
// now, after a delay, or periodically. Implementations run callbacks one at a
// time, never concurrently, in the order they become due.
type Scheduler interface {
	// Now returns the scheduler's notion of the current time.
	Now() time.Time

	// Post queues fn to run as soon as possible.
	Post(fn func())

	// AfterFunc runs fn once after d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer

	// Every runs fn every period until the returned Timer is stopped.
	Every(period time.Duration, fn func()) Timer
}

var (
	defaultOnce sync.Once
	defaultLoop *Loop
)

// Default returns the process-wide event loop. It is started on first use
// and never shut down.
func Default() Scheduler {
	defaultOnce.Do(func() {
		defaultLoop = NewLoop("default")
	})
	return defaultLoop
}

// stoppedTimer is returned when a callback could not be registered.
type stoppedTimer struct{}

func (stoppedTimer) Stop() bool { return false }
