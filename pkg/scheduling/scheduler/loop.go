package scheduler

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/rxflow/pkg/metrics"
)

// Config holds configuration options for creating a Loop.
type Config struct {
	// Name labels log records and metrics. Defaults to "loop".
	Name string

	// PanicHandler is called when a callback panics. If nil, panics are
	// recovered and logged as errors.
	PanicHandler func(recovered interface{}, stack []byte)

	// Logger receives panic reports and dropped-callback notices.
	// Defaults to slog.Default().
	Logger *slog.Logger

	// Recorder receives task, panic and queue-depth measurements.
	// Defaults to metrics.Nop.
	Recorder metrics.Recorder
}

// Loop is a real-time Scheduler that executes every callback on a single
// goroutine. Timers fire on runtime timers and hand their callback to the
// loop, so callbacks never run concurrently with each other.
type Loop struct {
	config Config

	mu         sync.Mutex
	queue      []func()
	timers     map[*loopTimer]struct{}
	isShutdown bool

	wake         chan struct{}
	shutdownCh   chan struct{}
	stopped      chan struct{}
	shutdownOnce sync.Once

	totalRun int64
}

var _ Scheduler = (*Loop)(nil)

// NewLoop creates and starts a loop with the given name.
func NewLoop(name string) *Loop {
	return NewLoopWithConfig(Config{Name: name})
}

// NewLoopWithConfig creates and starts a loop with the specified configuration.
func NewLoopWithConfig(config Config) *Loop {
	if config.Name == "" {
		config.Name = "loop"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Recorder == nil {
		config.Recorder = metrics.Nop{}
	}

	l := &Loop{
		config:     config,
		timers:     make(map[*loopTimer]struct{}),
		wake:       make(chan struct{}, 1),
		shutdownCh: make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Now returns the wall clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Post queues fn behind every callback already queued. Callbacks posted
// after Shutdown are dropped.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}

	l.mu.Lock()
	if l.isShutdown {
		l.mu.Unlock()
		l.config.Logger.Debug("callback dropped: loop is shut down", "scheduler", l.config.Name)
		return
	}
	l.queue = append(l.queue, fn)
	depth := len(l.queue)
	l.mu.Unlock()

	l.config.Recorder.ObserveSchedulerQueue(l.config.Name, depth)

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc runs fn on the loop once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	return l.newTimer(d, 0, fn)
}

// Every runs fn on the loop every period. A non-positive period is rejected
// and the returned Timer is already stopped.
func (l *Loop) Every(period time.Duration, fn func()) Timer {
	if period <= 0 {
		l.config.Logger.Warn("periodic callback rejected", "scheduler", l.config.Name, "period", period)
		return stoppedTimer{}
	}
	return l.newTimer(period, period, fn)
}

// Shutdown stops accepting callbacks, cancels pending timers and lets the
// loop drain what is already queued. The returned channel closes once the
// loop goroutine has exited.
func (l *Loop) Shutdown() <-chan struct{} {
	l.shutdownOnce.Do(func() {
		l.mu.Lock()
		l.isShutdown = true
		timers := make([]*loopTimer, 0, len(l.timers))
		for t := range l.timers {
			timers = append(timers, t)
		}
		l.mu.Unlock()

		for _, t := range timers {
			t.Stop()
		}
		close(l.shutdownCh)
	})
	return l.stopped
}

// QueueSize returns the number of callbacks waiting to run.
func (l *Loop) QueueSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// TotalRun returns the number of callbacks executed so far.
func (l *Loop) TotalRun() int64 {
	return atomic.LoadInt64(&l.totalRun)
}

func (l *Loop) run() {
	defer close(l.stopped)

	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			shutdown := l.isShutdown
			l.mu.Unlock()
			if shutdown {
				return
			}
			select {
			case <-l.wake:
			case <-l.shutdownCh:
			}
			continue
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		depth := len(l.queue)
		l.mu.Unlock()

		l.config.Recorder.ObserveSchedulerQueue(l.config.Name, depth)
		l.execute(fn)
	}
}

// execute runs a single callback, recovering panics so one faulty callback
// cannot stop the loop.
func (l *Loop) execute(fn func()) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			l.config.Recorder.ObserveSchedulerPanic(l.config.Name)
			if l.config.PanicHandler != nil {
				l.config.PanicHandler(r, stack)
			} else {
				l.config.Logger.Error("scheduler callback panicked",
					"scheduler", l.config.Name,
					"panic", fmt.Sprint(r),
					"stack", string(stack))
			}
		}
		atomic.AddInt64(&l.totalRun, 1)
		l.config.Recorder.ObserveSchedulerTask(l.config.Name, time.Since(start))
	}()

	fn()
}

func (l *Loop) track(t *loopTimer) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.isShutdown {
		return false
	}
	l.timers[t] = struct{}{}
	return true
}

func (l *Loop) untrack(t *loopTimer) {
	l.mu.Lock()
	delete(l.timers, t)
	l.mu.Unlock()
}

// loopTimer bridges a runtime timer to the loop. period is zero for
// one-shot timers.
type loopTimer struct {
	loop    *Loop
	period  time.Duration
	fn      func()
	stopped atomic.Bool

	mu sync.Mutex
	t  *time.Timer
}

func (l *Loop) newTimer(d, period time.Duration, fn func()) Timer {
	if fn == nil {
		return stoppedTimer{}
	}
	lt := &loopTimer{loop: l, period: period, fn: fn}
	if !l.track(lt) {
		return stoppedTimer{}
	}

	lt.mu.Lock()
	lt.t = time.AfterFunc(d, lt.fire)
	lt.mu.Unlock()
	return lt
}

// fire runs on the runtime timer goroutine.
func (lt *loopTimer) fire() {
	if lt.stopped.Load() {
		return
	}

	if lt.period > 0 {
		lt.mu.Lock()
		if !lt.stopped.Load() {
			lt.t.Reset(lt.period)
		}
		lt.mu.Unlock()
		lt.loop.Post(func() {
			if !lt.stopped.Load() {
				lt.fn()
			}
		})
		return
	}

	lt.loop.Post(func() {
		if lt.stopped.CompareAndSwap(false, true) {
			lt.loop.untrack(lt)
			lt.fn()
		}
	})
}

func (lt *loopTimer) Stop() bool {
	if !lt.stopped.CompareAndSwap(false, true) {
		return false
	}
	lt.mu.Lock()
	lt.t.Stop()
	lt.mu.Unlock()
	lt.loop.untrack(lt)
	return true
}
