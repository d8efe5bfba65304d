package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts an optional seconds field and descriptors such as
// "@hourly" or "@every 5s".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron parses a cron expression.
// Examples:
//
//	"*/5 * * * * *"   - every 5 seconds
//	"0 */2 * * *"     - every 2 hours
//	"30 14 * * 1-5"   - 2:30 PM on weekdays
//	"@every 1s"       - every second
func ParseCron(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("cron expression cannot be empty")
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// ScheduleCron runs fn on s at every activation time of expr, evaluated in
// loc (time.Local when nil). fn receives the activation time. Each firing
// registers the next one, so the schedule follows s's clock, virtual or real.
func ScheduleCron(s Scheduler, expr string, loc *time.Location, fn func(time.Time)) (Timer, error) {
	schedule, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("cron callback cannot be nil")
	}
	if loc == nil {
		loc = time.Local
	}

	ct := &cronTimer{sched: s, schedule: schedule, loc: loc, fn: fn}
	ct.arm(s.Now())
	return ct, nil
}

type cronTimer struct {
	sched    Scheduler
	schedule cron.Schedule
	loc      *time.Location
	fn       func(time.Time)

	mu      sync.Mutex
	current Timer
	stopped bool
}

func (ct *cronTimer) arm(from time.Time) {
	next := ct.schedule.Next(from.In(ct.loc))
	if next.IsZero() {
		return
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()
	if ct.stopped {
		return
	}
	d := next.Sub(ct.sched.Now())
	if d < 0 {
		d = 0
	}
	ct.current = ct.sched.AfterFunc(d, func() {
		ct.mu.Lock()
		stopped := ct.stopped
		ct.mu.Unlock()
		if stopped {
			return
		}
		ct.arm(next)
		ct.fn(next)
	})
}

func (ct *cronTimer) Stop() bool {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if ct.stopped {
		return false
	}
	ct.stopped = true
	if ct.current != nil {
		ct.current.Stop()
	}
	return true
}
