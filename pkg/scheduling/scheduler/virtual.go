package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// Virtual is a Scheduler driven by a manually advanced clock. Nothing runs
// until Advance, AdvanceTo or Flush is called; callbacks then run on the
// calling goroutine in due-time order, ties broken by registration order.
// It makes timing-sensitive pipelines deterministic in tests.
type Virtual struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	tasks taskHeap
}

var _ Scheduler = (*Virtual)(nil)

// NewVirtual creates a virtual scheduler whose clock starts at start.
// A zero start uses the Unix epoch so recorded times are easy to read.
func NewVirtual(start time.Time) *Virtual {
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	return &Virtual{now: start}
}

// Now returns the virtual time.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// Elapsed returns the virtual time elapsed since start.
func (v *Virtual) Elapsed(start time.Time) time.Duration {
	return v.Now().Sub(start)
}

// Post queues fn at the current virtual time.
func (v *Virtual) Post(fn func()) {
	v.schedule(0, 0, fn)
}

// AfterFunc queues fn at now+d.
func (v *Virtual) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	return v.schedule(d, 0, fn)
}

// Every queues fn at now+period and re-queues it after each run.
func (v *Virtual) Every(period time.Duration, fn func()) Timer {
	if period <= 0 {
		return stoppedTimer{}
	}
	return v.schedule(period, period, fn)
}

// Advance moves the clock forward by d, running every callback that becomes
// due on the way with the clock set to its due time.
func (v *Virtual) Advance(d time.Duration) {
	v.AdvanceTo(v.Now().Add(d))
}

// AdvanceTo moves the clock to t, running due callbacks in order.
func (v *Virtual) AdvanceTo(t time.Time) {
	for {
		task := v.popDue(t)
		if task == nil {
			break
		}
		task.fn()
	}

	v.mu.Lock()
	if t.After(v.now) {
		v.now = t
	}
	v.mu.Unlock()
}

// Flush runs every callback due at the current time, including callbacks
// those callbacks post.
func (v *Virtual) Flush() {
	v.AdvanceTo(v.Now())
}

// Pending returns the number of callbacks still waiting to run.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, t := range v.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

func (v *Virtual) schedule(d, period time.Duration, fn func()) Timer {
	if fn == nil {
		return stoppedTimer{}
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	v.seq++
	t := &virtualTask{
		owner:  v,
		due:    v.now.Add(d),
		seq:    v.seq,
		period: period,
		fn:     fn,
	}
	heap.Push(&v.tasks, t)
	return t
}

// popDue removes and returns the earliest live task due at or before limit,
// advancing the clock to its due time. Periodic tasks are re-queued before
// they run.
func (v *Virtual) popDue(limit time.Time) *virtualTask {
	v.mu.Lock()
	defer v.mu.Unlock()

	for v.tasks.Len() > 0 {
		next := v.tasks[0]
		if next.cancelled {
			heap.Pop(&v.tasks)
			continue
		}
		if next.due.After(limit) {
			return nil
		}
		heap.Pop(&v.tasks)
		if next.due.After(v.now) {
			v.now = next.due
		}
		if next.period > 0 {
			v.seq++
			again := &virtualTask{
				owner:  v,
				due:    next.due.Add(next.period),
				seq:    v.seq,
				period: next.period,
				fn:     next.fn,
			}
			next.successor = again
			heap.Push(&v.tasks, again)
		} else {
			next.fired = true
		}
		return next
	}
	return nil
}

// virtualTask is a single queued callback. A periodic task hands over to its
// successor each time it runs; stopping any task in the chain stops the chain.
type virtualTask struct {
	owner     *Virtual
	due       time.Time
	seq       uint64
	period    time.Duration
	fn        func()
	cancelled bool
	fired     bool
	successor *virtualTask
	index     int
}

func (t *virtualTask) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()

	cur := t
	for cur.successor != nil {
		cur = cur.successor
	}
	if cur.cancelled || cur.fired {
		return false
	}
	cur.cancelled = true
	return true
}

// taskHeap implements a min-heap ordered by due time, then registration order.
type taskHeap []*virtualTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	t := x.(*virtualTask)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
