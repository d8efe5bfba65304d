package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/rxflow/internal/testutil"
)

func newTestLoop(t *testing.T, cfg Config) *Loop {
	t.Helper()
	l := NewLoopWithConfig(cfg)
	t.Cleanup(func() {
		select {
		case <-l.Shutdown():
		case <-time.After(testutil.TestTimeout):
			t.Error("loop did not stop")
		}
	})
	return l
}

func TestLoopPostOrder(t *testing.T) {
	l := newTestLoop(t, Config{Name: "order"})

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 99 {
				close(done)
			}
		})
	}
	testutil.WaitForClosed(t, done, testutil.TestTimeout)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("callback %d ran at position %d", v, i)
		}
	}
	testutil.AssertEqual(t, l.TotalRun(), int64(100))
}

func TestLoopNeverRunsConcurrently(t *testing.T) {
	l := newTestLoop(t, Config{Name: "serial"})

	var running, overlaps, count int32
	body := func() {
		if atomic.AddInt32(&running, 1) > 1 {
			atomic.AddInt32(&overlaps, 1)
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&running, -1)
		atomic.AddInt32(&count, 1)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Post(body)
			l.AfterFunc(time.Millisecond, body)
		}()
	}
	wg.Wait()

	testutil.WaitForInt32(t, &count, 20, testutil.TestTimeout)
	testutil.AssertEqual(t, atomic.LoadInt32(&overlaps), int32(0))
}

func TestLoopAfterFunc(t *testing.T) {
	l := newTestLoop(t, Config{})

	fired := make(chan time.Time, 1)
	start := time.Now()
	l.AfterFunc(20*time.Millisecond, func() { fired <- time.Now() })

	select {
	case at := <-fired:
		if at.Sub(start) < 20*time.Millisecond {
			t.Errorf("fired after %v, want at least 20ms", at.Sub(start))
		}
	case <-time.After(testutil.TestTimeout):
		t.Fatal("timer did not fire")
	}
}

func TestLoopTimerStop(t *testing.T) {
	l := newTestLoop(t, Config{})

	var fired int32
	timer := l.AfterFunc(30*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	if !timer.Stop() {
		t.Error("first Stop should report true")
	}
	if timer.Stop() {
		t.Error("second Stop should report false")
	}

	time.Sleep(60 * time.Millisecond)
	testutil.AssertEqual(t, atomic.LoadInt32(&fired), int32(0))
}

func TestLoopEvery(t *testing.T) {
	l := newTestLoop(t, Config{})

	var ticks int32
	ticker := l.Every(5*time.Millisecond, func() { atomic.AddInt32(&ticks, 1) })
	testutil.WaitForAtLeastInt32(t, &ticks, 3, testutil.TestTimeout)
	ticker.Stop()

	after := atomic.LoadInt32(&ticks)
	time.Sleep(30 * time.Millisecond)
	if n := atomic.LoadInt32(&ticks); n > after+1 {
		t.Errorf("ticker kept firing after Stop: %d -> %d", after, n)
	}

	if l.Every(0, func() {}).Stop() {
		t.Error("non-positive period should return a stopped timer")
	}
}

func TestLoopPanicRecovery(t *testing.T) {
	var recovered atomic.Value
	l := newTestLoop(t, Config{
		Name: "panics",
		PanicHandler: func(r interface{}, stack []byte) {
			recovered.Store(r)
			if len(stack) == 0 {
				t.Error("expected a stack trace")
			}
		},
	})

	done := make(chan struct{})
	l.Post(func() { panic("boom") })
	l.Post(func() { close(done) })

	testutil.WaitForClosed(t, done, testutil.TestTimeout)
	testutil.AssertEqual(t, recovered.Load(), interface{}("boom"))
}

func TestLoopShutdown(t *testing.T) {
	l := NewLoop("shutdown")

	var ran int32
	for i := 0; i < 10; i++ {
		l.Post(func() { atomic.AddInt32(&ran, 1) })
	}
	pending := l.AfterFunc(time.Hour, func() { t.Error("timer fired after shutdown") })

	select {
	case <-l.Shutdown():
	case <-time.After(testutil.TestTimeout):
		t.Fatal("loop did not stop")
	}

	testutil.AssertEqual(t, atomic.LoadInt32(&ran), int32(10))
	if pending.Stop() {
		t.Error("pending timer should have been stopped by Shutdown")
	}

	l.Post(func() { t.Error("callback ran after shutdown") })
	if l.AfterFunc(time.Millisecond, func() {}).Stop() {
		t.Error("timer registered after shutdown should be inert")
	}
	testutil.AssertEqual(t, l.QueueSize(), 0)

	// Shutdown is idempotent.
	<-l.Shutdown()
}
