package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	prom "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/rxflow/internal/testutil"
	rxerrors "github.com/vnykmshr/rxflow/pkg/common/errors"
	"github.com/vnykmshr/rxflow/pkg/metrics"
	"github.com/vnykmshr/rxflow/pkg/scheduling/scheduler"
	"github.com/vnykmshr/rxflow/pkg/streaming/observable"
)

// counted wraps src so that every activation's teardown increments n.
func counted[T any](src observable.Observable[T], n *int32) observable.Observable[T] {
	return observable.Create(func(obs observable.Observer[T], sub *observable.Subscription) {
		sub.Add(func() { atomic.AddInt32(n, 1) })
		src.SubscribeWith(obs, sub)
	})
}

func TestCloseCancelsEverySubscriptionOnce(t *testing.T) {
	v := scheduler.NewVirtual(time.Time{})
	scope := New("component")

	var teardowns int32
	var ticks []int
	var subs []*observable.Subscription
	for i := 0; i < 3; i++ {
		sub, err := Start(scope, counted(observable.Interval(100*time.Millisecond, observable.WithScheduler(v)), &teardowns),
			observable.Handlers[int]{Next: func(n int) { ticks = append(ticks, n) }})
		testutil.AssertNoError(t, err)
		subs = append(subs, sub)
	}
	testutil.AssertEqual(t, scope.Len(), 3)

	v.Advance(150 * time.Millisecond)
	testutil.AssertEqual(t, len(ticks), 3)

	testutil.AssertNoError(t, scope.Close())
	testutil.AssertNoError(t, scope.Close())
	v.Advance(time.Second)

	testutil.AssertEqual(t, atomic.LoadInt32(&teardowns), int32(3))
	testutil.AssertEqual(t, len(ticks), 3)
	testutil.AssertEqual(t, scope.Len(), 0)
	testutil.AssertEqual(t, v.Pending(), 0)
	for _, sub := range subs {
		testutil.AssertEqual(t, sub.Closed(), true)
	}
	testutil.WaitForClosed(t, scope.Done(), testutil.TestTimeout)
}

func TestStartAfterClose(t *testing.T) {
	scope := New("closed")
	scope.Close()

	activated := false
	sub, err := Start(scope, observable.Create(func(observable.Observer[int], *observable.Subscription) {
		activated = true
	}), observable.Handlers[int]{})

	if !errors.Is(err, rxerrors.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	testutil.AssertEqual(t, sub.Closed(), true)
	testutil.AssertEqual(t, activated, false)
}

func TestCompletedSubscriptionsLeaveScope(t *testing.T) {
	scope := New("finite")
	defer scope.Close()

	var got []int
	completed := false
	_, err := Start(scope, observable.Of(1, 2, 3), observable.Handlers[int]{
		Next:     func(v int) { got = append(got, v) },
		Complete: func() { completed = true },
	})
	testutil.AssertNoError(t, err)

	testutil.AssertSliceEqual(t, got, []int{1, 2, 3})
	testutil.AssertEqual(t, completed, true)
	testutil.AssertEqual(t, scope.Len(), 0)
}

func TestPanickingCompleteHandlerLeavesScope(t *testing.T) {
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	defer slog.SetDefault(prev)

	scope := New("panicking")
	defer scope.Close()

	var teardowns int32
	sub, err := Start(scope, counted(observable.Of(1), &teardowns), observable.Handlers[int]{
		Complete: func() { panic("boom") },
	})
	testutil.AssertNoError(t, err)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	testutil.AssertNoError(t, scope.Wait(ctx))
	testutil.AssertEqual(t, scope.Len(), 0)
	testutil.AssertEqual(t, sub.Closed(), true)
	testutil.AssertEqual(t, atomic.LoadInt32(&teardowns), int32(1))
}

func TestCloseFromInsideHandler(t *testing.T) {
	v := scheduler.NewVirtual(time.Time{})
	scope := New("reentrant")

	var other int32
	_, err := Start(scope, counted(observable.Never[int](), &other), observable.Handlers[int]{})
	testutil.AssertNoError(t, err)

	var got []int
	_, err = Start(scope, observable.Interval(10*time.Millisecond, observable.WithScheduler(v)), observable.Handlers[int]{
		Next: func(n int) {
			got = append(got, n)
			if n == 1 {
				scope.Close()
			}
		},
	})
	testutil.AssertNoError(t, err)

	v.Advance(time.Second)
	testutil.AssertSliceEqual(t, got, []int{0, 1})
	testutil.AssertEqual(t, atomic.LoadInt32(&other), int32(1))
	testutil.AssertEqual(t, scope.Len(), 0)
}

func TestUnhandledErrorIsLoggedAndCounted(t *testing.T) {
	var buf bytes.Buffer
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	scope := New("users",
		WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))),
		WithRecorder(reg),
	)
	defer scope.Close()

	_, err := Start(scope, observable.Throw[int](errors.New("connection refused")), observable.Handlers[int]{})
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, prom.ToFloat64(reg.UnhandledErrors.WithLabelValues("users")), 1.0)
	out := buf.String()
	for _, want := range []string{`"level":"ERROR"`, `"scope":"users"`, "connection refused"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}

func TestHandledErrorIsNotCounted(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	scope := New("products", WithRecorder(reg))
	defer scope.Close()

	var got error
	_, err := Start(scope, observable.Throw[int](errors.New("boom")), observable.Handlers[int]{
		Error: func(err error) { got = err },
	})
	testutil.AssertNoError(t, err)
	testutil.AssertError(t, got)
	testutil.AssertEqual(t, prom.ToFloat64(reg.UnhandledErrors.WithLabelValues("products")), 0.0)
}

func TestConcurrentStartAndClose(t *testing.T) {
	scope := New("race")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var subs []*observable.Subscription
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, _ := Start(scope, observable.Never[int](), observable.Handlers[int]{})
			mu.Lock()
			subs = append(subs, sub)
			mu.Unlock()
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		scope.Close()
	}()
	wg.Wait()
	scope.Close()

	for _, sub := range subs {
		if !sub.Closed() {
			t.Fatal("subscription survived scope close")
		}
	}
	testutil.AssertEqual(t, scope.Len(), 0)
}

func TestWait(t *testing.T) {
	loop := scheduler.NewLoop("wait")
	defer func() { <-loop.Shutdown() }()

	scope := New("wait")
	defer scope.Close()

	_, err := Start(scope, observable.Timer(20*time.Millisecond, observable.WithScheduler(loop)), observable.Handlers[int]{})
	testutil.AssertNoError(t, err)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	testutil.AssertNoError(t, scope.Wait(ctx))
	testutil.AssertEqual(t, scope.Len(), 0)

	_, err = Start(scope, observable.Never[int](), observable.Handlers[int]{})
	testutil.AssertNoError(t, err)
	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	if !errors.Is(scope.Wait(short), context.DeadlineExceeded) {
		t.Error("Wait should give up when ctx expires")
	}
}

func TestRunClosesScopeOnEveryExitPath(t *testing.T) {
	never := observable.Never[int]()

	t.Run("return", func(t *testing.T) {
		var sub *observable.Subscription
		err := Run(context.Background(), "return", func(ctx context.Context, s *Scope) error {
			var err error
			sub, err = Start(s, never, observable.Handlers[int]{})
			return err
		})
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, sub.Closed(), true)
	})

	t.Run("error", func(t *testing.T) {
		var sub *observable.Subscription
		boom := errors.New("boom")
		err := Run(context.Background(), "error", func(ctx context.Context, s *Scope) error {
			sub, _ = Start(s, never, observable.Handlers[int]{})
			return boom
		})
		testutil.AssertEqual(t, err, boom)
		testutil.AssertEqual(t, sub.Closed(), true)
	})

	t.Run("panic", func(t *testing.T) {
		var sub *observable.Subscription
		func() {
			defer func() {
				if recover() == nil {
					t.Error("panic should propagate")
				}
			}()
			_ = Run(context.Background(), "panic", func(ctx context.Context, s *Scope) error {
				sub, _ = Start(s, never, observable.Handlers[int]{})
				panic("consumer crashed")
			})
		}()
		testutil.AssertEqual(t, sub.Closed(), true)
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var sub *observable.Subscription
		started := make(chan struct{})
		result := make(chan error, 1)

		go func() {
			result <- Run(ctx, "cancelled", func(ctx context.Context, s *Scope) error {
				sub, _ = Start(s, never, observable.Handlers[int]{})
				close(started)
				<-s.Done()
				return ctx.Err()
			})
		}()

		<-started
		cancel()
		select {
		case err := <-result:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(testutil.TestTimeout):
			t.Fatal("Run did not return after cancellation")
		}
		testutil.AssertEqual(t, sub.Closed(), true)
	})
}

func TestBind(t *testing.T) {
	v := scheduler.NewVirtual(time.Time{})
	scope := New("counter")
	defer scope.Close()

	counter := NewCell(-1)
	_, err := Bind(scope, observable.Interval(time.Second, observable.WithScheduler(v)), counter, nil)
	testutil.AssertNoError(t, err)

	v.Advance(3 * time.Second)
	testutil.AssertEqual(t, counter.Get(), 2)
	testutil.AssertEqual(t, counter.Version(), uint64(3))

	scope.Close()
	v.Advance(3 * time.Second)
	testutil.AssertEqual(t, counter.Get(), 2)
}

func TestBindConvertsErrors(t *testing.T) {
	scope := New("users")
	defer scope.Close()

	var got []string
	sink := SinkFunc[string](func(s string) { got = append(got, s) })
	_, err := Bind(scope, observable.Pipe(
		observable.Of("ana"),
		observable.Map(func(s string) string {
			if s == "ana" {
				panic("bad record")
			}
			return s
		}),
	), sink, func(err error) string { return "error: " + err.Error() })
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, len(got), 1)
	if !strings.HasPrefix(got[0], "error: map failed") {
		t.Errorf("unexpected sink value %q", got[0])
	}
}
