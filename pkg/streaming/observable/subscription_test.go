package observable

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/vnykmshr/rxflow/internal/testutil"
	rxerrors "github.com/vnykmshr/rxflow/pkg/common/errors"
)

func TestSubscriptionCancelOnce(t *testing.T) {
	sub := NewSubscription()
	if !sub.Active() || sub.Closed() {
		t.Fatal("new subscription should be active")
	}

	var order []int
	sub.Add(func() { order = append(order, 1) })
	sub.Add(func() { order = append(order, 2) })
	sub.Add(func() { order = append(order, 3) })

	sub.Cancel()
	sub.Cancel()

	testutil.AssertSliceEqual(t, order, []int{3, 2, 1})
	testutil.AssertEqual(t, sub.Active(), false)
	testutil.WaitForClosed(t, sub.Done(), testutil.TestTimeout)
}

func TestSubscriptionAddAfterCancel(t *testing.T) {
	sub := NewSubscription()
	sub.Cancel()

	ran := false
	sub.Add(func() { ran = true })
	if !ran {
		t.Error("teardown added after Cancel should run immediately")
	}
}

func TestSubscriptionReentrantCancel(t *testing.T) {
	sub := NewSubscription()
	calls := 0
	sub.Add(func() {
		calls++
		sub.Cancel()
	})
	sub.Cancel()
	testutil.AssertEqual(t, calls, 1)
}

func TestSubscriptionConcurrentCancel(t *testing.T) {
	sub := NewSubscription()
	var mu sync.Mutex
	calls := 0
	sub.Add(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub.Cancel()
		}()
	}
	wg.Wait()
	testutil.AssertEqual(t, calls, 1)
}

func TestSafeObserverGrammar(t *testing.T) {
	var got []string
	sub := NewSubscription()
	safe := &safeObserver[int]{
		dst: Handlers[int]{
			Next:     func(int) { got = append(got, "next") },
			Error:    func(error) { got = append(got, "error") },
			Complete: func() { got = append(got, "complete") },
		},
		sub: sub,
	}

	safe.OnNext(1)
	safe.OnComplete()
	safe.OnNext(2)
	safe.OnError(nil)
	safe.OnComplete()

	testutil.AssertSliceEqual(t, got, []string{"next", "complete"})
	if !sub.Closed() {
		t.Error("termination should cancel the subscription")
	}
}

func TestSerialCancelsPrevious(t *testing.T) {
	s := &serial{}
	a, b := NewSubscription(), NewSubscription()

	testutil.AssertEqual(t, s.set(a), true)
	testutil.AssertEqual(t, s.set(b), true)
	testutil.AssertEqual(t, a.Closed(), true)
	testutil.AssertEqual(t, b.Closed(), false)

	s.cancel()
	testutil.AssertEqual(t, b.Closed(), true)

	c := NewSubscription()
	testutil.AssertEqual(t, s.set(c), false)
	testutil.AssertEqual(t, c.Closed(), true)
}

// captureDefaultLog redirects slog.Default into a buffer for the test.
func captureDefaultLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestPanickingTerminalHandlerReleasesSubscription(t *testing.T) {
	tests := []struct {
		name string
		src  Observable[int]
		h    Handlers[int]
	}{
		{
			name: "complete",
			src:  Of(1, 2),
			h:    Handlers[int]{Complete: func() { panic("boom") }},
		},
		{
			name: "error",
			src:  Throw[int](errors.New("upstream")),
			h:    Handlers[int]{Error: func(error) { panic("boom") }},
		},
		{
			name: "complete behind an operator",
			src:  Map(func(x int) int { return x * 2 })(Of(1)),
			h:    Handlers[int]{Complete: func() { panic("boom") }},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := captureDefaultLog(t)

			var teardowns int
			sub := NewSubscription()
			sub.Add(func() { teardowns++ })
			tt.src.SubscribeWith(tt.h, sub)

			if !sub.Closed() {
				t.Fatal("subscription should be cancelled after its terminal handler panicked")
			}
			testutil.AssertEqual(t, teardowns, 1)
			if !strings.Contains(logs.String(), "panic in terminal handler") || !strings.Contains(logs.String(), "boom") {
				t.Errorf("panic was not logged: %q", logs.String())
			}
		})
	}
}

func TestPanickingNextHandlerBecomesError(t *testing.T) {
	var got error
	sub := Of(1, 2).Subscribe(Handlers[int]{
		Next:  func(int) { panic("boom") },
		Error: func(err error) { got = err },
	})

	if !rxerrors.IsApplication(got) {
		t.Fatalf("expected ApplicationError, got %v", got)
	}
	if !sub.Closed() {
		t.Error("subscription should be cancelled")
	}
}
