package httpsource_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	prom "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/rxflow/internal/testutil"
	rxerrors "github.com/vnykmshr/rxflow/pkg/common/errors"
	"github.com/vnykmshr/rxflow/pkg/metrics"
	"github.com/vnykmshr/rxflow/pkg/scheduling/scheduler"
	"github.com/vnykmshr/rxflow/pkg/streaming/httpsource"
	"github.com/vnykmshr/rxflow/pkg/streaming/observable"
)

type user struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type post struct {
	ID     int    `json:"id"`
	UserID int    `json:"userId"`
	Title  string `json:"title"`
}

type env struct {
	api    *testutil.FakeAPI
	loop   *scheduler.Loop
	client *httpsource.Client
}

func newEnv(t *testing.T, opts ...httpsource.Option) *env {
	t.Helper()
	api := testutil.NewFakeAPI(t)
	loop := scheduler.NewLoop(t.Name())
	t.Cleanup(func() { <-loop.Shutdown() })

	opts = append([]httpsource.Option{
		httpsource.WithScheduler(loop),
		httpsource.WithHTTPClient(api.Server.Client()),
	}, opts...)
	client, err := httpsource.NewClient(api.URL(), opts...)
	testutil.AssertNoError(t, err)
	return &env{api: api, loop: loop, client: client}
}

func collect[T any](t *testing.T, src observable.Observable[T]) ([]T, error) {
	t.Helper()
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	return observable.ToSlice(ctx, src)
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		opts    []httpsource.Option
		wantErr bool
	}{
		{"valid", "http://localhost:3000", nil, false},
		{"trailing slash", "http://localhost:3000/", nil, false},
		{"with path", "https://api.example.com/v1", nil, false},
		{"empty", "", nil, true},
		{"relative", "localhost:3000", nil, true},
		{"wrong scheme", "ftp://example.com", nil, true},
		{"negative timeout", "http://localhost:3000", []httpsource.Option{httpsource.WithTimeout(-time.Second)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := httpsource.NewClient(tt.baseURL, tt.opts...)
			if tt.wantErr {
				if !rxerrors.IsValidationError(err) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				return
			}
			testutil.AssertNoError(t, err)
		})
	}
}

func TestClientURL(t *testing.T) {
	c, err := httpsource.NewClient("https://api.example.com/v1/")
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, c.URL("users", nil), "https://api.example.com/v1/users")
	testutil.AssertEqual(t, c.URL("posts", url.Values{"userId": {"1"}}), "https://api.example.com/v1/posts?userId=1")
}

func TestListEmitsOnceThenCompletes(t *testing.T) {
	e := newEnv(t)

	got, err := collect(t, httpsource.List[user](e.client, "users", nil))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), 1)
	testutil.AssertEqual(t, len(got[0]), 7)
	testutil.AssertEqual(t, got[0][0].Name, "Ana Torres")
}

func TestListWithQuery(t *testing.T) {
	e := newEnv(t)

	got, err := collect(t, httpsource.List[post](e.client, "posts", url.Values{"userId": {"1"}}))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got[0]), 3)
	for _, p := range got[0] {
		testutil.AssertEqual(t, p.UserID, 1)
	}
}

func TestGet(t *testing.T) {
	e := newEnv(t)

	got, err := collect(t, httpsource.Get[user](e.client, "users", 2))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got[0].Email, "bruno@example.com")

	doc, err := collect(t, httpsource.GetJSON[map[string]any](e.client, "/products/3", nil))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, doc[0]["name"].(string), "Monitor")
}

func TestSourceIsCold(t *testing.T) {
	e := newEnv(t)

	src := httpsource.List[user](e.client, "users", nil)
	time.Sleep(20 * time.Millisecond)
	testutil.AssertEqual(t, e.api.Requests("users"), 0)

	_, err := collect(t, src)
	testutil.AssertNoError(t, err)
	_, err = collect(t, src)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, e.api.Requests("users"), 2)
}

func TestErrors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		e := newEnv(t)
		_, err := collect(t, httpsource.Get[user](e.client, "users", 99))

		var terr *rxerrors.TransportError
		if !errors.As(err, &terr) {
			t.Fatalf("expected TransportError, got %v", err)
		}
		testutil.AssertEqual(t, terr.StatusCode, http.StatusNotFound)
		testutil.AssertEqual(t, rxerrors.IsRetryable(err), false)
	})

	t.Run("server error", func(t *testing.T) {
		e := newEnv(t)
		e.api.FailNext("products", 1, http.StatusServiceUnavailable)
		_, err := collect(t, httpsource.List[map[string]any](e.client, "products", nil))

		testutil.AssertEqual(t, rxerrors.IsTransport(err), true)
		testutil.AssertEqual(t, rxerrors.IsRetryable(err), true)
	})

	t.Run("malformed body", func(t *testing.T) {
		e := newEnv(t)
		e.api.ServeRaw("users", `[{"id": 1, "name": `)
		_, err := collect(t, httpsource.List[user](e.client, "users", nil))

		var terr *rxerrors.TransportError
		if !errors.As(err, &terr) {
			t.Fatalf("expected TransportError, got %v", err)
		}
		testutil.AssertEqual(t, terr.StatusCode, http.StatusOK)
	})

	t.Run("connection refused", func(t *testing.T) {
		e := newEnv(t)
		base := e.api.URL()
		e.api.Server.Close()

		client, err := httpsource.NewClient(base, httpsource.WithScheduler(e.loop))
		testutil.AssertNoError(t, err)
		_, err = collect(t, httpsource.List[user](client, "users", nil))

		var terr *rxerrors.TransportError
		if !errors.As(err, &terr) {
			t.Fatalf("expected TransportError, got %v", err)
		}
		testutil.AssertEqual(t, terr.StatusCode, 0)
		testutil.AssertEqual(t, rxerrors.IsRetryable(err), true)
	})

	t.Run("timeout", func(t *testing.T) {
		e := newEnv(t, httpsource.WithTimeout(20*time.Millisecond))
		e.api.SetDelay(func(*http.Request) time.Duration { return time.Second })
		_, err := collect(t, httpsource.List[user](e.client, "users", nil))

		if !errors.Is(err, rxerrors.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
	})
}

func TestCancelDropsInFlightResponse(t *testing.T) {
	e := newEnv(t)
	e.api.SetDelay(func(*http.Request) time.Duration { return 50 * time.Millisecond })

	delivered := make(chan struct{}, 2)
	sub := httpsource.List[user](e.client, "users", nil).Subscribe(observable.Handlers[[]user]{
		Next:  func([]user) { delivered <- struct{}{} },
		Error: func(error) { delivered <- struct{}{} },
	})
	testutil.Eventually(t, func() bool { return e.api.Requests("users") == 1 }, testutil.TestTimeout, time.Millisecond)
	sub.Cancel()

	select {
	case <-delivered:
		t.Fatal("notification delivered after cancellation")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSwitchMapDropsOutOfOrderResponse(t *testing.T) {
	e := newEnv(t)
	e.api.SetDelay(func(r *http.Request) time.Duration {
		if r.URL.Path == "/users/1" {
			return 200 * time.Millisecond
		}
		return 10 * time.Millisecond
	})

	ids := observable.Create(func(obs observable.Observer[int], sub *observable.Subscription) {
		obs.OnNext(1)
		t1 := e.loop.AfterFunc(20*time.Millisecond, func() { obs.OnNext(2) })
		t2 := e.loop.AfterFunc(400*time.Millisecond, obs.OnComplete)
		sub.Add(func() { t1.Stop() })
		sub.Add(func() { t2.Stop() })
	})

	got, err := collect(t, observable.SwitchMap(func(id int) observable.Observable[user] {
		return httpsource.Get[user](e.client, "users", id)
	})(ids))

	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), 1)
	testutil.AssertEqual(t, got[0].ID, 2)
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	e := newEnv(t)
	e.api.FailNext("products", 2, http.StatusBadGateway)

	var outcomes []observable.RetryOutcome
	src := observable.RetryWithBackoff[[]map[string]any](4, 10*time.Millisecond,
		observable.WithScheduler(e.loop),
		observable.WithRetryIf(rxerrors.IsRetryable),
		observable.WithRetryObserver(func(ev observable.RetryEvent) { outcomes = append(outcomes, ev.Outcome) }),
	)(httpsource.List[map[string]any](e.client, "products", nil))

	got, err := collect(t, src)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got[0]), 6)
	testutil.AssertEqual(t, e.api.Requests("products"), 3)
	testutil.AssertSliceEqual(t, outcomes, []observable.RetryOutcome{
		observable.RetryScheduled, observable.RetryScheduled, observable.RetryRecovered,
	})
}

func TestRequestMetrics(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	e := newEnv(t, httpsource.WithRecorder(reg))

	_, err := collect(t, httpsource.Get[user](e.client, "users", 1))
	testutil.AssertNoError(t, err)
	_, _ = collect(t, httpsource.Get[user](e.client, "users", 99))

	testutil.AssertEqual(t, prom.ToFloat64(reg.HTTPRequests.WithLabelValues("users", "200")), 1.0)
	testutil.AssertEqual(t, prom.ToFloat64(reg.HTTPRequests.WithLabelValues("users", "404")), 1.0)
	testutil.AssertEqual(t, prom.CollectAndCount(reg.HTTPRequestDuration), 1)
}

func TestContextTimeoutDuringToSlice(t *testing.T) {
	e := newEnv(t)
	e.api.SetDelay(func(*http.Request) time.Duration { return time.Second })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := observable.ToSlice(ctx, httpsource.List[user](e.client, "users", nil))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
