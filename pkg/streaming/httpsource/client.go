package httpsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	rxcontext "github.com/vnykmshr/rxflow/pkg/common/context"
	rxerrors "github.com/vnykmshr/rxflow/pkg/common/errors"
	"github.com/vnykmshr/rxflow/pkg/common/validation"
	"github.com/vnykmshr/rxflow/pkg/metrics"
	"github.com/vnykmshr/rxflow/pkg/scheduling/scheduler"
	"github.com/vnykmshr/rxflow/pkg/streaming/observable"
)

// maxErrorBody bounds how much of a non-2xx body is kept for the error.
const maxErrorBody = 512

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Defaults to
// http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithScheduler sets the scheduler responses are delivered through.
// Defaults to scheduler.Default().
func WithScheduler(s scheduler.Scheduler) Option {
	return func(c *Client) {
		c.sched = s
	}
}

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder for requests.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithTimeout bounds every request. Zero means no timeout beyond
// cancellation of the subscription.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client turns JSON GET endpoints under a base URL into cold Observables.
type Client struct {
	base     *url.URL
	http     *http.Client
	sched    scheduler.Scheduler
	logger   *slog.Logger
	recorder metrics.Recorder
	timeout  time.Duration
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if err := validation.ValidateHTTPURL("httpsource", "base URL", baseURL); err != nil {
		return nil, err
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, rxerrors.NewValidationError("httpsource", "base URL", baseURL, err.Error())
	}

	c := &Client{
		base:     base,
		http:     http.DefaultClient,
		logger:   slog.Default(),
		recorder: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := validation.ValidateNonNegativeDuration("httpsource", "timeout", c.timeout); err != nil {
		return nil, err
	}
	return c, nil
}

// BaseURL returns the base URL requests are resolved against.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// URL returns the absolute URL of resourcePath with query.
func (c *Client) URL(resourcePath string, query url.Values) string {
	u := *c.base
	u.Path = path.Join("/", c.base.Path, resourcePath)
	u.RawQuery = query.Encode()
	return u.String()
}

// List emits the JSON array at <base>/<resource>[?query] decoded as []T,
// then completes.
func List[T any](c *Client, resource string, query url.Values) observable.Observable[[]T] {
	return fetch[[]T](c, resource, resource, query)
}

// Get emits the JSON object at <base>/<resource>/<id> decoded as T, then
// completes.
func Get[T any](c *Client, resource string, id any) observable.Observable[T] {
	return fetch[T](c, resource, path.Join(resource, fmt.Sprint(id)), nil)
}

// GetJSON emits the JSON document at <base>/<resourcePath>[?query] decoded
// as T, then completes.
func GetJSON[T any](c *Client, resourcePath string, query url.Values) observable.Observable[T] {
	resource, _, _ := strings.Cut(strings.TrimPrefix(resourcePath, "/"), "/")
	return fetch[T](c, resource, resourcePath, query)
}

// fetch issues one GET per activation. The request is cancelled with the
// subscription and its outcome is posted to the scheduler as exactly one
// Next and Complete, or one Error carrying an *errors.TransportError.
func fetch[T any](c *Client, resource, resourcePath string, query url.Values) observable.Observable[T] {
	return observable.Create(func(obs observable.Observer[T], sub *observable.Subscription) {
		sched := c.sched
		if sched == nil {
			sched = scheduler.Default()
		}
		target := c.URL(resourcePath, query)

		ctx, cancel := rxcontext.WithOptionalTimeout(context.Background(), c.timeout)
		sub.Add(cancel)

		go func() {
			var v T
			err := c.do(ctx, resource, target, &v)
			sched.Post(func() {
				if err != nil {
					obs.OnError(err)
					return
				}
				obs.OnNext(v)
				obs.OnComplete()
			})
		}()
	})
}

func (c *Client) do(ctx context.Context, resource, target string, dst any) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &rxerrors.TransportError{Method: http.MethodGet, URL: target, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.recorder.ObserveHTTPRequest(resource, "error", time.Since(start))
		if rxcontext.IsCanceled(ctx) && !rxcontext.IsTimedOut(ctx) {
			c.logger.Debug("request cancelled", "url", target)
		} else {
			c.logger.Warn("request failed", "url", target, "error", err)
		}
		if rxcontext.IsTimedOut(ctx) || errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", rxerrors.ErrTimeout, err)
		}
		return &rxerrors.TransportError{Method: http.MethodGet, URL: target, Err: err}
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	c.recorder.ObserveHTTPRequest(resource, status, time.Since(start))
	c.logger.Debug("request completed", "url", target, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &rxerrors.TransportError{
			Method:     http.MethodGet,
			URL:        target,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s: %s", http.StatusText(resp.StatusCode), strings.TrimSpace(string(body))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &rxerrors.TransportError{
			Method:     http.MethodGet,
			URL:        target,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}
