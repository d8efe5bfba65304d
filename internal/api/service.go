// Package api wires the users, posts and products resources of a JSON API
// into the observable pipelines run by the rxflow command.
package api

import (
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	rxerrors "github.com/vnykmshr/rxflow/pkg/common/errors"
	"github.com/vnykmshr/rxflow/pkg/metrics"
	"github.com/vnykmshr/rxflow/pkg/scheduling/scheduler"
	"github.com/vnykmshr/rxflow/pkg/streaming/httpsource"
	"github.com/vnykmshr/rxflow/pkg/streaming/observable"
)

// Resource names under the API base URL.
const (
	ResourceUsers    = "users"
	ResourcePosts    = "posts"
	ResourceProducts = "products"
)

// Settings tune the service pipelines.
type Settings struct {
	// UsersLimit is how many users Users keeps.
	UsersLimit int
	// SearchDebounce is the quiet period of Search.
	SearchDebounce time.Duration
	// RetryAttempts counts the first request of Products.
	RetryAttempts int
	RetryDelay    time.Duration
	RetryBackoff  observable.Backoff
}

// DefaultSettings returns the settings used when none are given.
func DefaultSettings() Settings {
	return Settings{
		UsersLimit:     5,
		SearchDebounce: 400 * time.Millisecond,
		RetryAttempts:  4,
		RetryDelay:     time.Second,
		RetryBackoff:   observable.ConstantBackoff(),
	}
}

// Option configures a Service.
type Option func(*Service)

// WithSettings replaces the default settings.
func WithSettings(s Settings) Option {
	return func(svc *Service) { svc.settings = s }
}

// WithScheduler sets the scheduler of the timing operators.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(svc *Service) { svc.sched = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder every pipeline reports to.
func WithRecorder(r metrics.Recorder) Option {
	return func(svc *Service) {
		if r != nil {
			svc.recorder = r
		}
	}
}

// Service builds the application pipelines. Every method returns a cold
// Observable; nothing is requested until it is subscribed.
type Service struct {
	client   *httpsource.Client
	settings Settings
	sched    scheduler.Scheduler
	logger   *slog.Logger
	recorder metrics.Recorder
}

// NewService returns a Service reading from client.
func NewService(client *httpsource.Client, opts ...Option) *Service {
	s := &Service{
		client:   client,
		settings: DefaultSettings(),
		logger:   slog.Default(),
		recorder: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) opts(extra ...observable.Option) []observable.Option {
	if s.sched == nil {
		return extra
	}
	return append([]observable.Option{observable.WithScheduler(s.sched)}, extra...)
}

// recoverWith logs err under op and continues with value.
func recoverWith[T any](logger *slog.Logger, op string, value T) observable.Operator[T, T] {
	return observable.CatchError(func(err error) observable.Observable[T] {
		logger.Warn("request failed, using fallback", "op", op, "error", err)
		return observable.Of(value)
	})
}

// firstN keeps the first limit items of each list. A limit <= 0 keeps all.
func firstN[T any](limit int) observable.Operator[[]T, []T] {
	return observable.Map(func(items []T) []T {
		if limit > 0 && len(items) > limit {
			return items[:limit]
		}
		return items
	})
}

// users lists the first UsersLimit users.
func (s *Service) users() observable.Observable[[]User] {
	return firstN[User](s.settings.UsersLimit)(httpsource.List[User](s.client, ResourceUsers, nil))
}

// Users emits the first UsersLimit users, or an empty list if the request
// fails.
func (s *Service) Users() observable.Observable[[]User] {
	return observable.Pipe(
		s.users(),
		recoverWith(s.logger, "users", []User{}),
		observable.Instrument[[]User]("users", s.recorder),
	)
}

// User emits the user with id, or nil if it cannot be fetched.
func (s *Service) User(id int) observable.Observable[*User] {
	ptr := observable.Map(func(u User) *User { return &u })
	return observable.Pipe(
		ptr(httpsource.Get[User](s.client, ResourceUsers, id)),
		recoverWith[*User](s.logger, "user", nil),
		observable.Instrument[*User]("user", s.recorder),
	)
}

// Products emits the first UsersLimit products. Transient failures are retried with the
// configured backoff; once retries are exhausted, or on a permanent error,
// it emits an empty list.
func (s *Service) Products() observable.Observable[[]Product] {
	backoff := s.settings.RetryBackoff
	if backoff == nil {
		backoff = observable.ConstantBackoff()
	}
	retry := observable.RetryWithBackoff[[]Product](s.settings.RetryAttempts, s.settings.RetryDelay, s.opts(
		observable.WithBackoff(backoff),
		observable.WithRetryIf(rxerrors.IsRetryable),
		observable.WithRetryObserver(observable.RetryLogger(s.logger.With("op", "products"))),
		observable.WithRetryObserver(observable.RetryMetrics("products", s.recorder)),
	)...)

	return observable.Pipe(
		firstN[Product](s.settings.UsersLimit)(httpsource.List[Product](s.client, ResourceProducts, nil)),
		retry,
		recoverWith(s.logger, "products", []Product{}),
		observable.Instrument[[]Product]("products", s.recorder),
	)
}

// PostsByUser emits the posts written by userID.
func (s *Service) PostsByUser(userID int) observable.Observable[[]Post] {
	query := url.Values{"userId": {strconv.Itoa(userID)}}
	return httpsource.List[Post](s.client, ResourcePosts, query)
}

// UserPosts maps every id of ids to a loading state followed by the user
// and their posts. A new id abandons the requests of the previous one, so
// a slow response for a stale id is never emitted. Failures become a state
// carrying Err.
func (s *Service) UserPosts(ids observable.Observable[int]) observable.Observable[UserPosts] {
	load := func(id int) observable.Observable[UserPosts] {
		user := httpsource.Get[User](s.client, ResourceUsers, id)
		withPosts := observable.SwitchMap(func(u User) observable.Observable[UserPosts] {
			toState := observable.Map(func(posts []Post) UserPosts {
				return UserPosts{UserID: id, User: &u, Posts: posts, PostCount: len(posts)}
			})
			return toState(s.PostsByUser(u.ID))
		})
		return observable.Pipe(
			withPosts(user),
			observable.StartWith(UserPosts{UserID: id, Loading: true}),
			observable.CatchError(func(err error) observable.Observable[UserPosts] {
				s.logger.Warn("loading user posts failed", "user_id", id, "error", err)
				return observable.Of(UserPosts{UserID: id, Err: err})
			}),
		)
	}
	return observable.Instrument[UserPosts]("user-posts", s.recorder)(observable.SwitchMap(load)(ids))
}

// Search turns a stream of search terms into matching users among the
// first UsersLimit users. Terms are
// trimmed, debounced and de-duplicated; only the response for the latest
// term is emitted. An empty term yields an empty result without a request,
// and a failed request yields an empty result without ending the search.
func (s *Service) Search(terms observable.Observable[string]) observable.Observable[[]User] {
	normalize := observable.Map(func(term string) string {
		return strings.ToLower(strings.TrimSpace(term))
	})
	lookup := observable.SwitchMap(func(term string) observable.Observable[[]User] {
		if term == "" {
			return observable.Of([]User{})
		}
		match := observable.Map(func(users []User) []User {
			return MatchName(users, term)
		})
		return observable.Pipe(
			match(s.users()),
			recoverWith(s.logger, "search", []User{}),
		)
	})

	return observable.Instrument[[]User]("search", s.recorder)(lookup(observable.Pipe(
		normalize(terms),
		observable.Debounce[string](s.settings.SearchDebounce, s.opts()...),
		observable.DistinctUntilChanged[string](),
	)))
}

// MatchName returns the users whose name contains term, ignoring case.
func MatchName(users []User, term string) []User {
	term = strings.ToLower(term)
	out := make([]User, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Name), term) {
			out = append(out, u)
		}
	}
	return out
}

// Numbers triples each value, adds five and keeps results above twenty.
func Numbers(src observable.Observable[int]) observable.Observable[int] {
	triple := observable.Map(func(x int) int { return x * 3 })
	plusFive := observable.Map(func(x int) int { return x + 5 })
	return observable.Pipe(triple(src), plusFive, observable.Filter(func(x int) bool { return x > 20 }))
}
