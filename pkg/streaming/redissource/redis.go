package redissource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	rxerrors "github.com/vnykmshr/rxflow/pkg/common/errors"
	"github.com/vnykmshr/rxflow/pkg/scheduling/scheduler"
	"github.com/vnykmshr/rxflow/pkg/streaming/observable"
)

// Message is one pub/sub message. Pattern is set only for pattern
// subscriptions.
type Message struct {
	Channel string
	Pattern string
	Payload string
}

type options struct {
	sched   scheduler.Scheduler
	logger  *slog.Logger
	pattern bool
}

// Option configures Subscribe and NewPublisher.
type Option func(*options)

// WithScheduler sets the scheduler messages are delivered through.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(o *options) { o.sched = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPatterns treats the channel names given to Subscribe as glob patterns.
func WithPatterns() Option {
	return func(o *options) { o.pattern = true }
}

func resolve(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sched == nil {
		o.sched = scheduler.Default()
	}
	return o
}

// Subscribe returns an Observable emitting the messages published to
// channels. It never completes on its own; it fails with an
// *errors.TransportError when the subscription cannot be established or the
// connection is lost.
func Subscribe(client redis.UniversalClient, channels []string, opts ...Option) observable.Observable[Message] {
	if len(channels) == 0 {
		return observable.Throw[Message](rxerrors.NewValidationError("redissource", "channels", channels, "at least one channel is required"))
	}
	channels = append([]string(nil), channels...)

	return observable.Create(func(obs observable.Observer[Message], sub *observable.Subscription) {
		o := resolve(opts)
		target := strings.Join(channels, ",")
		method := "SUBSCRIBE"

		if o.pattern {
			method = "PSUBSCRIBE"
		}

		ctx, cancel := context.WithCancel(context.Background())
		ps := client.Subscribe(ctx)
		sub.Add(func() {
			cancel()
			if err := ps.Close(); err != nil {
				o.logger.Debug("pubsub close failed", "channels", target, "error", err)
			}
		})

		fail := func(err error) {
			o.sched.Post(func() {
				obs.OnError(&rxerrors.TransportError{Method: method, URL: target, Err: err})
			})
		}

		go func() {
			var err error
			if o.pattern {
				err = ps.PSubscribe(ctx, channels...)
			} else {
				err = ps.Subscribe(ctx, channels...)
			}
			if err == nil {
				_, err = ps.Receive(ctx)
			}
			if err != nil {
				if sub.Active() {
					o.logger.Warn("subscribe failed", "channels", target, "error", err)
					fail(err)
				}
				return
			}
			o.logger.Debug("subscribed", "channels", target)

			msgs := ps.Channel()
			for {
				select {
				case <-sub.Done():
					return
				case m, ok := <-msgs:
					if !ok {
						if sub.Active() {
							fail(fmt.Errorf("pubsub channel closed"))
						}
						return
					}
					msg := Message{Channel: m.Channel, Pattern: m.Pattern, Payload: m.Payload}
					o.sched.Post(func() { obs.OnNext(msg) })
				}
			}
		}()
	})
}

// Decode parses each message payload as JSON into T. A payload that does
// not decode terminates the stream with an *errors.ApplicationError.
func Decode[T any]() observable.Operator[Message, T] {
	return observable.TryMap(func(m Message) (T, error) {
		var v T
		if err := json.Unmarshal([]byte(m.Payload), &v); err != nil {
			return v, fmt.Errorf("decode message on %s: %w", m.Channel, err)
		}
		return v, nil
	})
}

// Publish JSON-encodes v and publishes it on channel, returning the number
// of subscribers that received it.
func Publish[T any](ctx context.Context, client redis.UniversalClient, channel string, v T) (int64, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode message for %s: %w", channel, err)
	}
	n, err := client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return 0, &rxerrors.TransportError{Method: "PUBLISH", URL: channel, Err: err}
	}
	return n, nil
}

// Publisher publishes every value it is set to a single channel. It
// satisfies lifecycle.Sink.
type Publisher[T any] struct {
	client  redis.UniversalClient
	channel string
	ctx     context.Context
	logger  *slog.Logger
}

// NewPublisher returns a Publisher for channel. Publishing stops once ctx
// is done.
func NewPublisher[T any](ctx context.Context, client redis.UniversalClient, channel string, opts ...Option) *Publisher[T] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Publisher[T]{client: client, channel: channel, ctx: ctx, logger: o.logger}
}

// Set publishes v. Failures are logged.
func (p *Publisher[T]) Set(v T) {
	if p.ctx.Err() != nil {
		return
	}
	if _, err := Publish(p.ctx, p.client, p.channel, v); err != nil {
		p.logger.Warn("publish failed", "channel", p.channel, "error", err)
	}
}
