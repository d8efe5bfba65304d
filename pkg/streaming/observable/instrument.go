package observable

import (
	"log/slog"
	"sync/atomic"

	"github.com/vnykmshr/rxflow/pkg/metrics"
)

// Instrument reports the activations, notifications and cancellations of
// src to rec under the given pipeline name. A subscription that ends without
// a terminal notification counts as a cancellation.
func Instrument[T any](pipeline string, rec metrics.Recorder) Operator[T, T] {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return func(src Observable[T]) Observable[T] {
		return Create(func(obs Observer[T], sub *Subscription) {
			var terminated atomic.Bool
			rec.ObserveActivation(pipeline)
			rec.ObserveActive(pipeline, 1)
			sub.Add(func() {
				rec.ObserveActive(pipeline, -1)
				if !terminated.Load() {
					rec.ObserveCancellation(pipeline)
				}
			})

			src.subscribeWith(Handlers[T]{
				Next: func(v T) {
					rec.ObserveNotification(pipeline, KindNext.String())
					obs.OnNext(v)
				},
				Error: func(err error) {
					terminated.Store(true)
					rec.ObserveNotification(pipeline, KindError.String())
					obs.OnError(err)
				},
				Complete: func() {
					terminated.Store(true)
					rec.ObserveNotification(pipeline, KindComplete.String())
					obs.OnComplete()
				},
			}, sub)
		})
	}
}

// RetryMetrics returns a retry observer counting outcomes on rec.
func RetryMetrics(pipeline string, rec metrics.Recorder) func(RetryEvent) {
	return func(ev RetryEvent) {
		rec.ObserveRetry(pipeline, string(ev.Outcome))
	}
}

// RetryLogger returns a retry observer logging every decision: scheduled
// retries as "retry i of n" at WARN, exhaustion and aborts at ERROR, and
// recoveries at INFO.
func RetryLogger(logger *slog.Logger) func(RetryEvent) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ev RetryEvent) {
		retries := ev.MaxAttempts - 1
		switch ev.Outcome {
		case RetryScheduled:
			logger.Warn("attempt failed, retrying",
				"retry", ev.Attempt,
				"of", retries,
				"delay", ev.Delay,
				"error", ev.Err)
		case RetryExhausted:
			logger.Error("retries exhausted",
				"attempts", ev.Attempt,
				"error", ev.Err)
		case RetryAborted:
			logger.Error("error is not retryable",
				"attempt", ev.Attempt,
				"error", ev.Err)
		case RetryRecovered:
			logger.Info("recovered after retry", "attempt", ev.Attempt)
		}
	}
}
