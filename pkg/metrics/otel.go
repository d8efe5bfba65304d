package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTel is a Recorder backed by OpenTelemetry instruments. Measurements carry
// the same label names as the Prometheus Registry, as attributes.
type OTel struct {
	activations   metric.Int64Counter
	notifications metric.Int64Counter
	cancellations metric.Int64Counter
	active        metric.Int64UpDownCounter
	retries       metric.Int64Counter
	unhandled     metric.Int64Counter
	httpRequests  metric.Int64Counter
	httpDuration  metric.Float64Histogram
	tasks         metric.Int64Counter
	taskDuration  metric.Float64Histogram
	panics        metric.Int64Counter
	queued        metric.Int64UpDownCounter

	mu        sync.Mutex
	lastQueue map[string]int
}

var _ Recorder = (*OTel)(nil)

// NewOTel creates every instrument on meter.
func NewOTel(meter metric.Meter) (*OTel, error) {
	o := &OTel{lastQueue: make(map[string]int)}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&o.activations, "rxflow.pipeline.activations", "pipeline activations"},
		{&o.notifications, "rxflow.pipeline.notifications", "notifications delivered to subscribers"},
		{&o.cancellations, "rxflow.pipeline.cancellations", "subscriptions cancelled before termination"},
		{&o.retries, "rxflow.pipeline.retry_attempts", "retry attempts by outcome"},
		{&o.unhandled, "rxflow.lifecycle.unhandled_errors", "errors that reached a scope without an error handler"},
		{&o.httpRequests, "rxflow.http.requests", "HTTP source requests"},
		{&o.tasks, "rxflow.scheduler.tasks", "callbacks executed by a scheduler"},
		{&o.panics, "rxflow.scheduler.panics", "callbacks that panicked"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if o.active, err = meter.Int64UpDownCounter("rxflow.pipeline.active_subscriptions",
		metric.WithDescription("currently active subscriptions")); err != nil {
		return nil, err
	}
	if o.queued, err = meter.Int64UpDownCounter("rxflow.scheduler.queued_tasks",
		metric.WithDescription("callbacks waiting to run")); err != nil {
		return nil, err
	}
	if o.httpDuration, err = meter.Float64Histogram("rxflow.http.request_duration",
		metric.WithDescription("time spent on HTTP source requests"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if o.taskDuration, err = meter.Float64Histogram("rxflow.scheduler.task_duration",
		metric.WithDescription("time spent executing scheduler callbacks"), metric.WithUnit("s")); err != nil {
		return nil, err
	}

	return o, nil
}

func attrs(kv ...string) metric.MeasurementOption {
	set := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		set = append(set, attribute.String(kv[i], kv[i+1]))
	}
	return metric.WithAttributes(set...)
}

func (o *OTel) ObserveActivation(pipeline string) {
	o.activations.Add(context.Background(), 1, attrs("pipeline", pipeline))
}

func (o *OTel) ObserveNotification(pipeline, kind string) {
	o.notifications.Add(context.Background(), 1, attrs("pipeline", pipeline, "kind", kind))
}

func (o *OTel) ObserveCancellation(pipeline string) {
	o.cancellations.Add(context.Background(), 1, attrs("pipeline", pipeline))
}

func (o *OTel) ObserveActive(pipeline string, delta int) {
	o.active.Add(context.Background(), int64(delta), attrs("pipeline", pipeline))
}

func (o *OTel) ObserveRetry(pipeline, outcome string) {
	o.retries.Add(context.Background(), 1, attrs("pipeline", pipeline, "outcome", outcome))
}

func (o *OTel) ObserveUnhandledError(scope string) {
	o.unhandled.Add(context.Background(), 1, attrs("scope", scope))
}

func (o *OTel) ObserveHTTPRequest(resource, status string, d time.Duration) {
	ctx := context.Background()
	o.httpRequests.Add(ctx, 1, attrs("resource", resource, "status", status))
	o.httpDuration.Record(ctx, d.Seconds(), attrs("resource", resource))
}

func (o *OTel) ObserveSchedulerTask(scheduler string, d time.Duration) {
	ctx := context.Background()
	o.tasks.Add(ctx, 1, attrs("scheduler", scheduler))
	o.taskDuration.Record(ctx, d.Seconds(), attrs("scheduler", scheduler))
}

func (o *OTel) ObserveSchedulerPanic(scheduler string) {
	o.panics.Add(context.Background(), 1, attrs("scheduler", scheduler))
}

// ObserveSchedulerQueue converts the absolute depth into an up/down delta.
func (o *OTel) ObserveSchedulerQueue(scheduler string, depth int) {
	o.mu.Lock()
	delta := depth - o.lastQueue[scheduler]
	o.lastQueue[scheduler] = depth
	o.mu.Unlock()
	if delta != 0 {
		o.queued.Add(context.Background(), int64(delta), attrs("scheduler", scheduler))
	}
}
