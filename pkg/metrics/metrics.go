// Package metrics provides Prometheus instrumentation for rxflow components.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "rxflow"

// Recorder receives the measurements emitted by pipelines, lifecycle scopes,
// HTTP sources and schedulers. Registry and OTel implement it; Nop discards.
type Recorder interface {
	ObserveActivation(pipeline string)
	ObserveNotification(pipeline, kind string)
	ObserveCancellation(pipeline string)
	ObserveActive(pipeline string, delta int)
	ObserveRetry(pipeline, outcome string)
	ObserveUnhandledError(scope string)
	ObserveHTTPRequest(resource, status string, d time.Duration)
	ObserveSchedulerTask(scheduler string, d time.Duration)
	ObserveSchedulerPanic(scheduler string)
	ObserveSchedulerQueue(scheduler string, depth int)
}

// Registry holds all metric instances for rxflow components.
type Registry struct {
	// Pipeline Metrics
	Activations         *prometheus.CounterVec
	Notifications       *prometheus.CounterVec
	Cancellations       *prometheus.CounterVec
	ActiveSubscriptions *prometheus.GaugeVec
	RetryAttempts       *prometheus.CounterVec
	UnhandledErrors     *prometheus.CounterVec

	// HTTP Source Metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Scheduler Metrics
	SchedulerTasks        *prometheus.CounterVec
	SchedulerTaskDuration *prometheus.HistogramVec
	SchedulerPanics       *prometheus.CounterVec
	SchedulerQueued       *prometheus.GaugeVec
}

var _ Recorder = (*Registry)(nil)

// DefaultRegistry is the default metrics registry used by rxflow components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithConfig(Config{Enabled: true, Registry: reg})
}

// NewRegistryWithConfig creates a registry honoring the namespace and constant
// labels of cfg.
func NewRegistryWithConfig(cfg Config) *Registry {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	factory := promauto.With(reg)

	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.Labels,
		}, labels)
	}
	gauge := func(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.Labels,
		}, labels)
	}
	histogram := func(subsystem, name, help string, labels ...string) *prometheus.HistogramVec {
		return factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			Buckets:     prometheus.DefBuckets,
			ConstLabels: cfg.Labels,
		}, labels)
	}

	return &Registry{
		Activations:         counter("pipeline", "activations_total", "Total number of pipeline activations", "pipeline"),
		Notifications:       counter("pipeline", "notifications_total", "Total number of notifications delivered to subscribers", "pipeline", "kind"),
		Cancellations:       counter("pipeline", "cancellations_total", "Total number of subscriptions cancelled before termination", "pipeline"),
		ActiveSubscriptions: gauge("pipeline", "active_subscriptions", "Number of currently active subscriptions", "pipeline"),
		RetryAttempts:       counter("pipeline", "retry_attempts_total", "Total number of retry attempts by outcome", "pipeline", "outcome"),
		UnhandledErrors:     counter("lifecycle", "unhandled_errors_total", "Total number of errors that reached a scope without an error handler", "scope"),

		HTTPRequests:        counter("http", "requests_total", "Total number of HTTP source requests", "resource", "status"),
		HTTPRequestDuration: histogram("http", "request_duration_seconds", "Time spent on HTTP source requests", "resource"),

		SchedulerTasks:        counter("scheduler", "tasks_total", "Total number of callbacks executed by a scheduler", "scheduler"),
		SchedulerTaskDuration: histogram("scheduler", "task_duration_seconds", "Time spent executing scheduler callbacks", "scheduler"),
		SchedulerPanics:       counter("scheduler", "panics_total", "Total number of callbacks that panicked", "scheduler"),
		SchedulerQueued:       gauge("scheduler", "queued_tasks", "Number of callbacks waiting to run", "scheduler"),
	}
}

func (r *Registry) ObserveActivation(pipeline string) {
	r.Activations.WithLabelValues(pipeline).Inc()
}

func (r *Registry) ObserveNotification(pipeline, kind string) {
	r.Notifications.WithLabelValues(pipeline, kind).Inc()
}

func (r *Registry) ObserveCancellation(pipeline string) {
	r.Cancellations.WithLabelValues(pipeline).Inc()
}

func (r *Registry) ObserveActive(pipeline string, delta int) {
	r.ActiveSubscriptions.WithLabelValues(pipeline).Add(float64(delta))
}

func (r *Registry) ObserveRetry(pipeline, outcome string) {
	r.RetryAttempts.WithLabelValues(pipeline, outcome).Inc()
}

func (r *Registry) ObserveUnhandledError(scope string) {
	r.UnhandledErrors.WithLabelValues(scope).Inc()
}

func (r *Registry) ObserveHTTPRequest(resource, status string, d time.Duration) {
	r.HTTPRequests.WithLabelValues(resource, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(resource).Observe(d.Seconds())
}

func (r *Registry) ObserveSchedulerTask(scheduler string, d time.Duration) {
	r.SchedulerTasks.WithLabelValues(scheduler).Inc()
	r.SchedulerTaskDuration.WithLabelValues(scheduler).Observe(d.Seconds())
}

func (r *Registry) ObserveSchedulerPanic(scheduler string) {
	r.SchedulerPanics.WithLabelValues(scheduler).Inc()
}

func (r *Registry) ObserveSchedulerQueue(scheduler string, depth int) {
	r.SchedulerQueued.WithLabelValues(scheduler).Set(float64(depth))
}

// Nop is a Recorder that discards every measurement.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) ObserveActivation(string)                         {}
func (Nop) ObserveNotification(string, string)               {}
func (Nop) ObserveCancellation(string)                       {}
func (Nop) ObserveActive(string, int)                        {}
func (Nop) ObserveRetry(string, string)                      {}
func (Nop) ObserveUnhandledError(string)                     {}
func (Nop) ObserveHTTPRequest(string, string, time.Duration) {}
func (Nop) ObserveSchedulerTask(string, time.Duration)       {}
func (Nop) ObserveSchedulerPanic(string)                     {}
func (Nop) ObserveSchedulerQueue(string, int)                {}

// Multi fans every measurement out to each of recorders.
type Multi []Recorder

var _ Recorder = Multi(nil)

func (m Multi) ObserveActivation(pipeline string) {
	for _, r := range m {
		r.ObserveActivation(pipeline)
	}
}

func (m Multi) ObserveNotification(pipeline, kind string) {
	for _, r := range m {
		r.ObserveNotification(pipeline, kind)
	}
}

func (m Multi) ObserveCancellation(pipeline string) {
	for _, r := range m {
		r.ObserveCancellation(pipeline)
	}
}

func (m Multi) ObserveActive(pipeline string, delta int) {
	for _, r := range m {
		r.ObserveActive(pipeline, delta)
	}
}

func (m Multi) ObserveRetry(pipeline, outcome string) {
	for _, r := range m {
		r.ObserveRetry(pipeline, outcome)
	}
}

func (m Multi) ObserveUnhandledError(scope string) {
	for _, r := range m {
		r.ObserveUnhandledError(scope)
	}
}

func (m Multi) ObserveHTTPRequest(resource, status string, d time.Duration) {
	for _, r := range m {
		r.ObserveHTTPRequest(resource, status, d)
	}
}

func (m Multi) ObserveSchedulerTask(scheduler string, d time.Duration) {
	for _, r := range m {
		r.ObserveSchedulerTask(scheduler, d)
	}
}

func (m Multi) ObserveSchedulerPanic(scheduler string) {
	for _, r := range m {
		r.ObserveSchedulerPanic(scheduler)
	}
}

func (m Multi) ObserveSchedulerQueue(scheduler string, depth int) {
	for _, r := range m {
		r.ObserveSchedulerQueue(scheduler, depth)
	}
}
