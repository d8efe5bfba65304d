// Package metrics provides Prometheus and OpenTelemetry instrumentation for
// rxflow components.
//
// # Overview
//
// Components report through the Recorder interface:
//   - Pipelines (activations, notifications by kind, cancellations, active
//     subscriptions, retry attempts by outcome)
//   - Lifecycle scopes (errors that arrived without an error handler)
//   - HTTP sources (requests by status, request duration)
//   - Schedulers (callbacks executed, callback duration, panics, queue depth)
//
// Registry implements Recorder on top of Prometheus collectors, OTel on top of
// an OpenTelemetry metric.Meter, Nop discards everything and Multi fans out.
//
// # Quick Start
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//	scope := lifecycle.New("search", lifecycle.WithRecorder(reg))
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":9090", nil))
//
// # Available Metrics
//
//   - rxflow_pipeline_activations_total{pipeline}
//   - rxflow_pipeline_notifications_total{pipeline,kind}
//   - rxflow_pipeline_cancellations_total{pipeline}
//   - rxflow_pipeline_active_subscriptions{pipeline}
//   - rxflow_pipeline_retry_attempts_total{pipeline,outcome}
//   - rxflow_lifecycle_unhandled_errors_total{scope}
//   - rxflow_http_requests_total{resource,status}
//   - rxflow_http_request_duration_seconds{resource}
//   - rxflow_scheduler_tasks_total{scheduler}
//   - rxflow_scheduler_task_duration_seconds{scheduler}
//   - rxflow_scheduler_panics_total{scheduler}
//   - rxflow_scheduler_queued_tasks{scheduler}
//
// # Configuration
//
//	config := metrics.Config{
//		Enabled:   true,
//		Registry:  prometheus.DefaultRegisterer,
//		Namespace: "myapp",
//		Labels:    prometheus.Labels{"version": "1.0"},
//	}
//	rec := metrics.NewRecorder(config)
package metrics
