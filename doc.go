/*
Package rxflow is a small reactive-streams library for Go: cold observables,
composable operators and explicit subscription lifecycles.

Streams (pkg/streaming):
  - observable: Observable, Subscription, sources and operators (Map,
    Filter, Debounce, DistinctUntilChanged, SwitchMap, CatchError,
    RetryWithBackoff, Share, ...)
  - lifecycle: scopes that cancel every subscription they own exactly once
  - httpsource: one-shot JSON GET requests as observables
  - redissource: Redis pub/sub channels as observables

Scheduling (pkg/scheduling):
  - scheduler: the timer boundary; a real-time single-goroutine Loop, a
    deterministic Virtual clock for tests, and cron schedules

Support (pkg/common, pkg/metrics):
  - errors: ValidationError, TransportError, ApplicationError
  - metrics: Prometheus and OpenTelemetry recorders

Example usage:

	import (
		"github.com/vnykmshr/rxflow/pkg/scheduling/scheduler"
		"github.com/vnykmshr/rxflow/pkg/streaming/lifecycle"
		"github.com/vnykmshr/rxflow/pkg/streaming/observable"
	)

	loop := scheduler.NewLoop("ui")
	defer func() { <-loop.Shutdown() }()

	scope := lifecycle.New("counter")
	defer scope.Close()

	ticks := observable.Interval(time.Second, observable.WithScheduler(loop))
	lifecycle.Start(scope, ticks, observable.Handlers[int]{
		Next: func(n int) { fmt.Println("tick", n) },
	})

The rxflow command (cmd/rxflow) runs the library against a JSON API.
*/
package rxflow
