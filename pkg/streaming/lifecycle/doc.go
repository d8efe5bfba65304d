// Package lifecycle ties stream subscriptions to the lifetime of the
// consumer that started them.
//
// A Scope collects the subscriptions started through it and cancels all of
// them, exactly once, when it is closed. Closing is idempotent and safe from
// any goroutine, including from inside a handler. A subscription that
// terminates on its own leaves the scope.
//
// Basic Usage:
//
//	scope := lifecycle.New("user-list")
//	defer scope.Close()
//
//	_, err := lifecycle.Start(scope, users, observable.Handlers[[]User]{
//		Next:  render,
//		Error: showError,
//	})
//
// Scoped acquisition, closing on every exit path:
//
//	err := lifecycle.Run(ctx, "counter", func(ctx context.Context, scope *lifecycle.Scope) error {
//		_, err := lifecycle.Bind(scope, ticks, counter, nil)
//		if err != nil {
//			return err
//		}
//		<-ctx.Done()
//		return nil
//	})
//
// Errors reaching a subscription without an Error handler are logged at
// ERROR level and counted by the scope's metrics.Recorder; they are never
// dropped silently.
package lifecycle
