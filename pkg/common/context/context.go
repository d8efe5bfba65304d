// Package context holds small helpers around the standard context package
// shared by rxflow's sources and lifecycle scopes.
package context

import (
	"context"
	"errors"
	"time"
)

// WithOptionalTimeout derives a cancellable context that also expires after
// timeout when timeout is positive.
func WithOptionalTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(parent, timeout)
	}
	return context.WithCancel(parent)
}

// OnDone arranges for fn to run once ctx is done. The returned stop function
// unregisters fn and reports whether it did so before fn started.
func OnDone(ctx context.Context, fn func()) (stop func() bool) {
	return context.AfterFunc(ctx, fn)
}

// IsCanceled returns true if the context has been canceled
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// IsTimedOut returns true if the context was canceled due to a timeout
func IsTimedOut(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}
