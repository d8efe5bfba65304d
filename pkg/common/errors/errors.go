package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types used across the rxflow library

var (
	// ErrClosed indicates that an operation was attempted on a closed resource
	ErrClosed = errors.New("resource is closed")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ValidationError describes a rejected configuration or constructor parameter.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// NewValidationError creates a ValidationError without a hint.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint attaches a remediation hint and returns the same error for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap makes every ValidationError match ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// TransportError is a failure at the HTTP boundary: the request could not be
// sent, the server answered with a non-2xx status, or the body did not decode.
// StatusCode is zero when no response was received.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ApplicationError is a failure raised inside a pipeline stage, such as a
// projection function panicking or returning an error.
type ApplicationError struct {
	Op  string
	Err error
}

// NewApplicationError wraps err as a failure of the named operator.
func NewApplicationError(op string, err error) *ApplicationError {
	return &ApplicationError{Op: op, Err: err}
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ApplicationError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is or wraps a *TransportError.
func IsTransport(err error) bool {
	var terr *TransportError
	return errors.As(err, &terr)
}

// IsApplication reports whether err is or wraps an *ApplicationError.
func IsApplication(err error) bool {
	var aerr *ApplicationError
	return errors.As(err, &aerr)
}

// IsRetryable returns true if the error indicates a condition that might
// be resolved by retrying the operation: timeouts, transport failures that
// never got a response, and 5xx or 429 responses.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var terr *TransportError
	if !errors.As(err, &terr) {
		return false
	}
	switch {
	case terr.StatusCode == 0:
		return true
	case terr.StatusCode == http.StatusTooManyRequests:
		return true
	case terr.StatusCode >= 500:
		return true
	default:
		return false
	}
}
