// Package validation provides common validation utilities for configuration
// parameters across the rxflow library.
//
// Every function returns a *errors.ValidationError that wraps
// errors.ErrInvalidConfiguration, so callers can match failures with
// errors.Is regardless of which parameter was rejected.
package validation
