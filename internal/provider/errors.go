// Package provider defines the boundary between the sync pipeline and the
// cloud vendors' billing exports: adapter and credential contracts, the
// transient/permanent error taxonomy, and bounded retry.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// transientError marks a failure worth retrying within the same run, such as
// throttling or an export that is still being generated.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// permanentError marks a failure no retry can fix, such as bad credentials
// or a malformed request.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Transient wraps err as retryable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Transientf is Transient over a formatted error.
func Transientf(format string, args ...any) error {
	return &transientError{err: fmt.Errorf(format, args...)}
}

// Permanent wraps err as non-retryable. Returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Permanentf is Permanent over a formatted error.
func Permanentf(format string, args ...any) error {
	return &permanentError{err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err should be retried. Unclassified errors are
// treated as transient so flaky vendor endpoints do not burn a failure on the
// first hiccup; context cancellation is never retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var permanent *permanentError
	return !errors.As(err, &permanent)
}

// IsPermanent reports whether err was explicitly marked non-retryable.
func IsPermanent(err error) bool {
	var permanent *permanentError
	return errors.As(err, &permanent)
}
