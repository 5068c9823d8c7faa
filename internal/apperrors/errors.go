// Package apperrors defines the error taxonomy shared by the build pipeline.
// Every failure that can reach a job's ledger entry or an API response is
// classified by Kind, so callers can decide between retrying, surfacing a
// client error, and failing the job terminally.
package apperrors

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for retry and reporting decisions.
type Kind string

const (
	// KindValidation marks malformed client input. Surfaced synchronously,
	// never retried.
	KindValidation Kind = "validation"

	// KindConflict marks a duplicate engine name, either already published
	// or currently mid-build.
	KindConflict Kind = "conflict"

	// KindSourceNotFound marks a missing or inaccessible source object.
	// Treated as a configuration problem, terminal for the job.
	KindSourceNotFound Kind = "source_not_found"

	// KindUnsupportedFormat marks a document format the extractor cannot
	// handle. Terminal for the job.
	KindUnsupportedFormat Kind = "unsupported_format"

	// KindExternalService marks a transient upstream failure (rate limit,
	// 5xx, network). The only retryable kind.
	KindExternalService Kind = "external_service"

	// KindQuotaExceeded marks an exhausted upstream quota. Fatal, requires
	// operator intervention.
	KindQuotaExceeded Kind = "quota_exceeded"

	// KindPermission marks an authorization failure against an upstream
	// service. Fatal, never retried.
	KindPermission Kind = "permission"

	// KindTimeout marks an exceeded deadline: index provisioning that never
	// became ready, or a watchdog-detected stall.
	KindTimeout Kind = "timeout"

	// KindCancelled marks cooperative cancellation observed by the worker.
	KindCancelled Kind = "cancelled"

	// KindNotFound marks a lookup for a record that does not exist (unknown
	// job id, unknown engine id).
	KindNotFound Kind = "not_found"

	// KindInternal marks an unexpected failure inside the pipeline itself.
	KindInternal Kind = "internal"
)

// Error is a classified error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a classified error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. A nil err yields nil so call sites can
// wrap unconditionally.
func Wrap(kind Kind, message string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// Wrapf classifies an existing error with a formatted message.
func Wrapf(kind Kind, err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: err}
}

// KindOf extracts the Kind from an error chain. Plain context cancellation
// and deadline errors map to KindCancelled and KindTimeout; anything else
// unclassified maps to KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// IsKind reports whether err carries the given Kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the caller may retry the failed operation.
// Only transient upstream failures qualify; everything else is terminal at
// the call site.
func IsRetryable(err error) bool {
	return KindOf(err) == KindExternalService
}

// MessageOf returns the classified message for an error, falling back to
// err.Error() for unclassified errors. Used when persisting a job's error
// payload.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Error()
	}
	return err.Error()
}
