// Package errors defines the structured error type used across RIC,
// plus retry and circuit-breaker helpers for calls to external services.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Error is the structured error type for RIC.
// It carries the kind callers branch on, context for logging, and an
// optional actionable suggestion for operators.
type Error struct {
	// Kind is the error classification (see kinds.go).
	Kind Kind

	// Message is the human-readable error message.
	Message string

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind, so errors.Is(err, &Error{Kind: KindNotFound})
// works across wrapping.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the operator.
// Returns the error for method chaining.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates an Error of the given kind. The retryable flag is derived
// from the kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retryable: kind.retryable(),
	}
}

// Wrap creates an Error of the given kind around an existing error.
// Returns nil if err is nil.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Cause:     err,
		Retryable: kind.retryable(),
	}
}

// BadInput creates a caller-input error.
func BadInput(format string, args ...any) *Error {
	return New(KindBadInput, format, args...)
}

// AccessDenied creates an authorization error.
func AccessDenied(format string, args ...any) *Error {
	return New(KindAccessDenied, format, args...)
}

// NotFound creates a missing-entity error.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Conflict creates a dedupe-race or unique-constraint error.
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// Unavailable wraps a dependency failure. Unavailable errors are retryable.
func Unavailable(err error, format string, args ...any) *Error {
	if err == nil {
		return New(KindUnavailable, format, args...)
	}
	return Wrap(KindUnavailable, err, format, args...)
}

// DimensionMismatch creates an embedding-dimension error carrying both sides.
func DimensionMismatch(expected, got int) *Error {
	return New(KindDimensionMismatch,
		"embedding dimension mismatch: store expects %d, embedder produces %d", expected, got).
		WithDetail("expected", fmt.Sprintf("%d", expected)).
		WithDetail("got", fmt.Sprintf("%d", got)).
		WithSuggestion("Reingest the corpus or align embedder.vector_dimension with the store.")
}

// Internal creates an unexpected-failure error.
func Internal(err error, format string, args ...any) *Error {
	if err == nil {
		return New(KindInternal, format, args...)
	}
	return Wrap(KindInternal, err, format, args...)
}

// FromContext maps a context error to the matching kind, wrapping any
// other error as-is. Use on the way out of blocking calls.
func FromContext(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(KindTimeout, err, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return Wrap(KindCancelled, err, "operation cancelled")
	default:
		return err
	}
}

// KindOf extracts the kind from an error chain. Context errors map to
// Timeout/Cancelled; anything unclassified is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

// IsRetryable checks if an error may succeed on retry. Unclassified errors
// are treated as retryable so transport-level failures keep their usual
// retry behavior; classified permanent kinds short-circuit.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// HasKind reports whether the error chain contains an Error of the kind.
func HasKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
