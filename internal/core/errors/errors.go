// Package errors provides centralized error definitions for the monitor.
// Errors are organized by concern to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
//
// Best-effort collaborators (connectors, the abstractive summarizer) wrap one of
// ErrNoData, ErrTransient or ErrUnsupported so call sites can pick between retrying
// on the next run, skipping, or falling back.
package errors

import (
	"context"
	"errors"
	"net"
)

// Outcome classification errors.
var (
	// ErrNoData indicates the collaborator answered but had nothing usable.
	ErrNoData = errors.New("no data")

	// ErrTransient indicates a failure that may succeed on a later run (timeouts, 5xx, network).
	ErrTransient = errors.New("transient failure")

	// ErrUnsupported indicates the capability is not configured or can never succeed.
	ErrUnsupported = errors.New("unsupported")
)

// Store errors. Any of these aborts the run before output is written.
var (
	// ErrStoreRead indicates the existing store could not be read.
	ErrStoreRead = errors.New("store unreadable")

	// ErrStoreCorrupt indicates the existing store is not a valid item sequence.
	ErrStoreCorrupt = errors.New("store corrupt")

	// ErrStoreWrite indicates the store or aggregates could not be written.
	ErrStoreWrite = errors.New("store write failed")
)

// Client and transport errors.
var (
	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped and requests are blocked.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

	// ErrHTTPStatusNotOK indicates an HTTP response with a non-200 status code.
	ErrHTTPStatusNotOK = errors.New("HTTP status not OK")

	// ErrEmptyResponse indicates an empty response was received.
	ErrEmptyResponse = errors.New("empty response")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")
)

// Kind is the coarse classification of a collaborator failure.
type Kind string

const (
	KindNone        Kind = "none"
	KindNoData      Kind = "no_data"
	KindTransient   Kind = "transient"
	KindUnsupported Kind = "unsupported"
	KindPermanent   Kind = "permanent"
)

// Classify maps err to a Kind. Unwrapped context deadlines and network errors
// count as transient; anything unrecognised is permanent.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	switch {
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, ErrNoData), errors.Is(err, ErrEmptyResponse):
		return KindNoData
	case errors.Is(err, ErrTransient), errors.Is(err, ErrCircuitBreakerOpen),
		errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	return KindPermanent
}

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
