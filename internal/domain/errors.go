package domain

import "errors"

// Sentinel errors shared across the service. Callers match with errors.Is;
// layers add context with fmt.Errorf("...: %w", err).
var (
	// ErrNotFound reports a missing case or record. Surfaced to the
	// caller, never retried.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput reports a malformed request.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorage reports a persistence failure that survived one
	// synchronous retry. The computed result is never silently dropped.
	ErrStorage = errors.New("storage failure")
)
