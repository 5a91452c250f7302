package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// Adapters wrap them with %w so callers can match with errors.Is.
var (
	// ErrNotFound indicates a requested document or chunk does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed input. Rejected before any
	// external call is made.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration indicates missing credentials or endpoints.
	// Never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrBackendUnavailable indicates an embedding backend or vector index
	// could not be reached. Fails the current operation without retry.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrEmbeddingUnavailable indicates the embedding backend is unreachable
	// or misconfigured. Matches ErrBackendUnavailable.
	ErrEmbeddingUnavailable error = unavailableError("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is unreachable.
	// Matches ErrBackendUnavailable.
	ErrVectorIndexUnavailable error = unavailableError("vector index unavailable")

	// ErrLLMUnavailable indicates the completion service failed with a
	// non-retryable error.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrRateLimited indicates the remote service signalled throttling.
	ErrRateLimited = errors.New("rate limited")

	// ErrRetriesExhausted indicates every allowed attempt was throttled.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrUnsupportedType indicates an unknown provider, backend or MIME type.
	ErrUnsupportedType = errors.New("unsupported type")
)

// unavailableError is a named backend outage that also matches
// ErrBackendUnavailable.
type unavailableError string

func (e unavailableError) Error() string { return string(e) }

// Is reports whether target is the generic backend outage sentinel.
func (e unavailableError) Is(target error) bool {
	return target == ErrBackendUnavailable //nolint:errorlint // sentinel identity
}

// ValidationError describes a single rejected input field.
type ValidationError struct {
	// Field is the offending input field name.
	Field string

	// Reason explains the constraint that was violated.
	Reason string
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
