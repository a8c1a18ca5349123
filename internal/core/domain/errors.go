package domain

import (
	"errors"
	"fmt"
)

// Domain errors classify every failure the core can surface.
// Callers decide between retry and abort with errors.Is, never by
// matching messages.
var (
	// ErrValidation indicates malformed or empty input, mismatched vector
	// dimensions or an invalid embedding. Never retried automatically.
	ErrValidation = errors.New("validation failed")

	// ErrProvider indicates an embedding, generation or vector store call
	// failed or timed out. Retryable at the caller's discretion.
	ErrProvider = errors.New("provider failure")

	// ErrIndex indicates the vector index is unusable, typically because the
	// backing collection was created with a different dimension.
	// Requires operator action; never resolved automatically.
	ErrIndex = errors.New("vector index failure")

	// ErrIndexNotReady indicates an index operation ran before Initialize
	// succeeded or after Shutdown.
	ErrIndexNotReady = errors.New("vector index not ready")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded indicates the usage-limit collaborator denied the operation.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrUnauthorized indicates the principal may not access the resource.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrIngestionInProgress indicates the material is already being ingested.
	ErrIngestionInProgress = errors.New("ingestion in progress")
)

// ErrorKind names the taxonomy bucket of an error.
type ErrorKind string

// Error kinds reported to driving adapters.
const (
	KindValidation    ErrorKind = "validation"
	KindProvider      ErrorKind = "provider"
	KindIndex         ErrorKind = "index"
	KindNotFound      ErrorKind = "not_found"
	KindQuotaExceeded ErrorKind = "quota_exceeded"
	KindUnauthorized  ErrorKind = "unauthorized"
	KindConflict      ErrorKind = "conflict"
	KindInternal      ErrorKind = "internal"
)

// KindOf returns the taxonomy bucket for err.
// Errors that wrap none of the domain sentinels are KindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrIndex), errors.Is(err, ErrIndexNotReady):
		return KindIndex
	case errors.Is(err, ErrProvider):
		return KindProvider
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrIngestionInProgress):
		return KindConflict
	default:
		return KindInternal
	}
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	return KindOf(err) == KindProvider
}

// errorf wraps kind with a formatted message.
func errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{kind}, args...)...)
}
