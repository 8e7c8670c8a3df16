package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrAlreadyAttributed guards the first-resolution-wins rule on conversions.
	// Attribution fields are written at most once; later resolutions must not overwrite them.
	ErrAlreadyAttributed   = errors.New("conversion already attributed")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConflict            = errors.New("conflict")
	ErrIdempotencyConflict = errors.New("idempotency conflict")
	ErrRateLimited         = errors.New("rate limited")
	// ErrStoreUnavailable signals that a lookup/write collaborator failed.
	// The conversion stays in pending state; attribution is never guessed on store failure.
	ErrStoreUnavailable = errors.New("store unavailable")
)
