// Package common defines shared constants and sentinel errors used across
// the client core and the reference server. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrStorage marks local persistence failures (quota, permission,
	// corruption). Fatal to the current operation, always surfaced.
	ErrStorage = errors.New("storage unavailable")

	// ErrSync marks remote read/write failures. Recoverable: the queue
	// entry stays durable and is retried with backoff.
	ErrSync = errors.New("sync failed")

	// ErrValidation rejects invalid payloads. Enforced for submitted
	// saves only; drafts may be incomplete by design.
	ErrValidation = errors.New("validation error")

	// ErrVersionConflict reports that a write lost version arbitration.
	// It is a resolved outcome of conflict detection, not a failure.
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
