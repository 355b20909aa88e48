// Package common defines shared constants and sentinel errors used across
// the client and server sides of catchkeeper. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Remote store reachability; operations stay queued.
	ErrUnavailable = errors.New("remote store unavailable")

	// Sync errors.
	ErrMalformedOperation = errors.New("malformed sync operation")
	ErrOwnershipConflict  = errors.New("record belongs to another user")
	ErrBatchTooLarge      = errors.New("batch too large")

	// ErrInvalidRequest is the client-side view of a request the remote
	// store rejected as invalid.
	ErrInvalidRequest = errors.New("invalid request")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	ErrorAlreadyExists = errors.New("already exists")
)
