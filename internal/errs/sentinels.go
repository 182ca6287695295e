// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service/transport layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	// It is a store-level outcome and is never surfaced to HTTP callers as-is.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates failed authentication: bad credentials or an
	// invalid, expired or missing token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation indicates missing or malformed input.
	ErrValidation = errors.New("validation")
)
