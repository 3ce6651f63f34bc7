// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across storage/client/service layers.
var (
	// ErrNotFound indicates the requested entity or key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the remote service rejected the credentials or token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotAuthenticated indicates a protected operation was attempted without a session.
	ErrNotAuthenticated = errors.New("login required")

	// ErrValidation indicates local input validation failed before any network call.
	ErrValidation = errors.New("validation failed")

	// ErrMalformedResponse indicates a 2xx response whose body could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")
)
