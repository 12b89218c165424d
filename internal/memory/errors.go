package memory

import "errors"

var (
	// ErrValidation marks a request the caller can fix.
	ErrValidation = errors.New("validation failed")

	// ErrUpstreamUnavailable marks an embedding provider that could not be
	// reached or answered with an error.
	ErrUpstreamUnavailable = errors.New("embedding provider unavailable")

	// ErrUpstreamTimeout marks an embedding call that exceeded its deadline.
	ErrUpstreamTimeout = errors.New("embedding provider timeout")
)
