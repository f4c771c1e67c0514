// Package providers resolves structured-completion backends in a configured
// preference order and wraps them with rate limiting, circuit breaking,
// bounded retry, and an interaction log.
package providers

import "errors"

var (
	ErrProvidersExhausted = errors.New("no language model backend available")
	ErrMissingCredentials = errors.New("backend has no credentials")
	ErrUnknownBackend     = errors.New("unknown backend")
	ErrEmptyResponse      = errors.New("backend returned no choices")
	ErrSchemaMismatch     = errors.New("response does not match expected schema")
)
