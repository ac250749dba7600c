// Package auth validates the bearer tokens the operator API requires on its
// mutating routes. It authenticates operators calling this service, not the
// webhooks this service calls out to.
package auth

import "errors"

// Sentinel errors for operator bearer-token authentication.
var (
	// ErrMissingToken indicates no Authorization header was present.
	ErrMissingToken = errors.New("missing authentication token")

	// ErrInvalidToken indicates the token is malformed or has an invalid signature.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken indicates the token has expired.
	ErrExpiredToken = errors.New("token has expired")

	// ErrNoSecretConfigured indicates the validator was constructed without a signing secret.
	ErrNoSecretConfigured = errors.New("no secret configured")
)
