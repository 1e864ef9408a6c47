package identity

import "errors"

var (
	// ErrTokenMalformed is returned when the token cannot be parsed at all.
	// Malformed input never reaches the provider delegate.
	ErrTokenMalformed = errors.New("malformed token")

	// ErrTokenExpired is returned when the token's expiry is in the past.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidSignature is returned when the provider rejects the token.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrSubjectNotFound is returned by admin lookups for unknown subjects.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrProviderUnavailable is returned when the provider cannot be reached.
	// Callers must treat it as an operational failure, not a rejection.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)
