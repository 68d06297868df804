package auth

import "errors"

var (
	// ErrInvalidToken is returned when a custom token fails verification.
	ErrInvalidToken = errors.New("invalid sign-in token")
	// ErrTokenExpired is returned when a custom token is past its exp claim.
	ErrTokenExpired = errors.New("sign-in token expired")
	// ErrTokenReused is returned when a one-time token is presented twice.
	ErrTokenReused = errors.New("sign-in token already used")
	// ErrAnonymousDisabled is returned when anonymous sign-in is turned off.
	ErrAnonymousDisabled = errors.New("anonymous sign-in disabled")
	// ErrNotConfigured is returned when the issuer has no signing secret.
	ErrNotConfigured = errors.New("token issuer not configured")
)
