package auth

import "errors"

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenInvalid       = errors.New("auth: invalid token")
	ErrInvalidHash        = errors.New("auth: invalid password hash")
	ErrNotConfigured      = errors.New("auth: admin account not configured")
)
