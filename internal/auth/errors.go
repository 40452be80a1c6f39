package auth

import "errors"

// Middleware rejections. ErrInvalidToken wraps every ParseJWT failure so
// callers can tell a bad token from a missing one.
var (
	ErrUnauthorized = errors.New("auth: bearer token required")
	ErrForbidden    = errors.New("auth: role not permitted")
	ErrInvalidToken = errors.New("auth: invalid token")
)
