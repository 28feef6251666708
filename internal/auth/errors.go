package auth

import "errors"

var (
	ErrPasswordRequired = errors.New("password required")
	ErrBadCredentials   = errors.New("invalid password")

	ErrMissingToken     = errors.New("token missing")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenInvalid     = errors.New("invalid token")
	ErrInsufficientRole = errors.New("insufficient role")
)
