package domain

import "errors"

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrInvalidRole   = errors.New("invalid role")
	ErrMissingSecret = errors.New("jwt secret is not configured")
)
