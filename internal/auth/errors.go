package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: conflict")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountDisabled is returned by Login for users that are inactive or not yet approved.
	ErrAccountDisabled = errors.New("auth: account disabled")
	ErrInvalidToken    = errors.New("auth: invalid token")
)
