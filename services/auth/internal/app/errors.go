package app

import "errors"

var (
	// ErrInvalidCredentials is shown to end users; it must not reveal whether the email exists.
	ErrInvalidCredentials = errors.New("incorrect email address or password")

	// ErrUserDisabled should not be exposed to clients.
	ErrUserDisabled = errors.New("user disabled")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrEmailAlreadyExists       = errors.New("email already exists")
	ErrInvalidEmail             = errors.New("invalid email address")

	ErrRefreshTokenRequired = errors.New("refresh token required")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
)
