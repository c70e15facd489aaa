package auth

import "errors"

// Expected outcomes of lifecycle operations. Anything else returned by the
// Service is an unexpected failure.
var (
	ErrDuplicateIdentity  = errors.New("identity already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrEmptyPassword      = errors.New("password cannot be empty")
	ErrPasswordTooLong    = errors.New("password exceeds 72 bytes")
)

// Input rejected before touching the store.
var (
	ErrInvalidRole         = errors.New("invalid role")
	ErrInvalidPhoneCountry = errors.New("invalid phone country")
)
