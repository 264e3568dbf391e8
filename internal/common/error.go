// Package common defines shared constants and sentinel errors used across
// the task manager server. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")
	ErrRateLimited    = errors.New("too many requests")

	// Credential errors.
	ErrInvalidToken          = errors.New("invalid token")
	ErrTokenExpired          = errors.New("token expired")
	ErrorUserNotFound        = errors.New("user not found")
	ErrorInvalidCredentials  = errors.New("invalid email or password")
	ErrorNoAvatarProvided    = errors.New("no image provided")
	ErrorUnsupportedFileType = errors.New("only jpeg, jpg, png, gif and webp images are allowed")
	ErrorFileTooLarge        = errors.New("file too large")

	// Password reset errors.
	ErrInvalidOTP    = errors.New("invalid or already used code")
	ErrOTPExpired    = errors.New("code expired")
	ErrEmailDelivery = errors.New("unable to send email")
)
