package users

import "errors"

var (
	// ErrNotFound is returned when no user exists for the phone number
	ErrNotFound = errors.New("user not found")

	// ErrMissingPhone is returned when a phone number is required but empty
	ErrMissingPhone = errors.New("phone number is required")
)
