package service

import "errors"

var (
	// ErrNoBody is the validation failure for an absent or unparseable body.
	ErrNoBody = errors.New("no body")
	// ErrBadToken is the authentication failure for a token mismatch.
	ErrBadToken = errors.New("bad token")
	// ErrSelfTestDisabled is returned when self-test is switched off.
	ErrSelfTestDisabled = errors.New("selftest disabled")
)

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrNoBody) }

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool { return errors.Is(err, ErrBadToken) }
