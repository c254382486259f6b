package errors

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalid       = errors.New("invalid")
	ErrConflict      = errors.New("conflict")
	ErrTooMany       = errors.New("too many requests")
	ErrInternal      = errors.New("internal")
	ErrCodeExpired   = errors.New("verification code expired")
	ErrCodeUsed      = errors.New("verification code already used")
	ErrNoActiveCode  = errors.New("no active verification code")
	ErrVideoTooShort = errors.New("video too short")
	ErrVideoTooLong  = errors.New("video too long")
	ErrNoEvidence    = errors.New("no usable evidence")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
