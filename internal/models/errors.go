package models

import (
	"errors"
	"time"
)

// Domain error taxonomy. NotFound and Revoked stay distinct server-side
// for audit, but handlers collapse them to one client-facing error so
// tokens cannot be enumerated.
var (
	// ErrNotFound means the token or record never existed
	ErrNotFound = errors.New("not found")

	// ErrRevoked means the link existed but was superseded or admin-revoked
	ErrRevoked = errors.New("link revoked")

	// ErrExpired means the link existed but its lifetime elapsed
	ErrExpired = errors.New("link expired")

	// ErrRateLimited means the caller exceeded its quota; retryable
	ErrRateLimited = errors.New("rate limited")

	// ErrUnauthorized means the API key or entitlement check failed
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnavailable is a transient storage conflict; the caller may retry
	ErrUnavailable = errors.New("temporarily unavailable")
)

// RateLimitError carries the remaining window so callers can tell the
// client exactly when to retry. Matches ErrRateLimited under errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Denied reports whether err is any terminal access-denial condition
func Denied(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrRevoked) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrUnauthorized)
}
