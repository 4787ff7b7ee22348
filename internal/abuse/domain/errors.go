package domain

import (
	"errors"
	"time"
)

var (
	ErrAlreadyGranted     = errors.New("free_grant_already_used")
	ErrContactAlreadyUsed = errors.New("contact_already_used")
	ErrOriginRateLimited  = errors.New("origin_rate_limited")
	ErrInvalidContact     = errors.New("invalid_contact")
)

// RateLimitedError is ErrOriginRateLimited raised by the attempt throttle,
// which knows when the next attempt is allowed.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string { return ErrOriginRateLimited.Error() }

func (e *RateLimitedError) Is(target error) bool { return target == ErrOriginRateLimited }
