package domain

import (
	"errors"
	"time"
)

var (
	ErrInsufficientCredit  = errors.New("insufficient_credit")
	ErrCooldown            = errors.New("cooldown_active")
	ErrAlreadyPending      = errors.New("spend_already_pending")
	ErrNoPendingSpend      = errors.New("no_pending_spend")
	ErrRefundWindowExpired = errors.New("refund_window_expired")
	ErrInvalidAmount       = errors.New("invalid_amount")
)

// CooldownError is ErrCooldown carrying the remaining wait.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string { return ErrCooldown.Error() }

func (e *CooldownError) Is(target error) bool { return target == ErrCooldown }
