package coupon

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no coupon matches the submitted code.
	ErrNotFound = errors.New("coupon not found")
	// ErrInactive is returned when the coupon is used before its validity window opens.
	ErrInactive = errors.New("coupon not active yet")
	// ErrExpired is returned when the coupon validity window has closed.
	ErrExpired = errors.New("coupon expired")
	// ErrUsageLimitReached indicates the coupon exhausted its global quota.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrPerUserLimitReached indicates the caller exceeded the per-user allowance.
	ErrPerUserLimitReached = errors.New("coupon per-user limit reached")
	// ErrMinimumSpendUnmet indicates the discounted subtotal is below the coupon floor.
	ErrMinimumSpendUnmet = errors.New("coupon minimum spend not met")
)

// Rule captures the runtime constraints of a coupon.
type Rule struct {
	Code         string
	PercentBps   int
	MinSpend     int64
	UsageLimit   *int32
	UsedCount    int32
	PerUserLimit int32
	PerUserUsed  int32
	ValidFrom    *time.Time
	ValidTo      *time.Time
}

// Validate checks the rule against the provided instant and discounted subtotal.
func (r Rule) Validate(now time.Time, subtotal int64) error {
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return ErrInactive
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return ErrExpired
	}
	if subtotal < r.MinSpend {
		return ErrMinimumSpendUnmet
	}
	if r.UsageLimit != nil && *r.UsageLimit >= 0 && r.UsedCount >= *r.UsageLimit {
		return ErrUsageLimitReached
	}
	if r.PerUserLimit > 0 && r.PerUserUsed >= r.PerUserLimit {
		return ErrPerUserLimitReached
	}
	return nil
}

// Reason maps a validation error to the short human-readable phrase reported
// alongside rejected quotes.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "coupon not found"
	case errors.Is(err, ErrInactive):
		return "coupon not active yet"
	case errors.Is(err, ErrExpired):
		return "coupon expired"
	case errors.Is(err, ErrUsageLimitReached):
		return "coupon usage limit reached"
	case errors.Is(err, ErrPerUserLimitReached):
		return "coupon per-user limit reached"
	case errors.Is(err, ErrMinimumSpendUnmet):
		return "minimum spend not met"
	default:
		return "coupon unavailable"
	}
}
