package infra

import (
	"time"
)

const (
	// Standard backoff constants
	DefaultBaseDelay = 1 * time.Second
	DefaultMaxDelay  = 60 * time.Second
)

// CalculateBackoff returns the exponential backoff duration for a given retry count.
// Logic: base * 2^retryCount, capped at max.
// If retryCount is negative, it returns base.
func CalculateBackoff(retryCount int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}
	if retryCount < 0 {
		return base
	}

	// 2^retryCount
	// 2^30 seconds is already far beyond any sane max, cap early to
	// prevent shift overflow.
	if retryCount > 30 {
		return max
	}

	backoff := base * time.Duration(1<<retryCount)

	if backoff > max {
		return max
	}

	return backoff
}
