package client

import (
	"math/rand"
	"time"
)

// RetryConfig holds the configuration for retry logic. The constants are
// deliberately configuration, not code: vendors differ in how aggressively
// they may be retried.
type RetryConfig struct {
	// MaxAttempts is the total network attempt budget per SKU, including
	// the initial request.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff growth.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier applied after each attempt.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// next returns the backoff for the following attempt, capped at MaxBackoff.
func (c RetryConfig) next(backoff time.Duration) time.Duration {
	backoff = time.Duration(float64(backoff) * c.BackoffMultiplier)
	if backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}
	return backoff
}

// withJitter spreads a backoff by ±20%.
func withJitter(backoff time.Duration) time.Duration {
	return time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
}
