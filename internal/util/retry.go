package util

import (
	"context"
	"time"
)

// RetryConfig bounds a retry loop: MaxAttempts total tries, exponential
// backoff starting at BackoffBase and capped at BackoffMax.
type RetryConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultRetryConfig retries three times with 100ms base backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BackoffBase: 100 * time.Millisecond, BackoffMax: 2 * time.Second}
}

// Retry runs fn up to cfg.MaxAttempts times, sleeping an exponentially
// growing delay between attempts. It stops early when fn succeeds, when
// retryable(err) is false, or when ctx is cancelled. The last error is
// returned after exhaustion.
func Retry(ctx context.Context, cfg RetryConfig, retryable func(error) bool, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	backoff := cfg.BackoffBase
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if cfg.BackoffMax > 0 && backoff > cfg.BackoffMax {
				backoff = cfg.BackoffMax
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
