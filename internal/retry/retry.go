// Package retry runs an operation a bounded number of times, stopping early
// on errors the caller classifies as permanent.
package retry

import (
	"context"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultMaxBackoff  = 10 * time.Second
)

// Config controls Do.
type Config struct {
	// MaxAttempts counts every attempt, including the first (default: 3).
	MaxAttempts int
	// InitialBackoff of 0 disables waiting between attempts.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration // default: 10s

	Retryable func(error) bool // default: every error is retried
	Sleep     func(ctx context.Context, d time.Duration) error
}

// Do calls fn until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached. It returns the number of attempts made and the
// last error unchanged, so callers can still classify it.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context, attempt int) error) (int, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.Retryable == nil {
		cfg.Retryable = func(error) bool { return true }
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if !cfg.Retryable(lastErr) || attempt == cfg.MaxAttempts {
			return attempt, lastErr
		}

		if cfg.InitialBackoff > 0 {
			if err := cfg.Sleep(ctx, calculateBackoff(attempt-1, cfg.InitialBackoff, cfg.MaxBackoff)); err != nil {
				return attempt, err
			}
		}
	}
	return cfg.MaxAttempts, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// calculateBackoff returns 2^attempt * initial, capped at max.
func calculateBackoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt >= 30 {
		return max
	}
	backoff := time.Duration(1<<uint(attempt)) * initial
	if backoff > max {
		return max
	}
	return backoff
}
