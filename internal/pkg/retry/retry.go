// Package retry implements exponential backoff for outbound calls.
package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

const maxBackoff = 30 * time.Second

// Backoff returns base * 2^attempt, capped at 30s, with +/-25% jitter.
// attempt <= 0 means no wait.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := base * time.Duration(1<<uint(attempt))
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}
	half := int64(backoff) / 2
	if half <= 0 {
		return backoff
	}
	return backoff + time.Duration(rand.Int64N(half)) - backoff/4
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls fn up to attempts times. It stops early when fn succeeds, when
// retryable reports false for the error, or when ctx is done. It returns the
// number of calls made and the last error.
func Do(ctx context.Context, attempts int, base time.Duration, retryable func(error) bool, fn func(context.Context) error) (int, error) {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if serr := Sleep(ctx, Backoff(base, i)); serr != nil {
				return i, err
			}
		}
		if err = fn(ctx); err == nil {
			return i + 1, nil
		}
		if retryable != nil && !retryable(err) {
			return i + 1, err
		}
	}
	return attempts, err
}
