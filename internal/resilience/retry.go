package resilience

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Retry calls fn up to attempts times with exponential backoff and jitter
// between tries. It returns nil on the first success. Context cancellation
// aborts the wait and returns the context error wrapped with the last
// failure, so callers can distinguish a timeout from an exhausted budget.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last attempt: %w)", err, lastErr)
			}
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if i == attempts-1 {
			break
		}

		delay := backoff(base, i)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w (last attempt: %w)", ctx.Err(), lastErr)
		}
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// backoff returns base * 2^attempt with up to 25% random jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base << attempt
	jitter := time.Duration(rand.Int64N(int64(d)/4 + 1))
	return d + jitter
}
