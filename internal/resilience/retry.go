package resilience

import (
	"context"
	"fmt"
	"time"
)

// Retry runs fn up to attempts times, sleeping base, 2*base, 4*base, ...
// between failures. It stops early when the context is canceled or fn
// succeeds. The last error is returned after exhaustion.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := base
	for i := range attempts {
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry aborted after %d attempts: %w", i, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}
