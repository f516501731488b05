package helper

import (
	"context"
	"errors"
	"time"
)

// RetryWithBackoff calls fn and, on failure, retries up to maxRetries more
// times, sleeping backoff (doubled per attempt) between attempts.
// Context cancellation and deadline errors are returned immediately and are
// never retried. Returns the last error if all attempts fail.
func RetryWithBackoff(ctx context.Context, maxRetries int, backoff time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return lastErr
}
