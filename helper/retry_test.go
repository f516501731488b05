package helper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("Succeeds on first attempt", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(ctx, 1, time.Millisecond, func(ctx context.Context) error {
			calls++
			return nil
		})

		assert.NoError(t, err, "Expected RetryWithBackoff to not return an error")
		assert.Equal(t, 1, calls, "Expected fn to be called exactly once")
	})

	t.Run("Retries once and succeeds", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(ctx, 1, time.Millisecond, func(ctx context.Context) error {
			calls++
			if calls == 1 {
				return errors.New("transient")
			}
			return nil
		})

		assert.NoError(t, err, "Expected RetryWithBackoff to succeed on retry")
		assert.Equal(t, 2, calls, "Expected fn to be called twice")
	})

	t.Run("Returns last error after exhausting retries", func(t *testing.T) {
		calls := 0
		lastErr := errors.New("still failing")
		err := RetryWithBackoff(ctx, 1, time.Millisecond, func(ctx context.Context) error {
			calls++
			return lastErr
		})

		assert.ErrorIs(t, err, lastErr, "Expected RetryWithBackoff to return the last error")
		assert.Equal(t, 2, calls, "Expected one initial attempt plus one retry")
	})

	t.Run("Does not retry on context cancellation", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(ctx, 3, time.Millisecond, func(ctx context.Context) error {
			calls++
			return context.Canceled
		})

		assert.ErrorIs(t, err, context.Canceled, "Expected context.Canceled to be returned")
		assert.Equal(t, 1, calls, "Expected cancellation to not be retried")
	})

	t.Run("Stops when context is already done", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		err := RetryWithBackoff(cancelled, 3, time.Millisecond, func(ctx context.Context) error {
			calls++
			return nil
		})

		assert.ErrorIs(t, err, context.Canceled, "Expected the context error")
		assert.Equal(t, 0, calls, "Expected fn to never be called")
	})
}
