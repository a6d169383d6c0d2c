package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

func fastRetry(attempts int) service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		}, fastRetry(5))
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return errors.New("down")
		}, fastRetry(2))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 2, calls)
	})

	t.Run("validation errors are not retried", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return NewValidationError("amount", "is required")
		}, fastRetry(5))
		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, 1, calls)
	})

	t.Run("non-retryable wrapper stops immediately", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return &RetryableError{Err: errors.New("bad request"), Retryable: false}
		}, fastRetry(5))
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("server hint is capped by max delay", func(t *testing.T) {
		calls := 0
		start := time.Now()
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls == 1 {
				return &RetryableError{Err: ErrRateLimit, After: time.Hour, Retryable: true}
			}
			return nil
		}, fastRetry(3))
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WithRetry(ctx, func() error {
			return errors.New("down")
		}, service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Second})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNextWait(t *testing.T) {
	assert.Equal(t, 3*time.Second, nextWait(&RetryableError{Err: errors.New("x"), After: 3 * time.Second, Retryable: true}, time.Millisecond, time.Minute))
	assert.Equal(t, time.Minute, nextWait(ErrRateLimit, time.Millisecond, time.Minute))
	assert.Equal(t, time.Millisecond, nextWait(errors.New("x"), time.Millisecond, time.Minute))
}

func TestMatchRegexFold(t *testing.T) {
	ok, err := MatchRegexFold(`^starbucks\s+#\d+$`, "STARBUCKS #12345")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchRegexFold(`[unclosed`, "anything")
	assert.Error(t, err)
	assert.False(t, ok)

	// cached failure is returned again
	ok, err = MatchRegexFold(`[unclosed`, "anything")
	assert.Error(t, err)
	assert.False(t, ok)
}
