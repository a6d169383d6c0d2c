package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

var (
	// ErrRateLimit indicates that the API rate limit has been exceeded.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries indicates that all retry attempts have been exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryableError marks whether a failure is worth another attempt. After,
// when set, is the wait the remote side asked for.
type RetryableError struct {
	Err       error
	After     time.Duration
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

func retryDefaults(opts service.RetryOptions) service.RetryOptions {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}
	return opts
}

// WithRetry runs operation until it succeeds, fails permanently, or runs out
// of attempts, backing off exponentially between tries. Validation and
// authorization failures are returned immediately.
func WithRetry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	opts = retryDefaults(opts)
	backoff := opts.InitialDelay

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return err
		}
		if attempt >= opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, opts.MaxAttempts, err)
		}

		wait := nextWait(err, backoff, opts.MaxDelay)
		slog.Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", wait,
			"error", err)

		if timer == nil {
			timer = time.NewTimer(wait)
		} else {
			timer.Reset(wait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(time.Duration(float64(backoff)*opts.Multiplier), opts.MaxDelay)
	}
}

// nextWait honors a server hint, then rate limits, then the backoff.
func nextWait(err error, backoff, maxDelay time.Duration) time.Duration {
	var retryable *RetryableError
	if errors.As(err, &retryable) && retryable.After > 0 {
		return min(retryable.After, maxDelay)
	}
	if errors.Is(err, ErrRateLimit) {
		return maxDelay
	}
	return backoff
}

func isPermanent(err error) bool {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) && !retryableErr.Retryable {
		return true
	}
	var validationErr *ValidationError
	var authErr *AuthorizationError
	return errors.As(err, &validationErr) || errors.As(err, &authErr) || errors.Is(err, context.Canceled)
}
