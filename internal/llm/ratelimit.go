package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// rateLimiter is a token bucket refilled continuously from elapsed time, so
// it needs no background goroutine.
type rateLimiter struct {
	last     time.Time
	now      func() time.Time
	interval time.Duration // time to earn one token
	tokens   float64
	capacity float64
	mu       sync.Mutex
}

// newRateLimiter allows requestsPerMinute calls per minute, with bursts up to
// the same number. Non-positive values mean 60.
func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	rl := &rateLimiter{
		now:      time.Now,
		interval: time.Minute / time.Duration(requestsPerMinute),
		capacity: float64(requestsPerMinute),
	}
	rl.tokens = rl.capacity
	rl.last = rl.now()
	return rl
}

// reserve takes a token when one is available; otherwise it reports how long
// until the next one is earned.
func (rl *rateLimiter) reserve() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if elapsed := now.Sub(rl.last); elapsed > 0 {
		rl.tokens = min(rl.capacity, rl.tokens+float64(elapsed)/float64(rl.interval))
		rl.last = now
	}
	if rl.tokens >= 1 {
		rl.tokens--
		return 0, true
	}
	return time.Duration((1 - rl.tokens) * float64(rl.interval)), false
}

func (rl *rateLimiter) tryAcquire() bool {
	_, ok := rl.reserve()
	return ok
}

// wait blocks until a token is available or ctx is done.
func (rl *rateLimiter) wait(ctx context.Context) error {
	for {
		delay, ok := rl.reserve()
		if ok {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// rateLimitedClient throttles calls to the wrapped provider.
type rateLimitedClient struct {
	Client
	limiter *rateLimiter
}

func withRateLimit(c Client, requestsPerMinute int) *rateLimitedClient {
	return &rateLimitedClient{Client: c, limiter: newRateLimiter(requestsPerMinute)}
}

func (c *rateLimitedClient) Complete(ctx context.Context, req Request) (Response, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return Response{}, err
	}
	return c.Client.Complete(ctx, req)
}

// Close releases the wrapped provider, if it holds resources.
func (c *rateLimitedClient) Close() {
	if closer, ok := c.Client.(interface{ Close() }); ok {
		closer.Close()
	}
}
