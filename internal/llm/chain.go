package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

// ErrNoProviders is returned by a Chain with nothing configured.
var ErrNoProviders = errors.New("no LLM providers configured")

// DefaultTimeout bounds a single provider's attempts.
const DefaultTimeout = 30 * time.Second

// Chain tries providers in order until one returns an answer that decodes.
// Each provider gets its own bounded timeout and retry budget.
type Chain struct {
	logger    *slog.Logger
	providers []Client
	retryOpts service.RetryOptions
	timeout   time.Duration
}

// NewChain creates a fallback chain over providers, primary first.
func NewChain(timeout time.Duration, retryOpts service.RetryOptions, logger *slog.Logger, providers ...Client) *Chain {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: providers,
		timeout:   timeout,
		retryOpts: retryOpts,
		logger:    logger.With("component", "llm_chain"),
	}
}

// Name lists the providers in fallback order.
func (c *Chain) Name() string {
	name := "chain"
	for i, p := range c.providers {
		if i == 0 {
			name += ":"
		} else {
			name += ","
		}
		name += p.Name()
	}
	return name
}

// Len returns the number of configured providers.
func (c *Chain) Len() int {
	return len(c.providers)
}

// Complete returns the first successful provider response.
func (c *Chain) Complete(ctx context.Context, req Request) (Response, error) {
	return c.Decode(ctx, req, nil)
}

// Decode is Complete with a per-provider acceptance check. When decode
// rejects a response the next provider is tried, so malformed output from
// the primary falls back exactly like an outage would.
func (c *Chain) Decode(ctx context.Context, req Request, decode func(Response) error) (Response, error) {
	if len(c.providers) == 0 {
		return Response{}, common.NewProviderError("llm", ErrNoProviders)
	}

	var errs []error
	for _, provider := range c.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		resp, err := c.attempt(ctx, provider, req, decode)
		if err == nil {
			return resp, nil
		}

		c.logger.Warn("LLM provider failed, falling back",
			"provider", provider.Name(),
			"error", err)
		errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
	}

	return Response{}, common.NewProviderError(c.Name(), errors.Join(errs...))
}

func (c *Chain) attempt(ctx context.Context, provider Client, req Request, decode func(Response) error) (Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	var resp Response
	err := common.WithRetry(attemptCtx, func() error {
		var callErr error
		resp, callErr = provider.Complete(attemptCtx, req)
		if callErr != nil {
			if errors.Is(callErr, ErrImageUnsupported) {
				return &common.RetryableError{Err: callErr, Retryable: false}
			}
			return callErr
		}
		if decode != nil {
			if decodeErr := decode(resp); decodeErr != nil {
				return &common.RetryableError{Err: decodeErr, Retryable: false}
			}
		}
		return nil
	}, c.retryOpts)
	if err != nil {
		return Response{}, err
	}

	c.logger.Debug("LLM provider answered",
		"provider", provider.Name(),
		"duration_ms", time.Since(start).Milliseconds())
	if resp.Provider == "" {
		resp.Provider = provider.Name()
	}
	return resp, nil
}

// Close releases background resources held by wrapped providers.
func (c *Chain) Close() {
	for _, p := range c.providers {
		if closer, ok := p.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}
