package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

// NewClient creates a provider client wrapped with its rate limiter and
// response cache.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	var client Client
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		client, err = newOpenAIClient(cfg)
	case "anthropic":
		client, err = newAnthropicClient(cfg)
	case "gemini":
		client, err = newGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}

	limited := withRateLimit(client, cfg.RateLimit)
	if cfg.CacheTTL < 0 {
		return limited, nil
	}
	return withCache(limited, cfg.CacheTTL), nil
}

// NewChainFromConfig builds a fallback chain from provider configs, in order.
// Providers that fail to initialize are skipped with a warning; it is an
// error only when none can be created.
func NewChainFromConfig(ctx context.Context, cfgs []Config, timeout time.Duration, logger *slog.Logger) (*Chain, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var providers []Client
	retryOpts := service.RetryOptions{MaxAttempts: 2, InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}
	for _, cfg := range cfgs {
		client, err := NewClient(ctx, cfg)
		if err != nil {
			logger.Warn("skipping LLM provider", "provider", cfg.Provider, "error", err)
			continue
		}
		if cfg.MaxRetries > 0 {
			retryOpts.MaxAttempts = cfg.MaxRetries
		}
		if cfg.RetryDelay > 0 {
			retryOpts.InitialDelay = cfg.RetryDelay
		}
		providers = append(providers, client)
	}

	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	return NewChain(timeout, retryOpts, logger, providers...), nil
}
