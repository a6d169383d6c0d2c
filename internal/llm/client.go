package llm

import (
	"context"
	"errors"
	"time"
)

// ErrImageUnsupported is returned by providers that cannot read image input.
var ErrImageUnsupported = errors.New("provider does not accept image input")

// Client defines the interface for LLM providers.
type Client interface {
	// Name identifies the provider in logs and errors.
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// Request is a single prompt, optionally with one inline image or PDF.
type Request struct {
	System    string
	Prompt    string
	Data      []byte
	MIMEType  string
	MaxTokens int
	// JSON asks providers that support it to constrain output to JSON.
	JSON bool
}

// HasData reports whether the request carries an inline attachment.
func (r Request) HasData() bool {
	return len(r.Data) > 0
}

// Response is the raw text a provider returned.
type Response struct {
	Text     string
	Provider string
}

// Config holds configuration for one provider.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	MaxRetries  int
	RetryDelay  time.Duration
	CacheTTL    time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}
