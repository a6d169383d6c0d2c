package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
)

const anthropicBaseURL = "https://api.anthropic.com"

// anthropicClient implements the Client interface for Anthropic API.
type anthropicClient struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
}

// newAnthropicClient creates a new Anthropic API client.
func newAnthropicClient(cfg Config) (*anthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 512
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}

	return &anthropicClient{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

func (c *anthropicClient) Name() string {
	return "anthropic"
}

// Complete sends a messages request to Anthropic.
func (c *anthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	content := []map[string]any{}
	if req.HasData() {
		blockType := "image"
		if req.MIMEType == "application/pdf" {
			blockType = "document"
		}
		content = append(content, map[string]any{
			"type": blockType,
			"source": map[string]string{
				"type":       "base64",
				"media_type": req.MIMEType,
				"data":       base64.StdEncoding.EncodeToString(req.Data),
			},
		})
	}
	content = append(content, map[string]any{"type": "text", "text": req.Prompt})

	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	requestBody := map[string]any{
		"model":       c.model,
		"max_tokens":  maxTokens,
		"temperature": c.temperature,
		"messages": []map[string]any{
			{
				"role":    "user",
				"content": content,
			},
		},
	}
	if req.System != "" {
		requestBody["system"] = req.System
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}

	if err := statusError("anthropic", resp.StatusCode, resp.Header, body); err != nil {
		return Response{}, err
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return Response{}, fmt.Errorf("failed to parse response: %w", err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Response{}, fmt.Errorf("no content in response")
	}

	return Response{Text: text.String(), Provider: c.Name()}, nil
}

// anthropicResponse represents the Anthropic API response structure.
type anthropicResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// statusError maps a non-200 provider status to an error. 429 and 5xx are
// retryable; other client errors are not.
func statusError(provider string, status int, header http.Header, body []byte) error {
	if status == http.StatusOK {
		return nil
	}
	err := fmt.Errorf("%s API error (status %d): %s", provider, status, truncate(string(body), 300))
	switch {
	case status == http.StatusTooManyRequests:
		return &common.RetryableError{
			Err:       fmt.Errorf("%w: %w", common.ErrRateLimit, err),
			After:     retryAfter(header),
			Retryable: true,
		}
	case status >= 500:
		return &common.RetryableError{Err: err, Retryable: true}
	default:
		return &common.RetryableError{Err: err, Retryable: false}
	}
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(header http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header.Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
