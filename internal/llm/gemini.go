package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// geminiClient implements the Client interface over the Gen AI SDK.
type geminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

func newGeminiClient(ctx context.Context, cfg Config) (*geminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &geminiClient{
		client:      client,
		model:       model,
		temperature: float32(temperature),
		maxTokens:   int32(maxTokens),
	}, nil
}

func (c *geminiClient) Name() string {
	return "gemini"
}

// Complete sends one user turn, with an optional inline attachment, to Gemini.
func (c *geminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	parts := []*genai.Part{{Text: req.Prompt}}
	if req.HasData() {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: req.MIMEType,
				Data:     req.Data,
			},
		})
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}

	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int32(req.MaxTokens)
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: maxTokens,
	}
	if req.System != "" {
		genCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.JSON {
		genCfg.ResponseMIMEType = "application/json"
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, genCfg)
	if err != nil {
		return Response{}, fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return Response{}, fmt.Errorf("empty response from model")
	}
	return Response{Text: text, Provider: c.Name()}, nil
}
