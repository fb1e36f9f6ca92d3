package oracle

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

// GenAIOption configures GenAIOracle.
type GenAIOption func(*GenAIConfig)

// GenAIConfig holds client settings for the Gemini API.
type GenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// WithModel overrides the model name.
func WithModel(m string) GenAIOption {
	return func(c *GenAIConfig) {
		if m != "" {
			c.Model = m
		}
	}
}

// WithBaseURL points the client at another endpoint.
func WithBaseURL(u string) GenAIOption {
	return func(c *GenAIConfig) { c.BaseURL = u }
}

// GenAIOracle generates text with Google's Gemini models.
type GenAIOracle struct {
	client *genai.Client
	model  string
}

// NewGenAIOracle creates a Gemini-backed text oracle.
func NewGenAIOracle(ctx context.Context, apiKey string, opts ...GenAIOption) (*GenAIOracle, error) {
	cfg := &GenAIConfig{APIKey: apiKey, Model: defaultModel}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("genai: api key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai: create client: %w", err)
	}
	return &GenAIOracle{client: client, model: cfg.Model}, nil
}

// Generate sends prompt at temperature 0 and returns the concatenated text
// of the first candidate.
func (o *GenAIOracle) Generate(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0),
		MaxOutputTokens: int32(maxOutputTokens),
	}
	result, err := o.client.Models.GenerateContent(ctx, o.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("genai generate: %w", err)
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("genai generate: empty response")
	}
	return text, nil
}

// Model returns the model name in use.
func (o *GenAIOracle) Model() string { return o.model }
