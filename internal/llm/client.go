// Package llm wraps the completion API the narrator speaks through and the
// prompt templates it is driven by.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client generates completions from an OpenAI-compatible endpoint.
type Client struct {
	api         openai.Client
	model       string
	maxTokens   int64
	temperature float64
	logger      *slog.Logger
}

// Config carries everything Client needs to talk to the completion endpoint.
type Config struct {
	APIBase     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// NewClient builds a Client. Transient API failures are retried with backoff
// by the underlying SDK.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{
		option.WithBaseURL(cfg.APIBase),
		option.WithMaxRetries(3),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &Client{
		api:         openai.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

// Complete sends prompt to the completion endpoint and returns the generated
// text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.Completions.New(ctx, openai.CompletionNewParams{
		Model:       openai.CompletionNewParamsModel(c.model),
		Prompt:      openai.CompletionNewParamsPromptUnion{OfString: openai.String(prompt)},
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		c.logger.Error("completion request failed", "model", c.model, "error", err)
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion: empty response")
	}
	return resp.Choices[0].Text, nil
}
