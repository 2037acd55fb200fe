package provider

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicCounter implements TokenCounter using the Anthropic count-tokens
// endpoint. It is the exact counter behind validated estimation mode.
type AnthropicCounter struct {
	client anthropic.Client
	model  string
}

// NewAnthropicCounter creates a counter for the given model.
func NewAnthropicCounter(apiKey, model string) *AnthropicCounter {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &AnthropicCounter{
		client: anthropic.NewClient(anthropicoption.WithAPIKey(apiKey)),
		model:  model,
	}
}

// CountTokens returns the exact token count for text as measured by the API.
func (c *AnthropicCounter) CountTokens(ctx context.Context, text string) (int, error) {
	resp, err := c.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return int(resp.InputTokens), nil
}
