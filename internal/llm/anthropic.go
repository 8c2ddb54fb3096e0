package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider generates text with Claude through the official SDK.
type AnthropicProvider struct {
	Model  string
	apiKey string
	client anthropic.Client
}

// NewAnthropicProvider creates a provider reading its key from apiKeyEnv.
func NewAnthropicProvider(model, apiKeyEnv string, opts ...option.RequestOption) *AnthropicProvider {
	key := os.Getenv(apiKeyEnv)
	opts = append([]option.RequestOption{option.WithAPIKey(key)}, opts...)
	return &AnthropicProvider{
		Model:  model,
		apiKey: key,
		client: anthropic.NewClient(opts...),
	}
}

// IsConfigured checks if the API key is set.
func (a *AnthropicProvider) IsConfigured() bool {
	return a.apiKey != "" && a.Model != ""
}

// Generate sends a single user message and returns the concatenated text blocks.
func (a *AnthropicProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if !a.IsConfigured() {
		return "", fmt.Errorf("Anthropic API key: %w", ErrNotConfigured)
	}

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.Model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	var parts []string
	for _, block := range message.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("Anthropic returned no text content")
	}
	return strings.Join(parts, ""), nil
}
