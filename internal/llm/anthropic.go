package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 1024

type AnthropicClient struct {
	client anthropic.Client
	model  string
}

// NewAnthropicClient authenticates with an API key (X-Api-Key) or, when
// authToken is set, with an OAuth bearer token.
func NewAnthropicClient(apiKey, authToken, model string) *AnthropicClient {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if authToken != "" {
		opts = append(opts,
			option.WithAuthToken(authToken),
			option.WithHeader("anthropic-beta", "oauth-2025-04-20"),
		)
	} else {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

func (c *AnthropicClient) Chat(ctx context.Context, systemPrompt string, messages []Message) (*Response, error) {
	var msgs []anthropic.MessageParam
	for _, m := range messages {
		// The Messages API wants the conversation to open with a user turn.
		if len(msgs) == 0 && m.Role != RoleUser {
			continue
		}
		switch m.Role {
		case RoleUser:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   anthropicMaxTokens,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    msgs,
		Temperature: anthropic.Float(temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{Content: b.String(), Model: string(msg.Model)}, nil
}
