package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type OpenAIClient struct {
	client openai.Client
	model  string
	name   string
}

func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	// Retries would double-bill a classification; the gateway owns failure.
	opts = append(opts, option.WithMaxRetries(0))
	client := openai.NewClient(opts...)
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	return &OpenAIClient{client: client, model: model, name: "openai"}
}

func (c *OpenAIClient) Name() string { return c.name }

func (c *OpenAIClient) Chat(ctx context.Context, systemPrompt string, messages []Message) (*Response, error) {
	oaiMsgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
	}
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			oaiMsgs = append(oaiMsgs, openai.UserMessage(m.Content))
		case RoleAssistant:
			oaiMsgs = append(oaiMsgs, openai.AssistantMessage(m.Content))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    oaiMsgs,
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("%s chat: %w", c.name, err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{Content: resp.Choices[0].Message.Content, Model: resp.Model}, nil
}
