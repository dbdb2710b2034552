package llm

import (
	"context"
	"fmt"
)

// temperature keeps classification output stable across calls.
const temperature = 0.3

type ProviderConfig struct {
	Provider  string
	APIKey    string
	AuthToken string // Anthropic OAuth token (Bearer auth)
	Model     string
	BaseURL   string
}

func NewClient(ctx context.Context, cfg ProviderConfig) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicClient(cfg.APIKey, cfg.AuthToken, cfg.Model), nil
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model, ""), nil
	case "ollama":
		if cfg.Model == "" {
			cfg.Model = "llama3.1"
		}
		c := NewOpenAIClient("ollama", cfg.Model, cfg.BaseURL)
		c.name = "ollama"
		return c, nil
	case "gemini":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}
