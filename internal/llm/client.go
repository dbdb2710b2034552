package llm

import (
	"context"
	"errors"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("llm returned an empty response")

type Message struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

type Response struct {
	Content string
	Model   string
}

// Client sends one system prompt plus a conversation to a language model and
// returns its text reply. Implementations never retry.
type Client interface {
	Chat(ctx context.Context, systemPrompt string, messages []Message) (*Response, error)
	Name() string
}
