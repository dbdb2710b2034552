// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/chris/helpem/internal/llm"
)

type Call struct {
	System   string
	Messages []llm.Message
}

// Client replays Replies in order, repeating the last one. When Block is
// set every call waits for its context to end. Reply, when non-nil, takes
// precedence over Replies.
type Client struct {
	Replies []string
	Err     error
	Block   bool
	Reply   func(context.Context, Call) (string, error)

	mu    sync.Mutex
	calls []Call
}

func New(replies ...string) *Client {
	return &Client{Replies: replies}
}

func (c *Client) Name() string { return "fake" }

func (c *Client) Chat(ctx context.Context, system string, messages []llm.Message) (*llm.Response, error) {
	call := Call{System: system, Messages: append([]llm.Message(nil), messages...)}

	c.mu.Lock()
	n := len(c.calls)
	c.calls = append(c.calls, call)
	c.mu.Unlock()

	if c.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.Err != nil {
		return nil, c.Err
	}
	if c.Reply != nil {
		text, err := c.Reply(ctx, call)
		if err != nil {
			return nil, err
		}
		return &llm.Response{Content: text, Model: "fake"}, nil
	}
	if len(c.Replies) == 0 {
		return nil, llm.ErrEmptyResponse
	}
	reply := c.Replies[min(n, len(c.Replies)-1)]
	return &llm.Response{Content: reply, Model: "fake"}, nil
}

func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
