// Package oracle is the single seam between the assistant and the external
// language model. It owns the quota gate, history window, and timeout for
// each call.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chris/helpem/internal/llm"
	"github.com/chris/helpem/internal/metrics"
	"github.com/chris/helpem/internal/quota"
)

// ErrUnavailable covers every transport failure: provider errors, empty
// replies, and timeouts.
var ErrUnavailable = errors.New("oracle unavailable")

const (
	DefaultTimeout = 20 * time.Second
	MinTimeout     = 15 * time.Second
	MaxTimeout     = 30 * time.Second

	// HistoryWindow is how many prior turns accompany each call.
	HistoryWindow = 10

	defaultHistoryBudget = 4000
)

// CallEvent describes one finished model call.
type CallEvent struct {
	Provider string
	Outcome  string // ok, error, timeout, canceled
	Duration time.Duration
	Err      error
}

type Observer interface {
	OnCall(CallEvent)
}

type metricsObserver struct{}

func (metricsObserver) OnCall(e CallEvent) {
	metrics.RecordOracleCall(e.Provider, e.Outcome, e.Duration)
}

type Gateway struct {
	client   llm.Client
	gate     quota.Gate
	timeout  time.Duration
	window   int
	budget   int
	logger   *zap.Logger
	observer Observer
}

type Option func(*Gateway)

// WithTimeout bounds each call. Values outside 15s..30s are clamped.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.timeout = min(max(d, MinTimeout), MaxTimeout)
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

func WithObserver(o Observer) Option {
	return func(g *Gateway) { g.observer = o }
}

// WithHistoryBudget caps the estimated tokens spent on prior turns.
func WithHistoryBudget(tokens int) Option {
	return func(g *Gateway) { g.budget = tokens }
}

func New(client llm.Client, gate quota.Gate, opts ...Option) *Gateway {
	g := &Gateway{
		client:   client,
		gate:     gate,
		timeout:  DefaultTimeout,
		window:   HistoryWindow,
		budget:   defaultHistoryBudget,
		logger:   zap.NewNop(),
		observer: metricsObserver{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Classify makes exactly one model call for the utterance and returns the
// raw reply. The quota is consumed before the call; when it is exhausted
// the model is never invoked and quota.ErrExceeded is returned.
func (g *Gateway) Classify(ctx context.Context, systemPrompt string, history []llm.Message, utterance string) (string, error) {
	if _, err := g.gate.Record(ctx, quota.Chat()); err != nil {
		if errors.Is(err, quota.ErrExceeded) {
			metrics.RecordQuotaDenied(string(quota.KindChat))
			g.logger.Warn("quota exceeded, skipping model call")
			return "", err
		}
		return "", fmt.Errorf("%w: usage gate: %w", ErrUnavailable, err)
	}

	trimmed := llm.TrimMessages(Window(history, g.window), g.budget)
	msgs := make([]llm.Message, 0, len(trimmed)+1)
	msgs = append(msgs, trimmed...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: utterance})

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Chat(callCtx, systemPrompt, msgs)
	ev := CallEvent{Provider: g.client.Name(), Outcome: "ok", Duration: time.Since(start), Err: err}

	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			ev.Outcome = "canceled"
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			ev.Outcome = "timeout"
		default:
			ev.Outcome = "error"
		}
		g.observer.OnCall(ev)
		g.logger.Warn("model call failed",
			zap.String("provider", ev.Provider),
			zap.String("outcome", ev.Outcome),
			zap.Duration("duration", ev.Duration),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	g.observer.OnCall(ev)
	g.logger.Debug("model call",
		zap.String("provider", ev.Provider),
		zap.String("model", resp.Model),
		zap.Duration("duration", ev.Duration),
		zap.Int("history", len(msgs)-1),
	)
	return resp.Content, nil
}

// Window returns at most the n most recent messages.
func Window(history []llm.Message, n int) []llm.Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
