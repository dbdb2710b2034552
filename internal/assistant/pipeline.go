// Package assistant runs one classification turn: build the prompt, ask the
// model, parse the reply and apply policy.
package assistant

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chris/helpem/internal/commitment"
	"github.com/chris/helpem/internal/decision"
	"github.com/chris/helpem/internal/llm"
	"github.com/chris/helpem/internal/metrics"
	"github.com/chris/helpem/internal/prompt"
)

// Classifier is satisfied by *oracle.Gateway.
type Classifier interface {
	Classify(ctx context.Context, systemPrompt string, history []llm.Message, utterance string) (string, error)
}

type Pipeline struct {
	builder *prompt.Builder
	oracle  Classifier
	loc     *time.Location
	now     func() time.Time
	logger  *zap.Logger
}

type Option func(*Pipeline)

// WithLocation sets the timezone used when a request carries no time.
func WithLocation(loc *time.Location) Option {
	return func(p *Pipeline) {
		if loc != nil {
			p.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func New(oracle Classifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		builder: prompt.NewBuilder(),
		oracle:  oracle,
		loc:     time.Local,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type Request struct {
	Utterance string
	History   []llm.Message
	Snapshot  commitment.Snapshot
	// Now overrides the clock. Its location is the user's timezone.
	Now time.Time
}

// Decide classifies one utterance. The only errors are the ones the oracle
// returns (unavailable or quota exceeded); everything else degrades to a
// decision.
func (p *Pipeline) Decide(ctx context.Context, req Request) (decision.Decision, error) {
	now := req.Now
	if now.IsZero() {
		now = p.now().In(p.loc)
	}

	system := p.builder.Build(now, req.Snapshot)
	raw, err := p.oracle.Classify(ctx, system, req.History, req.Utterance)
	if err != nil {
		return decision.Decision{}, err
	}

	d := decision.Parse(raw, now.Location())
	d = decision.Enforce(d, decision.Input{Utterance: req.Utterance, Snapshot: req.Snapshot, Now: now})

	metrics.RecordDecision(string(d.Action), string(d.Kind()))
	p.logger.Debug("decision",
		zap.String("action", string(d.Action)),
		zap.String("kind", string(d.Kind())),
	)
	return d, nil
}

// Orient produces the daily check-in message. Anything other than a plain
// reply from the model is replaced by today's calendar.
func (p *Pipeline) Orient(ctx context.Context, snap commitment.Snapshot, now time.Time) (string, error) {
	if now.IsZero() {
		now = p.now().In(p.loc)
	}
	utterance := prompt.Orientation(now, snap)
	d, err := p.Decide(ctx, Request{Utterance: utterance, Snapshot: snap, Now: now})
	if err != nil {
		return "", err
	}
	if d.Action == decision.ActionRespond && d.Message != "" {
		return d.Message, nil
	}
	return decision.Summary(commitment.KindAppointment, decision.Input{Utterance: "today", Snapshot: snap, Now: now}), nil
}
