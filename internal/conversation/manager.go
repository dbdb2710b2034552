package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chris/helpem/internal/assistant"
	"github.com/chris/helpem/internal/commitment"
	"github.com/chris/helpem/internal/decision"
	"github.com/chris/helpem/internal/events"
	"github.com/chris/helpem/internal/llm"
	"github.com/chris/helpem/internal/metrics"
	"github.com/chris/helpem/internal/prompt"
	"github.com/chris/helpem/internal/quota"
	"github.com/chris/helpem/internal/store"
)

var (
	ErrNoPending  = errors.New("no pending action")
	ErrSuperseded = errors.New("superseded by a newer message")
)

const (
	genericFailure = "Sorry, something went wrong. Please try again."
	quotaReached   = "You've reached this month's usage limit, so I can't answer right now. It resets at the start of next month."
	cancelled      = "No problem, cancelled."
)

// Decider is satisfied by *assistant.Pipeline.
type Decider interface {
	Decide(ctx context.Context, req assistant.Request) (decision.Decision, error)
}

type Manager struct {
	decider Decider
	stores  store.Provider
	events  events.Publisher
	now     func() time.Time
	loc     *time.Location
	newID   func() string
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[Key]*session
}

type Option func(*Manager)

func WithEvents(p events.Publisher) Option {
	return func(m *Manager) { m.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(m *Manager) {
		if loc != nil {
			m.loc = loc
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithIDs(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

func NewManager(d Decider, stores store.Provider, opts ...Option) *Manager {
	m := &Manager{
		decider:  d,
		stores:   stores,
		events:   events.Nop{},
		now:      time.Now,
		loc:      time.Local,
		newID:    uuid.NewString,
		logger:   zap.NewNop(),
		sessions: make(map[Key]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) clock() time.Time {
	return m.now().In(m.loc)
}

func (m *Manager) session(k Key) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[k]
	if !ok {
		s = &session{}
		m.sessions[k] = s
	}
	s.touched = m.now()
	return s
}

// Submit classifies a new utterance. A pending action is cancelled first,
// and a call still running for an earlier utterance is abandoned: its
// caller gets ErrSuperseded and its result is dropped. On error the user's
// turn stays in the history with no reply after it.
func (m *Manager) Submit(ctx context.Context, k Key, utterance string) (Reply, error) {
	return m.submit(ctx, k, utterance, time.Time{})
}

// SubmitAt is Submit with the user's own current time, whose location is
// used for every date in the turn.
func (m *Manager) SubmitAt(ctx context.Context, k Key, utterance string, now time.Time) (Reply, error) {
	return m.submit(ctx, k, utterance, now)
}

func (m *Manager) submit(ctx context.Context, k Key, utterance string, now time.Time) (Reply, error) {
	utterance = strings.TrimSpace(utterance)
	if now.IsZero() {
		now = m.clock()
	}
	s := m.session(k)

	s.mu.Lock()
	if s.pending != nil {
		s.pending = nil
		metrics.RecordPendingResolved("superseded")
	}
	s.appendTurn(llm.RoleUser, utterance, now)
	s.seq++
	seq := s.seq
	if s.cancel != nil {
		s.cancel()
	}
	callCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	history := s.messages(1)
	s.mu.Unlock()
	defer cancel()

	d, err := m.decide(callCtx, k.UserID, assistant.Request{Utterance: utterance, History: history, Now: now})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq != seq {
		m.logger.Debug("dropping stale result", zap.String("user", k.UserID), zap.Uint64("seq", seq))
		return Reply{}, ErrSuperseded
	}
	s.cancel = nil
	if err != nil {
		return Reply{}, err
	}

	msg := d.Message
	state := StateIdle
	if d.NeedsConfirmation() {
		s.pending = &d
		msg = proposal(d)
		state = StatePending
	}
	s.appendTurn(llm.RoleAssistant, msg, m.clock())
	return Reply{Message: msg, State: state, Decision: &d}, nil
}

func (m *Manager) decide(ctx context.Context, userID string, req assistant.Request) (decision.Decision, error) {
	snap, err := m.stores.ForUser(userID).List(ctx)
	if err != nil {
		return decision.Decision{}, fmt.Errorf("load commitments: %w", err)
	}
	req.Snapshot = snap
	return m.decider.Decide(ctx, req)
}

// Confirm applies the pending action, with any user overrides taking
// precedence over the proposed values. The action stays pending if the
// store rejects it.
func (m *Manager) Confirm(ctx context.Context, k Key, ov Overrides) (Reply, error) {
	return m.confirm(ctx, k, ov, "")
}

func (m *Manager) confirm(ctx context.Context, k Key, ov Overrides, said string) (Reply, error) {
	s := m.session(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return Reply{}, ErrNoPending
	}
	if said != "" {
		s.appendTurn(llm.RoleUser, said, m.clock())
	}

	d := *s.pending
	msg, ev, err := m.apply(ctx, k.UserID, d, ov)
	if err != nil {
		m.logger.Error("apply pending action", zap.String("user", k.UserID), zap.Error(err))
		return Reply{}, err
	}
	s.pending = nil
	s.appendTurn(llm.RoleAssistant, msg, m.clock())
	metrics.RecordPendingResolved("confirmed")

	if ev != nil {
		if err := m.events.Publish(ctx, *ev); err != nil {
			m.logger.Warn("publish event", zap.String("type", ev.Type), zap.Error(err))
		}
	}
	return Reply{Message: msg, State: StateIdle, Decision: &d}, nil
}

func (m *Manager) apply(ctx context.Context, userID string, d decision.Decision, ov Overrides) (string, *events.Event, error) {
	st := m.stores.ForUser(userID)
	now := m.clock()

	switch {
	case d.Add != nil:
		c, err := m.build(*d.Add, ov, now)
		if err != nil {
			return "", nil, err
		}
		if err := st.Add(ctx, c); err != nil {
			return "", nil, fmt.Errorf("add %s: %w", c.Kind(), err)
		}
		ev := &events.Event{Type: events.CommitmentAdded, UserID: userID, Kind: string(c.Kind()), ID: c.CommitmentID(), Title: c.CommitmentTitle(), At: now}
		if t, ok := c.(commitment.Task); ok {
			ev.Priority = string(t.Priority)
		}
		return fmt.Sprintf("Done! Added to your %s.", c.Kind().Plural()), ev, nil

	case d.PriorityChange != nil:
		pc := *d.PriorityChange
		if ov.Priority != nil {
			pc.NewPriority = *ov.Priority
		}
		err := st.SetPriority(ctx, pc.TaskID, pc.NewPriority)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Sprintf("I couldn't find a task called %q anymore.", pc.TargetTitle), nil, nil
		}
		if err != nil {
			return "", nil, fmt.Errorf("set priority: %w", err)
		}
		ev := &events.Event{Type: events.CommitmentPriorityUpdated, UserID: userID, Kind: string(commitment.KindTask), ID: pc.TaskID, Title: pc.TargetTitle, Priority: string(pc.NewPriority), At: now}
		return fmt.Sprintf("Done! %q is now %s priority.", pc.TargetTitle, pc.NewPriority), ev, nil
	}
	return "", nil, fmt.Errorf("pending %s decision has no payload", d.Action)
}

// build turns an accepted proposal into a commitment with a fresh id.
func (m *Manager) build(a decision.Add, ov Overrides, now time.Time) (commitment.Commitment, error) {
	if ov.Title != nil && strings.TrimSpace(*ov.Title) != "" {
		a.Title = strings.TrimSpace(*ov.Title)
	}
	if ov.Priority != nil {
		a.Priority = *ov.Priority
	}
	if ov.Schedule != nil {
		a.Schedule = ov.Schedule
	}
	if ov.Frequency != nil {
		a.Frequency = *ov.Frequency
	}

	id := m.newID()
	switch a.Kind {
	case commitment.KindTask:
		if a.Priority == "" {
			a.Priority = commitment.PriorityMedium
		}
		return commitment.Task{ID: id, Title: a.Title, Priority: a.Priority, DueDate: a.Schedule, CreatedAt: now}, nil
	case commitment.KindRoutine:
		if a.Frequency == "" {
			a.Frequency = commitment.Daily
		}
		return commitment.Routine{ID: id, Title: a.Title, Frequency: a.Frequency, CreatedAt: now}, nil
	case commitment.KindAppointment:
		if a.Schedule == nil {
			return nil, fmt.Errorf("appointment %q has no time", a.Title)
		}
		return commitment.Appointment{ID: id, Title: a.Title, Datetime: *a.Schedule, CreatedAt: now}, nil
	}
	return nil, fmt.Errorf("unknown kind %q", a.Kind)
}

// Cancel discards the pending action.
func (m *Manager) Cancel(_ context.Context, k Key) (Reply, error) {
	return m.cancelPending(k, "")
}

func (m *Manager) cancelPending(k Key, said string) (Reply, error) {
	s := m.session(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return Reply{}, ErrNoPending
	}
	if said != "" {
		s.appendTurn(llm.RoleUser, said, m.clock())
	}
	s.pending = nil
	s.appendTurn(llm.RoleAssistant, cancelled, m.clock())
	metrics.RecordPendingResolved("cancelled")
	return Reply{Message: cancelled, State: StateIdle}, nil
}

var (
	confirmWords = map[string]bool{"yes": true, "y": true, "yep": true, "yeah": true, "sure": true, "ok": true, "okay": true, "confirm": true, "do it": true, "go ahead": true, "yes please": true}
	cancelWords  = map[string]bool{"no": true, "n": true, "nope": true, "cancel": true, "nevermind": true, "never mind": true, "stop": true, "don't": true, "no thanks": true}
)

// Handle routes free text: a yes or no answers a pending action, anything
// else is a new utterance.
func (m *Manager) Handle(ctx context.Context, k Key, text string) (Reply, error) {
	if m.Pending(k) {
		answer := strings.Trim(strings.ToLower(strings.TrimSpace(text)), ".!")
		switch {
		case confirmWords[answer]:
			return m.confirm(ctx, k, Overrides{}, text)
		case cancelWords[answer]:
			return m.cancelPending(k, text)
		}
	}
	return m.Submit(ctx, k, text)
}

// Pending reports whether the session has an action awaiting confirmation.
func (m *Manager) Pending(k Key) bool {
	s := m.session(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (m *Manager) Snapshot(k Key) View {
	s := m.session(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

// Prune forgets sessions idle for longer than maxIdle with no call in
// flight and returns how many were removed.
func (m *Manager) Prune(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, s := range m.sessions {
		if !s.touched.Before(cutoff) {
			continue
		}
		s.mu.Lock()
		busy := s.cancel != nil
		s.mu.Unlock()
		if !busy {
			delete(m.sessions, k)
			n++
		}
	}
	return n
}

// UserMessage is the text shown to the user for an error from Submit or
// Confirm.
func UserMessage(err error) string {
	if errors.Is(err, quota.ErrExceeded) {
		return quotaReached
	}
	if errors.Is(err, ErrNoPending) {
		return "There's nothing waiting for confirmation."
	}
	return genericFailure
}

func proposal(d decision.Decision) string {
	if pc := d.PriorityChange; pc != nil {
		return fmt.Sprintf("I'll change %q to %s priority. Should I go ahead?", pc.TargetTitle, pc.NewPriority)
	}
	a := d.Add
	var detail string
	switch a.Kind {
	case commitment.KindTask:
		detail = fmt.Sprintf(" (%s priority", a.Priority)
		if a.Schedule != nil {
			detail += ", due " + prompt.FormatDate(*a.Schedule)
		}
		detail += ")"
	case commitment.KindRoutine:
		detail = fmt.Sprintf(" (%s)", a.Frequency)
	case commitment.KindAppointment:
		if a.Schedule != nil {
			detail = " on " + prompt.FormatDate(*a.Schedule)
		}
	}
	return fmt.Sprintf("I'll add this %s: %q%s. Should I go ahead?", a.Kind, a.Title, detail)
}
