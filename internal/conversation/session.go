// Package conversation owns per-session chat state: the bounded history and
// the single pending action that waits for the user's confirmation.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/chris/helpem/internal/commitment"
	"github.com/chris/helpem/internal/decision"
	"github.com/chris/helpem/internal/llm"
)

const (
	// MaxHistory is how many turns a session retains, oldest evicted first.
	MaxHistory = 50
)

type State string

const (
	StateIdle    State = "idle"
	StatePending State = "pending_confirmation"
)

type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Key identifies a session. One user may hold several, one per device.
type Key struct {
	UserID    string
	SessionID string
}

// Overrides are values the user changed on a pending action before
// confirming it. Set fields replace what the classifier proposed.
type Overrides struct {
	Title     *string               `json:"title,omitempty"`
	Priority  *commitment.Priority  `json:"priority,omitempty"`
	Schedule  *time.Time            `json:"schedule,omitempty"`
	Frequency *commitment.Frequency `json:"frequency,omitempty"`
}

type Reply struct {
	Message  string             `json:"message"`
	State    State              `json:"state"`
	Decision *decision.Decision `json:"decision,omitempty"`
}

// View is a read-only copy of a session.
type View struct {
	State   State              `json:"state"`
	History []Turn             `json:"history"`
	Pending *decision.Decision `json:"pending,omitempty"`
}

type session struct {
	mu sync.Mutex

	history []Turn
	pending *decision.Decision

	// seq increases with every submitted utterance; a result is applied
	// only if its seq is still the latest.
	seq    uint64
	cancel context.CancelFunc

	// touched is guarded by Manager.mu.
	touched time.Time
}

func (s *session) state() State {
	if s.pending != nil {
		return StatePending
	}
	return StateIdle
}

func (s *session) appendTurn(role, content string, at time.Time) {
	s.history = append(s.history, Turn{Role: role, Content: content, At: at})
	if n := len(s.history) - MaxHistory; n > 0 {
		s.history = append(s.history[:0:0], s.history[n:]...)
	}
}

// messages converts the history, minus the last skip turns, for the model.
func (s *session) messages(skip int) []llm.Message {
	turns := s.history[:max(len(s.history)-skip, 0)]
	out := make([]llm.Message, len(turns))
	for i, t := range turns {
		out[i] = llm.Message{Role: t.Role, Content: t.Content}
	}
	return out
}

func (s *session) view() View {
	v := View{State: s.state(), History: append([]Turn(nil), s.history...)}
	if s.pending != nil {
		d := *s.pending
		v.Pending = &d
	}
	return v
}
