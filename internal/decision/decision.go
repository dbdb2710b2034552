// Package decision turns raw model output into a ClassificationDecision and
// enforces the classification policy on it.
package decision

import (
	"encoding/json"
	"time"

	"github.com/chris/helpem/internal/commitment"
)

type Action string

const (
	ActionAdd            Action = "add"
	ActionUpdatePriority Action = "update_priority"
	ActionRespond        Action = "respond"
	ActionError          Action = "error"
)

// Decision is a closed union: exactly one of Add, PriorityChange or Message
// is meaningful, selected by Action.
type Decision struct {
	Action         Action
	Add            *Add
	PriorityChange *PriorityChange
	Message        string
}

type Add struct {
	Kind       commitment.Kind
	Title      string
	Confidence float64
	Schedule   *time.Time
	Frequency  commitment.Frequency
	Priority   commitment.Priority
}

type PriorityChange struct {
	TargetTitle string
	NewPriority commitment.Priority
	// TaskID is filled in once the target is resolved against a snapshot.
	TaskID string
}

func Respond(message string) Decision {
	return Decision{Action: ActionRespond, Message: message}
}

func Error(message string) Decision {
	return Decision{Action: ActionError, Message: message}
}

func NewAdd(a Add) Decision {
	return Decision{Action: ActionAdd, Add: &a}
}

func NewPriorityChange(p PriorityChange) Decision {
	return Decision{Action: ActionUpdatePriority, PriorityChange: &p}
}

// NeedsConfirmation reports whether the decision would mutate the store.
func (d Decision) NeedsConfirmation() bool {
	return d.Action == ActionAdd || d.Action == ActionUpdatePriority
}

// Kind is the commitment kind an Add targets, or "" for other actions.
func (d Decision) Kind() commitment.Kind {
	switch {
	case d.Add != nil:
		return d.Add.Kind
	case d.PriorityChange != nil:
		return commitment.KindTask
	}
	return ""
}

type wireDecision struct {
	Type        Action               `json:"type"`
	Kind        commitment.Kind      `json:"kind,omitempty"`
	Title       string               `json:"title,omitempty"`
	Confidence  *float64             `json:"confidence,omitempty"`
	Schedule    *time.Time           `json:"schedule,omitempty"`
	Frequency   commitment.Frequency `json:"frequency,omitempty"`
	Priority    commitment.Priority  `json:"priority,omitempty"`
	TargetTitle string               `json:"targetTitle,omitempty"`
	NewPriority commitment.Priority  `json:"newPriority,omitempty"`
	Message     string               `json:"message,omitempty"`
}

// MarshalJSON emits the flat client-facing shape, tagged by "type".
func (d Decision) MarshalJSON() ([]byte, error) {
	w := wireDecision{Type: d.Action, Message: d.Message}
	if a := d.Add; a != nil {
		w.Kind = a.Kind
		w.Title = a.Title
		w.Confidence = &a.Confidence
		w.Schedule = a.Schedule
		w.Frequency = a.Frequency
		w.Priority = a.Priority
	}
	if p := d.PriorityChange; p != nil {
		w.TargetTitle = p.TargetTitle
		w.NewPriority = p.NewPriority
	}
	return json.Marshal(w)
}
