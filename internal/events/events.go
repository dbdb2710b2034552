// Package events announces committed changes to other services.
package events

import (
	"context"
	"sync"
	"time"
)

const (
	CommitmentAdded           = "commitment.added"
	CommitmentPriorityUpdated = "commitment.priority_updated"
	TaskCompleted             = "task.completed"
	RoutineCompleted          = "routine.completed"
)

type Event struct {
	Type     string    `json:"type"`
	UserID   string    `json:"userId"`
	Kind     string    `json:"kind"`
	ID       string    `json:"id"`
	Title    string    `json:"title,omitempty"`
	Priority string    `json:"priority,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher delivers events. Delivery is best effort; a failed publish
// never undoes the change it describes.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
