// Package commitment defines the three kinds of things a user can commit to:
// one-time tasks, recurring routines, and time-fixed appointments.
package commitment

import (
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindTask        Kind = "task"
	KindRoutine     Kind = "routine"
	KindAppointment Kind = "appointment"
)

// ParseKind accepts the canonical names plus the aliases the language model
// tends to use ("todo", "habit", "event", "meeting").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "task", "todo", "to-do":
		return KindTask, nil
	case "routine", "habit":
		return KindRoutine, nil
	case "appointment", "event", "meeting":
		return KindAppointment, nil
	}
	return "", fmt.Errorf("unknown commitment kind %q", s)
}

// Plural returns the name used when talking about a whole category.
func (k Kind) Plural() string {
	return string(k) + "s"
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

type Frequency string

const (
	Daily  Frequency = "daily"
	Weekly Frequency = "weekly"
)

func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case Daily, Weekly:
		return f, nil
	}
	return "", fmt.Errorf("unknown frequency %q", s)
}

// Commitment is implemented by Task, Routine and Appointment only.
type Commitment interface {
	Kind() Kind
	CommitmentID() string
	CommitmentTitle() string
	sealed()
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (t Task) Kind() Kind              { return KindTask }
func (t Task) CommitmentID() string    { return t.ID }
func (t Task) CommitmentTitle() string { return t.Title }
func (Task) sealed()                   {}

func (t Task) Completed() bool { return t.CompletedAt != nil }

// DueOn reports whether the task is due on the same calendar day as day.
func (t Task) DueOn(day time.Time) bool {
	return t.DueDate != nil && SameDay(day, *t.DueDate)
}

type Completion struct {
	Date time.Time `json:"date"`
}

type Routine struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Frequency   Frequency    `json:"frequency"`
	CreatedAt   time.Time    `json:"createdAt"`
	Completions []Completion `json:"completions"`
}

func (r Routine) Kind() Kind              { return KindRoutine }
func (r Routine) CommitmentID() string    { return r.ID }
func (r Routine) CommitmentTitle() string { return r.Title }
func (Routine) sealed()                   {}

// CompletedOn reports whether any completion falls on day's calendar date.
// Several completions on one day count once.
func (r Routine) CompletedOn(day time.Time) bool {
	for _, c := range r.Completions {
		if SameDay(day, c.Date) {
			return true
		}
	}
	return false
}

// CompletionDays returns the number of distinct calendar days, in loc, with
// at least one completion.
func (r Routine) CompletionDays(loc *time.Location) int {
	seen := make(map[string]struct{}, len(r.Completions))
	for _, c := range r.Completions {
		seen[c.Date.In(loc).Format(time.DateOnly)] = struct{}{}
	}
	return len(seen)
}

type Appointment struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Datetime  time.Time `json:"datetime"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a Appointment) Kind() Kind              { return KindAppointment }
func (a Appointment) CommitmentID() string    { return a.ID }
func (a Appointment) CommitmentTitle() string { return a.Title }
func (Appointment) sealed()                   {}

// SameDay compares calendar dates (midnight to midnight) in ref's location.
func SameDay(ref, t time.Time) bool {
	t = t.In(ref.Location())
	y1, m1, d1 := ref.Date()
	y2, m2, d2 := t.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
