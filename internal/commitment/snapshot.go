package commitment

import (
	"sort"
	"strings"
	"time"
)

// Snapshot is the full set of a user's commitments at one moment.
type Snapshot struct {
	Tasks        []Task        `json:"tasks"`
	Routines     []Routine     `json:"routines"`
	Appointments []Appointment `json:"appointments"`
}

// FindTask resolves a title the user spoke to an existing task. An exact
// case-insensitive match wins; otherwise a single task whose title contains
// the query (or is contained by it) is accepted. Ambiguous or missing
// matches return false.
func (s Snapshot) FindTask(title string) (Task, bool) {
	q := normalizeTitle(title)
	if q == "" {
		return Task{}, false
	}
	for _, t := range s.Tasks {
		if normalizeTitle(t.Title) == q {
			return t, true
		}
	}

	var match Task
	n := 0
	for _, t := range s.Tasks {
		tt := normalizeTitle(t.Title)
		if strings.Contains(tt, q) || strings.Contains(q, tt) {
			match = t
			n++
		}
	}
	return match, n == 1
}

// OpenTasks returns tasks that have not been completed.
func (s Snapshot) OpenTasks() []Task {
	var out []Task
	for _, t := range s.Tasks {
		if !t.Completed() {
			out = append(out, t)
		}
	}
	return out
}

// UpcomingAppointments returns appointments at or after now, soonest first.
func (s Snapshot) UpcomingAppointments(now time.Time) []Appointment {
	var out []Appointment
	for _, a := range s.Appointments {
		if !a.Datetime.Before(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Datetime.Before(out[j].Datetime) })
	return out
}

// Titles returns the titles of every commitment of the given kind.
func (s Snapshot) Titles(k Kind) []string {
	var out []string
	switch k {
	case KindTask:
		for _, t := range s.Tasks {
			out = append(out, t.Title)
		}
	case KindRoutine:
		for _, r := range s.Routines {
			out = append(out, r.Title)
		}
	case KindAppointment:
		for _, a := range s.Appointments {
			out = append(out, a.Title)
		}
	}
	return out
}

// Len is the total number of commitments across all kinds.
func (s Snapshot) Len() int {
	return len(s.Tasks) + len(s.Routines) + len(s.Appointments)
}

func normalizeTitle(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Trim(s, ".!?\"'")
}
