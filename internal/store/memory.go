package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/chris/helpem/internal/commitment"
)

// Memory is a mutex-guarded Store. Insertion order is preserved in List.
type Memory struct {
	mu           sync.RWMutex
	tasks        []commitment.Task
	routines     []commitment.Routine
	appointments []commitment.Appointment
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) List(_ context.Context) (commitment.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := commitment.Snapshot{
		Tasks:        slices.Clone(m.tasks),
		Routines:     make([]commitment.Routine, len(m.routines)),
		Appointments: slices.Clone(m.appointments),
	}
	for i, r := range m.routines {
		r.Completions = slices.Clone(r.Completions)
		snap.Routines[i] = r
	}
	return snap, nil
}

func (m *Memory) Add(_ context.Context, c commitment.Commitment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.exists(c.Kind(), c.CommitmentID()) {
		return fmt.Errorf("%s %s: %w", c.Kind(), c.CommitmentID(), ErrDuplicateID)
	}
	switch v := c.(type) {
	case commitment.Task:
		m.tasks = append(m.tasks, v)
	case commitment.Routine:
		v.Completions = slices.Clone(v.Completions)
		m.routines = append(m.routines, v)
	case commitment.Appointment:
		m.appointments = append(m.appointments, v)
	}
	return nil
}

func (m *Memory) SetCompleted(_ context.Context, taskID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := slices.IndexFunc(m.tasks, func(t commitment.Task) bool { return t.ID == taskID })
	if i < 0 {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if m.tasks[i].CompletedAt == nil {
		m.tasks[i].CompletedAt = &at
	}
	return nil
}

func (m *Memory) SetPriority(_ context.Context, taskID string, p commitment.Priority) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := slices.IndexFunc(m.tasks, func(t commitment.Task) bool { return t.ID == taskID })
	if i < 0 {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	m.tasks[i].Priority = p
	return nil
}

func (m *Memory) AppendCompletion(_ context.Context, routineID string, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := slices.IndexFunc(m.routines, func(r commitment.Routine) bool { return r.ID == routineID })
	if i < 0 {
		return fmt.Errorf("routine %s: %w", routineID, ErrNotFound)
	}
	m.routines[i].Completions = append(m.routines[i].Completions, commitment.Completion{Date: date})
	return nil
}

func (m *Memory) exists(k commitment.Kind, id string) bool {
	switch k {
	case commitment.KindTask:
		return slices.ContainsFunc(m.tasks, func(t commitment.Task) bool { return t.ID == id })
	case commitment.KindRoutine:
		return slices.ContainsFunc(m.routines, func(r commitment.Routine) bool { return r.ID == id })
	case commitment.KindAppointment:
		return slices.ContainsFunc(m.appointments, func(a commitment.Appointment) bool { return a.ID == id })
	}
	return false
}

// MemoryProvider keeps one Memory store per user for the life of the process.
type MemoryProvider struct {
	mu     sync.Mutex
	stores map[string]*Memory
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{stores: make(map[string]*Memory)}
}

func (p *MemoryProvider) ForUser(userID string) Store {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stores[userID]
	if !ok {
		s = NewMemory()
		p.stores[userID] = s
	}
	return s
}
