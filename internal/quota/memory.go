package quota

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Gate. The counter resets when the UTC
// calendar month changes.
type Memory struct {
	mu       sync.Mutex
	limit    int64
	clock    func() time.Time
	period   string
	used     int64
	requests int64
}

func NewMemory(limitUSD float64, clock func() time.Time) *Memory {
	if clock == nil {
		clock = time.Now
	}
	return &Memory{limit: fromUSD(limitUSD), clock: clock}
}

func (m *Memory) rollover() {
	if p := period(m.clock()); p != m.period {
		m.period = p
		m.used = 0
		m.requests = 0
	}
}

func (m *Memory) Check(_ context.Context) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	return status(m.used, m.limit), nil
}

func (m *Memory) Record(_ context.Context, u Usage) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()

	if m.used >= m.limit {
		return status(m.used, m.limit), ErrExceeded
	}
	m.used += u.Cost()
	m.requests++
	return status(m.used, m.limit), nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	return stats(m.clock(), m.used, m.limit, m.requests), nil
}
