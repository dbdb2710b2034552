package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris/helpem/internal/commitment"
)

func TestMemoryAddAndList(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)

	require.NoError(t, m.Add(ctx, commitment.Task{ID: "t1", Title: "Submit the report", Priority: commitment.PriorityHigh, CreatedAt: now}))
	require.NoError(t, m.Add(ctx, commitment.Routine{ID: "r1", Title: "Exercise", Frequency: commitment.Daily, CreatedAt: now}))
	require.NoError(t, m.Add(ctx, commitment.Appointment{ID: "a1", Title: "Dentist appointment", Datetime: now.Add(96 * time.Hour), CreatedAt: now}))

	snap, err := m.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, "Submit the report", snap.Tasks[0].Title)
	assert.Equal(t, commitment.Daily, snap.Routines[0].Frequency)
}

func TestMemoryRejectsDuplicateIDWithinKind(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Add(ctx, commitment.Task{ID: "x", Title: "one"}))
	err := m.Add(ctx, commitment.Task{ID: "x", Title: "two"})
	assert.ErrorIs(t, err, ErrDuplicateID)

	// Same id in a different kind's collection is fine.
	assert.NoError(t, m.Add(ctx, commitment.Routine{ID: "x", Title: "three"}))
}

func TestMemorySetCompletedIsMonotonic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Add(ctx, commitment.Task{ID: "t1", Title: "Pay rent"}))

	first := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, m.SetCompleted(ctx, "t1", first))
	require.NoError(t, m.SetCompleted(ctx, "t1", first.Add(time.Hour)))

	snap, _ := m.List(ctx)
	require.NotNil(t, snap.Tasks[0].CompletedAt)
	assert.Equal(t, first, *snap.Tasks[0].CompletedAt)
}

func TestMemoryNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	assert.ErrorIs(t, m.SetCompleted(ctx, "nope", time.Now()), ErrNotFound)
	assert.ErrorIs(t, m.SetPriority(ctx, "nope", commitment.PriorityLow), ErrNotFound)
	assert.ErrorIs(t, m.AppendCompletion(ctx, "nope", time.Now()), ErrNotFound)
}

func TestMemoryListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Add(ctx, commitment.Routine{ID: "r1", Title: "Read"}))
	require.NoError(t, m.AppendCompletion(ctx, "r1", time.Now()))

	snap, _ := m.List(ctx)
	snap.Routines[0].Completions[0].Date = time.Time{}

	again, _ := m.List(ctx)
	assert.False(t, again.Routines[0].Completions[0].Date.IsZero())
}

func TestMemoryProviderIsolatesUsers(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	require.NoError(t, p.ForUser("alice").Add(ctx, commitment.Task{ID: "1", Title: "a"}))

	bob, _ := p.ForUser("bob").List(ctx)
	assert.Zero(t, bob.Len())

	alice, _ := p.ForUser("alice").List(ctx)
	assert.Equal(t, 1, alice.Len())
}
