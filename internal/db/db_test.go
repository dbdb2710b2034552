package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chris/helpem/internal/commitment"
	"github.com/chris/helpem/internal/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

var base = time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)

// --- Tasks ---

func TestAddAndListTasks(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t).ForUser("u1")

	due := base.Add(24 * time.Hour)
	if err := s.Add(ctx, commitment.Task{ID: "t1", Title: "Submit the report", Priority: commitment.PriorityHigh, DueDate: &due, CreatedAt: base}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(ctx, commitment.Task{ID: "t2", Title: "Buy milk", Priority: commitment.PriorityMedium, CreatedAt: base.Add(time.Minute)}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	snap, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snap.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(snap.Tasks))
	}
	got := snap.Tasks[0]
	if got.Title != "Submit the report" || got.Priority != commitment.PriorityHigh {
		t.Errorf("unexpected first task: %+v", got)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("due date = %v, want %v", got.DueDate, due)
	}
	if snap.Tasks[1].DueDate != nil {
		t.Errorf("expected no due date on second task")
	}
}

func TestAddDuplicateTask(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t).ForUser("u1")

	s.Add(ctx, commitment.Task{ID: "t1", Title: "a", Priority: commitment.PriorityLow, CreatedAt: base})
	err := s.Add(ctx, commitment.Task{ID: "t1", Title: "b", Priority: commitment.PriorityLow, CreatedAt: base})
	if !errors.Is(err, store.ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
}

func TestSetCompletedKeepsFirstTimestamp(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t).ForUser("u1")
	s.Add(ctx, commitment.Task{ID: "t1", Title: "Pay rent", Priority: commitment.PriorityMedium, CreatedAt: base})

	first := base.Add(time.Hour)
	if err := s.SetCompleted(ctx, "t1", first); err != nil {
		t.Fatalf("SetCompleted: %v", err)
	}
	if err := s.SetCompleted(ctx, "t1", first.Add(time.Hour)); err != nil {
		t.Fatalf("SetCompleted again: %v", err)
	}

	snap, _ := s.List(ctx)
	if snap.Tasks[0].CompletedAt == nil || !snap.Tasks[0].CompletedAt.Equal(first) {
		t.Errorf("completed_at = %v, want %v", snap.Tasks[0].CompletedAt, first)
	}
}

func TestSetPriority(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t).ForUser("u1")
	s.Add(ctx, commitment.Task{ID: "t1", Title: "Call mom", Priority: commitment.PriorityMedium, CreatedAt: base})

	if err := s.SetPriority(ctx, "t1", commitment.PriorityHigh); err != nil {
		t.Fatalf("SetPriority: %v", err)
	}
	snap, _ := s.List(ctx)
	if snap.Tasks[0].Priority != commitment.PriorityHigh {
		t.Errorf("priority = %q, want high", snap.Tasks[0].Priority)
	}

	if err := s.SetPriority(ctx, "missing", commitment.PriorityLow); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// --- Routines ---

func TestRoutineCompletions(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t).ForUser("u1")

	if err := s.Add(ctx, commitment.Routine{ID: "r1", Title: "Exercise", Frequency: commitment.Daily, CreatedAt: base}); err != nil {
		t.Fatalf("Add routine: %v", err)
	}
	if err := s.Add(ctx, commitment.Routine{ID: "r2", Title: "Water plants", Frequency: commitment.Weekly, CreatedAt: base.Add(time.Second)}); err != nil {
		t.Fatalf("Add routine: %v", err)
	}
	for _, d := range []time.Time{base, base.Add(2 * time.Hour), base.Add(24 * time.Hour)} {
		if err := s.AppendCompletion(ctx, "r1", d); err != nil {
			t.Fatalf("AppendCompletion: %v", err)
		}
	}

	snap, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snap.Routines) != 2 {
		t.Fatalf("expected 2 routines, got %d", len(snap.Routines))
	}
	r := snap.Routines[0]
	if len(r.Completions) != 3 {
		t.Errorf("expected 3 completions, got %d", len(r.Completions))
	}
	if !r.CompletedOn(base) {
		t.Errorf("expected routine completed on %v", base)
	}
	if len(snap.Routines[1].Completions) != 0 {
		t.Errorf("expected no completions on second routine")
	}
	if snap.Routines[1].Frequency != commitment.Weekly {
		t.Errorf("frequency = %q, want weekly", snap.Routines[1].Frequency)
	}
}

func TestAppendCompletionUnknownRoutine(t *testing.T) {
	s := openTestDB(t).ForUser("u1")
	err := s.AppendCompletion(context.Background(), "nope", base)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// --- Appointments ---

func TestAppointmentsOrderedByTime(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t).ForUser("u1")

	s.Add(ctx, commitment.Appointment{ID: "a1", Title: "Later", Datetime: base.Add(48 * time.Hour), CreatedAt: base})
	s.Add(ctx, commitment.Appointment{ID: "a2", Title: "Sooner", Datetime: base.Add(2 * time.Hour), CreatedAt: base})

	snap, _ := s.List(ctx)
	if len(snap.Appointments) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(snap.Appointments))
	}
	if snap.Appointments[0].Title != "Sooner" {
		t.Errorf("expected Sooner first, got %q", snap.Appointments[0].Title)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	d.ForUser("alice").Add(ctx, commitment.Task{ID: "t1", Title: "alice's", Priority: commitment.PriorityLow, CreatedAt: base})

	snap, _ := d.ForUser("bob").List(ctx)
	if snap.Len() != 0 {
		t.Errorf("bob should see nothing, got %d", snap.Len())
	}
	if err := d.ForUser("bob").SetPriority(ctx, "t1", commitment.PriorityHigh); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("bob must not update alice's task, got %v", err)
	}
}

// --- Notes ---

func TestGetSetNote(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	val, err := d.GetNote(ctx, "missing")
	if err != nil {
		t.Fatalf("GetNote(missing): %v", err)
	}
	if val != "" {
		t.Errorf("expected empty for missing key, got %q", val)
	}

	if err := d.SetNote(ctx, "discord_user_id", "123"); err != nil {
		t.Fatalf("SetNote: %v", err)
	}
	if err := d.SetNote(ctx, "discord_user_id", "456"); err != nil {
		t.Fatalf("SetNote(upsert): %v", err)
	}
	val, _ = d.GetNote(ctx, "discord_user_id")
	if val != "456" {
		t.Errorf("expected %q after upsert, got %q", "456", val)
	}
}

// --- Reminders ---

func TestClaimReminderOnce(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	ok, err := d.ClaimReminder(ctx, "a1", base)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = d.ClaimReminder(ctx, "a1", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Error("second claim should report already fired")
	}
}
