package conversation

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/chris/helpem/internal/assistant"
	"github.com/chris/helpem/internal/commitment"
	"github.com/chris/helpem/internal/decision"
	"github.com/chris/helpem/internal/events"
	"github.com/chris/helpem/internal/llm"
	"github.com/chris/helpem/internal/llm/llmtest"
	"github.com/chris/helpem/internal/oracle"
	"github.com/chris/helpem/internal/quota"
	"github.com/chris/helpem/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	monday9am = time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	alice     = Key{UserID: "alice", SessionID: "phone"}
)

const (
	addMilk     = `{"action":"add","type":"task","title":"Buy milk","priority":"medium"}`
	sayHi       = `{"action":"respond","message":"Hi there."}`
	raiseReport = `{"action":"update_priority","targetTitle":"report","newPriority":"high"}`
)

type harness struct {
	m      *Manager
	client *llmtest.Client
	stores *store.MemoryProvider
	events *events.Recorder
	now    time.Time
}

func newHarness(t *testing.T, client *llmtest.Client, gate quota.Gate) *harness {
	t.Helper()
	if gate == nil {
		gate = quota.NewMemory(quota.DefaultLimitUSD, nil)
	}
	h := &harness{client: client, stores: store.NewMemoryProvider(), events: &events.Recorder{}, now: monday9am}
	var ids atomic.Int64
	pipeline := assistant.New(oracle.New(client, gate), assistant.WithLocation(time.UTC))
	h.m = NewManager(pipeline, h.stores,
		WithEvents(h.events),
		WithClock(func() time.Time { return h.now }),
		WithLocation(time.UTC),
		WithIDs(func() string { return fmt.Sprintf("id-%d", ids.Add(1)) }),
	)
	return h
}

func (h *harness) snapshot(t *testing.T, userID string) commitment.Snapshot {
	t.Helper()
	snap, err := h.stores.ForUser(userID).List(context.Background())
	require.NoError(t, err)
	return snap
}

func TestAppendTurnEvictsOldest(t *testing.T) {
	s := &session{}
	for i := 0; i < 51; i++ {
		s.appendTurn(llm.RoleUser, fmt.Sprintf("turn %d", i), monday9am)
	}
	require.Len(t, s.history, MaxHistory)
	assert.Equal(t, "turn 1", s.history[0].Content)
	assert.Equal(t, "turn 50", s.history[49].Content)
}

func TestHistoryBoundAndForwardWindow(t *testing.T) {
	h := newHarness(t, llmtest.New(sayHi), nil)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		_, err := h.m.Submit(ctx, alice, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	v := h.m.Snapshot(alice)
	require.Len(t, v.History, MaxHistory)
	assert.Equal(t, "message 5", v.History[0].Content)

	calls := h.client.Calls()
	last := calls[len(calls)-1]
	assert.Len(t, last.Messages, oracle.HistoryWindow+1)
	assert.Equal(t, "message 29", last.Messages[len(last.Messages)-1].Content)
}

func TestAddWaitsForConfirmation(t *testing.T) {
	h := newHarness(t, llmtest.New(addMilk), nil)
	ctx := context.Background()

	reply, err := h.m.Submit(ctx, alice, "buy milk")
	require.NoError(t, err)
	assert.Equal(t, StatePending, reply.State)
	assert.Equal(t, `I'll add this task: "Buy milk" (medium priority). Should I go ahead?`, reply.Message)
	assert.Empty(t, h.snapshot(t, "alice").Tasks, "nothing is stored before confirmation")
	assert.Empty(t, h.events.Events())

	reply, err = h.m.Confirm(ctx, alice, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "Done! Added to your tasks.", reply.Message)
	assert.Equal(t, StateIdle, reply.State)

	tasks := h.snapshot(t, "alice").Tasks
	require.Len(t, tasks, 1)
	assert.Equal(t, commitment.Task{ID: "id-1", Title: "Buy milk", Priority: commitment.PriorityMedium, CreatedAt: monday9am}, tasks[0])

	evs := h.events.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.CommitmentAdded, evs[0].Type)
	assert.Equal(t, "id-1", evs[0].ID)

	_, err = h.m.Confirm(ctx, alice, Overrides{})
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestUserOverrideWins(t *testing.T) {
	h := newHarness(t, llmtest.New(addMilk), nil)
	ctx := context.Background()

	_, err := h.m.Submit(ctx, alice, "buy milk")
	require.NoError(t, err)

	high := commitment.PriorityHigh
	_, err = h.m.Confirm(ctx, alice, Overrides{Priority: &high})
	require.NoError(t, err)

	tasks := h.snapshot(t, "alice").Tasks
	require.Len(t, tasks, 1)
	assert.Equal(t, commitment.PriorityHigh, tasks[0].Priority)
}

func TestNewUtteranceCancelsPending(t *testing.T) {
	h := newHarness(t, llmtest.New(addMilk, sayHi), nil)
	ctx := context.Background()

	_, err := h.m.Submit(ctx, alice, "buy milk")
	require.NoError(t, err)
	require.True(t, h.m.Pending(alice))

	reply, err := h.m.Submit(ctx, alice, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there.", reply.Message)
	assert.False(t, h.m.Pending(alice))

	_, err = h.m.Confirm(ctx, alice, Overrides{})
	assert.ErrorIs(t, err, ErrNoPending)
	assert.Empty(t, h.snapshot(t, "alice").Tasks)
}

func TestStaleResultIsNeverApplied(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	client := &llmtest.Client{Reply: func(_ context.Context, _ llmtest.Call) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return `{"action":"add","type":"task","title":"Stale task"}`, nil
		}
		return sayHi, nil
	}}
	h := newHarness(t, client, nil)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := h.m.Submit(ctx, alice, "add stale task")
		errc <- err
	}()
	<-started

	reply, err := h.m.Submit(ctx, alice, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there.", reply.Message)

	close(release)
	assert.ErrorIs(t, <-errc, ErrSuperseded)
	assert.False(t, h.m.Pending(alice))

	_, err = h.m.Confirm(ctx, alice, Overrides{})
	assert.ErrorIs(t, err, ErrNoPending)
	assert.Empty(t, h.snapshot(t, "alice").Tasks)
}

func TestNewUtteranceAbandonsInFlightCall(t *testing.T) {
	started := make(chan struct{})
	var calls atomic.Int32
	client := &llmtest.Client{Reply: func(ctx context.Context, _ llmtest.Call) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		}
		return sayHi, nil
	}}
	h := newHarness(t, client, nil)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := h.m.Submit(ctx, alice, "first")
		errc <- err
	}()
	<-started

	_, err := h.m.Submit(ctx, alice, "second")
	require.NoError(t, err)
	assert.ErrorIs(t, <-errc, ErrSuperseded)

	v := h.m.Snapshot(alice)
	require.Len(t, v.History, 3)
	assert.Equal(t, "Hi there.", v.History[2].Content)
}

func TestOracleTimeoutLeavesOnlyUserTurn(t *testing.T) {
	h := newHarness(t, &llmtest.Client{Err: context.DeadlineExceeded}, nil)

	_, err := h.m.Submit(context.Background(), alice, "buy milk")
	require.ErrorIs(t, err, oracle.ErrUnavailable)
	assert.Equal(t, "Sorry, something went wrong. Please try again.", UserMessage(err))

	v := h.m.Snapshot(alice)
	assert.Equal(t, StateIdle, v.State)
	assert.Nil(t, v.Pending)
	require.Len(t, v.History, 1)
	assert.Equal(t, llm.RoleUser, v.History[0].Role)
	assert.Equal(t, "buy milk", v.History[0].Content)
}

func TestQuotaExceeded(t *testing.T) {
	client := llmtest.New(sayHi)
	h := newHarness(t, client, quota.NewMemory(0, nil))

	_, err := h.m.Submit(context.Background(), alice, "hello")
	require.ErrorIs(t, err, quota.ErrExceeded)
	assert.Contains(t, UserMessage(err), "usage limit")
	assert.Zero(t, client.CallCount())
}

func TestUpdatePriority(t *testing.T) {
	h := newHarness(t, llmtest.New(raiseReport), nil)
	ctx := context.Background()
	require.NoError(t, h.stores.ForUser("alice").Add(ctx, commitment.Task{ID: "t1", Title: "Submit the report", Priority: commitment.PriorityMedium}))

	reply, err := h.m.Submit(ctx, alice, "the report is urgent now")
	require.NoError(t, err)
	assert.Equal(t, `I'll change "Submit the report" to high priority. Should I go ahead?`, reply.Message)

	reply, err = h.m.Confirm(ctx, alice, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, `Done! "Submit the report" is now high priority.`, reply.Message)
	assert.Equal(t, commitment.PriorityHigh, h.snapshot(t, "alice").Tasks[0].Priority)
	assert.Equal(t, events.CommitmentPriorityUpdated, h.events.Events()[0].Type)
}

func TestUpdatePriorityUnknownTarget(t *testing.T) {
	h := newHarness(t, llmtest.New(raiseReport), nil)

	reply, err := h.m.Submit(context.Background(), alice, "make the report urgent")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, reply.State)
	assert.Contains(t, reply.Message, `couldn't find a task called "report"`)
	assert.False(t, h.m.Pending(alice))
}

func TestHandleYesAndNo(t *testing.T) {
	h := newHarness(t, llmtest.New(addMilk, addMilk, sayHi), nil)
	ctx := context.Background()

	_, err := h.m.Handle(ctx, alice, "buy milk")
	require.NoError(t, err)
	reply, err := h.m.Handle(ctx, alice, "Yes!")
	require.NoError(t, err)
	assert.Equal(t, "Done! Added to your tasks.", reply.Message)

	_, err = h.m.Handle(ctx, alice, "buy milk")
	require.NoError(t, err)
	reply, err = h.m.Handle(ctx, alice, "nevermind")
	require.NoError(t, err)
	assert.Equal(t, "No problem, cancelled.", reply.Message)
	assert.Len(t, h.snapshot(t, "alice").Tasks, 1)

	// With nothing pending, "yes" is just another message.
	reply, err = h.m.Handle(ctx, alice, "yes")
	require.NoError(t, err)
	assert.Equal(t, "Hi there.", reply.Message)
	assert.Equal(t, 3, h.client.CallCount())
}

func TestCancel(t *testing.T) {
	h := newHarness(t, llmtest.New(addMilk), nil)
	ctx := context.Background()

	_, err := h.m.Cancel(ctx, alice)
	assert.ErrorIs(t, err, ErrNoPending)

	_, err = h.m.Submit(ctx, alice, "buy milk")
	require.NoError(t, err)
	reply, err := h.m.Cancel(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "No problem, cancelled.", reply.Message)
	assert.Empty(t, h.snapshot(t, "alice").Tasks)
}

func TestSessionsAreIndependent(t *testing.T) {
	h := newHarness(t, llmtest.New(addMilk), nil)
	ctx := context.Background()
	bob := Key{UserID: "bob", SessionID: "phone"}

	_, err := h.m.Submit(ctx, alice, "buy milk")
	require.NoError(t, err)
	assert.False(t, h.m.Pending(bob))
	assert.False(t, h.m.Pending(Key{UserID: "alice", SessionID: "laptop"}))

	_, err = h.m.Confirm(ctx, alice, Overrides{})
	require.NoError(t, err)
	assert.Empty(t, h.snapshot(t, "bob").Tasks)
}

func TestPrune(t *testing.T) {
	h := newHarness(t, llmtest.New(sayHi), nil)
	ctx := context.Background()

	_, err := h.m.Submit(ctx, alice, "hello")
	require.NoError(t, err)
	h.now = h.now.Add(23 * time.Hour)
	_, err = h.m.Submit(ctx, Key{UserID: "bob"}, "hello")
	require.NoError(t, err)

	h.now = h.now.Add(2 * time.Hour)
	assert.Equal(t, 1, h.m.Prune(24*time.Hour))
	assert.Empty(t, h.m.Snapshot(alice).History, "alice's session was forgotten")
}

func TestProposalMessages(t *testing.T) {
	at := time.Date(2026, 1, 16, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, `I'll add this appointment: "Dentist appointment" on Friday, January 16th at 3:00 PM. Should I go ahead?`,
		proposal(decision.NewAdd(decision.Add{Kind: commitment.KindAppointment, Title: "Dentist appointment", Schedule: &at})))
	assert.Equal(t, `I'll add this routine: "Exercise" (daily). Should I go ahead?`,
		proposal(decision.NewAdd(decision.Add{Kind: commitment.KindRoutine, Title: "Exercise", Frequency: commitment.Daily})))
	assert.Equal(t, `I'll add this task: "File taxes" (high priority, due Friday, January 16th at 3:00 PM). Should I go ahead?`,
		proposal(decision.NewAdd(decision.Add{Kind: commitment.KindTask, Title: "File taxes", Priority: commitment.PriorityHigh, Schedule: &at})))
}
