package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderKeepsOrder(t *testing.T) {
	var r Recorder
	ctx := context.Background()
	require.NoError(t, r.Publish(ctx, Event{Type: CommitmentAdded, ID: "a"}))
	require.NoError(t, r.Publish(ctx, Event{Type: TaskCompleted, ID: "a"}))

	got := r.Events()
	require.Len(t, got, 2)
	assert.Equal(t, CommitmentAdded, got[0].Type)
	assert.Equal(t, TaskCompleted, got[1].Type)

	got[0].ID = "mutated"
	assert.Equal(t, "a", r.Events()[0].ID)
}

func TestRecorderConcurrentPublish(t *testing.T) {
	var r Recorder
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Publish(context.Background(), Event{Type: RoutineCompleted})
		}()
	}
	wg.Wait()
	assert.Len(t, r.Events(), 20)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{Type: CommitmentAdded}))
}

func TestPublishing(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	msg, err := publishing(Event{
		Type:     CommitmentPriorityUpdated,
		UserID:   "owner",
		Kind:     "task",
		ID:       "t1",
		Priority: "high",
		At:       at,
	})
	require.NoError(t, err)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, at, msg.Timestamp)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, "owner", body["userId"])
	assert.Equal(t, "high", body["priority"])
	assert.NotContains(t, body, "title")
}
