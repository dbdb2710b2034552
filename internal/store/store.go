// Package store defines the keyed collection that confirmed decisions are
// applied to, plus an in-memory implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/chris/helpem/internal/commitment"
)

var (
	ErrNotFound    = errors.New("commitment not found")
	ErrDuplicateID = errors.New("commitment id already exists")
)

// Store is one user's commitment collection. Implementations need no
// cross-entity transactions.
type Store interface {
	List(ctx context.Context) (commitment.Snapshot, error)
	Add(ctx context.Context, c commitment.Commitment) error
	// SetCompleted marks a task done. Completion is monotonic: calling it on
	// an already completed task keeps the original timestamp.
	SetCompleted(ctx context.Context, taskID string, at time.Time) error
	SetPriority(ctx context.Context, taskID string, p commitment.Priority) error
	AppendCompletion(ctx context.Context, routineID string, date time.Time) error
}

// Provider hands out the store that belongs to an authenticated identity.
type Provider interface {
	ForUser(userID string) Store
}
