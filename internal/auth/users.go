package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type User struct {
	ID          string    `json:"id"`
	AppleUserID string    `json:"appleUserId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UserRepository finds or creates the user behind an Apple account.
type UserRepository interface {
	// UpsertApple returns the user and whether this call created it.
	UpsertApple(ctx context.Context, appleUserID string) (User, bool, error)
}

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	apple_user_id TEXT NOT NULL UNIQUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type PostgresUsers struct {
	pool *pgxpool.Pool
}

func NewPostgresUsers(ctx context.Context, url string) (*PostgresUsers, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, usersSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating users table: %w", err)
	}
	return &PostgresUsers{pool: pool}, nil
}

func (p *PostgresUsers) UpsertApple(ctx context.Context, appleUserID string) (User, bool, error) {
	// xmax is zero only for a row this statement inserted.
	const q = `
		INSERT INTO users (apple_user_id) VALUES ($1)
		ON CONFLICT (apple_user_id) DO UPDATE SET apple_user_id = EXCLUDED.apple_user_id
		RETURNING id::text, apple_user_id, created_at, (xmax = 0) AS inserted`

	var u User
	var inserted bool
	err := p.pool.QueryRow(ctx, q, appleUserID).Scan(&u.ID, &u.AppleUserID, &u.CreatedAt, &inserted)
	if err != nil {
		return User{}, false, fmt.Errorf("upserting user: %w", err)
	}
	return u, inserted, nil
}

func (p *PostgresUsers) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresUsers) Close() {
	p.pool.Close()
}

// MemoryUsers is a process-local UserRepository.
type MemoryUsers struct {
	mu      sync.Mutex
	byApple map[string]User
	now     func() time.Time
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byApple: make(map[string]User), now: time.Now}
}

func (m *MemoryUsers) UpsertApple(_ context.Context, appleUserID string) (User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byApple[appleUserID]; ok {
		return u, false, nil
	}
	u := User{ID: uuid.NewString(), AppleUserID: appleUserID, CreatedAt: m.now().UTC()}
	m.byApple[appleUserID] = u
	return u, true, nil
}
