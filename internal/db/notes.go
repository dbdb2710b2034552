package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetNote retrieves a note by key. A missing key returns "".
func (d *DB) GetNote(ctx context.Context, key string) (string, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, "SELECT value FROM notes WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting note: %w", err)
	}
	return value, nil
}

// SetNote stores or updates a note by key.
func (d *DB) SetNote(ctx context.Context, key, value string) error {
	_, err := d.conn.ExecContext(ctx,
		"INSERT INTO notes (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("setting note: %w", err)
	}
	return nil
}

// ClaimReminder records that the reminder for an appointment fired. It
// returns false when the reminder had already been claimed, so each
// appointment is announced once even across restarts.
func (d *DB) ClaimReminder(ctx context.Context, appointmentID string, at time.Time) (bool, error) {
	res, err := d.conn.ExecContext(ctx,
		"INSERT OR IGNORE INTO reminder_log (appointment_id, fired_at) VALUES (?, ?)",
		appointmentID, formatTime(at),
	)
	if err != nil {
		return false, fmt.Errorf("claiming reminder %s: %w", appointmentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
