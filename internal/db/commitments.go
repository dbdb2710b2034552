package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/chris/helpem/internal/commitment"
	"github.com/chris/helpem/internal/store"
)

type userStore struct {
	db     *DB
	userID string
}

func (s *userStore) List(ctx context.Context) (commitment.Snapshot, error) {
	var snap commitment.Snapshot
	var err error

	if snap.Tasks, err = s.listTasks(ctx); err != nil {
		return snap, err
	}
	if snap.Routines, err = s.listRoutines(ctx); err != nil {
		return snap, err
	}
	if snap.Appointments, err = s.listAppointments(ctx); err != nil {
		return snap, err
	}
	return snap, nil
}

func (s *userStore) listTasks(ctx context.Context) ([]commitment.Task, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, title, priority, due_date, created_at, completed_at
		 FROM tasks WHERE user_id = ? ORDER BY created_at, rowid`, s.userID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var out []commitment.Task
	for rows.Next() {
		var (
			t                 commitment.Task
			priority, created string
			due, completed    sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Title, &priority, &due, &created, &completed); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		t.Priority = commitment.Priority(priority)
		if t.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if t.DueDate, err = parseNullTime(due); err != nil {
			return nil, err
		}
		if t.CompletedAt, err = parseNullTime(completed); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *userStore) listRoutines(ctx context.Context) ([]commitment.Routine, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT r.id, r.title, r.frequency, r.created_at, c.completed_date
		 FROM routines r
		 LEFT JOIN routine_completions c ON c.routine_id = r.id
		 WHERE r.user_id = ?
		 ORDER BY r.created_at, r.rowid, c.id`, s.userID)
	if err != nil {
		return nil, fmt.Errorf("listing routines: %w", err)
	}
	defer rows.Close()

	var out []commitment.Routine
	for rows.Next() {
		var (
			id, title, freq, created string
			completedDate            sql.NullString
		)
		if err := rows.Scan(&id, &title, &freq, &created, &completedDate); err != nil {
			return nil, fmt.Errorf("scanning routine: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].ID != id {
			createdAt, err := parseTime(created)
			if err != nil {
				return nil, err
			}
			out = append(out, commitment.Routine{
				ID:        id,
				Title:     title,
				Frequency: commitment.Frequency(freq),
				CreatedAt: createdAt,
			})
		}
		if completedDate.Valid {
			d, err := parseTime(completedDate.String)
			if err != nil {
				return nil, err
			}
			r := &out[len(out)-1]
			r.Completions = append(r.Completions, commitment.Completion{Date: d})
		}
	}
	return out, rows.Err()
}

func (s *userStore) listAppointments(ctx context.Context) ([]commitment.Appointment, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, title, datetime, created_at
		 FROM appointments WHERE user_id = ? ORDER BY datetime, rowid`, s.userID)
	if err != nil {
		return nil, fmt.Errorf("listing appointments: %w", err)
	}
	defer rows.Close()

	var out []commitment.Appointment
	for rows.Next() {
		var (
			a                 commitment.Appointment
			datetime, created string
		)
		if err := rows.Scan(&a.ID, &a.Title, &datetime, &created); err != nil {
			return nil, fmt.Errorf("scanning appointment: %w", err)
		}
		if a.Datetime, err = parseTime(datetime); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *userStore) Add(ctx context.Context, c commitment.Commitment) error {
	var err error
	switch v := c.(type) {
	case commitment.Task:
		_, err = s.db.conn.ExecContext(ctx,
			`INSERT INTO tasks (id, user_id, title, priority, due_date, created_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			v.ID, s.userID, v.Title, string(v.Priority), formatTimePtr(v.DueDate), formatTime(v.CreatedAt), formatTimePtr(v.CompletedAt),
		)
	case commitment.Routine:
		err = s.addRoutine(ctx, v)
	case commitment.Appointment:
		_, err = s.db.conn.ExecContext(ctx,
			`INSERT INTO appointments (id, user_id, title, datetime, created_at) VALUES (?, ?, ?, ?, ?)`,
			v.ID, s.userID, v.Title, formatTime(v.Datetime), formatTime(v.CreatedAt),
		)
	default:
		return fmt.Errorf("unsupported commitment %T", c)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s %s: %w", c.Kind(), c.CommitmentID(), store.ErrDuplicateID)
		}
		return fmt.Errorf("adding %s: %w", c.Kind(), err)
	}
	return nil
}

func (s *userStore) addRoutine(ctx context.Context, r commitment.Routine) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO routines (id, user_id, title, frequency, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, s.userID, r.Title, string(r.Frequency), formatTime(r.CreatedAt),
	); err != nil {
		return err
	}
	for _, c := range r.Completions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO routine_completions (routine_id, completed_date) VALUES (?, ?)`,
			r.ID, formatTime(c.Date),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *userStore) SetCompleted(ctx context.Context, taskID string, at time.Time) error {
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE tasks SET completed_at = COALESCE(completed_at, ?) WHERE id = ? AND user_id = ?`,
		formatTime(at), taskID, s.userID,
	)
	if err != nil {
		return fmt.Errorf("completing task %s: %w", taskID, err)
	}
	return requireRow(res, "task", taskID)
}

func (s *userStore) SetPriority(ctx context.Context, taskID string, p commitment.Priority) error {
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE tasks SET priority = ? WHERE id = ? AND user_id = ?`,
		string(p), taskID, s.userID,
	)
	if err != nil {
		return fmt.Errorf("updating priority for task %s: %w", taskID, err)
	}
	return requireRow(res, "task", taskID)
}

func (s *userStore) AppendCompletion(ctx context.Context, routineID string, date time.Time) error {
	res, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO routine_completions (routine_id, completed_date)
		 SELECT id, ? FROM routines WHERE id = ? AND user_id = ?`,
		formatTime(date), routineID, s.userID,
	)
	if err != nil {
		return fmt.Errorf("logging completion for routine %s: %w", routineID, err)
	}
	return requireRow(res, "routine", routineID)
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY")
}
