// Package outbox persists target-weight writes made while the server was
// unreachable and replays them once it is back.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/claude/repguide/internal/models"
)

// Entry is one deferred write.
type Entry struct {
	ID       string
	Update   models.TargetUpdate
	QueuedAt time.Time
}

// Outbox is a SQLite-backed queue keyed by routine slot. A newer write for
// the same slot replaces the older one.
type Outbox struct {
	db *sql.DB
}

// Open opens (or creates) the outbox database at dir/outbox.db.
func Open(dir string) (*Outbox, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "outbox.db"))
	if err != nil {
		return nil, fmt.Errorf("opening outbox db: %w", err)
	}
	// A single connection keeps writes serialized.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS deferred_targets (
		id                  TEXT NOT NULL,
		routine_id          TEXT NOT NULL,
		exercise_id         TEXT NOT NULL,
		routine_exercise_id TEXT NOT NULL,
		equipment           TEXT NOT NULL,
		target_weight       REAL NOT NULL,
		queued_at           TIMESTAMP NOT NULL,
		PRIMARY KEY (routine_id, exercise_id, routine_exercise_id)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating outbox table: %w", err)
	}
	return &Outbox{db: db}, nil
}

// Enqueue stores u, replacing any queued write for the same slot.
func (o *Outbox) Enqueue(ctx context.Context, u models.TargetUpdate) error {
	_, err := o.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO deferred_targets
		 (id, routine_id, exercise_id, routine_exercise_id, equipment, target_weight, queued_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), u.RoutineID, u.ExerciseID, u.RoutineExerciseID,
		string(u.Equipment), u.TargetWeight, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("enqueueing target: %w", err)
	}
	return nil
}

// Pending lists queued writes, oldest first.
func (o *Outbox) Pending(ctx context.Context) ([]Entry, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT id, routine_id, exercise_id, routine_exercise_id, equipment, target_weight, queued_at
		 FROM deferred_targets ORDER BY queued_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying outbox: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var equipment string
		if err := rows.Scan(&e.ID, &e.Update.RoutineID, &e.Update.ExerciseID, &e.Update.RoutineExerciseID,
			&equipment, &e.Update.TargetWeight, &e.QueuedAt); err != nil {
			return nil, fmt.Errorf("scanning outbox entry: %w", err)
		}
		e.Update.Equipment = models.Equipment(equipment)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SendFunc delivers one write.
type SendFunc func(ctx context.Context, u models.TargetUpdate) (*models.TargetResult, error)

// Flush delivers queued writes in order and removes each one that succeeds.
// It stops at the first failure, leaving the rest queued. onComplete runs
// once when at least one write was delivered.
func (o *Outbox) Flush(ctx context.Context, send SendFunc, onComplete func(ctx context.Context) error) (int, error) {
	pending, err := o.Pending(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	var sendErr error
	for _, e := range pending {
		if _, err := send(ctx, e.Update); err != nil {
			sendErr = fmt.Errorf("flushing %s: %w", e.Update.ExerciseID, err)
			break
		}
		// Only remove the row if it was not replaced while the write was in flight.
		if _, err := o.db.ExecContext(ctx, `DELETE FROM deferred_targets WHERE id = ?`, e.ID); err != nil {
			return sent, fmt.Errorf("removing outbox entry: %w", err)
		}
		sent++
	}

	if sent > 0 && onComplete != nil {
		if err := onComplete(ctx); err != nil && sendErr == nil {
			return sent, fmt.Errorf("sync complete: %w", err)
		}
	}
	return sent, sendErr
}

// Close closes the outbox database.
func (o *Outbox) Close() error {
	return o.db.Close()
}
