package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/claude/repguide/internal/models"
)

// StartExercise marks an exercise of the active session in progress. Starting
// a finished exercise reopens it; its original start time is kept.
func (db *DB) StartExercise(ctx context.Context, req models.ExerciseStart) (*models.ExerciseProgress, error) {
	sid, err := db.activeSessionID(ctx)
	if err != nil {
		return nil, err
	}
	tag, err := db.Pool.Exec(ctx,
		`UPDATE session_exercises
		 SET status = 'in_progress', started_at = COALESCE(started_at, $4), completed_at = NULL
		 WHERE session_id = $1::uuid AND exercise_id = $2 AND routine_exercise_id = $3`,
		sid, req.ExerciseID, req.RoutineExerciseID, req.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("starting exercise: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("exercise %s: %w", req.ExerciseKey, ErrNotFound)
	}
	return exerciseProgress(ctx, db.Pool, sid, req.ExerciseKey)
}

// CompleteExercise marks an exercise of the active session completed or skipped.
func (db *DB) CompleteExercise(ctx context.Context, req models.ExerciseCompletion) (*models.ExerciseProgress, error) {
	sid, err := db.activeSessionID(ctx)
	if err != nil {
		return nil, err
	}
	status := models.StatusCompleted
	if req.Skipped {
		status = models.StatusSkipped
	}
	tag, err := db.Pool.Exec(ctx,
		`UPDATE session_exercises
		 SET status = $4, completed_at = $5, started_at = COALESCE(started_at, $5)
		 WHERE session_id = $1::uuid AND exercise_id = $2 AND routine_exercise_id = $3`,
		sid, req.ExerciseID, req.RoutineExerciseID, string(status), req.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("completing exercise: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("exercise %s: %w", req.ExerciseKey, ErrNotFound)
	}
	return exerciseProgress(ctx, db.Pool, sid, req.ExerciseKey)
}

// CreateSet logs a set on the active session. Logging the same set index
// twice replaces the earlier values. A pending exercise becomes in progress.
func (db *DB) CreateSet(ctx context.Context, p models.SetPayload) (*models.SetResult, error) {
	if p.SetIndex < 1 {
		return nil, fmt.Errorf("set index %d out of range", p.SetIndex)
	}
	sid, err := db.activeSessionID(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning set insert: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE session_exercises
		 SET started_at = COALESCE(started_at, $4),
		     status = CASE WHEN status = 'pending' THEN 'in_progress' ELSE status END
		 WHERE session_id = $1::uuid AND exercise_id = $2 AND routine_exercise_id = $3`,
		sid, p.ExerciseID, p.RoutineExerciseID, p.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("touching exercise: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("exercise %s: %w", p.ExerciseKey, ErrNotFound)
	}

	set := models.Set{
		SetIndex:    p.SetIndex,
		Reps:        p.Reps,
		Weight:      p.Weight,
		BandLabel:   p.BandLabel,
		StartedAt:   &p.StartedAt,
		CompletedAt: &p.CompletedAt,
	}
	var created time.Time
	err = tx.QueryRow(ctx,
		`INSERT INTO session_sets (id, session_id, exercise_id, routine_exercise_id, set_index,
		 reps, weight, band_label, started_at, completed_at)
		 VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (session_id, exercise_id, routine_exercise_id, set_index) DO UPDATE SET
		   reps = EXCLUDED.reps, weight = EXCLUDED.weight, band_label = EXCLUDED.band_label,
		   started_at = EXCLUDED.started_at, completed_at = EXCLUDED.completed_at
		 RETURNING id::text, created_at`,
		uuid.New().String(), sid, p.ExerciseID, p.RoutineExerciseID, p.SetIndex,
		p.Reps, p.Weight, p.BandLabel, p.StartedAt, p.CompletedAt).Scan(&set.ID, &created)
	if err != nil {
		return nil, fmt.Errorf("inserting set: %w", err)
	}
	set.CreatedAt = &created

	prog, err := exerciseProgress(ctx, tx, sid, p.ExerciseKey)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing set insert: %w", err)
	}
	return &models.SetResult{Set: set, Progress: *prog}, nil
}

// DeleteSet removes a logged set by id.
func (db *DB) DeleteSet(ctx context.Context, setID string) error {
	if _, err := uuid.Parse(setID); err != nil {
		return fmt.Errorf("set %s: %w", setID, ErrNotFound)
	}
	tag, err := db.Pool.Exec(ctx, `DELETE FROM session_sets WHERE id = $1::uuid`, setID)
	if err != nil {
		return fmt.Errorf("deleting set: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set %s: %w", setID, ErrNotFound)
	}
	return nil
}

// StartWarmup records the warmup start of the active session. Only the first
// start is kept.
func (db *DB) StartWarmup(ctx context.Context, ev models.WarmupEvent) error {
	return db.touchWarmup(ctx,
		`UPDATE sessions SET warmup_started_at = COALESCE(warmup_started_at, $1)
		 WHERE ended_at IS NULL`, ev.At)
}

// CompleteWarmup records the warmup completion of the active session.
func (db *DB) CompleteWarmup(ctx context.Context, ev models.WarmupEvent) error {
	return db.touchWarmup(ctx,
		`UPDATE sessions SET warmup_started_at = COALESCE(warmup_started_at, $1),
		        warmup_completed_at = COALESCE(warmup_completed_at, $1)
		 WHERE ended_at IS NULL`, ev.At)
}

func (db *DB) touchWarmup(ctx context.Context, query string, at time.Time) error {
	tag, err := db.Pool.Exec(ctx, query, at)
	if err != nil {
		return fmt.Errorf("updating warmup: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoActiveSession
	}
	return nil
}

// IsNotFound reports whether err means a missing row or no active session.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoActiveSession) || errors.Is(err, pgx.ErrNoRows)
}
