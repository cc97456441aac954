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

// StartSession starts a workout from a routine, copying the routine's current
// targets into the session. Only one session may be active.
func (db *DB) StartSession(ctx context.Context, routineID string, at time.Time) (*models.ActiveSession, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning session start: %w", err)
	}
	defer tx.Rollback(ctx)

	var active, known bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE ended_at IS NULL),
		        EXISTS (SELECT 1 FROM routines WHERE id = $1)`,
		routineID).Scan(&active, &known)
	if err != nil {
		return nil, fmt.Errorf("checking session state: %w", err)
	}
	if active {
		return nil, ErrSessionActive
	}
	if !known {
		return nil, fmt.Errorf("routine %s: %w", routineID, ErrNotFound)
	}

	id := uuid.New().String()
	if _, err := tx.Exec(ctx,
		`INSERT INTO sessions (id, routine_id, started_at) VALUES ($1::uuid, $2, $3)`,
		id, routineID, at); err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO session_exercises (session_id, exercise_id, routine_exercise_id, name, equipment,
		 position, superset_group, target_sets, target_reps, target_reps_range, target_weight,
		 target_band_label, rest_seconds)
		 SELECT $1::uuid, exercise_id, id, name, equipment, position, superset_group, target_sets,
		        target_reps, target_reps_range, target_weight, target_band_label, rest_seconds
		 FROM routine_exercises WHERE routine_id = $2`,
		id, routineID); err != nil {
		return nil, fmt.Errorf("seeding session exercises: %w", err)
	}

	sess, err := loadSession(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing session start: %w", err)
	}
	return sess, nil
}

// EndSession closes the active workout.
func (db *DB) EndSession(ctx context.Context, at time.Time) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE sessions SET ended_at = $1 WHERE ended_at IS NULL`, at)
	if err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoActiveSession
	}
	return nil
}

// FetchActiveSession returns the active workout, or a nil Session when none
// is running, together with all routines.
func (db *DB) FetchActiveSession(ctx context.Context) (*models.ActiveSessionView, error) {
	routines, err := db.ListRoutines(ctx)
	if err != nil {
		return nil, err
	}
	view := &models.ActiveSessionView{Routines: routines}

	id, err := db.activeSessionID(ctx)
	if errors.Is(err, ErrNoActiveSession) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}
	if view.Session, err = loadSession(ctx, db.Pool, id); err != nil {
		return nil, err
	}
	return view, nil
}

// FetchSession returns any session by id, active or ended.
func (db *DB) FetchSession(ctx context.Context, id string) (*models.ActiveSessionView, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	sess, err := loadSession(ctx, db.Pool, id)
	if err != nil {
		return nil, err
	}
	view := &models.ActiveSessionView{Session: sess}
	routine, err := db.GetRoutine(ctx, sess.RoutineID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if routine != nil {
		view.Routines = []models.Routine{*routine}
	}
	return view, nil
}

func (db *DB) activeSessionID(ctx context.Context) (string, error) {
	var id string
	err := db.Pool.QueryRow(ctx, `SELECT id::text FROM sessions WHERE ended_at IS NULL`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNoActiveSession
	}
	if err != nil {
		return "", fmt.Errorf("querying active session: %w", err)
	}
	return id, nil
}

func loadSession(ctx context.Context, q querier, id string) (*models.ActiveSession, error) {
	var s models.ActiveSession
	err := q.QueryRow(ctx,
		`SELECT id::text, routine_id, started_at, ended_at, warmup_started_at, warmup_completed_at
		 FROM sessions WHERE id = $1::uuid`, id).
		Scan(&s.ID, &s.RoutineID, &s.StartedAt, &s.EndedAt, &s.WarmupStartedAt, &s.WarmupCompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	exercises, err := queryExercises(ctx, q, id, models.ExerciseKey{})
	if err != nil {
		return nil, err
	}
	s.Exercises = exercises
	return &s, nil
}

// queryExercises loads the exercises of a session with their sets. A non-zero
// key restricts the result to that exercise.
func queryExercises(ctx context.Context, q querier, sessionID string, key models.ExerciseKey) ([]models.ExerciseProgress, error) {
	rows, err := q.Query(ctx,
		`SELECT exercise_id, routine_exercise_id, name, equipment, position, superset_group,
		 target_sets, target_reps, target_reps_range, target_weight, target_band_label, rest_seconds,
		 status, started_at, completed_at
		 FROM session_exercises
		 WHERE session_id = $1::uuid AND ($2 = '' OR (exercise_id = $2 AND routine_exercise_id = $3))
		 ORDER BY position`,
		sessionID, key.ExerciseID, key.RoutineExerciseID)
	if err != nil {
		return nil, fmt.Errorf("querying session exercises: %w", err)
	}
	defer rows.Close()

	var out []models.ExerciseProgress
	index := make(map[models.ExerciseKey]int)
	for rows.Next() {
		var p models.ExerciseProgress
		var equipment, status string
		if err := rows.Scan(&p.ExerciseID, &p.RoutineExerciseID, &p.Name, &equipment, &p.Position,
			&p.SupersetGroup, &p.Targets.Sets, &p.Reps, &p.RepsRange, &p.Weight, &p.BandLabel,
			&p.RestSeconds, &status, &p.StartedAt, &p.CompletedAt); err != nil {
			return nil, fmt.Errorf("scanning session exercise: %w", err)
		}
		p.Equipment = models.Equipment(equipment)
		p.Status = models.ExerciseStatus(status)
		index[p.Key()] = len(out)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	sets, err := querySets(ctx, q, sessionID, key)
	if err != nil {
		return nil, err
	}
	for k, list := range sets {
		if i, ok := index[k]; ok {
			out[i].Sets = list
		}
	}
	return out, nil
}

func querySets(ctx context.Context, q querier, sessionID string, key models.ExerciseKey) (map[models.ExerciseKey][]models.Set, error) {
	rows, err := q.Query(ctx,
		`SELECT id::text, exercise_id, routine_exercise_id, set_index, reps, weight, band_label,
		 started_at, completed_at, created_at
		 FROM session_sets
		 WHERE session_id = $1::uuid AND ($2 = '' OR (exercise_id = $2 AND routine_exercise_id = $3))
		 ORDER BY set_index`,
		sessionID, key.ExerciseID, key.RoutineExerciseID)
	if err != nil {
		return nil, fmt.Errorf("querying session sets: %w", err)
	}
	defer rows.Close()

	out := make(map[models.ExerciseKey][]models.Set)
	for rows.Next() {
		var s models.Set
		var k models.ExerciseKey
		var created time.Time
		if err := rows.Scan(&s.ID, &k.ExerciseID, &k.RoutineExerciseID, &s.SetIndex, &s.Reps,
			&s.Weight, &s.BandLabel, &s.StartedAt, &s.CompletedAt, &created); err != nil {
			return nil, fmt.Errorf("scanning session set: %w", err)
		}
		s.CreatedAt = &created
		out[k] = append(out[k], s)
	}
	return out, rows.Err()
}

// exerciseProgress loads one exercise of a session or ErrNotFound.
func exerciseProgress(ctx context.Context, q querier, sessionID string, key models.ExerciseKey) (*models.ExerciseProgress, error) {
	list, err := queryExercises(ctx, q, sessionID, key)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("exercise %s: %w", key, ErrNotFound)
	}
	return &list[0], nil
}
