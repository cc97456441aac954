package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/claude/repguide/internal/models"
)

// UpsertRoutine inserts or replaces a routine template and its slots. Slots
// no longer present in r are removed.
func (db *DB) UpsertRoutine(ctx context.Context, r models.Routine) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning routine upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO routines (id, name, type) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = $2, type = $3, updated_at = NOW()`,
		r.ID, r.Name, string(r.Type))
	if err != nil {
		return fmt.Errorf("upserting routine: %w", err)
	}

	ids := make([]string, 0, len(r.Exercises))
	for _, re := range r.Exercises {
		ids = append(ids, re.ID)
		_, err := tx.Exec(ctx,
			`INSERT INTO routine_exercises (id, routine_id, exercise_id, name, equipment, position,
			 superset_group, target_sets, target_reps, target_reps_range, target_weight,
			 target_band_label, rest_seconds)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			 ON CONFLICT (id) DO UPDATE SET
			   routine_id = $2, exercise_id = $3, name = $4, equipment = $5, position = $6,
			   superset_group = $7, target_sets = $8, target_reps = $9, target_reps_range = $10,
			   target_weight = $11, target_band_label = $12, rest_seconds = $13`,
			re.ID, r.ID, re.ExerciseID, re.Name, string(re.Equipment), re.Position,
			re.SupersetGroup, re.Sets, re.Reps, re.RepsRange, re.Weight,
			re.BandLabel, re.RestSeconds)
		if err != nil {
			return fmt.Errorf("upserting routine exercise %s: %w", re.ID, err)
		}
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM routine_exercises WHERE routine_id = $1 AND NOT (id = ANY($2))`,
		r.ID, ids)
	if err != nil {
		return fmt.Errorf("pruning routine exercises: %w", err)
	}
	return tx.Commit(ctx)
}

// ListRoutines returns every routine with its slots ordered by position.
func (db *DB) ListRoutines(ctx context.Context) ([]models.Routine, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, name, type FROM routines ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying routines: %w", err)
	}
	defer rows.Close()

	var routines []models.Routine
	index := make(map[string]int)
	for rows.Next() {
		var r models.Routine
		var typ string
		if err := rows.Scan(&r.ID, &r.Name, &typ); err != nil {
			return nil, fmt.Errorf("scanning routine: %w", err)
		}
		r.Type = models.RoutineType(typ)
		index[r.ID] = len(routines)
		routines = append(routines, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slots, err := db.queryRoutineExercises(ctx, "")
	if err != nil {
		return nil, err
	}
	for routineID, list := range slots {
		if i, ok := index[routineID]; ok {
			routines[i].Exercises = list
		}
	}
	return routines, nil
}

// GetRoutine returns one routine or ErrNotFound.
func (db *DB) GetRoutine(ctx context.Context, id string) (*models.Routine, error) {
	var r models.Routine
	var typ string
	err := db.Pool.QueryRow(ctx, `SELECT id, name, type FROM routines WHERE id = $1`, id).
		Scan(&r.ID, &r.Name, &typ)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("routine %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying routine: %w", err)
	}
	r.Type = models.RoutineType(typ)

	slots, err := db.queryRoutineExercises(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Exercises = slots[id]
	return &r, nil
}

// queryRoutineExercises loads slots grouped by routine. An empty routineID
// loads all of them.
func (db *DB) queryRoutineExercises(ctx context.Context, routineID string) (map[string][]models.RoutineExercise, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT routine_id, id, exercise_id, name, equipment, position, superset_group,
		 target_sets, target_reps, target_reps_range, target_weight, target_band_label, rest_seconds
		 FROM routine_exercises
		 WHERE $1 = '' OR routine_id = $1
		 ORDER BY routine_id, position`,
		routineID)
	if err != nil {
		return nil, fmt.Errorf("querying routine exercises: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.RoutineExercise)
	for rows.Next() {
		var owner, equipment string
		var re models.RoutineExercise
		if err := rows.Scan(&owner, &re.ID, &re.ExerciseID, &re.Name, &equipment, &re.Position,
			&re.SupersetGroup, &re.Sets, &re.Reps, &re.RepsRange, &re.Weight,
			&re.BandLabel, &re.RestSeconds); err != nil {
			return nil, fmt.Errorf("scanning routine exercise: %w", err)
		}
		re.Equipment = models.Equipment(equipment)
		out[owner] = append(out[owner], re)
	}
	return out, rows.Err()
}

// UpdateTarget stores the next-session target weight of a routine slot.
// Running sessions keep the targets they were started with.
func (db *DB) UpdateTarget(ctx context.Context, u models.TargetUpdate) (*models.TargetResult, error) {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE routine_exercises SET target_weight = $1
		 WHERE routine_id = $2 AND exercise_id = $3 AND ($4 = '' OR id = $4)`,
		u.TargetWeight, u.RoutineID, u.ExerciseID, u.RoutineExerciseID)
	if err != nil {
		return nil, fmt.Errorf("updating target weight: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("routine exercise %s/%s: %w", u.RoutineID, u.ExerciseID, ErrNotFound)
	}
	return &models.TargetResult{TargetUpdate: u}, nil
}
