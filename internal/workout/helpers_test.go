package workout

import (
	"time"

	"github.com/claude/repguide/internal/models"
)

func intp(n int) *int              { return &n }
func floatp(f float64) *float64    { return &f }
func timep(t time.Time) *time.Time { return &t }

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func exercise(id string, pos int, sets, reps int, weight float64) models.SessionExercise {
	ex := models.SessionExercise{
		ExerciseID:        id,
		RoutineExerciseID: "re-" + id,
		Name:              id,
		Equipment:         "Barbell",
		Position:          pos,
		Status:            models.StatusPending,
	}
	if sets > 0 {
		ex.Targets.Sets = intp(sets)
	}
	if reps > 0 {
		ex.Targets.Reps = intp(reps)
	}
	if weight > 0 {
		ex.Targets.Weight = floatp(weight)
	}
	return ex
}

func persisted(id string, idx int, at time.Time) models.Set {
	return models.Set{ID: id, SetIndex: idx, Reps: 8, Weight: floatp(60), CompletedAt: timep(at)}
}

func steps(items ...models.Step) []models.Step {
	return items
}
