package workout

import "github.com/claude/repguide/internal/models"

// IsStepSatisfied is the completion predicate: a terminal status, or for
// real exercises at least as many logged sets as a positive set target.
func IsStepSatisfied(st models.Step) bool {
	if st.StepStatus().Done() {
		return true
	}
	ex, ok := st.(models.SessionExercise)
	if !ok {
		return false
	}
	n := ex.SetCount()
	return n > 0 && len(ex.Sets) >= n
}

// ResolveCurrentStep picks the step in focus, in priority order:
// the explicitly selected key if it still resolves, the first step in
// progress, the first step not yet satisfied, the first step overall.
func ResolveCurrentStep(steps []models.Step, selected *models.ExerciseKey) (models.Step, bool) {
	if len(steps) == 0 {
		return nil, false
	}
	if selected != nil {
		for _, st := range steps {
			if st.StepKey() == *selected {
				return st, true
			}
		}
	}
	for _, st := range steps {
		if st.StepStatus() == models.StatusInProgress {
			return st, true
		}
	}
	for _, st := range steps {
		if !IsStepSatisfied(st) {
			return st, true
		}
	}
	return steps[0], true
}

// ResolveNextPendingExercise returns the exercise to move to after current.
// current and every key in exclude are never returned. A still-pending
// superset partner of current wins; otherwise the first pending exercise
// positioned after current, wrapping around to the first pending overall.
func ResolveNextPendingExercise(steps []models.Step, pairs Pairings, current models.ExerciseKey, exclude ...models.ExerciseKey) (models.SessionExercise, bool) {
	skip := map[models.ExerciseKey]bool{current: true}
	for _, k := range exclude {
		skip[k] = true
	}

	var pending []models.SessionExercise
	currentPos := 0
	for _, st := range steps {
		ex, ok := st.(models.SessionExercise)
		if !ok {
			continue
		}
		if ex.Key() == current {
			currentPos = ex.Position
		}
		if skip[ex.Key()] || IsStepSatisfied(ex) {
			continue
		}
		pending = append(pending, ex)
	}
	if len(pending) == 0 {
		return models.SessionExercise{}, false
	}

	if partner, ok := pairs.Partner(current); ok {
		for _, ex := range pending {
			if ex.Key() == partner {
				return ex, true
			}
		}
	}

	best, wrap := -1, -1
	for i, ex := range pending {
		if ex.Position > currentPos && (best < 0 || ex.Position < pending[best].Position) {
			best = i
		}
		if wrap < 0 || ex.Position < pending[wrap].Position {
			wrap = i
		}
	}
	if best >= 0 {
		return pending[best], true
	}
	return pending[wrap], true
}

// PendingExercisesExcept lists unsatisfied exercises other than the given keys.
func PendingExercisesExcept(steps []models.Step, keys ...models.ExerciseKey) []models.SessionExercise {
	skip := make(map[models.ExerciseKey]bool, len(keys))
	for _, k := range keys {
		skip[k] = true
	}
	var out []models.SessionExercise
	for _, st := range steps {
		ex, ok := st.(models.SessionExercise)
		if ok && !skip[ex.Key()] && !IsStepSatisfied(ex) {
			out = append(out, ex)
		}
	}
	return out
}

// AdjacentExercise returns the non-warmup exercise one position before
// (dir < 0) or after (dir > 0) the step keyed by from. From the warmup,
// moving forward lands on the first exercise.
func AdjacentExercise(steps []models.Step, from models.ExerciseKey, dir int) (models.SessionExercise, bool) {
	var exercises []models.SessionExercise
	at := -1
	for _, st := range steps {
		ex, ok := st.(models.SessionExercise)
		if !ok {
			continue
		}
		if ex.Key() == from {
			at = len(exercises)
		}
		exercises = append(exercises, ex)
	}
	if len(exercises) == 0 {
		return models.SessionExercise{}, false
	}
	if at < 0 {
		if dir > 0 && from == models.WarmupKey {
			return exercises[0], true
		}
		return models.SessionExercise{}, false
	}
	next := at + 1
	if dir < 0 {
		next = at - 1
	}
	if next < 0 || next >= len(exercises) {
		return models.SessionExercise{}, false
	}
	return exercises[next], true
}
