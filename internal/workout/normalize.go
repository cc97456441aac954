package workout

import (
	"fmt"
	"sort"
	"time"

	"github.com/claude/repguide/internal/models"
)

// Session is the normalized, ordered view of an active workout.
type Session struct {
	ID          string
	RoutineID   string
	RoutineType models.RoutineType
	Steps       []models.Step
}

// Exercises returns the non-warmup steps in sequence order.
func (s Session) Exercises() []models.SessionExercise {
	out := make([]models.SessionExercise, 0, len(s.Steps))
	for _, st := range s.Steps {
		if ex, ok := st.(models.SessionExercise); ok {
			out = append(out, ex)
		}
	}
	return out
}

// Exercise looks up a session exercise by composite key.
func (s Session) Exercise(key models.ExerciseKey) (models.SessionExercise, bool) {
	for _, st := range s.Steps {
		if ex, ok := st.(models.SessionExercise); ok && ex.Key() == key {
			return ex, true
		}
	}
	return models.SessionExercise{}, false
}

// Warmup returns the synthetic warmup step when the session has one.
func (s Session) Warmup() (models.WarmupStep, bool) {
	for _, st := range s.Steps {
		if w, ok := st.(models.WarmupStep); ok {
			return w, true
		}
	}
	return models.WarmupStep{}, false
}

// Normalize turns a collaborator session payload into the ordered step list.
// Exercise progress from the session wins; when the session carries none, the
// originating routine template seeds pending exercises. Targets missing from
// session progress are filled in from the matching routine slot.
func Normalize(view *models.ActiveSessionView) Session {
	if view == nil || view.Session == nil {
		return Session{}
	}
	active := view.Session
	routine := findRoutine(view.Routines, active.RoutineID)

	sess := Session{ID: active.ID, RoutineID: active.RoutineID}
	if routine != nil {
		sess.RoutineType = routine.Type
	}

	var exercises []models.SessionExercise
	if len(active.Exercises) > 0 {
		exercises = fromProgress(active.Exercises, routine)
	} else if routine != nil {
		exercises = fromRoutine(routine.Exercises)
	}
	exercises = dedupeExercises(exercises)

	sort.SliceStable(exercises, func(i, j int) bool {
		return exercises[i].Position < exercises[j].Position
	})
	for i := range exercises {
		exercises[i].Position = i + 1
	}

	if routine != nil && routine.Type.QualifiesForWarmup() {
		sess.Steps = append(sess.Steps, buildWarmup(active, exercises))
	}
	for _, ex := range exercises {
		sess.Steps = append(sess.Steps, ex)
	}
	return sess
}

func findRoutine(routines []models.Routine, id string) *models.Routine {
	for i := range routines {
		if routines[i].ID == id {
			return &routines[i]
		}
	}
	return nil
}

func fromProgress(progress []models.ExerciseProgress, routine *models.Routine) []models.SessionExercise {
	slots := make(map[models.ExerciseKey]models.RoutineExercise)
	if routine != nil {
		for _, re := range routine.Exercises {
			slots[re.Key()] = re
		}
	}

	out := make([]models.SessionExercise, 0, len(progress))
	for _, p := range progress {
		ex := models.SessionExercise{
			ExerciseID:        p.ExerciseID,
			RoutineExerciseID: p.RoutineExerciseID,
			Name:              p.Name,
			Equipment:         p.Equipment,
			Targets:           p.Targets,
			Position:          p.Position,
			SupersetGroup:     p.SupersetGroup,
			Status:            p.Status,
			StartedAt:         p.StartedAt,
			CompletedAt:       p.CompletedAt,
			Sets:              dedupeSets(p.Sets),
		}
		if slot, ok := slots[p.Key()]; ok {
			fillFromSlot(&ex, slot)
		}
		if ex.Status == "" {
			ex.Status = models.StatusPending
		}
		out = append(out, ex)
	}
	return out
}

func fillFromSlot(ex *models.SessionExercise, slot models.RoutineExercise) {
	if ex.Name == "" {
		ex.Name = slot.Name
	}
	if ex.Equipment == "" {
		ex.Equipment = slot.Equipment
	}
	if ex.SupersetGroup == "" {
		ex.SupersetGroup = slot.SupersetGroup
	}
	t := &ex.Targets
	if t.Sets == nil {
		t.Sets = slot.Sets
	}
	if t.Reps == nil {
		t.Reps = slot.Reps
	}
	if t.RepsRange == "" {
		t.RepsRange = slot.RepsRange
	}
	if t.Weight == nil {
		t.Weight = slot.Weight
	}
	if t.BandLabel == "" {
		t.BandLabel = slot.BandLabel
	}
	if t.RestSeconds == nil {
		t.RestSeconds = slot.RestSeconds
	}
}

func fromRoutine(slots []models.RoutineExercise) []models.SessionExercise {
	out := make([]models.SessionExercise, 0, len(slots))
	for _, re := range slots {
		out = append(out, models.SessionExercise{
			ExerciseID:        re.ExerciseID,
			RoutineExerciseID: re.ID,
			Name:              re.Name,
			Equipment:         re.Equipment,
			Targets:           re.Targets,
			Position:          re.Position,
			SupersetGroup:     re.SupersetGroup,
			Status:            models.StatusPending,
		})
	}
	return out
}

// dedupeExercises keeps the first instance of each composite key and folds
// the sets of later duplicates into it.
func dedupeExercises(in []models.SessionExercise) []models.SessionExercise {
	index := make(map[models.ExerciseKey]int, len(in))
	out := make([]models.SessionExercise, 0, len(in))
	for _, ex := range in {
		if i, ok := index[ex.Key()]; ok {
			merged := append(append([]models.Set{}, out[i].Sets...), ex.Sets...)
			out[i].Sets = dedupeSets(merged)
			continue
		}
		index[ex.Key()] = len(out)
		out = append(out, ex)
	}
	return out
}

// dedupeSets removes duplicate sets, identified by persisted ID or, for
// unpersisted sets, by set index plus timestamp, and orders them by set index.
func dedupeSets(in []models.Set) []models.Set {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]models.Set, 0, len(in))
	for _, s := range in {
		id := setIdentity(s)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SetIndex < out[j].SetIndex
	})
	return out
}

func setIdentity(s models.Set) string {
	if s.ID != "" {
		return "id:" + s.ID
	}
	var ts string
	for _, t := range []*time.Time{s.CompletedAt, s.CreatedAt, s.StartedAt} {
		if t != nil {
			ts = t.UTC().Format(time.RFC3339Nano)
			break
		}
	}
	return fmt.Sprintf("idx:%d|%s", s.SetIndex, ts)
}

func buildWarmup(active *models.ActiveSession, exercises []models.SessionExercise) models.WarmupStep {
	w := models.WarmupStep{
		Status:      models.StatusPending,
		StartedAt:   active.WarmupStartedAt,
		CompletedAt: active.WarmupCompletedAt,
	}
	switch {
	case active.WarmupCompletedAt != nil:
		w.Status = models.StatusCompleted
	case anyTracked(exercises):
		// Working sets imply the warmup is behind the user even if its
		// completion was never recorded.
		w.Status = models.StatusCompleted
	case active.WarmupStartedAt != nil:
		w.Status = models.StatusInProgress
	}
	return w
}

func anyTracked(exercises []models.SessionExercise) bool {
	for _, ex := range exercises {
		if ex.StartedAt != nil || ex.CompletedAt != nil || len(ex.Sets) > 0 {
			return true
		}
		if ex.Status != "" && ex.Status != models.StatusPending {
			return true
		}
	}
	return false
}
