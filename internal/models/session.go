package models

import (
	"strings"
	"time"
)

// ExerciseKey identifies one exercise instance inside a session. The same
// exercise definition can appear twice in a routine (different slot or
// equipment), so ExerciseID alone is never enough.
type ExerciseKey struct {
	ExerciseID        string `json:"exercise_id"`
	RoutineExerciseID string `json:"routine_exercise_id,omitempty"`
}

// WarmupKey is the key of the synthetic warmup step.
var WarmupKey = ExerciseKey{ExerciseID: "warmup"}

// String returns the composite form "exerciseID#routineExerciseID".
func (k ExerciseKey) String() string {
	if k.RoutineExerciseID == "" {
		return k.ExerciseID
	}
	return k.ExerciseID + "#" + k.RoutineExerciseID
}

// IsZero reports whether the key is unset.
func (k ExerciseKey) IsZero() bool {
	return k.ExerciseID == "" && k.RoutineExerciseID == ""
}

// ParseExerciseKey is the inverse of ExerciseKey.String.
func ParseExerciseKey(s string) ExerciseKey {
	id, slot, _ := strings.Cut(s, "#")
	return ExerciseKey{ExerciseID: id, RoutineExerciseID: slot}
}

// ExerciseStatus is the progress state of a session exercise.
type ExerciseStatus string

const (
	StatusPending    ExerciseStatus = "pending"
	StatusInProgress ExerciseStatus = "in_progress"
	StatusCompleted  ExerciseStatus = "completed"
	StatusSkipped    ExerciseStatus = "skipped"
)

// Done reports whether the status is terminal.
func (s ExerciseStatus) Done() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// Equipment is the free-form equipment label of a routine slot
// (e.g. "Barbell", "Bodyweight", "Resistance Band").
type Equipment string

func (e Equipment) normalized() string {
	return strings.ToLower(strings.TrimSpace(string(e)))
}

// IsBodyweight reports whether sets for this equipment carry no load.
func (e Equipment) IsBodyweight() bool {
	switch e.normalized() {
	case "bodyweight", "body weight", "body-weight", "none":
		return true
	}
	return false
}

// IsBand reports whether load is expressed as a band label instead of a weight.
func (e Equipment) IsBand() bool {
	return strings.Contains(e.normalized(), "band")
}

// Set is one logged unit of work. A set without ID has not been persisted yet.
type Set struct {
	ID          string     `json:"id,omitempty"`
	SetIndex    int        `json:"set_index"`
	Reps        int        `json:"reps"`
	Weight      *float64   `json:"weight,omitempty"`
	BandLabel   string     `json:"band_label,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// Persisted reports whether the set carries a server-issued identity.
func (s Set) Persisted() bool {
	return s.ID != ""
}

// Targets are the prescribed values of a routine slot.
type Targets struct {
	Sets        *int     `json:"target_sets,omitempty" yaml:"target_sets,omitempty"`
	Reps        *int     `json:"target_reps,omitempty" yaml:"target_reps,omitempty"`
	RepsRange   string   `json:"target_reps_range,omitempty" yaml:"target_reps_range,omitempty"`
	Weight      *float64 `json:"target_weight,omitempty" yaml:"target_weight,omitempty"`
	BandLabel   string   `json:"target_band_label,omitempty" yaml:"target_band_label,omitempty"`
	RestSeconds *int     `json:"rest_seconds,omitempty" yaml:"rest_seconds,omitempty"`
}

// SetCount returns the positive target set count, or 0 when none is configured.
func (t Targets) SetCount() int {
	if t.Sets == nil || *t.Sets <= 0 {
		return 0
	}
	return *t.Sets
}

// Step is one entry of the guided sequence: either a SessionExercise or the
// synthetic WarmupStep. Operations that only make sense for real exercises
// (set synthesis, target-weight edits) take a SessionExercise, never a Step.
type Step interface {
	StepKey() ExerciseKey
	StepStatus() ExerciseStatus
	StepPosition() int
	step()
}

// SessionExercise is one exercise instance and its progress within a session.
type SessionExercise struct {
	ExerciseID        string         `json:"exercise_id"`
	RoutineExerciseID string         `json:"routine_exercise_id,omitempty"`
	Name              string         `json:"name"`
	Equipment         Equipment      `json:"equipment"`
	Targets
	Position      int            `json:"position"`
	SupersetGroup string         `json:"superset_group,omitempty"`
	Status        ExerciseStatus `json:"status"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Sets          []Set          `json:"sets"`
}

// Key returns the composite identity of the exercise.
func (e SessionExercise) Key() ExerciseKey {
	return ExerciseKey{ExerciseID: e.ExerciseID, RoutineExerciseID: e.RoutineExerciseID}
}

func (e SessionExercise) StepKey() ExerciseKey       { return e.Key() }
func (e SessionExercise) StepStatus() ExerciseStatus { return e.Status }
func (e SessionExercise) StepPosition() int          { return e.Position }
func (SessionExercise) step()                        {}

// PersistedSet returns the persisted set logged for setIndex, if any.
func (e SessionExercise) PersistedSet(setIndex int) (Set, bool) {
	for _, s := range e.Sets {
		if s.SetIndex == setIndex && s.Persisted() {
			return s, true
		}
	}
	return Set{}, false
}

// WarmupStep is the synthetic warmup entry prepended to qualifying routines.
type WarmupStep struct {
	Status      ExerciseStatus `json:"status"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

func (WarmupStep) StepKey() ExerciseKey         { return WarmupKey }
func (w WarmupStep) StepStatus() ExerciseStatus { return w.Status }
func (WarmupStep) StepPosition() int            { return 0 }
func (WarmupStep) step()                        {}

// ExerciseProgress is the collaborator's view of one session exercise.
type ExerciseProgress struct {
	ExerciseID        string    `json:"exercise_id"`
	RoutineExerciseID string    `json:"routine_exercise_id,omitempty"`
	Name              string    `json:"name,omitempty"`
	Equipment         Equipment `json:"equipment,omitempty"`
	Targets
	Position      int            `json:"position"`
	SupersetGroup string         `json:"superset_group,omitempty"`
	Status        ExerciseStatus `json:"status"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Sets          []Set          `json:"sets,omitempty"`
}

// Key returns the composite identity of the exercise.
func (p ExerciseProgress) Key() ExerciseKey {
	return ExerciseKey{ExerciseID: p.ExerciseID, RoutineExerciseID: p.RoutineExerciseID}
}

// ActiveSession is a workout instance as returned by the session collaborator.
type ActiveSession struct {
	ID                string             `json:"id"`
	RoutineID         string             `json:"routine_id"`
	StartedAt         time.Time          `json:"started_at"`
	EndedAt           *time.Time         `json:"ended_at,omitempty"`
	WarmupStartedAt   *time.Time         `json:"warmup_started_at,omitempty"`
	WarmupCompletedAt *time.Time         `json:"warmup_completed_at,omitempty"`
	Exercises         []ExerciseProgress `json:"exercises,omitempty"`
}

// ActiveSessionView bundles the active session with the routines it may
// originate from. Session is nil when no workout is active.
type ActiveSessionView struct {
	Session  *ActiveSession `json:"session"`
	Routines []Routine      `json:"routines"`
}

// ExerciseStart asks the collaborator to mark an exercise in progress.
type ExerciseStart struct {
	ExerciseKey
	StartedAt time.Time `json:"started_at"`
}

// ExerciseCompletion asks the collaborator to finish or skip an exercise.
type ExerciseCompletion struct {
	ExerciseKey
	CompletedAt time.Time `json:"completed_at"`
	Skipped     bool      `json:"skipped,omitempty"`
}

// WarmupEvent records a warmup start or completion instant.
type WarmupEvent struct {
	At time.Time `json:"at"`
}

// SetPayload is a set-creation call for the session collaborator.
type SetPayload struct {
	ExerciseKey
	SetIndex    int       `json:"set_index"`
	Reps        int       `json:"reps"`
	Weight      *float64  `json:"weight,omitempty"`
	BandLabel   string    `json:"band_label,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// SetResult is the persisted set together with the updated exercise progress.
type SetResult struct {
	Set      Set              `json:"set"`
	Progress ExerciseProgress `json:"progress"`
}
