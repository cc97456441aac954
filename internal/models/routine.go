package models

import "strings"

// RoutineType classifies a routine template.
type RoutineType string

const (
	RoutineStrength       RoutineType = "strength"
	RoutineHypertrophy    RoutineType = "hypertrophy"
	RoutineRehabilitation RoutineType = "rehabilitation"
)

// QualifiesForWarmup reports whether sessions of this routine type get a
// synthetic warmup step. Rehabilitation routines do not.
func (t RoutineType) QualifiesForWarmup() bool {
	switch strings.ToLower(strings.TrimSpace(string(t))) {
	case "rehabilitation", "rehab":
		return false
	}
	return true
}

// Routine is a workout template.
type Routine struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Type      RoutineType       `json:"type" yaml:"type"`
	Exercises []RoutineExercise `json:"exercises" yaml:"exercises"`
}

// RoutineExercise is one slot of a routine template. ID is the
// routine-exercise identity used in ExerciseKey.RoutineExerciseID.
type RoutineExercise struct {
	ID            string    `json:"id" yaml:"id"`
	ExerciseID    string    `json:"exercise_id" yaml:"exercise_id"`
	Name          string    `json:"name" yaml:"name"`
	Equipment     Equipment `json:"equipment" yaml:"equipment"`
	Targets       `yaml:",inline"`
	Position      int    `json:"position" yaml:"position"`
	SupersetGroup string `json:"superset_group,omitempty" yaml:"superset_group,omitempty"`
}

// Key returns the composite identity the slot takes inside a session.
func (r RoutineExercise) Key() ExerciseKey {
	return ExerciseKey{ExerciseID: r.ExerciseID, RoutineExerciseID: r.ID}
}

// TargetUpdate changes the next-session target weight of a routine slot.
type TargetUpdate struct {
	RoutineID         string    `json:"routine_id"`
	ExerciseID        string    `json:"exercise_id"`
	RoutineExerciseID string    `json:"routine_exercise_id,omitempty"`
	Equipment         Equipment `json:"equipment"`
	TargetWeight      float64   `json:"target_weight"`
}

// TargetResult is the persisted target. Queued and Offline are set together
// when the write was deferred rather than applied.
type TargetResult struct {
	TargetUpdate
	Queued  bool `json:"queued,omitempty"`
	Offline bool `json:"offline,omitempty"`
}

// Deferred reports whether the write was queued for later delivery.
func (r TargetResult) Deferred() bool {
	return r.Queued && r.Offline
}
