package workout

import (
	"fmt"
	"strings"

	"github.com/claude/repguide/internal/models"
)

// Names used in ReadinessIssue.Missing.
const (
	FieldSets   = "sets"
	FieldReps   = "reps"
	FieldWeight = "weight"
)

// ReadinessIssue lists the targets one exercise is missing.
type ReadinessIssue struct {
	Key     models.ExerciseKey `json:"key"`
	Name    string             `json:"name"`
	Missing []string           `json:"missing"`
}

// ReadinessError refuses guided mode. It names every offending exercise.
type ReadinessError struct {
	Issues []ReadinessIssue
}

func (e *ReadinessError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		name := is.Name
		if name == "" {
			name = is.Key.String()
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, strings.Join(is.Missing, ", ")))
	}
	return "workout not ready, missing targets: " + strings.Join(parts, "; ")
}

// MissingTargets returns the names of the targets ex cannot resolve:
// a positive set count, a positive rep target (explicit or range minimum) and,
// unless the equipment is bodyweight or band, a finite positive weight.
func MissingTargets(ex models.SessionExercise) []string {
	var missing []string
	if ex.SetCount() == 0 {
		missing = append(missing, FieldSets)
	}
	if _, ok := ResolveTargetReps(ex.Targets); !ok {
		missing = append(missing, FieldReps)
	}
	if !ex.Equipment.IsBodyweight() && !ex.Equipment.IsBand() && !validWeight(ex.Weight) {
		missing = append(missing, FieldWeight)
	}
	return missing
}

// ValidateReadiness checks every non-warmup exercise and returns a
// *ReadinessError collecting all violations, or nil.
func ValidateReadiness(steps []models.Step) error {
	var issues []ReadinessIssue
	for _, st := range steps {
		ex, ok := st.(models.SessionExercise)
		if !ok {
			continue
		}
		if missing := MissingTargets(ex); len(missing) > 0 {
			issues = append(issues, ReadinessIssue{Key: ex.Key(), Name: ex.Name, Missing: missing})
		}
	}
	if len(issues) == 0 {
		return nil
	}
	return &ReadinessError{Issues: issues}
}
