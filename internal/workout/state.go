package workout

import (
	"time"

	"github.com/claude/repguide/internal/models"
)

// State is the guided-session state. It is treated as immutable: Reduce
// returns a new State and never mutates the one passed in.
type State struct {
	Session   Session
	Selected  *models.ExerciseKey
	Overrides map[models.ExerciseKey]Overrides
	Guided    bool
	Notice    string
}

// Action is a state transition.
type Action interface {
	apply(State) State
}

// Reduce applies a to s.
func Reduce(s State, a Action) State {
	return a.apply(s)
}

// Current resolves the step in focus.
func (s State) Current() (models.Step, bool) {
	return ResolveCurrentStep(s.Session.Steps, s.Selected)
}

// Rows builds the checklist of the exercise keyed by key.
func (s State) Rows(key models.ExerciseKey) []ChecklistRow {
	ex, ok := s.Session.Exercise(key)
	if !ok {
		return nil
	}
	return BuildChecklistRows(ex, s.Overrides[key])
}

func (s State) withOverrides(key models.ExerciseKey, o Overrides) State {
	next := make(map[models.ExerciseKey]Overrides, len(s.Overrides)+1)
	for k, v := range s.Overrides {
		next[k] = v
	}
	if o.Empty() {
		delete(next, key)
	} else {
		next[key] = o
	}
	s.Overrides = next
	return s
}

// withExercise replaces the exercise keyed by key with fn's result.
func (s State) withExercise(key models.ExerciseKey, fn func(models.SessionExercise) models.SessionExercise) State {
	steps := make([]models.Step, len(s.Session.Steps))
	copy(steps, s.Session.Steps)
	for i, st := range steps {
		if ex, ok := st.(models.SessionExercise); ok && ex.Key() == key {
			steps[i] = fn(ex)
		}
	}
	s.Session.Steps = steps
	return s
}

// SessionLoaded replaces the session wholesale. Overrides for keys that no
// longer exist are dropped; a different session drops all of them.
type SessionLoaded struct {
	Session Session
}

func (a SessionLoaded) apply(s State) State {
	sameSession := s.Session.ID == a.Session.ID
	s.Session = a.Session
	next := make(map[models.ExerciseKey]Overrides)
	if sameSession {
		for k, o := range s.Overrides {
			if _, ok := a.Session.Exercise(k); ok {
				next[k] = o
			}
		}
	} else {
		s.Selected = nil
		s.Guided = false
	}
	s.Overrides = next
	return s
}

// ExerciseSelected moves focus to Key.
type ExerciseSelected struct {
	Key models.ExerciseKey
}

func (a ExerciseSelected) apply(s State) State {
	k := a.Key
	s.Selected = &k
	return s
}

// SetToggled records a local check or uncheck of one checklist row.
type SetToggled struct {
	Key      models.ExerciseKey
	SetIndex int
	Checked  bool
	At       time.Time
}

func (a SetToggled) apply(s State) State {
	ex, ok := s.Session.Exercise(a.Key)
	if !ok || a.SetIndex < 1 || a.SetIndex > ex.SetCount() {
		return s
	}
	_, locked := ex.PersistedSet(a.SetIndex)
	o := s.Overrides[a.Key].clone()
	if a.Checked {
		delete(o.Unchecked, a.SetIndex)
		if !locked {
			o.Checks[a.SetIndex] = a.At
		}
	} else {
		delete(o.Checks, a.SetIndex)
		if locked {
			o.Unchecked[a.SetIndex] = true
		}
	}
	return s.withOverrides(a.Key, o)
}

// OverridesCleared drops every local edit of Key.
type OverridesCleared struct {
	Key models.ExerciseKey
}

func (a OverridesCleared) apply(s State) State {
	return s.withOverrides(a.Key, Overrides{})
}

// ProgressApplied merges a collaborator progress update into its exercise.
type ProgressApplied struct {
	Progress models.ExerciseProgress
}

func (a ProgressApplied) apply(s State) State {
	p := a.Progress
	return s.withExercise(p.Key(), func(ex models.SessionExercise) models.SessionExercise {
		if p.Status != "" {
			ex.Status = p.Status
		}
		if p.StartedAt != nil {
			ex.StartedAt = p.StartedAt
		}
		if p.CompletedAt != nil {
			ex.CompletedAt = p.CompletedAt
		}
		if p.Sets != nil {
			ex.Sets = dedupeSets(p.Sets)
		}
		return ex
	})
}

// SetCommitted adds a persisted set and retires the local check it replaces.
type SetCommitted struct {
	Key models.ExerciseKey
	Set models.Set
}

func (a SetCommitted) apply(s State) State {
	s = s.withExercise(a.Key, func(ex models.SessionExercise) models.SessionExercise {
		sets := make([]models.Set, 0, len(ex.Sets)+1)
		for _, st := range ex.Sets {
			if st.SetIndex == a.Set.SetIndex && !st.Persisted() {
				continue
			}
			sets = append(sets, st)
		}
		ex.Sets = dedupeSets(append(sets, a.Set))
		return ex
	})
	o := s.Overrides[a.Key].clone()
	delete(o.Checks, a.Set.SetIndex)
	return s.withOverrides(a.Key, o)
}

// SetRemoved drops a deleted set and its force-uncheck override.
type SetRemoved struct {
	Key   models.ExerciseKey
	SetID string
}

func (a SetRemoved) apply(s State) State {
	removedIdx := 0
	s = s.withExercise(a.Key, func(ex models.SessionExercise) models.SessionExercise {
		sets := make([]models.Set, 0, len(ex.Sets))
		for _, st := range ex.Sets {
			if st.ID == a.SetID {
				removedIdx = st.SetIndex
				continue
			}
			sets = append(sets, st)
		}
		ex.Sets = sets
		return ex
	})
	if removedIdx == 0 {
		return s
	}
	o := s.Overrides[a.Key].clone()
	delete(o.Unchecked, removedIdx)
	return s.withOverrides(a.Key, o)
}

// WarmupUpdated replaces the warmup step's progress.
type WarmupUpdated struct {
	Warmup models.WarmupStep
}

func (a WarmupUpdated) apply(s State) State {
	steps := make([]models.Step, len(s.Session.Steps))
	copy(steps, s.Session.Steps)
	for i, st := range steps {
		if _, ok := st.(models.WarmupStep); ok {
			steps[i] = a.Warmup
		}
	}
	s.Session.Steps = steps
	return s
}

// GuidedStarted marks guided mode as entered.
type GuidedStarted struct{}

func (GuidedStarted) apply(s State) State {
	s.Guided = true
	return s
}

// NoticeSet shows (or with an empty Message clears) the transient notice.
type NoticeSet struct {
	Message string
}

func (a NoticeSet) apply(s State) State {
	s.Notice = a.Message
	return s
}
