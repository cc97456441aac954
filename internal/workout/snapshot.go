package workout

import (
	"github.com/claude/repguide/internal/models"
	"github.com/claude/repguide/internal/targetweight"
)

// StepView is the render model of one step.
type StepView struct {
	Key          models.ExerciseKey    `json:"key"`
	Name         string                `json:"name"`
	Warmup       bool                  `json:"warmup,omitempty"`
	Status       models.ExerciseStatus `json:"status"`
	Position     int                   `json:"position"`
	Equipment    models.Equipment      `json:"equipment,omitempty"`
	Targets      models.Targets        `json:"targets"`
	Current      bool                  `json:"current,omitempty"`
	Partner      *models.ExerciseKey   `json:"partner,omitempty"`
	Rows         []ChecklistRow        `json:"rows,omitempty"`
	TargetWeight *targetweight.View    `json:"target_weight,omitempty"`
}

// Snapshot is a consistent copy of the guide's state for rendering.
type Snapshot struct {
	SessionID  string             `json:"session_id"`
	RoutineID  string             `json:"routine_id"`
	Guided     bool               `json:"guided"`
	Finishing  bool               `json:"finishing,omitempty"`
	Navigating bool               `json:"navigating,omitempty"`
	Notice     string             `json:"notice,omitempty"`
	Current    models.ExerciseKey `json:"current"`
	Steps      []StepView         `json:"steps"`
}

// Snapshot returns the current render model.
func (g *Guide) Snapshot() Snapshot {
	g.mu.Lock()
	s := g.state
	snap := Snapshot{
		SessionID:  s.Session.ID,
		RoutineID:  s.Session.RoutineID,
		Guided:     s.Guided,
		Finishing:  g.finishing,
		Navigating: g.navigating,
		Notice:     s.Notice,
	}
	g.mu.Unlock()

	snap.Steps = BuildStepViews(s)
	for _, v := range snap.Steps {
		if v.Current {
			snap.Current = v.Key
		}
	}
	if g.weights == nil {
		return snap
	}
	for i, v := range snap.Steps {
		ex, ok := s.Session.Exercise(v.Key)
		if !ok || !targetweight.Eligible(ex) {
			continue
		}
		if tw, ok := g.weights.View(targetweight.KeyFor(s.Session.RoutineID, ex)); ok {
			snap.Steps[i].TargetWeight = &tw
		}
	}
	return snap
}

// BuildStepViews derives the step list of s, marking the step in focus and
// each exercise's superset partner.
func BuildStepViews(s State) []StepView {
	cur, hasCurrent := s.Current()
	pairs := BuildSupersetPairings(s.Session.Steps)
	views := make([]StepView, 0, len(s.Session.Steps))
	for _, st := range s.Session.Steps {
		v := StepView{
			Key:      st.StepKey(),
			Status:   st.StepStatus(),
			Position: st.StepPosition(),
			Current:  hasCurrent && st.StepKey() == cur.StepKey(),
		}
		switch x := st.(type) {
		case models.WarmupStep:
			v.Name = "Warmup"
			v.Warmup = true
		case models.SessionExercise:
			v.Name = x.Name
			v.Equipment = x.Equipment
			v.Targets = x.Targets
			v.Rows = BuildChecklistRows(x, s.Overrides[x.Key()])
			if pk, ok := pairs.Partner(x.Key()); ok {
				v.Partner = &pk
			}
		}
		views = append(views, v)
	}
	return views
}
