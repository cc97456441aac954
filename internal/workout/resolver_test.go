package workout

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/claude/repguide/internal/models"
)

// TestValidateReadiness verifies every offender is named with all missing fields.
func TestValidateReadiness(t *testing.T) {
	noSets := exercise("curl", 1, 0, 10, 12)
	noSets.Name = "Curl"
	noAll := exercise("row", 2, 0, 0, 0)
	noAll.Name = "Row"
	band := exercise("pull", 3, 3, 10, 0)
	band.Equipment = "Band"
	ok := exercise("bench", 4, 3, 8, 60)

	err := ValidateReadiness(steps(models.WarmupStep{}, noSets, noAll, band, ok))
	var re *ReadinessError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *ReadinessError", err)
	}
	if len(re.Issues) != 2 {
		t.Fatalf("len(issues) = %d, want 2", len(re.Issues))
	}
	if !reflect.DeepEqual(re.Issues[0].Missing, []string{FieldSets}) {
		t.Errorf("curl missing = %v, want [sets]", re.Issues[0].Missing)
	}
	if !reflect.DeepEqual(re.Issues[1].Missing, []string{FieldSets, FieldReps, FieldWeight}) {
		t.Errorf("row missing = %v, want [sets reps weight]", re.Issues[1].Missing)
	}
	if msg := err.Error(); !strings.Contains(msg, "Curl (sets)") || !strings.Contains(msg, "Row (sets, reps, weight)") {
		t.Errorf("message = %q", msg)
	}

	if err := ValidateReadiness(steps(ok, band)); err != nil {
		t.Errorf("ready workout: %v", err)
	}
}

// TestBuildSupersetPairings verifies only adjacent two-member groups pair.
func TestBuildSupersetPairings(t *testing.T) {
	a := exercise("a", 1, 3, 8, 10)
	b := exercise("b", 2, 3, 8, 10)
	c := exercise("c", 3, 3, 8, 10)
	d := exercise("d", 4, 3, 8, 10)
	a.SupersetGroup, b.SupersetGroup = "x", "x"
	c.SupersetGroup = "y"
	d.SupersetGroup = "z"

	pairs := BuildSupersetPairings(steps(models.WarmupStep{}, a, b, c, d))
	if p, ok := pairs.Partner(a.Key()); !ok || p != b.Key() {
		t.Errorf("partner(a) = %v, %v; want b", p, ok)
	}
	if p, ok := pairs.Partner(b.Key()); !ok || p != a.Key() {
		t.Errorf("partner(b) = %v, %v; want a", p, ok)
	}
	if _, ok := pairs.Partner(c.Key()); ok {
		t.Error("single-member group paired")
	}

	// Non-adjacent members do not pair.
	a.SupersetGroup, c.SupersetGroup, b.SupersetGroup = "x", "x", ""
	if pairs := BuildSupersetPairings(steps(a, b, c)); len(pairs) != 0 {
		t.Errorf("non-adjacent pairs = %v, want none", pairs)
	}

	// Three members yield no pairing for anyone.
	a.SupersetGroup, b.SupersetGroup, c.SupersetGroup = "x", "x", "x"
	if pairs := BuildSupersetPairings(steps(a, b, c)); len(pairs) != 0 {
		t.Errorf("three-member pairs = %v, want none", pairs)
	}
}

// TestResolveCurrentStep verifies the focus priority order.
func TestResolveCurrentStep(t *testing.T) {
	done := exercise("a", 1, 2, 8, 10)
	done.Status = models.StatusCompleted
	satisfied := exercise("b", 2, 1, 8, 10)
	satisfied.Sets = []models.Set{persisted("s", 1, t0)}
	pending := exercise("c", 3, 3, 8, 10)
	active := exercise("d", 4, 3, 8, 10)
	active.Status = models.StatusInProgress

	all := steps(done, satisfied, pending, active)

	sel := done.Key()
	if st, _ := ResolveCurrentStep(all, &sel); st.StepKey() != done.Key() {
		t.Errorf("selected: got %v", st.StepKey())
	}
	if st, _ := ResolveCurrentStep(all, nil); st.StepKey() != active.Key() {
		t.Errorf("in progress: got %v", st.StepKey())
	}
	if st, _ := ResolveCurrentStep(steps(done, satisfied, pending), nil); st.StepKey() != pending.Key() {
		t.Errorf("first unsatisfied: got %v", st.StepKey())
	}
	if st, _ := ResolveCurrentStep(steps(done, satisfied), nil); st.StepKey() != done.Key() {
		t.Errorf("fallback: got %v", st.StepKey())
	}
	gone := models.ExerciseKey{ExerciseID: "gone"}
	if st, _ := ResolveCurrentStep(all, &gone); st.StepKey() != active.Key() {
		t.Errorf("stale selection: got %v", st.StepKey())
	}
	if _, ok := ResolveCurrentStep(nil, nil); ok {
		t.Error("empty steps resolved")
	}
}

// TestResolveNextPending verifies partner preference, forward search and wrap.
func TestResolveNextPending(t *testing.T) {
	a := exercise("a", 1, 3, 8, 10)
	b := exercise("b", 2, 3, 8, 10)
	c := exercise("c", 3, 3, 8, 10)
	d := exercise("d", 4, 3, 8, 10)
	all := steps(models.WarmupStep{}, a, b, c, d)

	if next, _ := ResolveNextPendingExercise(all, nil, b.Key()); next.Key() != c.Key() {
		t.Errorf("forward: got %v, want c", next.Key())
	}
	if next, _ := ResolveNextPendingExercise(all, nil, d.Key()); next.Key() != a.Key() {
		t.Errorf("wrap: got %v, want a", next.Key())
	}
	pairs := Pairings{b.Key(): d.Key(), d.Key(): b.Key()}
	if next, _ := ResolveNextPendingExercise(all, pairs, b.Key()); next.Key() != d.Key() {
		t.Errorf("partner: got %v, want d", next.Key())
	}
	if next, _ := ResolveNextPendingExercise(all, nil, a.Key(), b.Key()); next.Key() != c.Key() {
		t.Errorf("exclude: got %v, want c", next.Key())
	}
	if _, ok := ResolveNextPendingExercise(steps(a), nil, a.Key()); ok {
		t.Error("resolved next with nothing pending")
	}
}

// TestAdjacentExercise verifies neighbours skip the warmup.
func TestAdjacentExercise(t *testing.T) {
	a := exercise("a", 1, 3, 8, 10)
	b := exercise("b", 2, 3, 8, 10)
	all := steps(models.WarmupStep{}, a, b)

	if ex, ok := AdjacentExercise(all, models.WarmupKey, 1); !ok || ex.Key() != a.Key() {
		t.Errorf("from warmup = %v %v, want a", ex.Key(), ok)
	}
	if _, ok := AdjacentExercise(all, a.Key(), -1); ok {
		t.Error("previous of first exercise resolved")
	}
	if ex, _ := AdjacentExercise(all, a.Key(), 1); ex.Key() != b.Key() {
		t.Errorf("next of a = %v, want b", ex.Key())
	}
	if _, ok := AdjacentExercise(all, b.Key(), 1); ok {
		t.Error("next of last exercise resolved")
	}
}
