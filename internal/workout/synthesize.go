package workout

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/claude/repguide/internal/models"
)

var (
	// ErrUnresolvedReps means neither an explicit rep target nor a parsable range exists.
	ErrUnresolvedReps = errors.New("target reps unresolved")
	// ErrUnresolvedWeight means no usable load could be derived for the equipment.
	ErrUnresolvedWeight = errors.New("target weight unresolved")
)

// SynthesisInput describes one back-fill request for an exercise.
type SynthesisInput struct {
	Exercise models.SessionExercise
	// Checks are local check instants by set index.
	Checks map[int]time.Time
	// StartedAt and FinishedAt bound the interpolation window.
	StartedAt  time.Time
	FinishedAt time.Time
	// IncludeUnchecked back-fills every missing index, checked or not.
	IncludeUnchecked bool
	// DefaultBandLabel is used for band equipment without a target label.
	DefaultBandLabel string
}

// SynthesizeMissingSets returns the set-creation payloads that back-fill
// target set indices without a persisted set. An index is emitted when it was
// checked locally or when IncludeUnchecked is set.
//
// When at least one payload is needed but reps or load cannot be resolved,
// no payloads are returned at all together with ErrUnresolvedReps or
// ErrUnresolvedWeight; callers must abort rather than commit a partial result.
func SynthesizeMissingSets(in SynthesisInput) ([]models.SetPayload, error) {
	ex := in.Exercise
	n := ex.SetCount()

	var wanted []int
	for idx := 1; idx <= n; idx++ {
		if _, ok := ex.PersistedSet(idx); ok {
			continue
		}
		if _, checked := in.Checks[idx]; checked || in.IncludeUnchecked {
			wanted = append(wanted, idx)
		}
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	reps, ok := ResolveTargetReps(ex.Targets)
	if !ok {
		return nil, ErrUnresolvedReps
	}
	weight, band, ok := ResolveSetLoad(ex, in.DefaultBandLabel)
	if !ok {
		return nil, ErrUnresolvedWeight
	}

	payloads := make([]models.SetPayload, 0, len(wanted))
	for _, idx := range wanted {
		at, checked := in.Checks[idx]
		if !checked {
			at = InterpolateTimestampForSetIndex(idx, n, in.StartedAt, in.FinishedAt)
		}
		p := models.SetPayload{
			ExerciseKey: ex.Key(),
			SetIndex:    idx,
			Reps:        reps,
			BandLabel:   band,
			StartedAt:   at,
			CompletedAt: at,
		}
		if weight != nil {
			w := *weight
			p.Weight = &w
		}
		payloads = append(payloads, p)
	}
	return payloads, nil
}

// InterpolateTimestampForSetIndex spreads set indices linearly between start
// and finish: index i of count maps to start + (finish-start)*(i-1)/(count-1).
// With count <= 1 the result is finish.
func InterpolateTimestampForSetIndex(setIndex, count int, start, finish time.Time) time.Time {
	if count <= 1 {
		return finish
	}
	span := finish.Sub(start)
	offset := time.Duration(float64(span) * float64(setIndex-1) / float64(count-1))
	return start.Add(offset)
}

// ResolveTargetReps returns the explicit positive rep target, else the lower
// bound of a "min-max" range such as "8-12".
func ResolveTargetReps(t models.Targets) (int, bool) {
	if t.Reps != nil && *t.Reps > 0 {
		return *t.Reps, true
	}
	return parseRangeMin(t.RepsRange)
}

func parseRangeMin(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	// Accept hyphen, en dash and "to" separators.
	s = strings.NewReplacer("–", "-", "—", "-", " to ", "-").Replace(s)
	lo, _, _ := strings.Cut(s, "-")
	n, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ResolveSetLoad derives the load of a synthesized set. Bodyweight equipment
// logs weight 0, band equipment logs a band label, everything else needs an
// explicit finite positive target weight. A target weight of exactly zero is
// treated like a missing one.
func ResolveSetLoad(ex models.SessionExercise, defaultBand string) (weight *float64, band string, ok bool) {
	switch {
	case ex.Equipment.IsBodyweight():
		zero := 0.0
		return &zero, "", true
	case ex.Equipment.IsBand():
		label := strings.TrimSpace(ex.BandLabel)
		if label == "" {
			label = strings.TrimSpace(defaultBand)
		}
		if label == "" {
			return nil, "", false
		}
		return nil, label, true
	}
	if !validWeight(ex.Weight) {
		return nil, "", false
	}
	w := *ex.Weight
	return &w, "", true
}

func validWeight(w *float64) bool {
	return w != nil && *w > 0 && !math.IsInf(*w, 0) && !math.IsNaN(*w)
}
