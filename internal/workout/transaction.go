package workout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/claude/repguide/internal/models"
)

// finishPlan is one exercise's share of a finish transaction. Payloads and
// deletions are planned before any collaborator call is made.
type finishPlan struct {
	exercise   models.SessionExercise
	payloads   []models.SetPayload
	deletes    []models.Set
	completion models.ExerciseCompletion
}

type committedSet struct {
	key models.ExerciseKey
	set models.Set
}

// restoredSet is a deleted set created again during rollback under a new id.
type restoredSet struct {
	key   models.ExerciseKey
	oldID string
	set   models.Set
}

// finishTxn creates the sets, deletes the force-unchecked sets and completes
// the exercises of its plans in order. Any failure undoes what already
// succeeded: completed exercises are reopened, deleted sets created again and
// created sets deleted, newest first.
//
// Creating a set starts a pending exercise on the collaborator and rollback
// cannot return it to pending. rolledBack carries the resulting progress so
// local state matches what was persisted.
type finishTxn struct {
	backend Backend
	log     *slog.Logger
	plans   []finishPlan

	created   []committedSet
	deleted   []committedSet
	completed []finishPlan
	progress  []models.ExerciseProgress
	started   map[models.ExerciseKey]time.Time

	restored   []restoredSet
	rolledBack []models.ExerciseProgress
}

func (t *finishTxn) commit(ctx context.Context) error {
	for _, p := range t.plans {
		key := p.exercise.Key()
		for _, payload := range p.payloads {
			res, err := t.backend.CreateSet(ctx, payload)
			if err != nil {
				return t.abort(ctx, fmt.Errorf("create set %d of %s: %w", payload.SetIndex, p.exercise.Name, err))
			}
			t.markStarted(p.exercise, payload.StartedAt)
			t.created = append(t.created, committedSet{key: key, set: res.Set})
		}
		for _, set := range p.deletes {
			if err := t.backend.DeleteSet(ctx, set.ID); err != nil {
				return t.abort(ctx, fmt.Errorf("delete set %d of %s: %w", set.SetIndex, p.exercise.Name, err))
			}
			t.deleted = append(t.deleted, committedSet{key: key, set: set})
		}
		prog, err := t.backend.CompleteExercise(ctx, p.completion)
		if err != nil {
			return t.abort(ctx, fmt.Errorf("complete %s: %w", p.exercise.Name, err))
		}
		t.completed = append(t.completed, p)
		if prog != nil {
			t.progress = append(t.progress, *prog)
		}
	}
	return nil
}

func (t *finishTxn) markStarted(ex models.SessionExercise, at time.Time) {
	if ex.Status != models.StatusPending {
		return
	}
	if t.started == nil {
		t.started = make(map[models.ExerciseKey]time.Time)
	}
	if _, ok := t.started[ex.Key()]; !ok {
		t.started[ex.Key()] = at
	}
}

// abort compensates everything committed so far and returns cause combined
// with any compensation failure.
func (t *finishTxn) abort(ctx context.Context, cause error) error {
	err := cause
	reopened := make(map[models.ExerciseKey]bool)
	for i := len(t.completed) - 1; i >= 0; i-- {
		p := t.completed[i]
		key := p.exercise.Key()
		start := p.completion.CompletedAt
		if at, ok := t.started[key]; ok {
			start = at
		}
		if p.exercise.StartedAt != nil {
			start = *p.exercise.StartedAt
		}
		prog, rerr := t.backend.StartExercise(ctx, models.ExerciseStart{ExerciseKey: key, StartedAt: start})
		if rerr != nil {
			err = multierr.Append(err, fmt.Errorf("reopen %s: %w", p.exercise.Name, rerr))
			continue
		}
		reopened[key] = true
		if prog != nil {
			t.rolledBack = append(t.rolledBack, *prog)
		}
	}
	for i := len(t.deleted) - 1; i >= 0; i-- {
		ds := t.deleted[i]
		res, rerr := t.backend.CreateSet(ctx, restorePayload(ds.key, ds.set))
		if rerr != nil {
			err = multierr.Append(err, fmt.Errorf("restore set %s: %w", ds.set.ID, rerr))
			continue
		}
		t.restored = append(t.restored, restoredSet{key: ds.key, oldID: ds.set.ID, set: res.Set})
	}
	for i := len(t.created) - 1; i >= 0; i-- {
		cs := t.created[i]
		if derr := t.backend.DeleteSet(ctx, cs.set.ID); derr != nil {
			err = multierr.Append(err, fmt.Errorf("delete set %s: %w", cs.set.ID, derr))
		}
	}
	for _, p := range t.plans {
		key := p.exercise.Key()
		at, ok := t.started[key]
		if !ok || reopened[key] {
			continue
		}
		t.rolledBack = append(t.rolledBack, models.ExerciseProgress{
			ExerciseID: key.ExerciseID, RoutineExerciseID: key.RoutineExerciseID,
			Status: models.StatusInProgress, StartedAt: &at,
		})
	}
	if n := len(multierr.Errors(err)); n > 1 {
		t.log.Error("finish rollback incomplete", "failures", n-1, "error", err)
	}
	t.created, t.deleted, t.completed, t.progress = nil, nil, nil, nil
	return err
}

// restorePayload rebuilds the creation call of a persisted set.
func restorePayload(key models.ExerciseKey, s models.Set) models.SetPayload {
	p := models.SetPayload{
		ExerciseKey: key,
		SetIndex:    s.SetIndex,
		Reps:        s.Reps,
		Weight:      s.Weight,
		BandLabel:   s.BandLabel,
	}
	if s.CompletedAt != nil {
		p.CompletedAt = *s.CompletedAt
	}
	p.StartedAt = p.CompletedAt
	if s.StartedAt != nil {
		p.StartedAt = *s.StartedAt
	}
	return p
}

// reconcilePlan turns the displayed exercise's overrides into collaborator
// calls before focus moves away from it.
type reconcilePlan struct {
	key     models.ExerciseKey
	creates []models.SetPayload
	deletes []models.Set
}

func (p reconcilePlan) empty() bool {
	return len(p.creates) == 0 && len(p.deletes) == 0
}

// planReconcile builds the creations for locally checked rows without a
// persisted set and the deletions for force-unchecked persisted sets.
func planReconcile(ex models.SessionExercise, o Overrides, now time.Time, defaultBand string) (reconcilePlan, error) {
	plan := reconcilePlan{key: ex.Key()}
	start := now
	if ex.StartedAt != nil {
		start = *ex.StartedAt
	}
	creates, err := SynthesizeMissingSets(SynthesisInput{
		Exercise:         ex,
		Checks:           o.Checks,
		StartedAt:        start,
		FinishedAt:       now,
		DefaultBandLabel: defaultBand,
	})
	if err != nil {
		return reconcilePlan{}, err
	}
	plan.creates = creates
	plan.deletes = forceUnchecked(ex, o)
	return plan, nil
}

// forceUnchecked returns the persisted sets of ex whose rows were unchecked
// locally.
func forceUnchecked(ex models.SessionExercise, o Overrides) []models.Set {
	var sets []models.Set
	for idx := 1; idx <= ex.SetCount(); idx++ {
		if !o.Unchecked[idx] {
			continue
		}
		if set, ok := ex.PersistedSet(idx); ok {
			sets = append(sets, set)
		}
	}
	return sets
}
