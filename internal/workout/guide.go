package workout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/repguide/internal/models"
	"github.com/claude/repguide/internal/targetweight"
)

var (
	// ErrBusy is returned when a finish or navigation is already running.
	ErrBusy = errors.New("another workout action is in progress")
	// ErrNoSession is returned when no workout is active.
	ErrNoSession = errors.New("no active workout")
	// ErrNoExercise is returned when the requested step does not exist or the
	// step in focus is not a real exercise.
	ErrNoExercise = errors.New("no such exercise")
)

// Backend is the session collaborator the guide talks to. Both the local
// database and the HTTP API client implement it.
type Backend interface {
	FetchActiveSession(ctx context.Context) (*models.ActiveSessionView, error)
	FetchSession(ctx context.Context, id string) (*models.ActiveSessionView, error)
	StartExercise(ctx context.Context, req models.ExerciseStart) (*models.ExerciseProgress, error)
	CompleteExercise(ctx context.Context, req models.ExerciseCompletion) (*models.ExerciseProgress, error)
	CreateSet(ctx context.Context, p models.SetPayload) (*models.SetResult, error)
	DeleteSet(ctx context.Context, setID string) error
	StartWarmup(ctx context.Context, ev models.WarmupEvent) error
	CompleteWarmup(ctx context.Context, ev models.WarmupEvent) error
}

// Options tunes a Guide.
type Options struct {
	// DefaultBandLabel is logged for band exercises without a target label.
	DefaultBandLabel string
	// NoticeTTL is how long a transient notice stays visible.
	NoticeTTL time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Guide drives one guided workout. All methods are safe for concurrent use;
// collaborator calls are made without holding the state lock.
type Guide struct {
	backend Backend
	weights *targetweight.Queue
	log     *slog.Logger
	opts    Options

	mu          sync.Mutex
	state       State
	finishing   bool
	navigating  bool
	noticeTimer *time.Timer
	closed      bool
}

// New creates a Guide. weights may be nil, which disables target-weight edits.
func New(backend Backend, weights *targetweight.Queue, opts Options, log *slog.Logger) *Guide {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NoticeTTL <= 0 {
		opts.NoticeTTL = 4 * time.Second
	}
	return &Guide{backend: backend, weights: weights, opts: opts, log: log}
}

// Close stops the notice timer. It does not close the weight queue.
func (g *Guide) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	if g.noticeTimer != nil {
		g.noticeTimer.Stop()
		g.noticeTimer = nil
	}
}

// Refresh reloads the active session from the collaborator.
func (g *Guide) Refresh(ctx context.Context) error {
	return g.refresh(ctx, false)
}

// SyncComplete is called after queued offline writes were delivered. It
// reloads the session so deferred values and statuses are replaced by the
// server's.
func (g *Guide) SyncComplete(ctx context.Context) error {
	return g.refresh(ctx, true)
}

func (g *Guide) refresh(ctx context.Context, synced bool) error {
	view, err := g.backend.FetchActiveSession(ctx)
	if err != nil {
		return fmt.Errorf("fetch active session: %w", err)
	}
	sess := Normalize(view)

	g.mu.Lock()
	g.state = Reduce(g.state, SessionLoaded{Session: sess})
	g.mu.Unlock()

	if view != nil {
		g.trackWeights(sess, view.Routines, synced)
	}
	return nil
}

// SessionDetail loads and normalizes any session by id, outside guided mode.
func (g *Guide) SessionDetail(ctx context.Context, id string) (Session, error) {
	view, err := g.backend.FetchSession(ctx, id)
	if err != nil {
		return Session{}, fmt.Errorf("fetch session %s: %w", id, err)
	}
	return Normalize(view), nil
}

// trackWeights seeds the weight queue from the routine template. Session
// targets are copied when the session starts, so only the template reflects
// edits saved since.
func (g *Guide) trackWeights(sess Session, routines []models.Routine, synced bool) {
	if g.weights == nil {
		return
	}
	slots := make(map[models.ExerciseKey]models.RoutineExercise)
	if r := findRoutine(routines, sess.RoutineID); r != nil {
		for _, re := range r.Exercises {
			slots[re.Key()] = re
		}
	}
	for _, ex := range sess.Exercises() {
		if !targetweight.Eligible(ex) {
			continue
		}
		value := *ex.Weight
		if slot, ok := slots[ex.Key()]; ok && validWeight(slot.Weight) {
			value = *slot.Weight
		}
		track := g.weights.Track
		if synced {
			track = g.weights.Synced
		}
		if err := track(targetweight.KeyFor(sess.RoutineID, ex), value); err != nil {
			g.log.Debug("target weight not tracked", "exercise", ex.Key().String(), "error", err)
		}
	}
}

// Select moves focus to key.
func (g *Guide) Select(key models.ExerciseKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, st := range g.state.Session.Steps {
		if st.StepKey() == key {
			g.state = Reduce(g.state, ExerciseSelected{Key: key})
			return nil
		}
	}
	return ErrNoExercise
}

// StartGuided enters guided mode. Every exercise must resolve its set, rep and
// load targets; otherwise a *ReadinessError names all offenders and nothing
// is started.
func (g *Guide) StartGuided(ctx context.Context) error {
	g.mu.Lock()
	if len(g.state.Session.Steps) == 0 {
		g.mu.Unlock()
		return ErrNoSession
	}
	if err := ValidateReadiness(g.state.Session.Steps); err != nil {
		g.mu.Unlock()
		return err
	}
	g.state = Reduce(g.state, GuidedStarted{})
	cur, _ := g.state.Current()
	sessionID := g.state.Session.ID
	g.mu.Unlock()

	return g.startStep(ctx, sessionID, cur)
}

// StartWarmup records the warmup as started.
func (g *Guide) StartWarmup(ctx context.Context) error {
	g.mu.Lock()
	w, ok := g.state.Session.Warmup()
	sessionID := g.state.Session.ID
	g.mu.Unlock()
	if !ok {
		return ErrNoExercise
	}
	if w.Status != models.StatusPending {
		return nil
	}
	return g.startStep(ctx, sessionID, w)
}

// CompleteWarmup records the warmup as done and moves on to the first
// pending exercise.
func (g *Guide) CompleteWarmup(ctx context.Context) error {
	g.mu.Lock()
	if g.finishing || g.navigating {
		g.mu.Unlock()
		return ErrBusy
	}
	w, ok := g.state.Session.Warmup()
	if !ok {
		g.mu.Unlock()
		return ErrNoExercise
	}
	g.finishing = true
	sessionID := g.state.Session.ID
	g.mu.Unlock()

	return g.finishWarmup(ctx, sessionID, w)
}

func (g *Guide) finishWarmup(ctx context.Context, sessionID string, w models.WarmupStep) error {
	now := g.opts.Now()
	err := g.backend.CompleteWarmup(ctx, models.WarmupEvent{At: now})

	g.mu.Lock()
	g.finishing = false
	if g.state.Session.ID != sessionID {
		g.mu.Unlock()
		return nil
	}
	if err != nil {
		g.setNoticeLocked("Could not save warmup. Try again.")
		g.mu.Unlock()
		return fmt.Errorf("complete warmup: %w", err)
	}
	w.Status = models.StatusCompleted
	w.CompletedAt = &now
	if w.StartedAt == nil {
		w.StartedAt = &now
	}
	g.state = Reduce(g.state, WarmupUpdated{Warmup: w})
	next, ok := ResolveNextPendingExercise(g.state.Session.Steps, nil, models.WarmupKey)
	if ok {
		g.state = Reduce(g.state, ExerciseSelected{Key: next.Key()})
	}
	guided := g.state.Guided
	g.mu.Unlock()

	if ok && guided {
		return g.startStep(ctx, sessionID, next)
	}
	return nil
}

// startStep marks a pending step as started and applies the result.
func (g *Guide) startStep(ctx context.Context, sessionID string, st models.Step) error {
	if st == nil || st.StepStatus() != models.StatusPending {
		return nil
	}
	now := g.opts.Now()
	switch s := st.(type) {
	case models.WarmupStep:
		if err := g.backend.StartWarmup(ctx, models.WarmupEvent{At: now}); err != nil {
			return fmt.Errorf("start warmup: %w", err)
		}
		s.Status = models.StatusInProgress
		s.StartedAt = &now
		g.apply(sessionID, WarmupUpdated{Warmup: s})
	case models.SessionExercise:
		prog, err := g.backend.StartExercise(ctx, models.ExerciseStart{ExerciseKey: s.Key(), StartedAt: now})
		if err != nil {
			return fmt.Errorf("start %s: %w", s.Name, err)
		}
		if prog != nil {
			g.apply(sessionID, ProgressApplied{Progress: *prog})
		}
	}
	return nil
}

// apply reduces actions unless the session changed since sessionID was read.
func (g *Guide) apply(sessionID string, actions ...Action) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Session.ID != sessionID {
		return false
	}
	for _, a := range actions {
		g.state = Reduce(g.state, a)
	}
	return true
}

// ToggleSet checks or unchecks one row of the exercise in focus. Checking the
// last row of a superset member whose partner is ready finishes both. The
// toggle is kept, and nil returned, when that finish cannot start because
// another action is running.
func (g *Guide) ToggleSet(ctx context.Context, setIndex int, checked bool) error {
	g.mu.Lock()
	cur, ok := g.state.Current()
	ex, isExercise := cur.(models.SessionExercise)
	if !ok || !isExercise {
		g.mu.Unlock()
		return ErrNoExercise
	}
	if setIndex < 1 || setIndex > ex.SetCount() {
		g.mu.Unlock()
		return fmt.Errorf("set %d of %s: %w", setIndex, ex.Name, ErrNoExercise)
	}
	key := ex.Key()
	g.state = Reduce(g.state, SetToggled{Key: key, SetIndex: setIndex, Checked: checked, At: g.opts.Now()})

	partner, trigger := g.pairReadyLocked(key, checked)
	g.mu.Unlock()

	if !trigger {
		return nil
	}
	err := g.finishPair(ctx, key, partner)
	if errors.Is(err, ErrBusy) {
		g.log.Debug("superset finish deferred, another action running", "exercise", key.String())
		return nil
	}
	return err
}

// pairReadyLocked decides whether checking the last row of key should finish
// key together with its superset partner.
func (g *Guide) pairReadyLocked(key models.ExerciseKey, checked bool) (models.ExerciseKey, bool) {
	if !checked {
		return models.ExerciseKey{}, false
	}
	ex, ok := g.state.Session.Exercise(key)
	if !ok || ex.Status.Done() || !AllChecked(g.state.Rows(key)) {
		return models.ExerciseKey{}, false
	}
	steps := g.state.Session.Steps
	pk, ok := BuildSupersetPairings(steps).Partner(key)
	if !ok {
		return models.ExerciseKey{}, false
	}
	partner, ok := g.state.Session.Exercise(pk)
	if !ok || IsStepSatisfied(partner) {
		return models.ExerciseKey{}, false
	}
	others := PendingExercisesExcept(steps, key)
	lastPending := len(others) == 1 && others[0].Key() == pk
	if lastPending || AllChecked(g.state.Rows(pk)) {
		return pk, true
	}
	return models.ExerciseKey{}, false
}

// FinishExercise completes the step in focus, back-filling every target set
// that has no persisted set yet.
func (g *Guide) FinishExercise(ctx context.Context) error {
	return g.finishCurrent(ctx, false)
}

// SkipExercise marks the step in focus skipped. Only sets that were checked
// locally are persisted first. Persisted sets unchecked locally are deleted,
// as they are by FinishExercise.
func (g *Guide) SkipExercise(ctx context.Context) error {
	return g.finishCurrent(ctx, true)
}

func (g *Guide) finishCurrent(ctx context.Context, skipped bool) error {
	g.mu.Lock()
	if g.finishing || g.navigating {
		g.mu.Unlock()
		return ErrBusy
	}
	cur, ok := g.state.Current()
	if !ok {
		g.mu.Unlock()
		return ErrNoSession
	}
	sessionID := g.state.Session.ID

	if w, isWarmup := cur.(models.WarmupStep); isWarmup {
		g.finishing = true
		g.mu.Unlock()
		return g.finishWarmup(ctx, sessionID, w)
	}

	ex := cur.(models.SessionExercise)
	plan, err := g.planFinishLocked(ex, skipped, !skipped)
	if err != nil {
		g.setNoticeLocked(fmt.Sprintf("Cannot finish %s: %v", ex.Name, err))
		g.mu.Unlock()
		return fmt.Errorf("finish %s: %w", ex.Name, err)
	}
	g.finishing = true
	g.mu.Unlock()

	return g.runFinish(ctx, sessionID, []finishPlan{plan})
}

// finishPair finishes key and its partner as one unit.
func (g *Guide) finishPair(ctx context.Context, key, partner models.ExerciseKey) error {
	g.mu.Lock()
	if g.finishing || g.navigating {
		g.mu.Unlock()
		return ErrBusy
	}
	sessionID := g.state.Session.ID
	plans := make([]finishPlan, 0, 2)
	for _, k := range []models.ExerciseKey{key, partner} {
		ex, ok := g.state.Session.Exercise(k)
		if !ok {
			g.mu.Unlock()
			return ErrNoExercise
		}
		plan, err := g.planFinishLocked(ex, false, true)
		if err != nil {
			g.setNoticeLocked(fmt.Sprintf("Cannot finish %s: %v", ex.Name, err))
			g.mu.Unlock()
			return fmt.Errorf("finish superset %s: %w", ex.Name, err)
		}
		plans = append(plans, plan)
	}
	g.finishing = true
	g.mu.Unlock()

	return g.runFinish(ctx, sessionID, plans)
}

func (g *Guide) planFinishLocked(ex models.SessionExercise, skipped, includeUnchecked bool) (finishPlan, error) {
	now := g.opts.Now()
	start := now
	if ex.StartedAt != nil {
		start = *ex.StartedAt
	}
	o := g.state.Overrides[ex.Key()]
	payloads, err := SynthesizeMissingSets(SynthesisInput{
		Exercise:         ex,
		Checks:           o.Checks,
		StartedAt:        start,
		FinishedAt:       now,
		IncludeUnchecked: includeUnchecked,
		DefaultBandLabel: g.opts.DefaultBandLabel,
	})
	if err != nil {
		return finishPlan{}, err
	}
	return finishPlan{
		exercise:   ex,
		payloads:   payloads,
		deletes:    forceUnchecked(ex, o),
		completion: models.ExerciseCompletion{ExerciseKey: ex.Key(), CompletedAt: now, Skipped: skipped},
	}, nil
}

// runFinish commits plans and advances focus. The finishing flag must be set
// by the caller; it is cleared here.
func (g *Guide) runFinish(ctx context.Context, sessionID string, plans []finishPlan) error {
	txn := &finishTxn{backend: g.backend, log: g.log, plans: plans}
	err := txn.commit(ctx)

	g.mu.Lock()
	g.finishing = false
	if g.state.Session.ID != sessionID {
		g.mu.Unlock()
		g.log.Info("finish result discarded, session changed", "session", sessionID)
		return nil
	}
	if err != nil {
		for _, rs := range txn.restored {
			g.state = Reduce(g.state, SetRemoved{Key: rs.key, SetID: rs.oldID})
			g.state = Reduce(g.state, SetCommitted{Key: rs.key, Set: rs.set})
			g.state = Reduce(g.state, SetToggled{Key: rs.key, SetIndex: rs.set.SetIndex, Checked: false})
		}
		for _, p := range txn.rolledBack {
			g.state = Reduce(g.state, ProgressApplied{Progress: p})
		}
		g.setNoticeLocked("Could not save workout progress. Try again.")
		g.mu.Unlock()
		g.log.Error("finish exercise failed", "session", sessionID, "error", err)
		return fmt.Errorf("finish exercise: %w", err)
	}

	keys := make([]models.ExerciseKey, 0, len(plans))
	for _, cs := range txn.created {
		g.state = Reduce(g.state, SetCommitted{Key: cs.key, Set: cs.set})
	}
	for _, ds := range txn.deleted {
		g.state = Reduce(g.state, SetRemoved{Key: ds.key, SetID: ds.set.ID})
	}
	for _, p := range txn.progress {
		g.state = Reduce(g.state, ProgressApplied{Progress: p})
	}
	for _, p := range plans {
		k := p.exercise.Key()
		keys = append(keys, k)
		if ex, ok := g.state.Session.Exercise(k); ok && !ex.Status.Done() {
			status := models.StatusCompleted
			if p.completion.Skipped {
				status = models.StatusSkipped
			}
			at := p.completion.CompletedAt
			g.state = Reduce(g.state, ProgressApplied{Progress: models.ExerciseProgress{
				ExerciseID: k.ExerciseID, RoutineExerciseID: k.RoutineExerciseID,
				Status: status, CompletedAt: &at,
			}})
		}
		g.state = Reduce(g.state, OverridesCleared{Key: k})
	}

	pairs := BuildSupersetPairings(g.state.Session.Steps)
	next, ok := ResolveNextPendingExercise(g.state.Session.Steps, pairs, keys[0], keys[1:]...)
	if ok {
		g.state = Reduce(g.state, ExerciseSelected{Key: next.Key()})
	}
	guided := g.state.Guided
	g.mu.Unlock()

	if ok && guided {
		if err := g.startStep(ctx, sessionID, next); err != nil {
			g.log.Warn("start next exercise failed", "exercise", next.Key().String(), "error", err)
		}
	}
	return nil
}

// Next reconciles the exercise in focus and moves to the following one.
func (g *Guide) Next(ctx context.Context) error {
	return g.navigate(ctx, 1)
}

// Previous reconciles the exercise in focus and moves to the preceding one.
func (g *Guide) Previous(ctx context.Context) error {
	return g.navigate(ctx, -1)
}

func (g *Guide) navigate(ctx context.Context, dir int) error {
	g.mu.Lock()
	if g.navigating || g.finishing {
		g.mu.Unlock()
		return ErrBusy
	}
	cur, ok := g.state.Current()
	if !ok {
		g.mu.Unlock()
		return ErrNoSession
	}
	target, ok := AdjacentExercise(g.state.Session.Steps, cur.StepKey(), dir)
	if !ok {
		g.mu.Unlock()
		return ErrNoExercise
	}
	var plan reconcilePlan
	if ex, isExercise := cur.(models.SessionExercise); isExercise {
		var err error
		plan, err = planReconcile(ex, g.state.Overrides[ex.Key()], g.opts.Now(), g.opts.DefaultBandLabel)
		if err != nil {
			g.setNoticeLocked(fmt.Sprintf("Cannot save %s: %v", ex.Name, err))
			g.mu.Unlock()
			return fmt.Errorf("reconcile %s: %w", ex.Name, err)
		}
	}
	sessionID := g.state.Session.ID
	g.navigating = true
	g.mu.Unlock()

	err := g.reconcile(ctx, sessionID, plan)

	g.mu.Lock()
	g.navigating = false
	if g.state.Session.ID != sessionID {
		g.mu.Unlock()
		return nil
	}
	if err != nil {
		g.setNoticeLocked("Could not save checked sets. Try again.")
		g.mu.Unlock()
		return fmt.Errorf("navigate: %w", err)
	}
	if !plan.key.IsZero() {
		g.state = Reduce(g.state, OverridesCleared{Key: plan.key})
	}
	g.state = Reduce(g.state, ExerciseSelected{Key: target.Key()})
	guided := g.state.Guided
	latest, _ := g.state.Session.Exercise(target.Key())
	g.mu.Unlock()

	if guided {
		if err := g.startStep(ctx, sessionID, latest); err != nil {
			g.log.Warn("start exercise failed", "exercise", target.Key().String(), "error", err)
		}
	}
	return nil
}

// reconcile applies each collaborator success as it happens, so a partial
// failure leaves local state matching what was persisted.
func (g *Guide) reconcile(ctx context.Context, sessionID string, plan reconcilePlan) error {
	if plan.empty() {
		return nil
	}
	for _, p := range plan.creates {
		res, err := g.backend.CreateSet(ctx, p)
		if err != nil {
			return fmt.Errorf("create set %d: %w", p.SetIndex, err)
		}
		g.apply(sessionID, SetCommitted{Key: plan.key, Set: res.Set})
	}
	for _, s := range plan.deletes {
		if err := g.backend.DeleteSet(ctx, s.ID); err != nil {
			return fmt.Errorf("delete set %d: %w", s.SetIndex, err)
		}
		g.apply(sessionID, SetRemoved{Key: plan.key, SetID: s.ID})
	}
	return nil
}

// AdjustTargetWeight steps the next-session target weight of key by n
// increments.
func (g *Guide) AdjustTargetWeight(key models.ExerciseKey, n int) (float64, error) {
	wk, err := g.weightKey(key)
	if err != nil {
		return 0, err
	}
	return g.weights.Step(wk, n)
}

// CommitTargetWeight sets the next-session target weight of key from text.
func (g *Guide) CommitTargetWeight(key models.ExerciseKey, text string) (float64, error) {
	wk, err := g.weightKey(key)
	if err != nil {
		return 0, err
	}
	return g.weights.Set(wk, text)
}

func (g *Guide) weightKey(key models.ExerciseKey) (targetweight.Key, error) {
	if g.weights == nil {
		return targetweight.Key{}, targetweight.ErrNotAdjustable
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ex, ok := g.state.Session.Exercise(key)
	if !ok {
		return targetweight.Key{}, ErrNoExercise
	}
	if !targetweight.Eligible(ex) {
		return targetweight.Key{}, targetweight.ErrNotAdjustable
	}
	return targetweight.KeyFor(g.state.Session.RoutineID, ex), nil
}

// setNoticeLocked shows msg and schedules it to clear after NoticeTTL.
func (g *Guide) setNoticeLocked(msg string) {
	g.state = Reduce(g.state, NoticeSet{Message: msg})
	if g.noticeTimer != nil {
		g.noticeTimer.Stop()
		g.noticeTimer = nil
	}
	if g.closed {
		return
	}
	g.noticeTimer = time.AfterFunc(g.opts.NoticeTTL, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.state.Notice == msg {
			g.state = Reduce(g.state, NoticeSet{})
		}
	})
}
