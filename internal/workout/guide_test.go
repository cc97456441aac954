package workout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/claude/repguide/internal/models"
	"github.com/claude/repguide/internal/targetweight"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errBackend = errors.New("backend unavailable")

// fakeBackend records every collaborator call in order.
type fakeBackend struct {
	mu    sync.Mutex
	view  *models.ActiveSessionView
	calls []string
	ids   int

	failCreate   string // "exerciseID/setIndex"
	failComplete string // exerciseID
	failWarmup   bool
	deferTargets bool

	// When set, CompleteExercise signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeBackend) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) FetchActiveSession(ctx context.Context) (*models.ActiveSessionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view, nil
}

func (f *fakeBackend) FetchSession(ctx context.Context, id string) (*models.ActiveSessionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.view == nil || f.view.Session == nil || f.view.Session.ID != id {
		return nil, errBackend
	}
	return f.view, nil
}

func (f *fakeBackend) StartExercise(ctx context.Context, req models.ExerciseStart) (*models.ExerciseProgress, error) {
	f.record("start %s", req.ExerciseID)
	at := req.StartedAt
	return &models.ExerciseProgress{
		ExerciseID: req.ExerciseID, RoutineExerciseID: req.RoutineExerciseID,
		Status: models.StatusInProgress, StartedAt: &at,
	}, nil
}

func (f *fakeBackend) CompleteExercise(ctx context.Context, req models.ExerciseCompletion) (*models.ExerciseProgress, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.record("complete %s skipped=%v", req.ExerciseID, req.Skipped)
	if req.ExerciseID == f.failComplete {
		return nil, errBackend
	}
	status := models.StatusCompleted
	if req.Skipped {
		status = models.StatusSkipped
	}
	at := req.CompletedAt
	return &models.ExerciseProgress{
		ExerciseID: req.ExerciseID, RoutineExerciseID: req.RoutineExerciseID,
		Status: status, CompletedAt: &at,
	}, nil
}

func (f *fakeBackend) CreateSet(ctx context.Context, p models.SetPayload) (*models.SetResult, error) {
	f.record("create %s/%d", p.ExerciseID, p.SetIndex)
	if fmt.Sprintf("%s/%d", p.ExerciseID, p.SetIndex) == f.failCreate {
		return nil, errBackend
	}
	f.mu.Lock()
	f.ids++
	id := fmt.Sprintf("new-%d", f.ids)
	f.mu.Unlock()
	at := p.CompletedAt
	return &models.SetResult{
		Set: models.Set{ID: id, SetIndex: p.SetIndex, Reps: p.Reps, Weight: p.Weight, BandLabel: p.BandLabel,
			StartedAt: &at, CompletedAt: &at},
		Progress: models.ExerciseProgress{ExerciseID: p.ExerciseID, RoutineExerciseID: p.RoutineExerciseID},
	}, nil
}

func (f *fakeBackend) DeleteSet(ctx context.Context, setID string) error {
	f.record("delete %s", setID)
	return nil
}

func (f *fakeBackend) StartWarmup(ctx context.Context, ev models.WarmupEvent) error {
	f.record("warmup start")
	return nil
}

func (f *fakeBackend) CompleteWarmup(ctx context.Context, ev models.WarmupEvent) error {
	f.record("warmup complete")
	if f.failWarmup {
		return errBackend
	}
	return nil
}

// UpdateTarget writes the routine template like the server does, or answers
// queued+offline when deferTargets is set.
func (f *fakeBackend) UpdateTarget(ctx context.Context, u models.TargetUpdate) (*models.TargetResult, error) {
	f.record("target %s %g", u.ExerciseID, u.TargetWeight)
	if f.deferTargets {
		return &models.TargetResult{TargetUpdate: u, Queued: true, Offline: true}, nil
	}
	f.setSlotWeight(u.RoutineID, models.ExerciseKey{ExerciseID: u.ExerciseID, RoutineExerciseID: u.RoutineExerciseID}, u.TargetWeight)
	return &models.TargetResult{TargetUpdate: u}, nil
}

func (f *fakeBackend) setSlotWeight(routineID string, key models.ExerciseKey, w float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.view.Routines {
		r := &f.view.Routines[i]
		if r.ID != routineID {
			continue
		}
		for j := range r.Exercises {
			if r.Exercises[j].Key() == key {
				r.Exercises[j].Weight = floatp(w)
			}
		}
	}
}

var (
	_ Backend            = (*fakeBackend)(nil)
	_ targetweight.Saver = (*fakeBackend)(nil)
)

func slotOf(ex models.SessionExercise) models.RoutineExercise {
	return models.RoutineExercise{
		ID: ex.RoutineExerciseID, ExerciseID: ex.ExerciseID, Name: ex.Name,
		Equipment: ex.Equipment, Targets: ex.Targets, Position: ex.Position,
	}
}

func progressOf(ex models.SessionExercise) models.ExerciseProgress {
	return models.ExerciseProgress{
		ExerciseID: ex.ExerciseID, RoutineExerciseID: ex.RoutineExerciseID, Name: ex.Name,
		Equipment: ex.Equipment, Targets: ex.Targets, Position: ex.Position,
		SupersetGroup: ex.SupersetGroup, Status: ex.Status, StartedAt: ex.StartedAt,
		CompletedAt: ex.CompletedAt, Sets: ex.Sets,
	}
}

func viewOf(id string, typ models.RoutineType, exs ...models.SessionExercise) *models.ActiveSessionView {
	sess := &models.ActiveSession{ID: id, RoutineID: "r1", StartedAt: t0}
	for _, ex := range exs {
		sess.Exercises = append(sess.Exercises, progressOf(ex))
	}
	return &models.ActiveSessionView{
		Session:  sess,
		Routines: []models.Routine{{ID: "r1", Name: "Test", Type: typ}},
	}
}

func newTestGuide(t *testing.T, fb *fakeBackend, weights *targetweight.Queue) *Guide {
	t.Helper()
	g := New(fb, weights, Options{
		DefaultBandLabel: "Medium",
		NoticeTTL:        time.Minute,
		Now:              func() time.Time { return t0.Add(10 * time.Minute) },
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(g.Close)
	if err := g.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return g
}

func assertCalls(t *testing.T, fb *fakeBackend, want ...string) {
	t.Helper()
	if got := fb.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls =\n  %q\nwant\n  %q", got, want)
	}
}

func stepView(t *testing.T, snap Snapshot, id string) StepView {
	t.Helper()
	for _, v := range snap.Steps {
		if v.Key.ExerciseID == id {
			return v
		}
	}
	t.Fatalf("no step %q in snapshot", id)
	return StepView{}
}

// TestFinishBackfillsMissingSets verifies finishing creates every missing set,
// completes the exercise and moves focus to the next pending one.
func TestFinishBackfillsMissingSets(t *testing.T) {
	a := exercise("a", 1, 3, 8, 60)
	a.Sets = []models.Set{persisted("a1", 1, t0)}
	b := exercise("b", 2, 3, 8, 60)
	fb := &fakeBackend{view: viewOf("s1", models.RoutineRehabilitation, a, b)}
	g := newTestGuide(t, fb, nil)

	if err := g.FinishExercise(context.Background()); err != nil {
		t.Fatalf("FinishExercise: %v", err)
	}
	assertCalls(t, fb, "create a/2", "create a/3", "complete a skipped=false")

	snap := g.Snapshot()
	if got := stepView(t, snap, "a"); got.Status != models.StatusCompleted || !AllChecked(got.Rows) {
		t.Errorf("a = %s rows %+v, want completed and fully checked", got.Status, got.Rows)
	}
	if snap.Current.ExerciseID != "b" {
		t.Errorf("current = %v, want b", snap.Current)
	}
}

// TestSkipPersistsCheckedOnly verifies skipping only writes locally checked sets.
func TestSkipPersistsCheckedOnly(t *testing.T) {
	a := exercise("a", 1, 3, 8, 60)
	fb := &fakeBackend{view: viewOf("s1", models.RoutineRehabilitation, a)}
	g := newTestGuide(t, fb, nil)
	ctx := context.Background()

	if err := g.ToggleSet(ctx, 2, true); err != nil {
		t.Fatalf("ToggleSet: %v", err)
	}
	if err := g.SkipExercise(ctx); err != nil {
		t.Fatalf("SkipExercise: %v", err)
	}
	assertCalls(t, fb, "create a/2", "complete a skipped=true")
	if got := stepView(t, g.Snapshot(), "a"); got.Status != models.StatusSkipped {
		t.Errorf("status = %s, want skipped", got.Status)
	}
}

// TestFinishUnresolvedTargets verifies no collaborator call is made when sets
// cannot be synthesized.
func TestFinishUnresolvedTargets(t *testing.T) {
	a := exercise("a", 1, 3, 0, 60)
	fb := &fakeBackend{view: viewOf("s1", models.RoutineRehabilitation, a)}
	g := newTestGuide(t, fb, nil)

	err := g.FinishExercise(context.Background())
	if !errors.Is(err, ErrUnresolvedReps) {
		t.Fatalf("err = %v, want ErrUnresolvedReps", err)
	}
	assertCalls(t, fb)
	if snap := g.Snapshot(); snap.Notice == "" || snap.Finishing {
		t.Errorf("snapshot = %+v, want notice and idle", snap)
	}
}

// TestFinishInFlightGuard verifies a second finish or a navigation while one
// finish is running is refused and completes nothing twice.
func TestFinishInFlightGuard(t *testing.T) {
	a := exercise("a", 1, 1, 8, 60)
	b := exercise("b", 2, 1, 8, 60)
	fb := &fakeBackend{
		view:    viewOf("s1", models.RoutineRehabilitation, a, b),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	g := newTestGuide(t, fb, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- g.FinishExercise(ctx) }()
	<-fb.entered

	if err := g.FinishExercise(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("second finish err = %v, want ErrBusy", err)
	}
	if err := g.SkipExercise(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("skip err = %v, want ErrBusy", err)
	}
	if err := g.Next(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("next err = %v, want ErrBusy", err)
	}
	if !g.Snapshot().Finishing {
		t.Error("snapshot not finishing")
	}

	close(fb.release)
	if err := <-done; err != nil {
		t.Fatalf("first finish: %v", err)
	}
	assertCalls(t, fb, "create a/1", "complete a skipped=false")
}

// TestFinishDiscardedOnSessionChange verifies a late finish result does not
// touch a session that replaced the one it was started for.
func TestFinishDiscardedOnSessionChange(t *testing.T) {
	a := exercise("a", 1, 1, 8, 60)
	fb := &fakeBackend{
		view:    viewOf("s1", models.RoutineRehabilitation, a),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	g := newTestGuide(t, fb, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- g.FinishExercise(ctx) }()
	<-fb.entered

	fb.mu.Lock()
	fb.view = viewOf("s2", models.RoutineRehabilitation, exercise("z", 1, 2, 5, 20))
	fb.mu.Unlock()
	if err := g.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	close(fb.release)
	if err := <-done; err != nil {
		t.Fatalf("finish: %v", err)
	}

	snap := g.Snapshot()
	if snap.SessionID != "s2" || len(snap.Steps) != 1 || snap.Steps[0].Status != models.StatusPending {
		t.Errorf("snapshot = %+v, want untouched s2", snap)
	}
}

// TestSupersetLastPendingFinishesPair verifies checking the last row of a
// superset member finishes both members when the partner is the only other
// pending exercise.
func TestSupersetLastPendingFinishesPair(t *testing.T) {
	a := exercise("a", 1, 2, 8, 60)
	b := exercise("b", 2, 2, 8, 40)
	a.SupersetGroup, b.SupersetGroup = "x", "x"
	fb := &fakeBackend{view: viewOf("s1", models.RoutineRehabilitation, a, b)}
	g := newTestGuide(t, fb, nil)
	ctx := context.Background()

	if err := g.ToggleSet(ctx, 1, true); err != nil {
		t.Fatalf("toggle 1: %v", err)
	}
	assertCalls(t, fb)
	if err := g.ToggleSet(ctx, 2, true); err != nil {
		t.Fatalf("toggle 2: %v", err)
	}
	assertCalls(t, fb,
		"create a/1", "create a/2", "complete a skipped=false",
		"create b/1", "create b/2", "complete b skipped=false")

	snap := g.Snapshot()
	for _, id := range []string{"a", "b"} {
		if v := stepView(t, snap, id); v.Status != models.StatusCompleted {
			t.Errorf("%s status = %s, want completed", id, v.Status)
		}
	}
}

// TestSupersetPartnerChecked verifies the pair finishes when the partner's
// rows are all checked even with other exercises pending.
func TestSupersetPartnerChecked(t *testing.T) {
	a := exercise("a", 1, 1, 8, 60)
	b := exercise("b", 2, 1, 8, 40)
	c := exercise("c", 3, 1, 8, 40)
	a.SupersetGroup, b.SupersetGroup = "x", "x"
	fb := &fakeBackend{view: viewOf("s1", models.RoutineRehabilitation, a, b, c)}
	g := newTestGuide(t, fb, nil)
	ctx := context.Background()

	if err := g.ToggleSet(ctx, 1, true); err != nil {
		t.Fatalf("toggle a: %v", err)
	}
	assertCalls(t, fb)

	if err := g.Select(b.Key()); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := g.ToggleSet(ctx, 1, true); err != nil {
		t.Fatalf("toggle b: %v", err)
	}
	assertCalls(t, fb,
		"create b/1", "complete b skipped=false",
		"create a/1", "complete a skipped=false")
	if cur := g.Snapshot().Current; cur.ExerciseID != "c" {
		t.Errorf("current = %v, want c", cur)
	}
}

// TestSupersetRollback verifies a failure in the second member undoes the
// first member's completion and every created set.
func TestSupersetRollback(t *testing.T) {
	a := exercise("a", 1, 2, 8, 60)
	b := exercise("b", 2, 2, 8, 40)
	a.SupersetGroup, b.SupersetGroup = "x", "x"
	fb := &fakeBackend{view: viewOf("s1", models.RoutineRehabilitation, a, b), failComplete: "b"}
	g := newTestGuide(t, fb, nil)
	ctx := context.Background()

	if err := g.ToggleSet(ctx, 1, true); err != nil {
		t.Fatalf("toggle 1: %v", err)
	}
	err := g.ToggleSet(ctx, 2, true)
	if !errors.Is(err, errBackend) {
		t.Fatalf("err = %v, want backend failure", err)
	}
	assertCalls(t, fb,
		"create a/1", "create a/2", "complete a skipped=false",
		"create b/1", "create b/2", "complete b skipped=false",
		"start a",
		"delete new-4", "delete new-3", "delete new-2", "delete new-1")

	snap := g.Snapshot()
	av := stepView(t, snap, "a")
	for _, id := range []string{"a", "b"} {
		if v := stepView(t, snap, id); v.Status != models.StatusInProgress {
			t.Errorf("%s status = %s, want in progress like the collaborator", id, v.Status)
		}
	}
	if !AllChecked(av.Rows) || av.Rows[0].Locked {
		t.Errorf("a rows = %+v, want local checks kept and nothing locked", av.Rows)
	}
	if snap.Notice == "" {
		t.Error("no notice after failed finish")
	}
}

// TestSkipDeletesUncheckedSets verifies a persisted set unchecked before a
// skip is deleted rather than kept.
func TestSkipDeletesUncheckedSets(t *testing.T) {
	a := exercise("a", 1, 3, 8, 60)
	a.Status = models.StatusInProgress
	a.Sets = []models.Set{persisted("p1", 1, t0), persisted("p2", 2, t0.Add(time.Minute))}
	fb := &fakeBackend{view: viewOf("s1", models.RoutineRehabilitation, a)}
	g := newTestGuide(t, fb, nil)
	ctx := context.Background()

	if err := g.ToggleSet(ctx, 2, false); err != nil {
		t.Fatalf("ToggleSet: %v", err)
	}
	if err := g.SkipExercise(ctx); err != nil {
		t.Fatalf("SkipExercise: %v", err)
	}
	assertCalls(t, fb, "delete p2", "complete a skipped=true")

	rows := stepView(t, g.Snapshot(), "a").Rows
	if !rows[0].Locked || rows[1].Locked || rows[1].Checked {
		t.Errorf("rows = %+v, want only set 1 persisted", rows)
	}
}

// TestFinishDeletesUncheckedSets verifies finishing back-fills missing sets
// but does not log again a set the user unchecked.
func TestFinishDeletesUncheckedSets(t *testing.T) {
	a := exercise("a", 1, 3, 8, 60)
	a.Status = models.StatusInProgress
	a.Sets = []models.Set{persisted("p1", 1, t0), persisted("p2", 2, t0.Add(time.Minute))}
	fb := &fakeBackend{view: viewOf("s1", models.RoutineRehabilitation, a)}
	g := newTestGuide(t, fb, nil)
	ctx := context.Background()

	if err := g.ToggleSet(ctx, 2, false); err != nil {
		t.Fatalf("ToggleSet: %v", err)
	}
	if err := g.FinishExercise(ctx); err != nil {
		t.Fatalf("FinishExercise: %v", err)
	}
	assertCalls(t, fb, "create a/3", "delete p2", "complete a skipped=false")

	v := stepView(t, g.Snapshot(), "a")
	if v.Status != models.StatusCompleted || v.Rows[1].Locked || !v.Rows[2].Locked {
		t.Errorf("a = %s rows %+v, want completed with sets 1 and 3", v.Status, v.Rows)
	}
}

// TestFinishRollbackRestoresDeletedSet verifies a failed finish logs a
// deleted set again and keeps its row unchecked.
func TestFinishRollbackRestoresDeletedSet(t *testing.T) {
	a := exercise("a", 1, 2, 8, 60)
	a.Sets = []models.Set{persisted("p1", 1, t0)}
	fb := &fakeBackend{view: viewOf("s1", models.RoutineRehabilitation, a), failComplete: "a"}
	g := newTestGuide(t, fb, nil)
	ctx := context.Background()

	if err := g.ToggleSet(ctx, 1, false); err != nil {
		t.Fatalf("ToggleSet: %v", err)
	}
	if err := g.FinishExercise(ctx); !errors.Is(err, errBackend) {
		t.Fatalf("err = %v, want backend failure", err)
	}
	assertCalls(t, fb,
		"create a/2", "delete p1", "complete a skipped=false",
		"create a/1", "delete new-1")

	v := stepView(t, g.Snapshot(), "a")
	row := v.Rows[0]
	if !row.Locked || row.Checked || row.Set == nil || row.Set.ID != "new-2" {
		t.Errorf("row 1 = %+v, want restored set new-2 still unchecked", row)
	}
	if v.Rows[1].Locked {
		t.Errorf("row 2 = %+v, want created set rolled back", v.Rows[1])
	}
	if v.Status != models.StatusInProgress {
		t.Errorf("status = %s, want in progress", v.Status)
	}
}

// TestTogglePairFinishBusy verifies a toggle that would finish a superset
// while another finish runs is kept and reported as successful.
func TestTogglePairFinishBusy(t *testing.T) {
	a := exercise("a", 1, 1, 8, 60)
	b := exercise("b", 2, 1, 8, 40)
	c := exercise("c", 3, 1, 8, 40)
	a.SupersetGroup, b.SupersetGroup = "x", "x"
	fb := &fakeBackend{
		view:    viewOf("s1", models.RoutineRehabilitation, a, b, c),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	g := newTestGuide(t, fb, nil)
	ctx := context.Background()

	if err := g.Select(b.Key()); err != nil {
		t.Fatal(err)
	}
	if err := g.ToggleSet(ctx, 1, true); err != nil {
		t.Fatalf("toggle b: %v", err)
	}

	if err := g.Select(c.Key()); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- g.FinishExercise(ctx) }()
	<-fb.entered

	if err := g.Select(a.Key()); err != nil {
		t.Fatal(err)
	}
	if err := g.ToggleSet(ctx, 1, true); err != nil {
		t.Errorf("toggle a err = %v, want nil", err)
	}
	if rows := stepView(t, g.Snapshot(), "a").Rows; !rows[0].Checked {
		t.Errorf("a rows = %+v, want set 1 checked", rows)
	}

	close(fb.release)
	if err := <-done; err != nil {
		t.Fatalf("finish c: %v", err)
	}
	assertCalls(t, fb, "create c/1", "complete c skipped=false")
}

// TestNavigateReconciles verifies local checks are created and force-unchecked
// sets deleted before focus moves.
func TestNavigateReconciles(t *testing.T) {
	a := exercise("a", 1, 3, 8, 60)
	a.Sets = []models.Set{persisted("a1", 1, t0)}
	b := exercise("b", 2, 3, 8, 60)
	fb := &fakeBackend{view: viewOf("s1", models.RoutineRehabilitation, a, b)}
	g := newTestGuide(t, fb, nil)
	ctx := context.Background()

	if err := g.ToggleSet(ctx, 1, false); err != nil {
		t.Fatal(err)
	}
	if err := g.ToggleSet(ctx, 2, true); err != nil {
		t.Fatal(err)
	}
	if err := g.Next(ctx); err != nil {
		t.Fatalf("Next: %v", err)
	}
	assertCalls(t, fb, "create a/2", "delete a1")

	snap := g.Snapshot()
	if snap.Current.ExerciseID != "b" {
		t.Errorf("current = %v, want b", snap.Current)
	}
	rows := stepView(t, snap, "a").Rows
	if rows[0].Checked || !rows[1].Checked || !rows[1].Locked || rows[2].Checked {
		t.Errorf("a rows = %+v, want only set 2 persisted", rows)
	}

	if err := g.Previous(ctx); err != nil {
		t.Fatalf("Previous: %v", err)
	}
	if cur := g.Snapshot().Current; cur.ExerciseID != "a" {
		t.Errorf("current = %v, want a", cur)
	}
	if err := g.Previous(ctx); !errors.Is(err, ErrNoExercise) {
		t.Errorf("previous of first err = %v, want ErrNoExercise", err)
	}
}

// TestNavigateFailureStays verifies a failed reconciliation keeps focus and
// the successes that already happened.
func TestNavigateFailureStays(t *testing.T) {
	a := exercise("a", 1, 3, 8, 60)
	b := exercise("b", 2, 3, 8, 60)
	fb := &fakeBackend{view: viewOf("s1", models.RoutineRehabilitation, a, b), failCreate: "a/2"}
	g := newTestGuide(t, fb, nil)
	ctx := context.Background()

	for _, idx := range []int{1, 2} {
		if err := g.ToggleSet(ctx, idx, true); err != nil {
			t.Fatal(err)
		}
	}
	if err := g.Next(ctx); !errors.Is(err, errBackend) {
		t.Fatalf("Next err = %v, want backend failure", err)
	}
	snap := g.Snapshot()
	if snap.Current.ExerciseID != "a" {
		t.Errorf("current = %v, want a", snap.Current)
	}
	rows := stepView(t, snap, "a").Rows
	if !rows[0].Locked || rows[1].Locked || !rows[1].Checked {
		t.Errorf("rows = %+v, want set 1 persisted and set 2 still checked locally", rows)
	}
}

// TestStartGuidedReadiness verifies guided mode is refused with every
// offender named and no collaborator call.
func TestStartGuidedReadiness(t *testing.T) {
	a := exercise("a", 1, 0, 8, 60)
	b := exercise("b", 2, 3, 0, 0)
	fb := &fakeBackend{view: viewOf("s1", models.RoutineStrength, a, b)}
	g := newTestGuide(t, fb, nil)

	err := g.StartGuided(context.Background())
	var re *ReadinessError
	if !errors.As(err, &re) || len(re.Issues) != 2 {
		t.Fatalf("err = %v, want readiness error with 2 issues", err)
	}
	assertCalls(t, fb)
	if g.Snapshot().Guided {
		t.Error("guided mode entered")
	}
}

// TestGuidedWarmupFlow verifies the warmup is started on entry and finishing
// it starts the first exercise.
func TestGuidedWarmupFlow(t *testing.T) {
	a := exercise("a", 1, 2, 8, 60)
	b := exercise("b", 2, 2, 8, 60)
	fb := &fakeBackend{view: viewOf("s1", models.RoutineStrength, a, b)}
	g := newTestGuide(t, fb, nil)
	ctx := context.Background()

	if err := g.StartGuided(ctx); err != nil {
		t.Fatalf("StartGuided: %v", err)
	}
	snap := g.Snapshot()
	if !snap.Guided || snap.Current != models.WarmupKey || snap.Steps[0].Status != models.StatusInProgress {
		t.Fatalf("snapshot = %+v, want guided warmup in progress", snap)
	}
	if err := g.ToggleSet(ctx, 1, true); !errors.Is(err, ErrNoExercise) {
		t.Errorf("toggle on warmup err = %v, want ErrNoExercise", err)
	}

	if err := g.FinishExercise(ctx); err != nil {
		t.Fatalf("finish warmup: %v", err)
	}
	assertCalls(t, fb, "warmup start", "warmup complete", "start a")

	snap = g.Snapshot()
	if snap.Current.ExerciseID != "a" || stepView(t, snap, "a").Status != models.StatusInProgress {
		t.Errorf("snapshot = %+v, want a in progress", snap)
	}
}

// TestTargetWeightNotAdjustable verifies bodyweight exercises expose no weight edits.
func TestTargetWeightNotAdjustable(t *testing.T) {
	a := exercise("a", 1, 2, 8, 0)
	a.Equipment = "Bodyweight"
	fb := &fakeBackend{view: viewOf("s1", models.RoutineRehabilitation, a)}
	q := targetweight.New(nil, 2.5, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer q.Close()
	g := newTestGuide(t, fb, q)

	if _, err := g.AdjustTargetWeight(a.Key(), 1); !errors.Is(err, targetweight.ErrNotAdjustable) {
		t.Errorf("err = %v, want ErrNotAdjustable", err)
	}
	if _, err := g.AdjustTargetWeight(models.ExerciseKey{ExerciseID: "nope"}, 1); !errors.Is(err, ErrNoExercise) {
		t.Errorf("unknown key err = %v, want ErrNoExercise", err)
	}
	if v := stepView(t, g.Snapshot(), "a"); v.TargetWeight != nil {
		t.Errorf("target weight = %+v, want none", v.TargetWeight)
	}
}

// TestTargetWeightSurvivesSyncRefresh verifies a saved target weight is read
// back from the routine template, not the session copy, after a refresh.
func TestTargetWeightSurvivesSyncRefresh(t *testing.T) {
	a := exercise("a", 1, 3, 8, 80)
	view := viewOf("s1", models.RoutineRehabilitation, a)
	view.Routines[0].Exercises = []models.RoutineExercise{slotOf(a)}
	fb := &fakeBackend{view: view}
	q := targetweight.New(fb, 2.5, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer q.Close()
	g := newTestGuide(t, fb, q)
	ctx := context.Background()

	if _, err := g.AdjustTargetWeight(a.Key(), 1); err != nil {
		t.Fatalf("AdjustTargetWeight: %v", err)
	}
	q.Wait()
	if err := g.SyncComplete(ctx); err != nil {
		t.Fatalf("SyncComplete: %v", err)
	}

	v := stepView(t, g.Snapshot(), "a")
	if tw := v.TargetWeight; tw == nil || tw.Value != 82.5 || tw.Persisted != 82.5 {
		t.Errorf("target weight = %+v, want 82.5 persisted", tw)
	}
	if v.Targets.Weight == nil || *v.Targets.Weight != 80 {
		t.Errorf("session weight = %v, want 80 for this session", v.Targets.Weight)
	}
}

// TestQueuedTargetWeightWaitsForSync verifies an offline edit stays queued
// across a plain refresh and settles on the sync refresh.
func TestQueuedTargetWeightWaitsForSync(t *testing.T) {
	a := exercise("a", 1, 3, 8, 80)
	view := viewOf("s1", models.RoutineRehabilitation, a)
	view.Routines[0].Exercises = []models.RoutineExercise{slotOf(a)}
	fb := &fakeBackend{view: view, deferTargets: true}
	q := targetweight.New(fb, 2.5, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer q.Close()
	g := newTestGuide(t, fb, q)
	ctx := context.Background()

	if _, err := g.AdjustTargetWeight(a.Key(), 1); err != nil {
		t.Fatalf("AdjustTargetWeight: %v", err)
	}
	q.Wait()
	if err := g.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	tw := stepView(t, g.Snapshot(), "a").TargetWeight
	if tw == nil || tw.Value != 82.5 || tw.Status != targetweight.StatusQueued {
		t.Fatalf("after refresh = %+v, want 82.5 queued", tw)
	}

	fb.setSlotWeight("r1", a.Key(), 82.5)
	if err := g.SyncComplete(ctx); err != nil {
		t.Fatalf("SyncComplete: %v", err)
	}
	tw = stepView(t, g.Snapshot(), "a").TargetWeight
	if tw == nil || tw.Value != 82.5 || tw.Persisted != 82.5 || tw.Status != targetweight.StatusIdle {
		t.Errorf("after sync = %+v, want 82.5 idle", tw)
	}
}

// TestSessionDetail verifies a session is loaded and normalized by id.
func TestSessionDetail(t *testing.T) {
	fb := &fakeBackend{view: viewOf("s1", models.RoutineStrength, exercise("a", 1, 2, 8, 60))}
	g := newTestGuide(t, fb, nil)

	sess, err := g.SessionDetail(context.Background(), "s1")
	if err != nil {
		t.Fatalf("SessionDetail: %v", err)
	}
	if len(sess.Steps) != 2 {
		t.Errorf("len(steps) = %d, want warmup + 1", len(sess.Steps))
	}
	if _, err := g.SessionDetail(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown session")
	}
}
