// Package targetweight persists next-session target-weight edits
// optimistically. Edits are shown immediately and written through a per-key
// chain so a burst of taps never lets a stale value overwrite a newer one.
package targetweight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/claude/repguide/internal/models"
)

var (
	// ErrNotAdjustable is returned for keys that were never tracked, and by
	// Track for exercises without an editable weight.
	ErrNotAdjustable = errors.New("target weight not adjustable")
	// ErrInvalidWeight is returned for edits that would not leave a finite
	// positive weight.
	ErrInvalidWeight = errors.New("invalid target weight")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("target weight queue closed")
)

// Status is the transient persistence feedback of one key.
type Status string

const (
	StatusIdle   Status = ""
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusFailed Status = "failed"
	StatusQueued Status = "queued"
)

// Key identifies a routine slot's target weight.
type Key struct {
	RoutineID         string
	ExerciseID        string
	RoutineExerciseID string
	Equipment         models.Equipment
}

// KeyFor builds the key of ex within routineID.
func KeyFor(routineID string, ex models.SessionExercise) Key {
	return Key{
		RoutineID:         routineID,
		ExerciseID:        ex.ExerciseID,
		RoutineExerciseID: ex.RoutineExerciseID,
		Equipment:         ex.Equipment,
	}
}

// Eligible reports whether ex exposes target-weight editing: a non-zero
// positive target weight and equipment that is neither bodyweight nor band.
func Eligible(ex models.SessionExercise) bool {
	if ex.Equipment.IsBodyweight() || ex.Equipment.IsBand() {
		return false
	}
	return ex.Weight != nil && *ex.Weight > 0 && !math.IsInf(*ex.Weight, 0)
}

// Saver persists a target weight.
type Saver interface {
	UpdateTarget(ctx context.Context, u models.TargetUpdate) (*models.TargetResult, error)
}

// View is what a renderer shows for one key.
type View struct {
	Value     float64 `json:"value"`
	Persisted float64 `json:"persisted"`
	Status    Status  `json:"status,omitempty"`
}

type entry struct {
	displayed float64
	persisted float64
	status    Status
	seq       uint64
	tail      chan struct{}
	clear     *time.Timer
}

func (e *entry) busy() bool {
	if e.tail == nil {
		return false
	}
	select {
	case <-e.tail:
		return false
	default:
		return true
	}
}

// Queue runs one logical writer per key. Tasks for a key run strictly in
// order; tasks for different keys run concurrently.
type Queue struct {
	saver      Saver
	step       float64
	clearAfter time.Duration
	log        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[Key]*entry
	closed  bool
}

// New creates a Queue. step is the increment of Step; clearAfter is how long
// "saved" and "failed" stay visible.
func New(saver Saver, step float64, clearAfter time.Duration, log *slog.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		saver:      saver,
		step:       step,
		clearAfter: clearAfter,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		entries:    make(map[Key]*entry),
	}
}

// Track registers key with the routine template's current value. A key with
// writes still in flight keeps its optimistic value. A key whose last write
// was queued offline keeps it too, until the server reports that value.
// Otherwise both values and the status are reset.
func (q *Queue) Track(key Key, value float64) error {
	return q.track(key, value, false)
}

// Synced is Track after queued offline writes were delivered: a "queued"
// status ends and the server's value replaces the displayed one.
func (q *Queue) Synced(key Key, value float64) error {
	return q.track(key, value, true)
}

func (q *Queue) track(key Key, value float64, synced bool) error {
	if !finitePositive(value) {
		return ErrNotAdjustable
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	e, ok := q.entries[key]
	if !ok {
		q.entries[key] = &entry{displayed: value, persisted: value}
		return nil
	}
	if e.busy() {
		e.persisted = value
		return nil
	}
	if e.status == StatusQueued && !synced && value != e.displayed {
		return nil
	}
	stopTimer(e)
	e.displayed = value
	e.persisted = value
	e.status = StatusIdle
	return nil
}

// View returns the current display state of key.
func (q *Queue) View(key Key) (View, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[key]
	if !ok {
		return View{}, false
	}
	return View{Value: e.displayed, Persisted: e.persisted, Status: e.status}, true
}

// Step moves the displayed value by n increments and schedules a write.
func (q *Queue) Step(key Key, n int) (float64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, err := q.entryLocked(key)
	if err != nil {
		return 0, err
	}
	next := roundWeight(e.displayed + float64(n)*q.step)
	if !finitePositive(next) {
		return e.displayed, ErrInvalidWeight
	}
	q.enqueueLocked(key, e, next)
	return next, nil
}

// Set commits a free-text value such as "82.5" or "82,5".
func (q *Queue) Set(key Key, text string) (float64, error) {
	v, err := ParseWeight(text)
	if err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	e, err := q.entryLocked(key)
	if err != nil {
		return 0, err
	}
	if v == e.displayed && !e.busy() {
		return v, nil
	}
	q.enqueueLocked(key, e, v)
	return v, nil
}

// Wait blocks until every scheduled write has settled.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Close cancels in-flight writes, stops status timers and waits for workers.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	for _, e := range q.entries {
		stopTimer(e)
	}
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
}

func (q *Queue) entryLocked(key Key) (*entry, error) {
	if q.closed {
		return nil, ErrClosed
	}
	e, ok := q.entries[key]
	if !ok {
		return nil, ErrNotAdjustable
	}
	return e, nil
}

func (q *Queue) enqueueLocked(key Key, e *entry, value float64) {
	stopTimer(e)
	e.displayed = value
	e.status = StatusSaving
	e.seq++

	prev := e.tail
	done := make(chan struct{})
	e.tail = done

	q.wg.Add(1)
	go q.run(key, e.seq, prev, done)
}

// run waits for the previous task of the key, then writes the latest
// requested value unless a newer task has superseded this one.
func (q *Queue) run(key Key, seq uint64, prev <-chan struct{}, done chan<- struct{}) {
	defer q.wg.Done()
	defer close(done)

	if prev != nil {
		select {
		case <-prev:
		case <-q.ctx.Done():
			return
		}
	}

	q.mu.Lock()
	e := q.entries[key]
	if e.seq != seq {
		q.mu.Unlock()
		return
	}
	value := e.displayed
	q.mu.Unlock()

	res, err := q.saver.UpdateTarget(q.ctx, models.TargetUpdate{
		RoutineID:         key.RoutineID,
		ExerciseID:        key.ExerciseID,
		RoutineExerciseID: key.RoutineExerciseID,
		Equipment:         key.Equipment,
		TargetWeight:      value,
	})

	q.mu.Lock()
	defer q.mu.Unlock()
	latest := e.seq == seq

	switch {
	case err != nil:
		q.log.Warn("target weight save failed",
			"exercise", key.ExerciseID, "routine_exercise", key.RoutineExerciseID,
			"value", value, "error", err)
		if latest {
			e.displayed = e.persisted
			q.setStatusLocked(e, StatusFailed)
		}
	case res != nil && res.Deferred():
		q.log.Info("target weight queued offline", "exercise", key.ExerciseID, "value", value)
		if latest {
			stopTimer(e)
			e.status = StatusQueued
		}
	default:
		e.persisted = value
		if res != nil && finitePositive(res.TargetWeight) {
			e.persisted = res.TargetWeight
		}
		if latest {
			q.setStatusLocked(e, StatusSaved)
		}
	}
}

// setStatusLocked shows a transient status and clears it after clearAfter
// unless something newer replaced it first.
func (q *Queue) setStatusLocked(e *entry, s Status) {
	stopTimer(e)
	e.status = s
	if q.closed {
		return
	}
	seq := e.seq
	e.clear = time.AfterFunc(q.clearAfter, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if e.seq == seq && e.status == s {
			e.status = StatusIdle
		}
	})
}

func stopTimer(e *entry) {
	if e.clear != nil {
		e.clear.Stop()
		e.clear = nil
	}
}

// ParseWeight parses a user-entered weight. Both "." and "," are accepted as
// decimal separators and a trailing unit is ignored.
func ParseWeight(text string) (float64, error) {
	s := strings.TrimSpace(strings.ToLower(text))
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s, "kg"), "lb"))
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWeight, text)
	}
	if !finitePositive(v) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWeight, text)
	}
	return v, nil
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// roundWeight trims float drift from repeated increments (0.1 kg precision
// is finer than any plate).
func roundWeight(v float64) float64 {
	return math.Round(v*1000) / 1000
}
