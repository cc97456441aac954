package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/repguide/internal/models"
)

type fakeSource struct {
	active *models.ActiveSessionView
	byID   map[string]*models.ActiveSessionView
	err    error
}

func (f *fakeSource) FetchActiveSession(context.Context) (*models.ActiveSessionView, error) {
	return f.active, f.err
}

func (f *fakeSource) FetchSession(_ context.Context, id string) (*models.ActiveSessionView, error) {
	if v, ok := f.byID[id]; ok {
		return v, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeSource) ListRoutines(context.Context) ([]models.Routine, error) {
	if f.active == nil {
		return nil, f.err
	}
	return f.active.Routines, f.err
}

func newHandlers(ds DataSource) *handlers {
	return &handlers{ds: ds, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func sampleView() *models.ActiveSessionView {
	sets, reps, weight := 3, 8, 60.0
	return &models.ActiveSessionView{
		Session: &models.ActiveSession{ID: "s1", RoutineID: "r1"},
		Routines: []models.Routine{{
			ID: "r1", Type: models.RoutineStrength,
			Exercises: []models.RoutineExercise{
				{ID: "a", ExerciseID: "bench", Name: "Bench", Equipment: "Barbell", Position: 1,
					Targets: models.Targets{Sets: &sets, Reps: &reps, Weight: &weight}},
				{ID: "b", ExerciseID: "row", Name: "Row", Equipment: "Barbell", Position: 2,
					Targets: models.Targets{Sets: &sets, Reps: &reps}},
			},
		}},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

// TestGetActiveSession verifies the report lists the warmup first and flags
// the exercise missing a weight.
func TestGetActiveSession(t *testing.T) {
	h := newHandlers(&fakeSource{active: sampleView()})

	res, err := h.getActiveSession(context.Background(), mcp.CallToolRequest{})
	if err != nil || res.IsError {
		t.Fatalf("getActiveSession = %v, %v", res, err)
	}
	var report sessionReport
	if err := json.Unmarshal([]byte(resultText(t, res)), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.SessionID != "s1" || len(report.Steps) != 3 {
		t.Fatalf("report = %+v, want 3 steps for s1", report)
	}
	if !report.Steps[0].Warmup {
		t.Error("first step is not the warmup")
	}
	if report.Ready || len(report.Issues) != 1 || report.Issues[0].Key.ExerciseID != "row" {
		t.Errorf("readiness = %v %+v, want row missing weight", report.Ready, report.Issues)
	}
}

// TestGetActiveSessionNone verifies an idle server answers with text.
func TestGetActiveSessionNone(t *testing.T) {
	h := newHandlers(&fakeSource{active: &models.ActiveSessionView{}})

	res, err := h.getActiveSession(context.Background(), mcp.CallToolRequest{})
	if err != nil || res.IsError {
		t.Fatalf("getActiveSession = %v, %v", res, err)
	}
	if got := resultText(t, res); got != "no active workout" {
		t.Errorf("text = %q", got)
	}
}

// TestGetSessionRequiresID verifies the id argument is enforced.
func TestGetSessionRequiresID(t *testing.T) {
	h := newHandlers(&fakeSource{})

	res, err := h.getSession(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected tool error for missing id")
	}
}

// TestGetSessionByID verifies a stored session is reported.
func TestGetSessionByID(t *testing.T) {
	h := newHandlers(&fakeSource{byID: map[string]*models.ActiveSessionView{"s1": sampleView()}})
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"id": "s1"}

	res, err := h.getSession(context.Background(), req)
	if err != nil || res.IsError {
		t.Fatalf("getSession = %v, %v", res, err)
	}
	if !strings.Contains(resultText(t, res), `"session_id":"s1"`) {
		t.Errorf("text = %s", resultText(t, res))
	}
}

// TestCheckReadinessFailure verifies data-source errors become tool errors.
func TestCheckReadinessFailure(t *testing.T) {
	h := newHandlers(&fakeSource{err: errors.New("db down")})

	res, err := h.checkReadiness(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected tool error")
	}
}
