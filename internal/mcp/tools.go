package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/repguide/internal/models"
	"github.com/claude/repguide/internal/workout"
)

// sessionReport is the assistant-facing view of one session.
type sessionReport struct {
	SessionID   string                   `json:"session_id"`
	RoutineID   string                   `json:"routine_id"`
	RoutineType models.RoutineType       `json:"routine_type,omitempty"`
	Current     *models.ExerciseKey      `json:"current,omitempty"`
	Ready       bool                     `json:"ready"`
	Issues      []workout.ReadinessIssue `json:"issues,omitempty"`
	Steps       []workout.StepView       `json:"steps"`
}

func buildReport(view *models.ActiveSessionView) *sessionReport {
	sess := workout.Normalize(view)
	st := workout.State{Session: sess}
	r := &sessionReport{
		SessionID:   sess.ID,
		RoutineID:   sess.RoutineID,
		RoutineType: sess.RoutineType,
		Steps:       workout.BuildStepViews(st),
	}
	if cur, ok := st.Current(); ok {
		k := cur.StepKey()
		r.Current = &k
	}
	r.Ready, r.Issues = readiness(sess.Steps)
	return r
}

func readiness(steps []models.Step) (bool, []workout.ReadinessIssue) {
	err := workout.ValidateReadiness(steps)
	var re *workout.ReadinessError
	if errors.As(err, &re) {
		return false, re.Issues
	}
	return err == nil, nil
}

// --- Tool definitions ---

var toolGetActiveSession = mcp.NewTool("get_active_session",
	mcp.WithDescription("Get the active workout: ordered steps (warmup first when present), per-exercise status, targets, checklist rows, superset partners, the step in focus, and guided-mode readiness. Answers with the text no active workout when nothing is running."),
)

var toolGetSession = mcp.NewTool("get_session",
	mcp.WithDescription("Get a workout session by id, active or finished, in the same shape as get_active_session."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Session id (UUID)")),
)

var toolCheckReadiness = mcp.NewTool("check_readiness",
	mcp.WithDescription("Check whether the active workout can run in guided mode. Lists every exercise missing a set count, rep target, or weight."),
)

// --- Tool handlers ---

func (h *handlers) getActiveSession(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := h.ds.FetchActiveSession(ctx)
	if err != nil {
		h.log.Error("mcp get_active_session", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	if view == nil || view.Session == nil {
		return mcp.NewToolResultText("no active workout"), nil
	}

	result, err := mcp.NewToolResultJSON(buildReport(view))
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}

	view, err := h.ds.FetchSession(ctx, id)
	if err != nil {
		h.log.Error("mcp get_session", "id", id, "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(buildReport(view))
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) checkReadiness(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := h.ds.FetchActiveSession(ctx)
	if err != nil {
		h.log.Error("mcp check_readiness", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	if view == nil || view.Session == nil {
		return mcp.NewToolResultText("no active workout"), nil
	}

	ready, issues := readiness(workout.Normalize(view).Steps)
	result, err := mcp.NewToolResultJSON(map[string]any{"ready": ready, "issues": issues})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
