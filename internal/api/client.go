// Package api is the HTTP client of the repguide server. It implements the
// session collaborator used by the guided workout engine.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/claude/repguide/internal/models"
	"github.com/claude/repguide/internal/targetweight"
	"github.com/claude/repguide/internal/workout"
)

// ErrOffline wraps transport failures: the server could not be reached.
var ErrOffline = errors.New("server unreachable")

// StatusError is a non-2xx response.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpclient: %s returned %d: %s", e.Path, e.Code, e.Body)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Outbox stores target-weight writes that could not be delivered.
type Outbox interface {
	Enqueue(ctx context.Context, u models.TargetUpdate) error
}

// Client calls the repguide REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	outbox     Outbox
	log        *slog.Logger
}

// Compile-time checks: Client is the engine's collaborator and weight saver.
var (
	_ workout.Backend    = (*Client)(nil)
	_ targetweight.Saver = (*Client)(nil)
)

// NewClient creates a Client. outbox may be nil, in which case offline
// target writes fail instead of being queued.
func NewClient(baseURL, apiKey string, outbox Outbox, log *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		outbox:     outbox,
		log:        log,
	}
}

// do sends body as JSON and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httpclient: marshal %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("httpclient: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpclient: %s: %w: %w", path, ErrOffline, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpclient: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("httpclient: decode %s: %w", path, err)
	}
	return nil
}

// FetchActiveSession returns the active session with its routines.
func (c *Client) FetchActiveSession(ctx context.Context) (*models.ActiveSessionView, error) {
	var view models.ActiveSessionView
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/active", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// FetchSession returns any session by id.
func (c *Client) FetchSession(ctx context.Context, id string) (*models.ActiveSessionView, error) {
	var view models.ActiveSessionView
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ListRoutines returns all routine templates.
func (c *Client) ListRoutines(ctx context.Context) ([]models.Routine, error) {
	var routines []models.Routine
	if err := c.do(ctx, http.MethodGet, "/api/v1/routines", nil, &routines); err != nil {
		return nil, err
	}
	return routines, nil
}

// StartSession starts a workout from a routine.
func (c *Client) StartSession(ctx context.Context, routineID string) (*models.ActiveSession, error) {
	var sess models.ActiveSession
	body := map[string]string{"routine_id": routineID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", body, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// EndSession ends the active workout.
func (c *Client) EndSession(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/sessions/active/end", nil, nil)
}

func (c *Client) StartExercise(ctx context.Context, req models.ExerciseStart) (*models.ExerciseProgress, error) {
	var p models.ExerciseProgress
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/active/exercises/start", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) CompleteExercise(ctx context.Context, req models.ExerciseCompletion) (*models.ExerciseProgress, error) {
	var p models.ExerciseProgress
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/active/exercises/complete", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) CreateSet(ctx context.Context, payload models.SetPayload) (*models.SetResult, error) {
	var res models.SetResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/active/sets", payload, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) DeleteSet(ctx context.Context, setID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/sets/"+url.PathEscape(setID), nil, nil)
}

func (c *Client) StartWarmup(ctx context.Context, ev models.WarmupEvent) error {
	return c.do(ctx, http.MethodPost, "/api/v1/sessions/active/warmup/start", ev, nil)
}

func (c *Client) CompleteWarmup(ctx context.Context, ev models.WarmupEvent) error {
	return c.do(ctx, http.MethodPost, "/api/v1/sessions/active/warmup/complete", ev, nil)
}

// SendTarget writes a target weight without offline fallback.
func (c *Client) SendTarget(ctx context.Context, u models.TargetUpdate) (*models.TargetResult, error) {
	var res models.TargetResult
	path := "/api/v1/routines/" + url.PathEscape(u.RoutineID) + "/targets"
	if err := c.do(ctx, http.MethodPut, path, u, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateTarget writes a target weight. When the server is unreachable and an
// outbox is configured, the write is queued and reported as deferred.
func (c *Client) UpdateTarget(ctx context.Context, u models.TargetUpdate) (*models.TargetResult, error) {
	res, err := c.SendTarget(ctx, u)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, ErrOffline) || c.outbox == nil || ctx.Err() != nil {
		return nil, err
	}
	if qerr := c.outbox.Enqueue(ctx, u); qerr != nil {
		return nil, fmt.Errorf("queueing target weight: %w", qerr)
	}
	c.log.Info("target weight queued", "exercise", u.ExerciseID, "value", u.TargetWeight)
	return &models.TargetResult{TargetUpdate: u, Queued: true, Offline: true}, nil
}
