package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/claude/repguide/internal/models"
	"github.com/claude/repguide/internal/storage"
)

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleListRoutines(w http.ResponseWriter, r *http.Request) {
	routines, err := s.store.ListRoutines(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if routines == nil {
		routines = []models.Routine{}
	}
	writeJSON(w, http.StatusOK, routines)
}

func (s *Server) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.store.FetchActiveSession(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.store.FetchSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoutineID string `json:"routine_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.RoutineID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "routine_id is required"})
		return
	}
	sess, err := s.store.StartSession(r.Context(), req.RoutineID, s.now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("session started", "session", sess.ID, "routine", req.RoutineID, "user", userInfoFromContext(r).Login)
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.EndSession(r.Context(), s.now()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartExercise(w http.ResponseWriter, r *http.Request) {
	var req models.ExerciseStart
	if !s.decodeKeyed(w, r, &req, &req.ExerciseKey) {
		return
	}
	if req.StartedAt.IsZero() {
		req.StartedAt = s.now()
	}
	p, err := s.store.StartExercise(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCompleteExercise(w http.ResponseWriter, r *http.Request) {
	var req models.ExerciseCompletion
	if !s.decodeKeyed(w, r, &req, &req.ExerciseKey) {
		return
	}
	if req.CompletedAt.IsZero() {
		req.CompletedAt = s.now()
	}
	p, err := s.store.CompleteExercise(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleWarmupStart(w http.ResponseWriter, r *http.Request) {
	s.handleWarmup(w, r, s.store.StartWarmup)
}

func (s *Server) handleWarmupComplete(w http.ResponseWriter, r *http.Request) {
	s.handleWarmup(w, r, s.store.CompleteWarmup)
}

func (s *Server) handleWarmup(w http.ResponseWriter, r *http.Request, record func(ctx context.Context, ev models.WarmupEvent) error) {
	var ev models.WarmupEvent
	if err := decodeBody(r, &ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	if err := record(r.Context(), ev); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateSet(w http.ResponseWriter, r *http.Request) {
	var p models.SetPayload
	if !s.decodeKeyed(w, r, &p, &p.ExerciseKey) {
		return
	}
	if p.SetIndex < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "set_index must be at least 1"})
		return
	}
	if p.Reps < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reps must not be negative"})
		return
	}
	if p.Weight != nil && (*p.Weight < 0 || math.IsNaN(*p.Weight) || math.IsInf(*p.Weight, 0)) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "weight must be a non-negative number"})
		return
	}
	if p.CompletedAt.IsZero() {
		p.CompletedAt = s.now()
	}
	if p.StartedAt.IsZero() {
		p.StartedAt = p.CompletedAt
	}
	res, err := s.store.CreateSet(r.Context(), p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleDeleteSet(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSet(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	var u models.TargetUpdate
	if err := decodeBody(r, &u); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	u.RoutineID = chi.URLParam(r, "routineID")
	if u.ExerciseID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exercise_id is required"})
		return
	}
	if !(u.TargetWeight > 0) || math.IsInf(u.TargetWeight, 0) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "target_weight must be positive"})
		return
	}
	if u.Equipment.IsBodyweight() || u.Equipment.IsBand() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "equipment has no adjustable weight"})
		return
	}
	res, err := s.store.UpdateTarget(r.Context(), u)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("target weight updated", "routine", u.RoutineID, "exercise", u.ExerciseID, "value", u.TargetWeight)
	writeJSON(w, http.StatusOK, res)
}

// decodeKeyed decodes the body into v and checks the embedded exercise key.
// It writes the error response and returns false on failure.
func (s *Server) decodeKeyed(w http.ResponseWriter, r *http.Request, v any, key *models.ExerciseKey) bool {
	if err := decodeBody(r, v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	if strings.TrimSpace(key.ExerciseID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exercise_id is required"})
		return false
	}
	return true
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return errors.New("invalid JSON body: " + err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case storage.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, storage.ErrSessionActive):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		s.log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
