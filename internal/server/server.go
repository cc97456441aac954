package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/claude/repguide/internal/models"
	"github.com/claude/repguide/internal/storage"
	"github.com/claude/repguide/internal/workout"
)

// Store is the persistence the HTTP API serves.
type Store interface {
	workout.Backend
	ListRoutines(ctx context.Context) ([]models.Routine, error)
	StartSession(ctx context.Context, routineID string, at time.Time) (*models.ActiveSession, error)
	EndSession(ctx context.Context, at time.Time) error
	UpdateTarget(ctx context.Context, u models.TargetUpdate) (*models.TargetResult, error)
}

// Compile-time check: storage.DB satisfies Store.
var _ Store = (*storage.DB)(nil)

// Server holds dependencies for HTTP handlers.
type Server struct {
	store  Store
	log    *slog.Logger
	apiKey string
	who    WhoIser
	now    func() time.Time
	router chi.Router
}

// New creates a new Server with all routes configured. who resolves tailnet
// identities; with nil every request is attributed to the local dev user.
func New(store Store, apiKey string, who WhoIser, log *slog.Logger) *Server {
	s := &Server{
		store:  store,
		log:    log,
		apiKey: apiKey,
		who:    who,
		now:    time.Now,
		router: chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	if s.who != nil {
		s.router.Use(TailscaleIdentity(s.who, s.log))
	} else {
		s.router.Use(DevIdentity)
	}
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	// Read endpoints (no auth, tsnet handles access)
	s.router.Get("/api/v1/me", s.handleMe)
	s.router.Get("/api/v1/routines", s.handleListRoutines)
	s.router.Get("/api/v1/sessions/active", s.handleActiveSession)
	s.router.Get("/api/v1/sessions/{id}", s.handleGetSession)

	// Write endpoints (API key required when configured)
	s.router.Group(func(r chi.Router) {
		if s.apiKey != "" {
			r.Use(APIKeyAuth(s.apiKey))
		}
		r.Post("/api/v1/sessions", s.handleStartSession)
		r.Post("/api/v1/sessions/active/end", s.handleEndSession)
		r.Post("/api/v1/sessions/active/exercises/start", s.handleStartExercise)
		r.Post("/api/v1/sessions/active/exercises/complete", s.handleCompleteExercise)
		r.Post("/api/v1/sessions/active/warmup/start", s.handleWarmupStart)
		r.Post("/api/v1/sessions/active/warmup/complete", s.handleWarmupComplete)
		r.Post("/api/v1/sessions/active/sets", s.handleCreateSet)
		r.Delete("/api/v1/sets/{id}", s.handleDeleteSet)
		r.Put("/api/v1/routines/{routineID}/targets", s.handleUpdateTarget)
	})
}
