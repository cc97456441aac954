package mcp

import (
	"context"

	"github.com/claude/repguide/internal/api"
	"github.com/claude/repguide/internal/models"
	"github.com/claude/repguide/internal/storage"
)

// DataSource abstracts the data layer for MCP tools. Both *storage.DB (local)
// and *api.Client (remote via REST API) satisfy this interface.
type DataSource interface {
	FetchActiveSession(ctx context.Context) (*models.ActiveSessionView, error)
	FetchSession(ctx context.Context, id string) (*models.ActiveSessionView, error)
	ListRoutines(ctx context.Context) ([]models.Routine, error)
}

// Compile-time checks: both backends satisfy DataSource.
var (
	_ DataSource = (*storage.DB)(nil)
	_ DataSource = (*api.Client)(nil)
)
