package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("RepGuide", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("RepGuide workout server. Inspect the active guided workout, its checklist and readiness, past sessions, and routine templates. Read-only."),
	)

	h := &handlers{ds: ds, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGetActiveSession, Handler: h.getActiveSession},
		server.ServerTool{Tool: toolGetSession, Handler: h.getSession},
		server.ServerTool{Tool: toolCheckReadiness, Handler: h.checkReadiness},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resRoutines, Handler: h.routines},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Resource definitions ---

var resRoutines = mcp.NewResource(
	"repguide://routines",
	"Routines",
	mcp.WithResourceDescription("All routine templates with their exercise slots and targets"),
	mcp.WithMIMEType("application/json"),
)
