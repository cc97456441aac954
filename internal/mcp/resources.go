package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

func (h *handlers) routines(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	routines, err := h.ds.ListRoutines(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(routines)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
