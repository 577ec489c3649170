// Package resources implements MCP resource handlers for the bridge.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (browser://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HendryAvila/browserbridge/internal/queue"
	"github.com/mark3labs/mcp-go/mcp"
)

// Resource URIs.
const (
	IncomingURI = "browser://messages/incoming"
	StatusURI   = "browser://bridge/status"
)

// Loader reads the whole queue.
type Loader interface {
	Load() []queue.Message
}

// Status describes the running bridge.
type Status struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Backend   string `json:"backend"`
	QueuePath string `json:"queue_path"`
	HTTPAddr  string `json:"http_addr,omitempty"`
}

type statusPayload struct {
	Status
	Messages int `json:"messages"`
}

// Handler manages the bridge resource endpoints.
type Handler struct {
	queue  Loader
	status Status
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(q Loader, status Status) *Handler {
	return &Handler{queue: q, status: status}
}

// IncomingResource returns the MCP resource definition for the queue.
func (h *Handler) IncomingResource() mcp.Resource {
	return mcp.NewResource(
		IncomingURI,
		"Incoming Browser Messages",
		mcp.WithResourceDescription("Every queued browser message, oldest first, as a JSON array"),
		mcp.WithMIMEType("application/json"),
	)
}

// StatusResource returns the MCP resource definition for bridge status.
func (h *Handler) StatusResource() mcp.Resource {
	return mcp.NewResource(
		StatusURI,
		"Browser Bridge Status",
		mcp.WithResourceDescription("Version, storage backend and current queue length"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleIncoming returns the queue as JSON.
func (h *Handler) HandleIncoming(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, h.queue.Load())
}

// HandleStatus returns the bridge status as JSON.
func (h *Handler) HandleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, statusPayload{
		Status:   h.status,
		Messages: len(h.queue.Load()),
	})
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
