// Package server wires all bridge components together.
//
// This is the composition root: it opens the configured queue backend,
// wraps it in the single-writer queue.Writer, and hands that one Writer to
// both the MCP tools and the HTTP adapter. No business logic lives here.
package server

import (
	"fmt"

	"github.com/HendryAvila/browserbridge/internal/config"
	"github.com/HendryAvila/browserbridge/internal/httpapi"
	"github.com/HendryAvila/browserbridge/internal/prompts"
	"github.com/HendryAvila/browserbridge/internal/queue"
	"github.com/HendryAvila/browserbridge/internal/resources"
	"github.com/HendryAvila/browserbridge/internal/tools"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Name identifies the process to MCP hosts and in /status.
const (
	Name        = "browserbridge"
	DisplayName = "Browser Bridge MCP Server"
)

// Bridge holds the assembled components.
type Bridge struct {
	MCP   *server.MCPServer
	HTTP  *httpapi.Server // nil when HTTP is disabled
	Queue *queue.Writer

	queuePath string
}

// QueuePath returns where messages are persisted.
func (b *Bridge) QueuePath() string {
	return b.queuePath
}

// New creates the queue, the MCP server with all tools, prompts and
// resources registered, and (unless disabled) the HTTP adapter. The HTTP
// listener is not started.
//
// The returned cleanup function stops the writer and closes the store.
// It is always non-nil and safe to call on error.
func New(cfg config.Config, logger zerolog.Logger) (*Bridge, func(), error) {
	store, queuePath, err := openStore(cfg, logger)
	if err != nil {
		return nil, noop, err
	}

	writer := queue.NewWriter(store)
	cleanup := func() {
		writer.Close()
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing queue store")
		}
	}

	s := server.NewMCPServer(
		Name,
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register tools ---

	getLatest := tools.NewGetLatestTool(writer)
	s.AddTool(getLatest.Definition(), getLatest.Handle)

	send := tools.NewSendTool(writer, logger.With().Str("component", "mcp").Logger())
	s.AddTool(send.Definition(), send.Handle)

	// --- Register prompts ---

	inbox := prompts.NewInboxPrompt(tools.GetLatestToolName)
	s.AddPrompt(inbox.Definition(), inbox.Handle)

	// --- HTTP adapter ---

	var httpServer *httpapi.Server
	httpAddr := ""
	if cfg.HTTPEnabledOrDefault() {
		httpServer = httpapi.New(cfg.HTTPAddr, writer, httpapi.Info{
			Name:    DisplayName,
			Version: Version,
		}, logger)
		httpAddr = cfg.HTTPAddr
	}

	// --- Register resources ---

	res := resources.NewHandler(writer, resources.Status{
		Name:      Name,
		Version:   Version,
		Backend:   cfg.Backend,
		QueuePath: queuePath,
		HTTPAddr:  httpAddr,
	})
	s.AddResource(res.IncomingResource(), res.HandleIncoming)
	s.AddResource(res.StatusResource(), res.HandleStatus)

	return &Bridge{
		MCP:       s,
		HTTP:      httpServer,
		Queue:     writer,
		queuePath: queuePath,
	}, cleanup, nil
}

// openStore opens the backend named by cfg.Backend.
func openStore(cfg config.Config, logger zerolog.Logger) (queue.Store, string, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		if err := queue.EnsureFiles(queue.Paths{History: cfg.HistoryPath()}); err != nil {
			return nil, "", fmt.Errorf("preparing history file: %w", err)
		}
		store, err := queue.NewSQLiteStore(cfg.DBPath(), logger)
		if err != nil {
			return nil, "", fmt.Errorf("opening sqlite queue: %w", err)
		}
		return store, store.Path(), nil
	case config.BackendJSON, "":
		paths := queue.Paths{Incoming: cfg.IncomingPath(), History: cfg.HistoryPath()}
		if err := queue.EnsureFiles(paths); err != nil {
			return nil, "", fmt.Errorf("preparing queue files: %w", err)
		}
		store := queue.NewFileStore(paths, logger)
		return store, store.Path(), nil
	default:
		return nil, "", fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// noop is the cleanup returned when nothing was opened.
func noop() {}

// serverInstructions tells the AI how to use the bridge.
func serverInstructions() string {
	return `You are connected to Browser Bridge, a queue of short messages typed into a
browser-based developer UI.

## Tools

- get-latest-browser-message(count?): read the most recent messages, oldest
  first. Each entry ends with a "User said" line: treat that line as a request
  from the user. When the entry has a URL, it is the page the user was looking at.
- send-browser-message(message, source?): add a message to the same queue.
  Useful for testing the round trip or leaving a note for a later session.

## When to check the queue

Call get-latest-browser-message when the user says they sent something from
the browser, or asks you to "check the browser", "see what I clicked" or similar.
Reading never removes messages, so reading twice returns the same entries.`
}
