// Package httpapi is the loopback HTTP adapter browsers post messages to.
//
// Routes:
//
//	GET  /status                      liveness and version
//	POST /send-message, /test-message submit a message
//	OPTIONS *                         CORS preflight, 200 with no body
//
// Everything else is a plain-text 404.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/HendryAvila/browserbridge/internal/queue"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const defaultHTTPSource = "http-browser"

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// Info identifies the process in /status responses.
type Info struct {
	Name    string
	Version string
}

// Server owns the HTTP listener.
type Server struct {
	logger     zerolog.Logger
	queue      queue.Queue
	info       Info
	addr       string
	httpServer *http.Server

	mu         sync.RWMutex
	actualAddr string
}

// New creates a Server that will listen on addr once started.
func New(addr string, q queue.Queue, info Info, logger zerolog.Logger) *Server {
	s := &Server{
		logger: logger.With().Str("component", "http").Logger(),
		queue:  q,
		info:   info,
		addr:   addr,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Methods(http.MethodGet).Path("/status").HandlerFunc(s.handleStatus)
	r.Methods(http.MethodPost).Path("/send-message").HandlerFunc(s.handleSend)
	r.Methods(http.MethodPost).Path("/test-message").HandlerFunc(s.handleSend)

	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(notFound)

	return withCORS(r)
}

// Start binds the listener and serves in a background goroutine.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.actualAddr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info().Str("address", s.Addr()).Msg("HTTP server listening")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.actualAddr != "" {
		return s.actualAddr
	}
	return s.addr
}

// Shutdown gracefully stops the listener within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("HTTP server shutdown")
		return err
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

type statusResponse struct {
	Status    string `json:"status"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:    "running",
		Name:      s.info.Name,
		Version:   s.info.Version,
		Timestamp: timeNow().UTC().Format(queue.TimestampLayout),
	})
}

type sendRequest struct {
	Message  string         `json:"message"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

type sendResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, sendResponse{Error: err.Error()})
		return
	}

	// The whole body must be one JSON document; trailing bytes are rejected.
	var body sendRequest
	if err := json.Unmarshal(data, &body); err != nil {
		s.logger.Warn().Err(err).Msg("rejecting malformed body")
		writeJSON(w, http.StatusBadRequest, sendResponse{Error: err.Error()})
		return
	}

	source := body.Source
	if source == "" {
		source = defaultHTTPSource
	}

	msg, err := queue.NewMessage(queue.PrefixHTTP, body.Message, source, body.Metadata)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, sendResponse{Error: err.Error()})
		return
	}

	if err := s.queue.Append(msg); err != nil {
		s.logger.Error().Err(err).Str("id", msg.ID).Msg("storing browser message")
		writeJSON(w, http.StatusBadRequest, sendResponse{Error: err.Error()})
		return
	}

	s.logger.Info().
		Str("id", msg.ID).
		Str("source", msg.Source).
		Str("text", msg.Message).
		Msg("browser message stored")

	writeJSON(w, http.StatusOK, sendResponse{
		Success:   true,
		Message:   "Message stored successfully",
		MessageID: msg.ID,
		Timestamp: msg.Timestamp,
	})
}

// withCORS allows any origin and answers every preflight itself, before
// routing, so OPTIONS succeeds on unknown paths too.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("Not Found"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
