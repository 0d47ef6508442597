// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Jeff9497/200Model8Dev/internal/backend"
	"github.com/Jeff9497/200Model8Dev/internal/chat"
	"github.com/Jeff9497/200Model8Dev/internal/config"
	"github.com/Jeff9497/200Model8Dev/internal/permission"
	"github.com/Jeff9497/200Model8Dev/internal/ratelimit"
	"github.com/Jeff9497/200Model8Dev/internal/tools"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxRequestBodySize is the largest JSON body the API accepts.
	MaxRequestBodySize = 1 << 20

	// DefaultAddr is used when the config names no listen address.
	DefaultAddr = "127.0.0.1:8787"
)

// Version is reported by /health. The command line overrides it at startup.
var Version = "dev"

// ============================================================================
// SERVER
// ============================================================================

// Options wires the server to the rest of the application. Nil components
// disable the routes that need them.
type Options struct {
	Config       config.ServerConfig
	DefaultModel string

	Orchestrator *chat.Orchestrator
	Gate         *permission.Gate
	Caller       tools.ServerCaller
	Executor     *tools.Executor
	Completer    backend.Completer
	Tracker      *ratelimit.Tracker

	Logger *slog.Logger
}

// Server is the HTTP API over one conversation.
type Server struct {
	opts    Options
	router  chi.Router
	limiter *RateLimiter
	logger  *slog.Logger

	// turnRunning guards the single asynchronous turn.
	turnRunning atomic.Bool
	turns       sync.WaitGroup
	baseCtx     context.Context
	cancel      context.CancelFunc

	mu     sync.Mutex
	server *http.Server
}

// New creates a server and registers its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:    opts,
		limiter: NewRateLimiter(opts.Config.RequestsPerMinute),
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
	s.router = s.routes()
	return s
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RecoveryMiddleware())
	r.Use(SecurityHeadersMiddleware())
	r.Use(LoggingMiddleware(s.logger))
	r.Use(CORSMiddleware(NewCORSConfig(s.opts.Config.CORSOrigins)))
	r.Use(RateLimitMiddleware(s.limiter))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Post("/mcp-call", s.handleToolCall)
		api.Get("/mcp-call", s.handleToolCallTest)
		api.Post("/complete", s.handleComplete)

		api.Post("/chat", s.handleChat)
		api.Get("/state", s.handleState)
		api.Get("/code-preview", s.handleCodePreview)
		api.Route("/messages", func(r chi.Router) {
			r.Get("/", s.handleListMessages)
			r.Delete("/", s.handleNewChat)
			r.Put("/{id}", s.handleEditMessage)
			r.Post("/{id}/resend", s.handleResend)
		})

		api.Get("/approval", s.handleGetApproval)
		api.Post("/approval", s.handleResolveApproval)
		api.Get("/permissions", s.handleListPermissions)
		api.Delete("/permissions", s.handleClearPermissions)

		api.Get("/tool-results", s.handleToolResults)
		api.Delete("/tool-results", s.handleClearToolResults)

		api.Get("/models", s.handleModels)
		api.Get("/tools", s.handleTools)
	})
	return r
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	addr := s.opts.Config.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      180 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("server started", "addr", ln.Addr().String(), "version", Version)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, cancels any running turn and waits
// for it to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	s.cancel()

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.turns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// startTurn runs fn in the background unless a turn is already running.
func (s *Server) startTurn(fn func(ctx context.Context) error) bool {
	if !s.turnRunning.CompareAndSwap(false, true) {
		return false
	}
	s.turns.Add(1)
	go func() {
		defer s.turns.Done()
		defer s.turnRunning.Store(false)
		if err := fn(s.baseCtx); err != nil {
			s.logger.Warn("background turn failed", "error", err)
		}
	}()
	return true
}

// ============================================================================
// HELPERS
// ============================================================================

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error        string   `json:"error"`
	Details      string   `json:"details,omitempty"`
	RateLimited  bool     `json:"rateLimited,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
