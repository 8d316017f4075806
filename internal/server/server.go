// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/casegen/casegen/internal/transport"
	"github.com/casegen/casegen/internal/workspace"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr   string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string
}

// HealthReporter exposes transport health for the /health endpoint.
type HealthReporter interface {
	Health() transport.HealthMetrics
}

// Server wraps a chi router with huma API and HTTP server.
type Server struct {
	router     chi.Router
	api        huma.API
	cfg        Config
	workspaces *workspace.Manager
	health     HealthReporter
}

// New creates a Server exposing the workspaces of m. health may be nil.
func New(cfg Config, m *workspace.Manager, health HealthReporter) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, cgerr.New(cgerr.CodeServerConfigInvalid, "listen address is required")
	}
	if m == nil {
		return nil, cgerr.New(cgerr.CodeServerConfigInvalid, "workspace manager is required")
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	// Generation requests block until the flow answers.
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 6 * time.Minute
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))

	humaConfig := huma.DefaultConfig("casegen", cfg.Version)
	humaConfig.Info.Description = "Test case generation, revision and export API"
	api := humachi.New(r, humaConfig)

	srv := &Server{
		router:     r,
		api:        api,
		cfg:        cfg,
		workspaces: m,
		health:     health,
	}

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, srv.handleHealth)

	srv.registerRoutes()
	return srv, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API for registering additional operations.
func (s *Server) API() huma.API {
	return s.api
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return cgerr.Errorf(cgerr.CodeServerInternalFailure, "listening on %s: %w", s.cfg.ListenAddr, err)
	}
	slog.Info("api listening", "addr", ln.Addr().String())

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return cgerr.Errorf(cgerr.CodeServerInternalFailure, "shutting down: %w", err)
	}

	return <-errCh
}

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status     string                   `json:"status" example:"ok" doc:"ok, or degraded while the transport is cooling down"`
	Version    string                   `json:"version"`
	Workspaces []string                 `json:"workspaces" doc:"Workspaces opened by this process"`
	Transport  *transport.HealthMetrics `json:"transport,omitempty"`
}

// HealthResponse wraps the health check response.
type HealthResponse struct {
	Body HealthBody
}

func (s *Server) handleHealth(_ context.Context, _ *struct{}) (*HealthResponse, error) {
	out := &HealthResponse{Body: HealthBody{
		Status:     "ok",
		Version:    s.cfg.Version,
		Workspaces: s.workspaces.IDs(),
	}}
	if s.health != nil {
		m := s.health.Health()
		out.Body.Transport = &m
		if !m.Available {
			out.Body.Status = "degraded"
		}
	}
	return out, nil
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
