// Package server provides the HTTP API for Deckard.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/deckardhq/deckard/internal/compose"
	"github.com/deckardhq/deckard/internal/config"
	"github.com/deckardhq/deckard/internal/ingest"
	"github.com/deckardhq/deckard/internal/planner"
	"github.com/deckardhq/deckard/internal/storage"
	"github.com/deckardhq/deckard/internal/vector"
)

// Server is the HTTP server for the Deckard API.
type Server struct {
	pipeline *ingest.Pipeline
	planner  *planner.Planner
	composer *compose.Composer
	storage  storage.Storage
	index    vector.Index
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	pipeline *ingest.Pipeline,
	pln *planner.Planner,
	composer *compose.Composer,
	store storage.Storage,
	index vector.Index,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		pipeline: pipeline,
		planner:  pln,
		composer: composer,
		storage:  store,
		index:    index,
		config:   cfg,
		logger:   logger,
	}
}

// Routes builds the router. Exposed for handler tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/documents", s.handleUpload)
	r.Get("/api/v1/documents", s.handleListDocuments)
	r.Get("/api/v1/documents/{id}", s.handleGetDocument)
	r.Post("/api/v1/ask", s.handleAsk)
	r.Get("/api/v1/units/{id}/chart", s.handleUnitChart)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
