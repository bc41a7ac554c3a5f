// Package server provides the local HTTP API the chat client talks to.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kaiwa-app/kioku/internal/config"
	"github.com/kaiwa-app/kioku/internal/manager"
	"github.com/kaiwa-app/kioku/internal/retriever"
)

// Server is the HTTP server for the knowledge base API.
type Server struct {
	manager   *manager.Manager
	retriever *retriever.Retriever
	config    *config.ServerConfig
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(mgr *manager.Manager, ret *retriever.Retriever, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		manager:   mgr,
		retriever: ret,
		config:    cfg,
		logger:    logger,
	}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/knowledge-bases", s.handleCreateKB)
		r.Get("/knowledge-bases", s.handleListKBs)
		r.Get("/knowledge-bases/{id}", s.handleGetKB)
		r.Put("/knowledge-bases/{id}", s.handleUpdateKB)
		r.Delete("/knowledge-bases/{id}", s.handleDeleteKB)

		r.Post("/knowledge-bases/{id}/documents", s.handleImportDocument)
		r.Get("/knowledge-bases/{id}/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)

		r.Post("/retrieve", s.handleRetrieve)
		r.Post("/retrieve/context", s.handleRetrieveContext)
	})
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
