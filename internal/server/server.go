// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the document pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/docline/docline/internal/config"
	"github.com/docline/docline/internal/database"
	"github.com/docline/docline/internal/schema"
)

// Server is the REST API server.
type Server struct {
	httpServer *http.Server
}

// New creates and wires up the API server. It does NOT start listening,
// call Run() for that.
func New(cfg *config.AppConfig, db *database.GormDB, engine PipelineRunner, schemas *schema.Registry) *Server {
	handlers := NewHandlers(db, engine, schemas, cfg)
	return &Server{httpServer: &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           NewRouter(cfg, handlers),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}
}

// NewRouter builds the chi router with the global middleware and routes.
// Exposed separately so tests can drive it with httptest.
func NewRouter(cfg *config.AppConfig, handlers *Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware. The body cap gets a little slack over the upload
	// limit for multipart framing; the handler enforces the exact limit.
	r.Use(Recovery)
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(CORS(cfg.Server.AllowedOrigins))
	r.Use(MaxBodySize(cfg.Storage.MaxFileSizeBytes() + 1<<20))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/documents", handlers.SubmitDocument)
		r.Get("/documents/{id}/status", handlers.GetStatus)
		r.Get("/documents/{id}/extractions", handlers.GetExtractions)
		r.Get("/documents/{id}/metrics", handlers.GetMetrics)
		r.Get("/schemas", handlers.ListSchemas)
	})

	r.Get("/health", handlers.Health)

	return r
}

// Run starts the HTTP server. Blocks until the server is shut down.
func (s *Server) Run() error {
	getLog().Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
