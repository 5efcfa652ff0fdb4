// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docline/docline/internal/chunker"
	"github.com/docline/docline/internal/config"
	"github.com/docline/docline/internal/database"
	"github.com/docline/docline/internal/embedding"
	"github.com/docline/docline/internal/llm"
	"github.com/docline/docline/internal/logger"
	"github.com/docline/docline/internal/pipeline"
	"github.com/docline/docline/internal/pipeline/stages"
	"github.com/docline/docline/internal/redact"
	"github.com/docline/docline/internal/schema"
	"github.com/docline/docline/internal/server"
	"github.com/docline/docline/internal/tracing"
)

func main() {
	cfg, err := config.NewConfig("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.CloseGlobal()

	mainLog := logger.GetLogger("main")
	mainLog.Info().Msg("Starting docline API server")

	ctx := context.Background()

	shutdownTracing, err := tracing.Setup(ctx, &cfg.Otel)
	if err != nil {
		mainLog.Error().Err(err).Msg("Error setting up tracing")
		os.Exit(1)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			mainLog.Warn().Err(err).Msg("Error flushing traces")
		}
	}()

	db, err := database.NewGormDB(&cfg.Database)
	if err != nil {
		mainLog.Error().Err(err).Msg("Error connecting to database")
		os.Exit(1)
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		mainLog.Error().Err(err).Msg("Error migrating database")
		os.Exit(1)
	}
	if err := db.ValidateSchema(); err != nil {
		mainLog.Error().Err(err).Msg("Schema validation failed")
		os.Exit(1)
	}

	llmClient, err := llm.New(&cfg.LLM)
	if err != nil {
		mainLog.Error().Err(err).Msg("Error creating LLM client")
		os.Exit(1)
	}
	embedder, err := embedding.New(&cfg.Embedding)
	if err != nil {
		mainLog.Error().Err(err).Msg("Error creating embedding client")
		os.Exit(1)
	}

	schemas := schema.NewRegistry(cfg.SchemaRegistry.Path)

	registry := pipeline.NewRegistry()
	stages.RegisterAll(registry, &stages.Deps{
		DB:        db,
		Config:    cfg,
		Chunker:   chunker.New(&cfg.Chunk),
		LLM:       llmClient,
		Embedder:  embedder,
		Schemas:   schemas,
		Validator: schema.NewValidator(),
		Redactor:  redact.New(cfg.Redact.Fields),
	})

	engine := pipeline.NewEngine(db, registry, &cfg.LLM, &cfg.Pipeline)

	srv := server.New(cfg, db, engine, schemas)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- srv.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		mainLog.Info().Msgf("Received signal %v, shutting down...", sig)
	case err := <-serverErrChan:
		if err != nil {
			mainLog.Error().Err(err).Msg("Server error")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLog.Error().Err(err).Msg("Error shutting down server")
	}

	mainLog.Info().Msg("API server shut down")
}
