// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stages implements the pipeline stages. Every stage is idempotent
// for a document: reruns replace their own outputs instead of duplicating.
package stages

import (
	"github.com/docline/docline/internal/chunker"
	"github.com/docline/docline/internal/config"
	"github.com/docline/docline/internal/database"
	"github.com/docline/docline/internal/embedding"
	"github.com/docline/docline/internal/llm"
	"github.com/docline/docline/internal/pipeline"
	"github.com/docline/docline/internal/redact"
	"github.com/docline/docline/internal/schema"
)

// Deps bundles the shared components the stages run against.
type Deps struct {
	DB        *database.GormDB
	Config    *config.AppConfig
	Chunker   *chunker.Chunker
	LLM       llm.Client
	Embedder  embedding.Client
	Schemas   *schema.Registry
	Validator *schema.Validator
	Redactor  *redact.Redactor
}

// RegisterAll registers the full stage sequence on the registry.
func RegisterAll(registry *pipeline.Registry, deps *Deps) {
	registry.Register(NewIngestStage(deps))
	registry.Register(NewTextExtractionStage(deps))
	registry.Register(NewLayoutNormalizationStage(deps))
	registry.Register(NewChunkingStage(deps))
	registry.Register(NewEmbeddingStage(deps))
	registry.Register(NewStructuredExtractionStage(deps))
	registry.Register(NewValidationStage(deps))
	registry.Register(NewPersistenceStage(deps))
	registry.Register(NewMetricsAndAuditStage(deps))
}
