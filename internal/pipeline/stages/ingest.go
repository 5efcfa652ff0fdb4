// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package stages

import (
	"context"

	"github.com/docline/docline/internal/database"
	"github.com/docline/docline/internal/errs"
	"github.com/docline/docline/internal/logger"
	"github.com/docline/docline/internal/models"
	"github.com/docline/docline/internal/storage"
)

// IngestStage verifies the stored content against the recorded hash before
// anything downstream trusts it.
type IngestStage struct {
	db *database.GormDB
}

func NewIngestStage(deps *Deps) *IngestStage {
	return &IngestStage{db: deps.DB}
}

func (s *IngestStage) Name() string { return "ingest" }

func (s *IngestStage) Execute(ctx context.Context, documentID uint) error {
	doc, err := s.db.GetDocument(ctx, documentID)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "failed to load document", err)
	}
	if doc == nil {
		return errs.Newf(errs.KindPipelineState, "document not found: %d", documentID).
			WithDetails(map[string]any{"document_id": documentID})
	}

	content, err := s.db.GetRawContent(ctx, documentID)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "failed to load raw content", err)
	}
	if content == nil {
		return errs.Newf(errs.KindPipelineState, "raw content not found for document: %d", documentID).
			WithDetails(map[string]any{"document_id": documentID})
	}

	computedHash := storage.HashBytes(content.Content)
	if computedHash != doc.ContentHash {
		return errs.New(errs.KindPipelineState, "content hash mismatch").
			WithDetails(map[string]any{
				"document_id": documentID,
				"expected":    doc.ContentHash,
				"computed":    computedHash,
			})
	}

	if err := s.db.UpdateDocumentStatus(ctx, documentID, models.DocumentStatusIngested); err != nil {
		return errs.Wrap(errs.KindStorage, "failed to update document status", err)
	}

	log := logger.GetPipelineLogger()
	log.Info().
		Uint("document_id", documentID).
		Int("content_size", len(content.Content)).
		Str("content_hash", computedHash).
		Msg("Document ingested successfully")
	return nil
}
