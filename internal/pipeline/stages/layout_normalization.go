// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package stages

import (
	"context"

	"github.com/docline/docline/internal/database"
	"github.com/docline/docline/internal/errs"
	"github.com/docline/docline/internal/logger"
	"github.com/docline/docline/internal/models"
)

// LayoutNormalizationStage is a placeholder in the sequence. Header and
// footer stripping would live here; for now it only advances the document
// status so the stage leaves the same durable trail as the others.
type LayoutNormalizationStage struct {
	db *database.GormDB
}

func NewLayoutNormalizationStage(deps *Deps) *LayoutNormalizationStage {
	return &LayoutNormalizationStage{db: deps.DB}
}

func (s *LayoutNormalizationStage) Name() string { return "layout_normalization" }

func (s *LayoutNormalizationStage) Execute(ctx context.Context, documentID uint) error {
	if err := s.db.UpdateDocumentStatus(ctx, documentID, models.DocumentStatusLayoutNormalized); err != nil {
		return errs.Wrap(errs.KindStorage, "failed to update document status", err)
	}

	log := logger.GetPipelineLogger()
	log.Info().
		Uint("document_id", documentID).
		Msg("Layout normalized successfully")
	return nil
}
