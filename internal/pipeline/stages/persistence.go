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

// PersistenceStage marks that all extraction outputs are durably stored.
// Writes happen incrementally in earlier stages, so the checkpoint is the
// only work left here.
type PersistenceStage struct {
	db *database.GormDB
}

func NewPersistenceStage(deps *Deps) *PersistenceStage {
	return &PersistenceStage{db: deps.DB}
}

func (s *PersistenceStage) Name() string { return "persistence" }

func (s *PersistenceStage) Execute(ctx context.Context, documentID uint) error {
	if err := s.db.UpdateDocumentStatus(ctx, documentID, models.DocumentStatusPersisted); err != nil {
		return errs.Wrap(errs.KindStorage, "failed to update document status", err)
	}

	log := logger.GetPipelineLogger()
	log.Info().
		Uint("document_id", documentID).
		Msg("Persistence completed")
	return nil
}
