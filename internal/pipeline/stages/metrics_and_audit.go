// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package stages

import (
	"context"

	"github.com/samber/lo"

	"github.com/docline/docline/internal/database"
	"github.com/docline/docline/internal/errs"
	"github.com/docline/docline/internal/logger"
	"github.com/docline/docline/internal/models"
)

// MetricsAndAuditStage aggregates the document's extraction totals for the
// audit log and writes the final advisory status. The engine still owns the
// authoritative completed status.
type MetricsAndAuditStage struct {
	db *database.GormDB
}

func NewMetricsAndAuditStage(deps *Deps) *MetricsAndAuditStage {
	return &MetricsAndAuditStage{db: deps.DB}
}

func (s *MetricsAndAuditStage) Name() string { return "metrics_and_audit" }

func (s *MetricsAndAuditStage) Execute(ctx context.Context, documentID uint) error {
	extractions, err := s.db.GetExtractionsByDocument(ctx, documentID)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "failed to load extractions", err)
	}

	totalTokensIn := lo.SumBy(extractions, func(e *models.Extraction) int { return e.TokensIn })
	totalTokensOut := lo.SumBy(extractions, func(e *models.Extraction) int { return e.TokensOut })
	totalCost := lo.SumBy(extractions, func(e *models.Extraction) float64 { return e.CostUSD })
	validCount := lo.CountBy(extractions, func(e *models.Extraction) bool { return e.IsValid })

	if err := s.db.UpdateDocumentStatus(ctx, documentID, models.DocumentStatusCompleted); err != nil {
		return errs.Wrap(errs.KindStorage, "failed to update document status", err)
	}

	log := logger.GetPipelineLogger()
	log.Info().
		Uint("document_id", documentID).
		Int("total_tokens_in", totalTokensIn).
		Int("total_tokens_out", totalTokensOut).
		Float64("total_cost_usd", totalCost).
		Int("valid_extractions", validCount).
		Int("invalid_extractions", len(extractions)-validCount).
		Msg("Metrics and audit completed")
	return nil
}
