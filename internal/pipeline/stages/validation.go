// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package stages

import (
	"context"
	"encoding/json"

	"github.com/docline/docline/internal/database"
	"github.com/docline/docline/internal/errs"
	"github.com/docline/docline/internal/logger"
	"github.com/docline/docline/internal/models"
	"github.com/docline/docline/internal/schema"
)

// ValidationStage checks every extraction against the document's schema,
// updating is_valid and replacing stored validation errors.
type ValidationStage struct {
	db        *database.GormDB
	schemas   *schema.Registry
	validator *schema.Validator
}

func NewValidationStage(deps *Deps) *ValidationStage {
	return &ValidationStage{db: deps.DB, schemas: deps.Schemas, validator: deps.Validator}
}

func (s *ValidationStage) Name() string { return "validation" }

func (s *ValidationStage) Execute(ctx context.Context, documentID uint) error {
	doc, err := s.db.GetDocument(ctx, documentID)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "failed to load document", err)
	}
	if doc == nil {
		return nil
	}

	schemaDoc, err := s.schemas.Get(doc.SchemaVersion)
	if err != nil {
		return err
	}

	extractions, err := s.db.GetExtractionsByDocument(ctx, documentID)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "failed to load extractions", err)
	}

	validCount := 0
	invalidCount := 0

	for _, extraction := range extractions {
		var data any
		if err := json.Unmarshal([]byte(extraction.JSONResult), &data); err != nil {
			return errs.Wrap(errs.KindSchemaValidation, "stored extraction is not valid JSON", err).
				WithDetails(map[string]any{"extraction_id": extraction.ID})
		}

		result := s.validator.Validate(data, schemaDoc)

		if err := s.db.UpdateExtractionValidity(ctx, extraction.ID, result.IsValid); err != nil {
			return errs.Wrap(errs.KindStorage, "failed to update extraction validity", err)
		}

		var rows []models.ValidationError
		if !result.IsValid {
			invalidCount++
			for _, issue := range result.Errors {
				rows = append(rows, models.ValidationError{
					JSONPath: issue.JSONPath,
					Message:  issue.Message,
				})
			}
		} else {
			validCount++
		}
		if err := s.db.ReplaceValidationErrors(ctx, extraction.ID, rows); err != nil {
			return errs.Wrap(errs.KindStorage, "failed to store validation errors", err)
		}
	}

	if err := s.db.UpdateDocumentStatus(ctx, documentID, models.DocumentStatusValidated); err != nil {
		return errs.Wrap(errs.KindStorage, "failed to update document status", err)
	}

	log := logger.GetSchemaLogger()
	log.Info().
		Uint("document_id", documentID).
		Int("valid_count", validCount).
		Int("invalid_count", invalidCount).
		Msg("Validation completed")
	return nil
}
