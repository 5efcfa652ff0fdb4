// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package stages

import (
	"context"
	"strings"

	"github.com/docline/docline/internal/database"
	"github.com/docline/docline/internal/errs"
	"github.com/docline/docline/internal/logger"
	"github.com/docline/docline/internal/models"
)

// TextExtractionStage turns stored bytes into plain text. Binary formats
// like PDF and scanned images are out of scope; the declared MIME type is
// trusted and anything not plainly text is decoded best-effort with invalid
// UTF-8 stripped.
type TextExtractionStage struct {
	db *database.GormDB
}

func NewTextExtractionStage(deps *Deps) *TextExtractionStage {
	return &TextExtractionStage{db: deps.DB}
}

func (s *TextExtractionStage) Name() string { return "text_extraction" }

func (s *TextExtractionStage) Execute(ctx context.Context, documentID uint) error {
	doc, err := s.db.GetDocument(ctx, documentID)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "failed to load document", err)
	}
	content, err := s.db.GetRawContent(ctx, documentID)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "failed to load raw content", err)
	}
	if doc == nil || content == nil {
		return errs.Newf(errs.KindExtraction, "document or content not found: %d", documentID).
			WithDetails(map[string]any{"document_id": documentID})
	}

	text := ExtractText(content.Content)

	if err := s.db.UpdateDocumentStatus(ctx, documentID, models.DocumentStatusTextExtracted); err != nil {
		return errs.Wrap(errs.KindStorage, "failed to update document status", err)
	}

	log := logger.GetPipelineLogger()
	log.Info().
		Uint("document_id", documentID).
		Int("text_length", len(text)).
		Str("mime_type", doc.MimeType).
		Msg("Text extracted successfully")
	return nil
}

// ExtractText decodes document bytes into text, dropping invalid UTF-8.
// Downstream stages use the same decoding so chunking sees exactly this text.
func ExtractText(content []byte) string {
	return strings.ToValidUTF8(string(content), "")
}
