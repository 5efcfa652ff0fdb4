// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package stages

import (
	"context"

	"github.com/docline/docline/internal/chunker"
	"github.com/docline/docline/internal/database"
	"github.com/docline/docline/internal/errs"
	"github.com/docline/docline/internal/logger"
	"github.com/docline/docline/internal/models"
)

// ChunkingStage splits the document text into chunks, replacing any chunks
// a previous attempt left behind.
type ChunkingStage struct {
	db      *database.GormDB
	chunker *chunker.Chunker
}

func NewChunkingStage(deps *Deps) *ChunkingStage {
	return &ChunkingStage{db: deps.DB, chunker: deps.Chunker}
}

func (s *ChunkingStage) Name() string { return "chunking" }

func (s *ChunkingStage) Execute(ctx context.Context, documentID uint) error {
	doc, err := s.db.GetDocument(ctx, documentID)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "failed to load document", err)
	}
	content, err := s.db.GetRawContent(ctx, documentID)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "failed to load raw content", err)
	}
	if doc == nil || content == nil {
		return errs.Newf(errs.KindChunking, "document not found: %d", documentID).
			WithDetails(map[string]any{"document_id": documentID})
	}

	text := ExtractText(content.Content)
	texts := s.chunker.Split(text)

	chunks := make([]models.Chunk, 0, len(texts))
	for sequence, chunkText := range texts {
		chunks = append(chunks, models.Chunk{
			Sequence:   sequence,
			Text:       chunkText,
			TokenCount: s.chunker.CountTokens(chunkText),
		})
	}

	if err := s.db.ReplaceChunks(ctx, documentID, chunks); err != nil {
		return errs.Wrap(errs.KindStorage, "failed to replace chunks", err)
	}

	if err := s.db.UpdateDocumentStatus(ctx, documentID, models.DocumentStatusChunked); err != nil {
		return errs.Wrap(errs.KindStorage, "failed to update document status", err)
	}

	log := logger.GetChunkerLogger()
	log.Info().
		Uint("document_id", documentID).
		Int("chunk_count", len(chunks)).
		Msg("Text chunked successfully")
	return nil
}
