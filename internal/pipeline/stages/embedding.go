// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package stages

import (
	"context"

	"github.com/docline/docline/internal/database"
	"github.com/docline/docline/internal/embedding"
	"github.com/docline/docline/internal/errs"
	"github.com/docline/docline/internal/logger"
	"github.com/docline/docline/internal/models"
)

// EmbeddingStage embeds every chunk in batches and replaces any embeddings
// from a previous attempt.
type EmbeddingStage struct {
	db        *database.GormDB
	embedder  embedding.Client
	batchSize int
}

func NewEmbeddingStage(deps *Deps) *EmbeddingStage {
	return &EmbeddingStage{
		db:        deps.DB,
		embedder:  deps.Embedder,
		batchSize: deps.Config.Embedding.BatchSize,
	}
}

func (s *EmbeddingStage) Name() string { return "embedding" }

func (s *EmbeddingStage) Execute(ctx context.Context, documentID uint) error {
	chunks, err := s.db.GetChunks(ctx, documentID)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "failed to load chunks", err)
	}
	if len(chunks) == 0 {
		log := logger.GetEmbeddingLogger()
		log.Warn().
			Uint("document_id", documentID).
			Msg("No chunks found for document")
		return nil
	}

	var rows []models.Embedding
	for i := 0; i < len(chunks); i += s.batchSize {
		end := i + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]

		texts := make([]string, len(batch))
		for j, chunk := range batch {
			texts[j] = chunk.Text
		}

		resp, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(resp.Vectors) != len(batch) {
			return errs.Newf(errs.KindEmbedding, "vector count mismatch: got %d for %d chunks", len(resp.Vectors), len(batch)).
				WithDetails(map[string]any{"document_id": documentID})
		}

		model := "unknown"
		if m, ok := resp.Metadata["model"].(string); ok && m != "" {
			model = m
		}
		for j, vector := range resp.Vectors {
			rows = append(rows, models.Embedding{
				ChunkID: batch[j].ID,
				Model:   model,
				Vector:  embedding.PackVector(vector),
			})
		}
	}

	if err := s.db.ReplaceEmbeddings(ctx, documentID, rows); err != nil {
		return errs.Wrap(errs.KindStorage, "failed to replace embeddings", err)
	}

	if err := s.db.UpdateDocumentStatus(ctx, documentID, models.DocumentStatusEmbedded); err != nil {
		return errs.Wrap(errs.KindStorage, "failed to update document status", err)
	}

	log := logger.GetEmbeddingLogger()
	log.Info().
		Uint("document_id", documentID).
		Int("chunk_count", len(chunks)).
		Msg("Embeddings generated successfully")
	return nil
}
