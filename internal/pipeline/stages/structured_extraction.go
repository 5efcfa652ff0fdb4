// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/docline/docline/internal/config"
	"github.com/docline/docline/internal/database"
	"github.com/docline/docline/internal/errs"
	"github.com/docline/docline/internal/llm"
	"github.com/docline/docline/internal/logger"
	"github.com/docline/docline/internal/models"
	"github.com/docline/docline/internal/redact"
	"github.com/docline/docline/internal/schema"
	"github.com/docline/docline/internal/storage"
)

// StructuredExtractionStage sends every chunk through the model with a
// bounded fan-out and commits each chunk's extraction independently, so a
// failure partway leaves the completed chunks persisted.
type StructuredExtractionStage struct {
	db       *database.GormDB
	client   llm.Client
	schemas  *schema.Registry
	redactor *redact.Redactor
	cfg      *config.AppConfig
}

func NewStructuredExtractionStage(deps *Deps) *StructuredExtractionStage {
	return &StructuredExtractionStage{
		db:       deps.DB,
		client:   deps.LLM,
		schemas:  deps.Schemas,
		redactor: deps.Redactor,
		cfg:      deps.Config,
	}
}

func (s *StructuredExtractionStage) Name() string { return "structured_extraction" }

func (s *StructuredExtractionStage) Execute(ctx context.Context, documentID uint) error {
	doc, err := s.db.GetDocument(ctx, documentID)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "failed to load document", err)
	}
	if doc == nil {
		return errs.Newf(errs.KindExtraction, "document not found: %d", documentID).
			WithDetails(map[string]any{"document_id": documentID})
	}

	schemaDoc, err := s.schemas.Get(doc.SchemaVersion)
	if err != nil {
		return err
	}

	chunks, err := s.db.GetChunks(ctx, documentID)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "failed to load chunks", err)
	}
	if len(chunks) == 0 {
		log := logger.GetPipelineLogger()
		log.Warn().
			Uint("document_id", documentID).
			Msg("No chunks found for document")
		return nil
	}

	// Clear out prior attempts before fanning out.
	for _, chunk := range chunks {
		if err := s.db.DeleteExtractionsForChunk(ctx, chunk.ID); err != nil {
			return errs.Wrap(errs.KindStorage, "failed to delete prior extractions", err)
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.Pipeline.MaxConcurrentChunks)

	for _, chunk := range chunks {
		chunk := chunk
		group.Go(func() error {
			return s.processChunk(groupCtx, chunk, schemaDoc, doc.SchemaVersion)
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if err := s.db.UpdateDocumentStatus(ctx, documentID, models.DocumentStatusExtracted); err != nil {
		return errs.Wrap(errs.KindStorage, "failed to update document status", err)
	}

	log := logger.GetPipelineLogger()
	log.Info().
		Uint("document_id", documentID).
		Int("chunk_count", len(chunks)).
		Str("schema_version", doc.SchemaVersion).
		Msg("Structured extraction completed")
	return nil
}

// processChunk runs one chunk through the model and commits its extraction.
func (s *StructuredExtractionStage) processChunk(ctx context.Context, chunk *models.Chunk, schemaDoc map[string]any, schemaVersion string) error {
	prompt := buildPrompt(chunk.Text)
	promptHash := storage.HashString(prompt)

	resp, err := s.client.GenerateStructured(ctx, prompt, schemaDoc, s.cfg.LLM.Temperature, s.cfg.LLM.MaxTokens)
	if err != nil {
		return err
	}

	costUSD := CalculateCost(resp.TokensIn, resp.TokensOut, &s.cfg.Cost)

	jsonResult, err := json.Marshal(resp.ParsedJSON)
	if err != nil {
		return errs.Wrap(errs.KindExtraction, "failed to encode extraction result", err)
	}

	extraction := &models.Extraction{
		ChunkID:       chunk.ID,
		SchemaVersion: schemaVersion,
		Model:         s.cfg.LLM.Model,
		JSONResult:    string(jsonResult),
		IsValid:       false, // validated in the next stage
		LatencyMS:     resp.LatencyMS,
		TokensIn:      resp.TokensIn,
		TokensOut:     resp.TokensOut,
		CostUSD:       costUSD,
		PromptHash:    promptHash,
	}
	if s.cfg.Storage.PersistRawResponses {
		extraction.RawResponse = resp.RawResponse
	}

	err = s.db.Transaction(ctx, func(tx *database.GormDB) error {
		if err := tx.CreateExtraction(ctx, extraction); err != nil {
			return err
		}
		if s.cfg.Storage.PersistPrompts {
			return tx.CreatePrompt(ctx, &models.Prompt{
				ExtractionID: extraction.ID,
				PromptText:   prompt,
				PromptHash:   promptHash,
			})
		}
		return nil
	})
	if err != nil {
		return errs.Wrap(errs.KindStorage, "failed to store extraction", err)
	}

	log := logger.GetPipelineLogger()
	if log.Debug().Enabled() {
		preview, _ := json.Marshal(s.redactor.Map(resp.ParsedJSON))
		log.Debug().
			Uint("chunk_id", chunk.ID).
			Uint("extraction_id", extraction.ID).
			Int("tokens_in", resp.TokensIn).
			Int("tokens_out", resp.TokensOut).
			Float64("cost_usd", costUSD).
			RawJSON("result_preview", preview).
			Msg("Chunk extracted")
	}
	return nil
}

func buildPrompt(text string) string {
	return fmt.Sprintf(`Extract structured information from the following text.
Return only valid JSON that conforms to the provided schema.

Text:
%s
`, text)
}

// CalculateCost converts token counts to USD at the configured per-1K prices.
func CalculateCost(tokensIn, tokensOut int, cfg *config.CostConfig) float64 {
	costIn := float64(tokensIn) / 1000 * cfg.Per1KInputTokens
	costOut := float64(tokensOut) / 1000 * cfg.Per1KOutputTokens
	return costIn + costOut
}
