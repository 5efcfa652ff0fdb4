// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/docline/docline/internal/config"
	"github.com/docline/docline/internal/database"
	"github.com/docline/docline/internal/models"
	"github.com/docline/docline/internal/pipeline"
	"github.com/docline/docline/internal/schema"
	"github.com/docline/docline/internal/storage"
)

// PipelineRunner runs the pipeline for a submitted document. Satisfied by
// *pipeline.Engine; tests substitute a stub.
type PipelineRunner interface {
	Execute(ctx context.Context, documentID uint, correlationID string) (map[string]pipeline.StageResult, error)
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db      *database.GormDB
	engine  PipelineRunner
	schemas *schema.Registry
	cfg     *config.AppConfig
}

// NewHandlers creates the handler set.
func NewHandlers(db *database.GormDB, engine PipelineRunner, schemas *schema.Registry, cfg *config.AppConfig) *Handlers {
	return &Handlers{db: db, engine: engine, schemas: schemas, cfg: cfg}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		getLog().Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func documentIDParam(r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// --- responses ---

// SubmitResponse is the POST /documents reply.
type SubmitResponse struct {
	DocumentID    uint   `json:"document_id"`
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
}

// StageStatus is one run row in the status reply.
type StageStatus struct {
	Stage        string     `json:"stage"`
	Status       string     `json:"status"`
	Attempt      int        `json:"attempt"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorType    string     `json:"error_type,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// StatusResponse is the GET /documents/{id}/status reply.
type StatusResponse struct {
	DocumentID    uint          `json:"document_id"`
	Source        string        `json:"source"`
	SchemaVersion string        `json:"schema_version"`
	Status        string        `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Stages        []StageStatus `json:"stages"`
}

// ExtractionResult is one extraction in the extractions reply.
type ExtractionResult struct {
	ChunkID          uint           `json:"chunk_id"`
	Sequence         int            `json:"sequence"`
	JSONResult       map[string]any `json:"json_result"`
	IsValid          bool           `json:"is_valid"`
	ValidationErrors []schema.Issue `json:"validation_errors"`
	LatencyMS        float64        `json:"latency_ms"`
	TokensIn         int            `json:"tokens_in"`
	TokensOut        int            `json:"tokens_out"`
	CostUSD          float64        `json:"cost_usd"`
}

// ExtractionsResponse is the GET /documents/{id}/extractions reply.
type ExtractionsResponse struct {
	DocumentID    uint               `json:"document_id"`
	SchemaVersion string             `json:"schema_version"`
	Extractions   []ExtractionResult `json:"extractions"`
	TotalCostUSD  float64            `json:"total_cost_usd"`
}

// MetricsResponse is the GET /documents/{id}/metrics reply.
type MetricsResponse struct {
	DocumentID             uint                    `json:"document_id"`
	TotalLatencyMS         float64                 `json:"total_latency_ms"`
	TotalTokensIn          int64                   `json:"total_tokens_in"`
	TotalTokensOut         int64                   `json:"total_tokens_out"`
	TotalCostUSD           float64                 `json:"total_cost_usd"`
	ChunkCount             int                     `json:"chunk_count"`
	ExtractionCount        int                     `json:"extraction_count"`
	ValidExtractionCount   int                     `json:"valid_extraction_count"`
	InvalidExtractionCount int                     `json:"invalid_extraction_count"`
	StageMetrics           []database.StageMetrics `json:"stage_metrics"`
}

// --- handlers ---

// SubmitDocument handles POST /api/v1/documents. Resubmitting the same
// content with the same schema version returns the stored document instead
// of creating a duplicate.
func (h *Handlers) SubmitDocument(w http.ResponseWriter, r *http.Request) {
	correlationID := uuid.New().String()

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	schemaVersion := r.FormValue("schema_version")
	if schemaVersion == "" {
		writeError(w, http.StatusBadRequest, "missing schema_version field")
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}

	maxSize := h.cfg.Storage.MaxFileSizeBytes()
	if int64(len(content)) > maxSize {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	contentHash := storage.HashBytes(content)
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	existing, err := h.db.FindDocumentByHashAndSchema(r.Context(), contentHash, schemaVersion)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check for existing document")
		return
	}
	if existing != nil {
		getLog().Info().
			Uint("document_id", existing.ID).
			Str("content_hash", contentHash).
			Str("schema_version", schemaVersion).
			Msg("Document already exists")
		writeJSON(w, http.StatusOK, SubmitResponse{
			DocumentID:    existing.ID,
			CorrelationID: correlationID,
			Status:        string(existing.Status),
		})
		return
	}

	source := header.Filename
	if source == "" {
		source = "upload"
	}

	doc := &models.Document{
		Source:        source,
		ContentHash:   contentHash,
		SchemaVersion: schemaVersion,
		Status:        models.DocumentStatusPending,
		FileSizeBytes: int64(len(content)),
		MimeType:      mimeType,
	}
	err = h.db.Transaction(r.Context(), func(tx *database.GormDB) error {
		if err := tx.CreateDocument(r.Context(), doc); err != nil {
			return err
		}
		return tx.CreateRawContent(r.Context(), &models.RawContent{
			DocumentID: doc.ID,
			Content:    content,
		})
	})
	if err != nil {
		getLog().Error().Err(err).Str("correlation_id", correlationID).Msg("Failed to submit document")
		writeError(w, http.StatusInternalServerError, "failed to submit document")
		return
	}

	getLog().Info().
		Uint("document_id", doc.ID).
		Str("correlation_id", correlationID).
		Str("schema_version", schemaVersion).
		Int("file_size", len(content)).
		Msg("Document submitted")

	// The pipeline outlives the request.
	go func() {
		if _, err := h.engine.Execute(context.Background(), doc.ID, correlationID); err != nil {
			getLog().Error().
				Err(err).
				Uint("document_id", doc.ID).
				Str("correlation_id", correlationID).
				Msg("Pipeline execution failed")
		}
	}()

	writeJSON(w, http.StatusOK, SubmitResponse{
		DocumentID:    doc.ID,
		CorrelationID: correlationID,
		Status:        string(models.DocumentStatusPending),
	})
}

// GetStatus handles GET /api/v1/documents/{id}/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	documentID, ok := documentIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := h.db.GetDocument(r.Context(), documentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	runs, err := h.db.GetPipelineRuns(r.Context(), documentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load pipeline runs")
		return
	}

	stages := lo.Map(runs, func(run *models.PipelineRun, _ int) StageStatus {
		return StageStatus{
			Stage:        run.Stage,
			Status:       string(run.Status),
			Attempt:      run.Attempt,
			StartedAt:    run.StartedAt,
			FinishedAt:   run.FinishedAt,
			ErrorType:    run.ErrorType,
			ErrorMessage: run.ErrorMessage,
		}
	})

	writeJSON(w, http.StatusOK, StatusResponse{
		DocumentID:    doc.ID,
		Source:        doc.Source,
		SchemaVersion: doc.SchemaVersion,
		Status:        string(doc.Status),
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
		Stages:        stages,
	})
}

// GetExtractions handles GET /api/v1/documents/{id}/extractions
func (h *Handlers) GetExtractions(w http.ResponseWriter, r *http.Request) {
	documentID, ok := documentIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := h.db.GetDocument(r.Context(), documentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	extractions, err := h.db.GetExtractionsByDocument(r.Context(), documentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load extractions")
		return
	}

	chunks, err := h.db.GetChunks(r.Context(), documentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load chunks")
		return
	}
	sequenceByChunk := lo.SliceToMap(chunks, func(c *models.Chunk) (uint, int) {
		return c.ID, c.Sequence
	})

	results := make([]ExtractionResult, 0, len(extractions))
	totalCost := 0.0

	for _, extraction := range extractions {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(extraction.JSONResult), &parsed); err != nil {
			writeError(w, http.StatusInternalServerError, "stored extraction is corrupt")
			return
		}

		errorRows, err := h.db.GetValidationErrors(r.Context(), extraction.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load validation errors")
			return
		}
		issues := lo.Map(errorRows, func(row *models.ValidationError, _ int) schema.Issue {
			return schema.Issue{JSONPath: row.JSONPath, Message: row.Message}
		})

		results = append(results, ExtractionResult{
			ChunkID:          extraction.ChunkID,
			Sequence:         sequenceByChunk[extraction.ChunkID],
			JSONResult:       parsed,
			IsValid:          extraction.IsValid,
			ValidationErrors: issues,
			LatencyMS:        extraction.LatencyMS,
			TokensIn:         extraction.TokensIn,
			TokensOut:        extraction.TokensOut,
			CostUSD:          extraction.CostUSD,
		})
		totalCost += extraction.CostUSD
	}

	writeJSON(w, http.StatusOK, ExtractionsResponse{
		DocumentID:    documentID,
		SchemaVersion: doc.SchemaVersion,
		Extractions:   results,
		TotalCostUSD:  totalCost,
	})
}

// GetMetrics handles GET /api/v1/documents/{id}/metrics
func (h *Handlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	documentID, ok := documentIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := h.db.GetDocument(r.Context(), documentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	stageMetrics, err := h.db.GetStageMetricsByDocument(r.Context(), documentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load metrics")
		return
	}

	chunks, err := h.db.GetChunks(r.Context(), documentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load chunks")
		return
	}

	extractions, err := h.db.GetExtractionsByDocument(r.Context(), documentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load extractions")
		return
	}

	totalTokensIn := int64(lo.SumBy(extractions, func(e *models.Extraction) int { return e.TokensIn }))
	totalTokensOut := int64(lo.SumBy(extractions, func(e *models.Extraction) int { return e.TokensOut }))
	totalCost := lo.SumBy(extractions, func(e *models.Extraction) float64 { return e.CostUSD })
	validCount := lo.CountBy(extractions, func(e *models.Extraction) bool { return e.IsValid })
	totalLatency := lo.SumBy(stageMetrics, func(m database.StageMetrics) float64 { return m.TotalLatencyMS })

	writeJSON(w, http.StatusOK, MetricsResponse{
		DocumentID:             documentID,
		TotalLatencyMS:         totalLatency,
		TotalTokensIn:          totalTokensIn,
		TotalTokensOut:         totalTokensOut,
		TotalCostUSD:           totalCost,
		ChunkCount:             len(chunks),
		ExtractionCount:        len(extractions),
		ValidExtractionCount:   validCount,
		InvalidExtractionCount: len(extractions) - validCount,
		StageMetrics:           stageMetrics,
	})
}

// ListSchemas handles GET /api/v1/schemas
func (h *Handlers) ListSchemas(w http.ResponseWriter, r *http.Request) {
	versions, err := h.schemas.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list schemas")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schemas": versions})
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
