// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package models defines the GORM models for the document pipeline store.
package models

import (
	"time"

	"gorm.io/gorm"
)

// DocumentStatus represents the lifecycle status of a document.
type DocumentStatus string

const (
	DocumentStatusPending          DocumentStatus = "pending"
	DocumentStatusIngested         DocumentStatus = "ingested"
	DocumentStatusTextExtracted    DocumentStatus = "text_extracted"
	DocumentStatusLayoutNormalized DocumentStatus = "layout_normalized"
	DocumentStatusChunked          DocumentStatus = "chunked"
	DocumentStatusEmbedded         DocumentStatus = "embedded"
	DocumentStatusExtracted        DocumentStatus = "extracted"
	DocumentStatusValidated        DocumentStatus = "validated"
	DocumentStatusPersisted        DocumentStatus = "persisted"
	DocumentStatusCompleted        DocumentStatus = "completed"
	DocumentStatusFailed           DocumentStatus = "failed"
)

// RunStatus represents the status of a single stage attempt.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Document represents a submitted document.
type Document struct {
	ID            uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Source        string         `gorm:"not null;size:512" json:"source"`
	ContentHash   string         `gorm:"not null;size:64;index:idx_documents_content_hash_schema" json:"content_hash"`
	SchemaVersion string         `gorm:"not null;size:64;index:idx_documents_content_hash_schema" json:"schema_version"`
	Status        DocumentStatus `gorm:"not null;size:32;default:pending;index:idx_documents_status" json:"status"`
	CreatedAt     time.Time      `gorm:"not null;index:idx_documents_created_at" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
	FileSizeBytes int64          `json:"file_size_bytes"`
	MimeType      string         `gorm:"size:128" json:"mime_type"`

	// Relations
	RawContent *RawContent   `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
	Runs       []PipelineRun `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
	Chunks     []Chunk       `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for Document
func (Document) TableName() string {
	return "documents"
}

// BeforeCreate is a GORM hook that runs before creating a record
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = now
	}
	if d.Status == "" {
		d.Status = DocumentStatusPending
	}
	return nil
}

// BeforeUpdate is a GORM hook that runs before updating a record
func (d *Document) BeforeUpdate(tx *gorm.DB) error {
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// RawContent stores the original bytes of a document, one row per document.
type RawContent struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID uint      `gorm:"not null;uniqueIndex:idx_raw_content_document_id" json:"document_id"`
	Content    []byte    `gorm:"not null" json:"-"`
	IsHashed   bool      `gorm:"not null;default:false" json:"is_hashed"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for RawContent
func (RawContent) TableName() string {
	return "raw_content"
}

// PipelineRun records one attempt of one stage for a document. A row with
// status "completed" is the durable marker that lets a rerun skip the stage.
type PipelineRun struct {
	ID            uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID    uint       `gorm:"not null;index:idx_pipeline_runs_document_stage" json:"document_id"`
	Stage         string     `gorm:"not null;size:64;index:idx_pipeline_runs_document_stage" json:"stage"`
	Status        RunStatus  `gorm:"not null;size:32;index:idx_pipeline_runs_status" json:"status"`
	Attempt       int        `gorm:"not null;default:1" json:"attempt"`
	ErrorType     string     `gorm:"size:128" json:"error_type,omitempty"`
	ErrorMessage  string     `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt     time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	CorrelationID string     `gorm:"size:64;index:idx_pipeline_runs_correlation_id" json:"correlation_id"`
}

// TableName returns the table name for PipelineRun
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}

// BeforeCreate is a GORM hook that runs before creating a record
func (r *PipelineRun) BeforeCreate(tx *gorm.DB) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.Attempt == 0 {
		r.Attempt = 1
	}
	return nil
}

// Chunk is one contiguous span of a document's extracted text.
type Chunk struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID uint      `gorm:"not null;index:idx_chunks_document_sequence" json:"document_id"`
	Sequence   int       `gorm:"not null;index:idx_chunks_document_sequence" json:"sequence"`
	Text       string    `gorm:"not null;type:text" json:"text"`
	TokenCount int       `gorm:"not null" json:"token_count"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for Chunk
func (Chunk) TableName() string {
	return "chunks"
}

// Embedding stores a packed little-endian float32 vector for a chunk.
type Embedding struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ChunkID   uint      `gorm:"not null;index:idx_embeddings_chunk_id" json:"chunk_id"`
	Model     string    `gorm:"not null;size:128" json:"model"`
	Vector    []byte    `gorm:"not null" json:"-"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for Embedding
func (Embedding) TableName() string {
	return "embeddings"
}

// Extraction is the structured JSON a model produced for one chunk.
type Extraction struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ChunkID       uint      `gorm:"not null;index:idx_extractions_chunk_id" json:"chunk_id"`
	SchemaVersion string    `gorm:"not null;size:64;index:idx_extractions_schema_version" json:"schema_version"`
	Model         string    `gorm:"not null;size:128" json:"model"`
	JSONResult    string    `gorm:"not null;type:text;column:json_result" json:"json_result"`
	IsValid       bool      `gorm:"not null;index:idx_extractions_is_valid" json:"is_valid"`
	LatencyMS     float64   `gorm:"not null;column:latency_ms" json:"latency_ms"`
	TokensIn      int       `gorm:"not null" json:"tokens_in"`
	TokensOut     int       `gorm:"not null" json:"tokens_out"`
	CostUSD       float64   `gorm:"not null;column:cost_usd" json:"cost_usd"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	PromptHash    string    `gorm:"size:64" json:"prompt_hash,omitempty"`
	RawResponse   string    `gorm:"type:text" json:"raw_response,omitempty"`
}

// TableName returns the table name for Extraction
func (Extraction) TableName() string {
	return "extractions"
}

// ValidationError is one schema violation found in an extraction.
type ValidationError struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ExtractionID uint      `gorm:"not null;index:idx_validation_errors_extraction_id" json:"extraction_id"`
	JSONPath     string    `gorm:"not null;size:256;column:json_path" json:"json_path"`
	Message      string    `gorm:"not null;type:text" json:"message"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for ValidationError
func (ValidationError) TableName() string {
	return "validation_errors"
}

// Metric records latency and cost for one stage attempt.
type Metric struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID     uint      `gorm:"not null;index:idx_metrics_run_id" json:"run_id"`
	Stage     string    `gorm:"not null;size:64;index:idx_metrics_stage" json:"stage"`
	LatencyMS float64   `gorm:"not null;column:latency_ms" json:"latency_ms"`
	TokensIn  *int      `json:"tokens_in,omitempty"`
	TokensOut *int      `json:"tokens_out,omitempty"`
	CostUSD   *float64  `gorm:"column:cost_usd" json:"cost_usd,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for Metric
func (Metric) TableName() string {
	return "metrics"
}

// Prompt stores the exact prompt text sent for an extraction, for provenance.
type Prompt struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ExtractionID uint      `gorm:"not null;index:idx_prompts_extraction_id" json:"extraction_id"`
	PromptText   string    `gorm:"not null;type:text" json:"prompt_text"`
	PromptHash   string    `gorm:"not null;size:64;index:idx_prompts_prompt_hash" json:"prompt_hash"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for Prompt
func (Prompt) TableName() string {
	return "prompts"
}

// AllModels lists every model for AutoMigrate, in FK dependency order.
func AllModels() []any {
	return []any{
		&Document{},
		&RawContent{},
		&PipelineRun{},
		&Chunk{},
		&Embedding{},
		&Extraction{},
		&ValidationError{},
		&Metric{},
		&Prompt{},
	}
}
