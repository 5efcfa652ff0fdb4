// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/docline/docline/internal/config"
	"github.com/docline/docline/internal/models"
)

// GormDB wraps the GORM database connection
type GormDB struct {
	db *gorm.DB
}

// NewGormDB creates a new GORM database connection
func NewGormDB(cfg *config.DatabaseConfig) (*GormDB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver() {
	case "sqlite":
		dialector = sqlite.Open(cfg.GetDSN())
	case "postgres":
		dialector = postgres.Open(cfg.GetDSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Reduce GORM log noise
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver() == "sqlite" {
		// Concurrent readers with a single writer; retries instead of
		// immediate SQLITE_BUSY under contention.
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA busy_timeout=5000",
		} {
			if err := db.Exec(pragma).Error; err != nil {
				return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
			}
		}
	}

	return &GormDB{db: db}, nil
}

// NewGormDBFromGorm wraps an existing gorm connection. Used by tests.
func NewGormDBFromGorm(db *gorm.DB) *GormDB {
	return &GormDB{db: db}
}

// AutoMigrate runs database migrations
func (db *GormDB) AutoMigrate() error {
	return db.db.AutoMigrate(models.AllModels()...)
}

// ValidateSchema checks if GORM models match the database schema
func (db *GormDB) ValidateSchema() error {
	var missingTables []string

	for _, model := range models.AllModels() {
		if !db.db.Migrator().HasTable(model) {
			stmt := &gorm.Statement{DB: db.db}
			if err := stmt.Parse(model); err != nil {
				return err
			}
			missingTables = append(missingTables, stmt.Schema.Table)
		}
	}

	if len(missingTables) > 0 {
		return fmt.Errorf("missing tables: %v, run the migrate command to create them", missingTables)
	}

	return nil
}

// Close closes the database connection
func (db *GormDB) Close() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn inside a database transaction against a GormDB view
// of the transactional connection.
func (db *GormDB) Transaction(ctx context.Context, fn func(tx *GormDB) error) error {
	return db.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormDB{db: tx})
	})
}

// ============================================================================
// Document Operations
// ============================================================================

// CreateDocument creates a new document row
func (db *GormDB) CreateDocument(ctx context.Context, doc *models.Document) error {
	return db.db.WithContext(ctx).Create(doc).Error
}

// GetDocument retrieves a document by ID
func (db *GormDB) GetDocument(ctx context.Context, documentID uint) (*models.Document, error) {
	var doc models.Document
	err := db.db.WithContext(ctx).First(&doc, "id = ?", documentID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

// FindDocumentByHashAndSchema finds a document by content hash and schema
// version. Returns nil, nil when not found for idempotency checks.
func (db *GormDB) FindDocumentByHashAndSchema(ctx context.Context, contentHash, schemaVersion string) (*models.Document, error) {
	var doc models.Document
	err := db.db.WithContext(ctx).
		Where("content_hash = ? AND schema_version = ?", contentHash, schemaVersion).
		First(&doc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

// UpdateDocumentStatus updates a document's status
func (db *GormDB) UpdateDocumentStatus(ctx context.Context, documentID uint, status models.DocumentStatus) error {
	return db.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ?", documentID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

// ============================================================================
// RawContent Operations
// ============================================================================

// CreateRawContent stores the original bytes for a document
func (db *GormDB) CreateRawContent(ctx context.Context, rc *models.RawContent) error {
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = time.Now().UTC()
	}
	return db.db.WithContext(ctx).Create(rc).Error
}

// GetRawContent retrieves the stored bytes for a document
func (db *GormDB) GetRawContent(ctx context.Context, documentID uint) (*models.RawContent, error) {
	var rc models.RawContent
	err := db.db.WithContext(ctx).Where("document_id = ?", documentID).First(&rc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &rc, nil
}

// ============================================================================
// PipelineRun Operations
// ============================================================================

// CreatePipelineRun creates a new stage attempt row
func (db *GormDB) CreatePipelineRun(ctx context.Context, run *models.PipelineRun) error {
	return db.db.WithContext(ctx).Create(run).Error
}

// FinishPipelineRun marks a run completed or failed with the error fields
func (db *GormDB) FinishPipelineRun(ctx context.Context, runID uint, status models.RunStatus, errorType, errorMessage string) error {
	now := time.Now().UTC()
	return db.db.WithContext(ctx).Model(&models.PipelineRun{}).
		Where("id = ?", runID).
		Updates(map[string]any{
			"status":        status,
			"error_type":    errorType,
			"error_message": errorMessage,
			"finished_at":   &now,
		}).Error
}

// HasCompletedRun reports whether the stage already has a completed run for
// the document. This is the idempotent-skip check.
func (db *GormDB) HasCompletedRun(ctx context.Context, documentID uint, stage string) (bool, error) {
	var count int64
	err := db.db.WithContext(ctx).Model(&models.PipelineRun{}).
		Where("document_id = ? AND stage = ? AND status = ?", documentID, stage, models.RunStatusCompleted).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetPipelineRuns retrieves all runs for a document ordered by start time
func (db *GormDB) GetPipelineRuns(ctx context.Context, documentID uint) ([]*models.PipelineRun, error) {
	var runs []*models.PipelineRun
	err := db.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("started_at ASC, id ASC").
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// ============================================================================
// Chunk Operations
// ============================================================================

// ReplaceChunks deletes any existing chunks for the document and inserts the
// new set in one transaction. Embeddings and extractions hanging off the old
// chunks are removed as well so reruns never see stale children.
func (db *GormDB) ReplaceChunks(ctx context.Context, documentID uint, chunks []models.Chunk) error {
	return db.Transaction(ctx, func(tx *GormDB) error {
		var oldIDs []uint
		if err := tx.db.Model(&models.Chunk{}).
			Where("document_id = ?", documentID).
			Pluck("id", &oldIDs).Error; err != nil {
			return err
		}
		if len(oldIDs) > 0 {
			var extractionIDs []uint
			if err := tx.db.Model(&models.Extraction{}).
				Where("chunk_id IN ?", oldIDs).
				Pluck("id", &extractionIDs).Error; err != nil {
				return err
			}
			if len(extractionIDs) > 0 {
				if err := tx.db.Where("extraction_id IN ?", extractionIDs).Delete(&models.ValidationError{}).Error; err != nil {
					return err
				}
				if err := tx.db.Where("extraction_id IN ?", extractionIDs).Delete(&models.Prompt{}).Error; err != nil {
					return err
				}
				if err := tx.db.Where("id IN ?", extractionIDs).Delete(&models.Extraction{}).Error; err != nil {
					return err
				}
			}
			if err := tx.db.Where("chunk_id IN ?", oldIDs).Delete(&models.Embedding{}).Error; err != nil {
				return err
			}
			if err := tx.db.Where("document_id = ?", documentID).Delete(&models.Chunk{}).Error; err != nil {
				return err
			}
		}
		for i := range chunks {
			chunks[i].DocumentID = documentID
			if chunks[i].CreatedAt.IsZero() {
				chunks[i].CreatedAt = time.Now().UTC()
			}
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.db.Create(&chunks).Error
	})
}

// GetChunks retrieves all chunks for a document in sequence order
func (db *GormDB) GetChunks(ctx context.Context, documentID uint) ([]*models.Chunk, error) {
	var chunks []*models.Chunk
	err := db.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("sequence ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// ============================================================================
// Embedding Operations
// ============================================================================

// ReplaceEmbeddings deletes existing embeddings for the document's chunks and
// inserts the new set in one transaction.
func (db *GormDB) ReplaceEmbeddings(ctx context.Context, documentID uint, embeddings []models.Embedding) error {
	return db.Transaction(ctx, func(tx *GormDB) error {
		if err := tx.db.
			Where("chunk_id IN (?)", tx.db.Model(&models.Chunk{}).Select("id").Where("document_id = ?", documentID)).
			Delete(&models.Embedding{}).Error; err != nil {
			return err
		}
		for i := range embeddings {
			if embeddings[i].CreatedAt.IsZero() {
				embeddings[i].CreatedAt = time.Now().UTC()
			}
		}
		if len(embeddings) == 0 {
			return nil
		}
		return tx.db.Create(&embeddings).Error
	})
}

// CountEmbeddings counts embeddings attached to a document's chunks
func (db *GormDB) CountEmbeddings(ctx context.Context, documentID uint) (int64, error) {
	var count int64
	err := db.db.WithContext(ctx).Model(&models.Embedding{}).
		Where("chunk_id IN (?)", db.db.Model(&models.Chunk{}).Select("id").Where("document_id = ?", documentID)).
		Count(&count).Error
	return count, err
}

// ============================================================================
// Extraction Operations
// ============================================================================

// CreateExtraction creates a new extraction row
func (db *GormDB) CreateExtraction(ctx context.Context, ex *models.Extraction) error {
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	return db.db.WithContext(ctx).Create(ex).Error
}

// CreatePrompt creates a new prompt provenance row
func (db *GormDB) CreatePrompt(ctx context.Context, p *models.Prompt) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return db.db.WithContext(ctx).Create(p).Error
}

// DeleteExtractionsForChunk removes prior extractions for a chunk together
// with their validation errors and prompts, inside one transaction. Reruns
// of the extraction stage call this before inserting fresh results.
func (db *GormDB) DeleteExtractionsForChunk(ctx context.Context, chunkID uint) error {
	return db.Transaction(ctx, func(tx *GormDB) error {
		var extractionIDs []uint
		if err := tx.db.Model(&models.Extraction{}).
			Where("chunk_id = ?", chunkID).
			Pluck("id", &extractionIDs).Error; err != nil {
			return err
		}
		if len(extractionIDs) == 0 {
			return nil
		}
		if err := tx.db.Where("extraction_id IN ?", extractionIDs).Delete(&models.ValidationError{}).Error; err != nil {
			return err
		}
		if err := tx.db.Where("extraction_id IN ?", extractionIDs).Delete(&models.Prompt{}).Error; err != nil {
			return err
		}
		return tx.db.Where("chunk_id = ?", chunkID).Delete(&models.Extraction{}).Error
	})
}

// GetExtractionsByDocument retrieves all extractions for a document's chunks
// in chunk sequence order.
func (db *GormDB) GetExtractionsByDocument(ctx context.Context, documentID uint) ([]*models.Extraction, error) {
	var extractions []*models.Extraction
	err := db.db.WithContext(ctx).
		Joins("JOIN chunks ON chunks.id = extractions.chunk_id").
		Where("chunks.document_id = ?", documentID).
		Order("chunks.sequence ASC, extractions.id ASC").
		Find(&extractions).Error
	if err != nil {
		return nil, err
	}
	return extractions, nil
}

// UpdateExtractionValidity updates an extraction's is_valid flag
func (db *GormDB) UpdateExtractionValidity(ctx context.Context, extractionID uint, isValid bool) error {
	return db.db.WithContext(ctx).Model(&models.Extraction{}).
		Where("id = ?", extractionID).
		Update("is_valid", isValid).Error
}

// ============================================================================
// ValidationError Operations
// ============================================================================

// ReplaceValidationErrors deletes prior validation errors for an extraction
// and inserts the new set in one transaction.
func (db *GormDB) ReplaceValidationErrors(ctx context.Context, extractionID uint, errs []models.ValidationError) error {
	return db.Transaction(ctx, func(tx *GormDB) error {
		if err := tx.db.Where("extraction_id = ?", extractionID).Delete(&models.ValidationError{}).Error; err != nil {
			return err
		}
		for i := range errs {
			errs[i].ExtractionID = extractionID
			if errs[i].CreatedAt.IsZero() {
				errs[i].CreatedAt = time.Now().UTC()
			}
		}
		if len(errs) == 0 {
			return nil
		}
		return tx.db.Create(&errs).Error
	})
}

// GetValidationErrors retrieves validation errors for an extraction
func (db *GormDB) GetValidationErrors(ctx context.Context, extractionID uint) ([]*models.ValidationError, error) {
	var rows []*models.ValidationError
	err := db.db.WithContext(ctx).
		Where("extraction_id = ?", extractionID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ============================================================================
// Metric Operations
// ============================================================================

// CreateMetric creates a metric row for a stage attempt
func (db *GormDB) CreateMetric(ctx context.Context, m *models.Metric) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return db.db.WithContext(ctx).Create(m).Error
}

// StageMetrics is an aggregated per-stage metrics row for a document
type StageMetrics struct {
	Stage          string  `json:"stage"`
	Attempts       int64   `json:"attempts"`
	TotalLatencyMS float64 `json:"total_latency_ms"`
	TokensIn       int64   `json:"tokens_in"`
	TokensOut      int64   `json:"tokens_out"`
	CostUSD        float64 `json:"cost_usd"`
}

// GetStageMetricsByDocument aggregates metric rows per stage for a document
func (db *GormDB) GetStageMetricsByDocument(ctx context.Context, documentID uint) ([]StageMetrics, error) {
	var rows []StageMetrics
	err := db.db.WithContext(ctx).Model(&models.Metric{}).
		Joins("JOIN pipeline_runs ON pipeline_runs.id = metrics.run_id").
		Where("pipeline_runs.document_id = ?", documentID).
		Select("metrics.stage as stage, COUNT(*) as attempts, COALESCE(SUM(metrics.latency_ms), 0) as total_latency_ms, COALESCE(SUM(metrics.tokens_in), 0) as tokens_in, COALESCE(SUM(metrics.tokens_out), 0) as tokens_out, COALESCE(SUM(metrics.cost_usd), 0) as cost_usd").
		Group("metrics.stage").
		Order("metrics.stage ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
