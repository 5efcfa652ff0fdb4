// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/docline/docline/internal/config"
	"github.com/docline/docline/internal/database"
	"github.com/docline/docline/internal/errs"
	"github.com/docline/docline/internal/logger"
	"github.com/docline/docline/internal/models"
	"github.com/docline/docline/internal/tracing"
)

// StageResult is the engine's verdict for one stage of one run.
type StageResult string

const (
	StageResultCompleted StageResult = "completed"
	StageResultSkipped   StageResult = "skipped"
)

// Engine executes the stage sequence for a document with durable run
// records. Completed stages are skipped, transient failures are retried
// with exponential backoff, and every attempt leaves a run row plus a
// metric row behind.
type Engine struct {
	db       *database.GormDB
	registry *Registry

	maxRetries   int
	backoffBase  float64
	backoffMax   float64
	useJitter    bool
	stageTimeout time.Duration

	// sleep is replaceable in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
	// randFloat is replaceable in tests for deterministic jitter.
	randFloat func() float64

	tracer trace.Tracer
}

// NewEngine creates a pipeline engine.
func NewEngine(db *database.GormDB, registry *Registry, llmCfg *config.LLMConfig, pipeCfg *config.PipelineConfig) *Engine {
	return &Engine{
		db:           db,
		registry:     registry,
		maxRetries:   llmCfg.MaxRetries,
		backoffBase:  pipeCfg.RetryBackoffBase,
		backoffMax:   pipeCfg.RetryBackoffMax,
		useJitter:    pipeCfg.RetryJitter,
		stageTimeout: pipeCfg.StageTimeoutDuration(),
		sleep:        sleepCtx,
		randFloat:    rand.Float64,
		tracer:       tracing.Tracer("docline/pipeline"),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs the full stage sequence for a document. The returned map
// records per stage whether it ran or was skipped. On success the document
// status becomes completed; on any stage failure it becomes failed and the
// stage error is returned.
func (e *Engine) Execute(ctx context.Context, documentID uint, correlationID string) (map[string]StageResult, error) {
	log := logger.GetPipelineLogger()
	log.Info().
		Uint("document_id", documentID).
		Str("correlation_id", correlationID).
		Msg("Starting pipeline execution")

	results := make(map[string]StageResult)

	for _, stageName := range e.registry.Ordered() {
		stage, err := e.registry.Get(stageName)
		if err != nil {
			return results, err
		}

		completed, err := e.db.HasCompletedRun(ctx, documentID, stageName)
		if err != nil {
			return results, errs.Wrap(errs.KindStorage, "failed to check stage completion", err)
		}
		if completed {
			log.Info().
				Uint("document_id", documentID).
				Str("stage", stageName).
				Msg("Stage already completed, skipping")
			results[stageName] = StageResultSkipped
			continue
		}

		// The document status is left wherever the last successful stage put
		// it; the run trail records what failed.
		if err := e.runWithRetry(ctx, documentID, stage, correlationID); err != nil {
			return results, err
		}
		results[stageName] = StageResultCompleted
	}

	log.Info().
		Uint("document_id", documentID).
		Str("correlation_id", correlationID).
		Msg("Pipeline execution completed")

	if err := e.db.UpdateDocumentStatus(ctx, documentID, models.DocumentStatusCompleted); err != nil {
		return results, errs.Wrap(errs.KindStorage, "failed to mark document completed", err)
	}

	return results, nil
}

// runWithRetry runs one stage with the retry policy. Attempts are 1-based;
// attempt N+1 only happens for retryable errors while N <= maxRetries.
func (e *Engine) runWithRetry(ctx context.Context, documentID uint, stage Stage, correlationID string) error {
	log := logger.GetPipelineLogger()
	stageName := stage.Name()

	for attempt := 1; attempt <= e.maxRetries+1; attempt++ {
		run := &models.PipelineRun{
			DocumentID:    documentID,
			Stage:         stageName,
			Status:        models.RunStatusRunning,
			Attempt:       attempt,
			CorrelationID: correlationID,
		}
		if err := e.db.CreatePipelineRun(ctx, run); err != nil {
			return errs.Wrap(errs.KindStorage, "failed to create run record", err)
		}

		start := time.Now()

		log.Info().
			Uint("document_id", documentID).
			Str("stage", stageName).
			Int("attempt", attempt).
			Uint("run_id", run.ID).
			Msg("Executing stage")

		err := e.executeAttempt(ctx, documentID, stage, attempt)
		latencyMS := float64(time.Since(start).Microseconds()) / 1000.0

		if err == nil {
			if err := e.db.FinishPipelineRun(ctx, run.ID, models.RunStatusCompleted, "", ""); err != nil {
				return errs.Wrap(errs.KindStorage, "failed to complete run record", err)
			}
			e.recordMetric(ctx, run.ID, stageName, latencyMS)

			log.Info().
				Uint("document_id", documentID).
				Str("stage", stageName).
				Int("attempt", attempt).
				Float64("latency_ms", latencyMS).
				Uint("run_id", run.ID).
				Msg("Stage completed successfully")
			return nil
		}

		errorType := string(errs.Classify(err))
		log.Error().
			Err(err).
			Uint("document_id", documentID).
			Str("stage", stageName).
			Int("attempt", attempt).
			Str("error_type", errorType).
			Uint("run_id", run.ID).
			Msg("Stage execution failed")

		if dbErr := e.db.FinishPipelineRun(ctx, run.ID, models.RunStatusFailed, errorType, truncate(err.Error(), 1000)); dbErr != nil {
			return errs.Wrap(errs.KindStorage, "failed to fail run record", dbErr)
		}
		e.recordMetric(ctx, run.ID, stageName, latencyMS)

		if !errs.IsRetryable(err) {
			log.Warn().
				Uint("document_id", documentID).
				Str("stage", stageName).
				Str("error_type", errorType).
				Msg("Error not retryable, failing stage")
			return err
		}

		if attempt > e.maxRetries {
			log.Error().
				Uint("document_id", documentID).
				Str("stage", stageName).
				Int("attempts", attempt).
				Msg("Max retries exceeded")
			return err
		}

		backoff := e.backoffFor(attempt)
		log.Info().
			Uint("document_id", documentID).
			Str("stage", stageName).
			Int("attempt", attempt).
			Float64("backoff_seconds", backoff.Seconds()).
			Msg("Retrying stage after backoff")

		if err := e.sleep(ctx, backoff); err != nil {
			return errs.Wrap(errs.KindPipelineState, "pipeline canceled during backoff", err)
		}
	}

	return errs.New(errs.KindPipelineState, "unexpected retry loop exit")
}

// executeAttempt runs one stage attempt under the stage deadline with a
// tracing span.
func (e *Engine) executeAttempt(ctx context.Context, documentID uint, stage Stage, attempt int) error {
	if e.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stageTimeout)
		defer cancel()
	}

	ctx, span := e.tracer.Start(ctx, "stage."+stage.Name(), trace.WithAttributes(
		attribute.Int64("document_id", int64(documentID)),
		attribute.String("stage", stage.Name()),
		attribute.Int("attempt", attempt),
	))
	defer span.End()

	err := stage.Execute(ctx, documentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errs.Classify(err)))
	}
	return err
}

// backoffFor computes min(base^(attempt-1), max) seconds, with jitter in
// [0.5, 1.5) when enabled.
func (e *Engine) backoffFor(attempt int) time.Duration {
	backoff := math.Min(math.Pow(e.backoffBase, float64(attempt-1)), e.backoffMax)
	if e.useJitter {
		backoff *= 0.5 + e.randFloat()
	}
	return time.Duration(backoff * float64(time.Second))
}

// recordMetric writes a latency metric row; metric failures are logged but
// never fail the stage.
func (e *Engine) recordMetric(ctx context.Context, runID uint, stageName string, latencyMS float64) {
	metric := &models.Metric{
		RunID:     runID,
		Stage:     stageName,
		LatencyMS: latencyMS,
	}
	if err := e.db.CreateMetric(ctx, metric); err != nil {
		log := logger.GetPipelineLogger()
		log.Error().
			Err(err).
			Uint("run_id", runID).
			Str("stage", stageName).
			Msg("Failed to record metric")
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
