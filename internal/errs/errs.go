// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errs defines the tagged error taxonomy used across the pipeline.
// Every error raised by a stage or client carries a Kind; the engine uses
// Classify to record it and IsRetryable to decide retry behavior.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies an error category. The string form is what gets recorded
// on pipeline_runs.error_type and in metrics.
type Kind string

const (
	// KindTransientExternal marks transient external-service failures
	// (HTTP 429/5xx, timeouts, network errors). The only retryable kind.
	KindTransientExternal Kind = "transient_external"
	// KindModelOutput marks bad or absent JSON from the model, and
	// non-2xx responses not covered by the transient set.
	KindModelOutput Kind = "model_output"
	// KindSchemaValidation marks validator boundary failures.
	KindSchemaValidation Kind = "schema_validation"
	// KindSchemaRegistry marks missing or malformed schema files.
	KindSchemaRegistry Kind = "schema_registry"
	// KindPipelineState marks inconsistent pipeline state: missing
	// document or content, hash mismatch.
	KindPipelineState Kind = "pipeline_state"
	// KindStorage marks store failures not otherwise classified.
	KindStorage Kind = "storage"
	// KindConfiguration marks unknown providers and bad settings.
	KindConfiguration Kind = "configuration"
	// KindIngestion marks ingest-stage invariant violations.
	KindIngestion Kind = "ingestion"
	// KindExtraction marks text/structured-extraction invariant violations.
	KindExtraction Kind = "extraction"
	// KindChunking marks chunking-stage invariant violations.
	KindChunking Kind = "chunking"
	// KindEmbedding marks embedding-stage invariant violations.
	KindEmbedding Kind = "embedding"
	// KindUnknown is the classification for errors that carry no Kind.
	KindUnknown Kind = "unknown"
)

// Error is a classified pipeline error with an optional details map.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error wrapping a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetails attaches a details map and returns the same error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func (e *Error) Error() string {
	msg := e.Message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s | details: %v", msg, e.Details)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// IsRetryable reports whether the error should be retried by the engine.
// Only TransientExternal errors are retryable.
func IsRetryable(err error) bool {
	return Classify(err) == KindTransientExternal
}

// Classify returns the Kind of err, or KindUnknown for unclassified errors.
func Classify(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err classifies as the given kind.
func IsKind(err error, kind Kind) bool {
	return Classify(err) == kind
}
