// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package embedding provides batch embedding clients and the packed vector
// encoding stored in the embeddings table.
package embedding

import (
	"context"
	"net"
	"net/http"
	"net/url"

	"github.com/docline/docline/internal/config"
	"github.com/docline/docline/internal/errs"
)

// Response is the normalized result of one batch embedding call.
type Response struct {
	Vectors    [][]float32
	TokensUsed int
	LatencyMS  float64
	Metadata   map[string]any
}

// Client embeds batches of texts. Implementations are safe for concurrent use.
type Client interface {
	EmbedBatch(ctx context.Context, texts []string) (*Response, error)
}

// New creates the client selected by cfg.Provider.
func New(cfg *config.EmbeddingConfig) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg), nil
	case "huggingface":
		return NewHuggingFaceClient(cfg), nil
	default:
		return nil, errs.Newf(errs.KindConfiguration, "unknown embedding provider: %s", cfg.Provider)
	}
}

// classifyStatus maps a non-2xx HTTP status to the error taxonomy:
// 429 and 5xx are transient, everything else is an embedding failure.
func classifyStatus(statusCode int, body string) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return errs.New(errs.KindTransientExternal, "rate limit exceeded").
			WithDetails(map[string]any{"status_code": statusCode})
	case statusCode >= 500:
		return errs.Newf(errs.KindTransientExternal, "server error: %d", statusCode).
			WithDetails(map[string]any{"status_code": statusCode})
	default:
		return errs.Newf(errs.KindEmbedding, "API error: %d", statusCode).
			WithDetails(map[string]any{"status_code": statusCode, "body": body})
	}
}

// classifyTransport maps request-level failures to transient errors.
func classifyTransport(err error, latencyMS float64) error {
	if urlErr, ok := err.(*url.Error); ok && urlErr.Timeout() {
		return errs.Wrap(errs.KindTransientExternal, "request timeout", err).
			WithDetails(map[string]any{"latency_ms": latencyMS})
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return errs.Wrap(errs.KindTransientExternal, "request timeout", err).
			WithDetails(map[string]any{"latency_ms": latencyMS})
	}
	return errs.Wrap(errs.KindTransientExternal, "network error", err).
		WithDetails(map[string]any{"latency_ms": latencyMS})
}
