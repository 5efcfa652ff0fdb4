// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm provides model-service clients that turn a prompt and a JSON
// schema into parsed structured output.
package llm

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/docline/docline/internal/config"
	"github.com/docline/docline/internal/errs"
)

// Response is the normalized result of one structured generation call.
type Response struct {
	RawResponse string
	ParsedJSON  map[string]any
	TokensIn    int
	TokensOut   int
	LatencyMS   float64
	Metadata    map[string]any
}

// Client generates structured JSON output from a model service.
// Implementations are safe for concurrent use.
type Client interface {
	GenerateStructured(ctx context.Context, prompt string, schema map[string]any, temperature float64, maxTokens int) (*Response, error)
}

// New creates the client selected by cfg.Provider.
func New(cfg *config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg), nil
	case "huggingface":
		return NewHuggingFaceClient(cfg), nil
	default:
		return nil, errs.Newf(errs.KindConfiguration, "unknown llm provider: %s", cfg.Provider)
	}
}

// classifyStatus maps a non-2xx HTTP status to the error taxonomy:
// 429 and 5xx are transient, everything else is a model output problem.
func classifyStatus(statusCode int, body string) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return errs.New(errs.KindTransientExternal, "rate limit exceeded").
			WithDetails(map[string]any{"status_code": statusCode})
	case statusCode >= 500:
		return errs.Newf(errs.KindTransientExternal, "server error: %d", statusCode).
			WithDetails(map[string]any{"status_code": statusCode, "body": body})
	default:
		return errs.Newf(errs.KindModelOutput, "API error: %d", statusCode).
			WithDetails(map[string]any{"status_code": statusCode, "body": body})
	}
}

// classifyTransport maps request-level failures (timeouts, connection
// errors) to transient errors.
func classifyTransport(err error, latencyMS float64) error {
	if urlErr, ok := err.(*url.Error); ok {
		if urlErr.Timeout() {
			return errs.Wrap(errs.KindTransientExternal, "request timeout", err).
				WithDetails(map[string]any{"latency_ms": latencyMS})
		}
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return errs.Wrap(errs.KindTransientExternal, "request timeout", err).
			WithDetails(map[string]any{"latency_ms": latencyMS})
	}
	return errs.Wrap(errs.KindTransientExternal, "network error", err).
		WithDetails(map[string]any{"latency_ms": latencyMS})
}

// stripFences removes a surrounding markdown code fence from model output.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = content[7:]
	}
	if strings.HasPrefix(content, "```") {
		content = content[3:]
	}
	if strings.HasSuffix(content, "```") {
		content = content[:len(content)-3]
	}
	return strings.TrimSpace(content)
}

// parseModelJSON strips fences and decodes the model output into an object.
func parseModelJSON(rawResponse string) (map[string]any, error) {
	content := stripFences(rawResponse)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		preview := rawResponse
		if len(preview) > 500 {
			preview = preview[:500]
		}
		return nil, errs.New(errs.KindModelOutput, "invalid JSON in model output").
			WithDetails(map[string]any{"parse_error": err.Error(), "raw_response": preview})
	}
	return parsed, nil
}

// estimateTokens approximates a token count for providers that report none.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(float64(words) * 1.3)
}
