// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docline/docline/internal/config"
	"github.com/docline/docline/internal/errs"
)

// HuggingFaceClient calls the HuggingFace feature-extraction pipeline. Token
// usage is estimated from word counts since the API reports none.
type HuggingFaceClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewHuggingFaceClient creates a client for the HuggingFace Inference API.
func NewHuggingFaceClient(cfg *config.EmbeddingConfig) *HuggingFaceClient {
	return &HuggingFaceClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout(),
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
			},
		},
	}
}

// EmbedBatch implements Client.
func (c *HuggingFaceClient) EmbedBatch(ctx context.Context, texts []string) (*Response, error) {
	start := time.Now()

	payload, err := json.Marshal(map[string]any{"inputs": texts})
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pipeline/feature-extraction/"+c.model, bytes.NewReader(payload))
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err, float64(time.Since(start).Milliseconds()))
	}
	defer resp.Body.Close()

	latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err, latencyMS)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, string(body))
	}

	var vectors [][]float32
	if err := json.Unmarshal(body, &vectors); err != nil {
		return nil, errs.Wrap(errs.KindEmbedding, "unparseable API response", err)
	}

	tokensUsed := 0
	for _, text := range texts {
		tokensUsed += len(strings.Fields(text))
	}

	return &Response{
		Vectors:    vectors,
		TokensUsed: tokensUsed,
		LatencyMS:  latencyMS,
		Metadata:   map[string]any{"model": c.model},
	}, nil
}
