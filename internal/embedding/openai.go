// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/docline/docline/internal/config"
	"github.com/docline/docline/internal/errs"
)

// OpenAIClient calls an OpenAI-compatible embeddings API.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(cfg *config.EmbeddingConfig) *OpenAIClient {
	return &OpenAIClient{
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

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// EmbedBatch implements Client. Vectors come back in input order even when
// the API returns them out of order.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) (*Response, error) {
	start := time.Now()

	payload, err := json.Marshal(embeddingsRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(payload))
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

	var data embeddingsResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, errs.Wrap(errs.KindEmbedding, "unparseable API response", err)
	}

	sort.Slice(data.Data, func(i, j int) bool { return data.Data[i].Index < data.Data[j].Index })
	vectors := make([][]float32, 0, len(data.Data))
	for _, item := range data.Data {
		vectors = append(vectors, item.Embedding)
	}

	return &Response{
		Vectors:    vectors,
		TokensUsed: data.Usage.TotalTokens,
		LatencyMS:  latencyMS,
		Metadata:   map[string]any{"model": c.model},
	}, nil
}
