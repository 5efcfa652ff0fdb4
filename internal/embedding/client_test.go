// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docline/docline/internal/config"
	"github.com/docline/docline/internal/errs"
)

func testEmbeddingConfig(baseURL string) *config.EmbeddingConfig {
	return &config.EmbeddingConfig{
		Provider: "openai",
		BaseURL:  baseURL,
		APIKey:   "test-key",
		Model:    "test-embed",
		Timeout:  5,
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(&config.EmbeddingConfig{Provider: "mystery"})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindConfiguration))
}

func TestOpenAIEmbedBatchOrdersByIndex(t *testing.T) {
	var gotReq embeddingsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		// Return vectors out of order to exercise the index sort.
		w.Write([]byte(`{
			"data": [
				{"index": 1, "embedding": [2.0, 2.0]},
				{"index": 0, "embedding": [1.0, 1.0]}
			],
			"usage": {"total_tokens": 7}
		}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(testEmbeddingConfig(server.URL))
	resp, err := client.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)

	assert.Equal(t, "test-embed", gotReq.Model)
	assert.Equal(t, []string{"first", "second"}, gotReq.Input)
	require.Len(t, resp.Vectors, 2)
	assert.Equal(t, []float32{1.0, 1.0}, resp.Vectors[0])
	assert.Equal(t, []float32{2.0, 2.0}, resp.Vectors[1])
	assert.Equal(t, 7, resp.TokensUsed)
}

func TestOpenAIEmbedBatchRateLimitIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewOpenAIClient(testEmbeddingConfig(server.URL))
	_, err := client.EmbedBatch(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.True(t, errs.IsRetryable(err))
}

func TestOpenAIEmbedBatchClientErrorIsEmbeddingKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewOpenAIClient(testEmbeddingConfig(server.URL))
	_, err := client.EmbedBatch(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindEmbedding))
	assert.False(t, errs.IsRetryable(err))
}

func TestHuggingFaceEmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/pipeline/feature-extraction/test-embed")
		w.Write([]byte(`[[0.5, 0.5], [0.25, 0.75]]`))
	}))
	defer server.Close()

	client := NewHuggingFaceClient(testEmbeddingConfig(server.URL))
	resp, err := client.EmbedBatch(context.Background(), []string{"one two", "three"})
	require.NoError(t, err)
	require.Len(t, resp.Vectors, 2)
	assert.Equal(t, []float32{0.5, 0.5}, resp.Vectors[0])
	assert.Equal(t, 3, resp.TokensUsed, "token estimate sums word counts")
}
