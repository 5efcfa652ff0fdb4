// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite://./docline.db", cfg.Database.URL)
	assert.Equal(t, "INFO", cfg.Log.Level)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, 0.0, cfg.LLM.Temperature)
	assert.Equal(t, 100, cfg.Embedding.BatchSize)
	assert.Equal(t, 10, cfg.Pipeline.MaxConcurrentChunks)
	assert.Equal(t, 2.0, cfg.Pipeline.RetryBackoffBase)
	assert.Equal(t, 60.0, cfg.Pipeline.RetryBackoffMax)
	assert.True(t, cfg.Pipeline.RetryJitter)
	assert.Equal(t, 1000, cfg.Chunk.Size)
	assert.Equal(t, 200, cfg.Chunk.Overlap)
	assert.Equal(t, 100, cfg.Chunk.MinSize)
	assert.Equal(t, "./schemas", cfg.SchemaRegistry.Path)
	assert.Equal(t, 100, cfg.Storage.MaxFileSizeMB)
	assert.True(t, cfg.Storage.PersistPrompts)
	assert.InDelta(t, 0.01, cfg.Cost.Per1KInputTokens, 0.0001)
	assert.InDelta(t, 0.03, cfg.Cost.Per1KOutputTokens, 0.0001)
	assert.Equal(t, []string{"ssn", "credit_card", "password"}, cfg.Redact.Fields)
	assert.False(t, cfg.Otel.Enabled)
}

func TestNewConfigEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://:memory:")
	t.Setenv("LLM_PROVIDER", "huggingface")
	t.Setenv("LLM_MAX_RETRIES", "5")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("PIPELINE_RETRY_JITTER", "false")
	t.Setenv("REDACT_FIELDS", "ssn,api_key")

	cfg, err := NewConfig("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite://:memory:", cfg.Database.URL)
	assert.Equal(t, "huggingface", cfg.LLM.Provider)
	assert.Equal(t, 5, cfg.LLM.MaxRetries)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 500, cfg.Chunk.Size)
	assert.False(t, cfg.Pipeline.RetryJitter)
	assert.Equal(t, []string{"ssn", "api_key"}, cfg.Redact.Fields)
}

func TestNewConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: sqlite://./custom.db
server:
  port: 9001
llm:
  model: gpt-4o
chunk:
  size: 256
  overlap: 32
  min_size: 10
`), 0o644))

	cfg, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite://./custom.db", cfg.Database.URL)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 256, cfg.Chunk.Size)
	assert.Equal(t, 32, cfg.Chunk.Overlap)
	// Unset file keys keep their defaults.
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
}

func TestNewConfigEnableOtelTracing(t *testing.T) {
	t.Setenv("ENABLE_OTEL_TRACING", "true")
	cfg, err := NewConfig("")
	require.NoError(t, err)
	assert.True(t, cfg.Otel.Enabled)
}

func TestNewConfigRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad log level", "LOG_LEVEL", "LOUD"},
		{"bad port", "SERVER_PORT", "0"},
		{"bad llm provider", "LLM_PROVIDER", "bedrock"},
		{"bad embedding provider", "EMBEDDING_PROVIDER", "bedrock"},
		{"backoff base below one", "PIPELINE_RETRY_BACKOFF_BASE", "0.5"},
		{"zero min chunk size", "CHUNK_MIN_SIZE", "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := NewConfig("")
			assert.Error(t, err)
		})
	}
}

func TestDatabaseConfigDriver(t *testing.T) {
	assert.Equal(t, "postgres", (&DatabaseConfig{URL: "postgres://u:p@localhost/db"}).Driver())
	assert.Equal(t, "postgres", (&DatabaseConfig{URL: "postgresql://u:p@localhost/db"}).Driver())
	assert.Equal(t, "sqlite", (&DatabaseConfig{URL: "sqlite://./app.db"}).Driver())
	assert.Equal(t, "sqlite", (&DatabaseConfig{URL: "./app.db"}).Driver())
}

func TestDatabaseConfigGetDSN(t *testing.T) {
	assert.Equal(t, "./app.db", (&DatabaseConfig{URL: "sqlite://./app.db"}).GetDSN())
	assert.Equal(t, "./app.db", (&DatabaseConfig{URL: "./app.db"}).GetDSN())
	assert.Equal(t, "file::memory:?cache=shared", (&DatabaseConfig{URL: "sqlite://:memory:"}).GetDSN())
	assert.Equal(t, "postgres://u:p@localhost/db", (&DatabaseConfig{URL: "postgres://u:p@localhost/db"}).GetDSN())
}

func TestDerivedDurations(t *testing.T) {
	llm := &LLMConfig{Timeout: 120}
	assert.Equal(t, 2*time.Minute, llm.RequestTimeout())

	pipe := &PipelineConfig{StageTimeout: 3600}
	assert.Equal(t, time.Hour, pipe.StageTimeoutDuration())

	st := &StorageConfig{MaxFileSizeMB: 2}
	assert.Equal(t, int64(2*1024*1024), st.MaxFileSizeBytes())
}
