// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/docline/docline/internal/config"
)

func TestStaticLoggerGetters(t *testing.T) {
	cfg := &config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: []config.LogOutputConfig{
			{Type: "console", Enabled: true},
		},
		Levels: map[string]string{
			"pipeline":  "debug",
			"database":  "trace",
			"llm":       "warn",
			"embedding": "info",
			"chunker":   "info",
			"schema":    "debug",
			"api":       "warn",
		},
	}

	if err := Initialize(cfg); err != nil {
		t.Fatalf("failed to initialize global logger: %v", err)
	}
	defer CloseGlobal()

	tests := []struct {
		name       string
		getterFunc func() zerolog.Logger
	}{
		{"pipeline_logger", GetPipelineLogger},
		{"database_logger", GetDatabaseLogger},
		{"llm_logger", GetLLMLogger},
		{"embedding_logger", GetEmbeddingLogger},
		{"chunker_logger", GetChunkerLogger},
		{"schema_logger", GetSchemaLogger},
		{"api_logger", GetAPILogger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Getters return the logger by value; level methods are
			// pointer-receiver, so callers bind a local first.
			log := tt.getterFunc()
			log.Info().Str("test", "value").Msg("info test")
			log.Error().Msg("error test")

			derived := log.With().Str("component", "test").Logger()
			derived.Warn().Msg("warn test")

			// Second call returns the cached logger and stays functional.
			again := tt.getterFunc()
			again.Info().Msg("second logger test")
		})
	}
}

func TestStaticLoggerGetters_Uninitialized(t *testing.T) {
	originalManager := globalManager
	globalManager = nil
	defer func() {
		globalManager = originalManager
	}()

	tests := []struct {
		name       string
		getterFunc func() zerolog.Logger
	}{
		{"pipeline_uninitialized", GetPipelineLogger},
		{"database_uninitialized", GetDatabaseLogger},
		{"llm_uninitialized", GetLLMLogger},
		{"embedding_uninitialized", GetEmbeddingLogger},
		{"chunker_uninitialized", GetChunkerLogger},
		{"schema_uninitialized", GetSchemaLogger},
		{"api_uninitialized", GetAPILogger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Should hand back a discard logger without panicking.
			log := tt.getterFunc()
			log.Info().Str("test", "uninitialized").Msg("test message")
			log.Error().Str("test", "uninitialized").Msg("error message")
		})
	}
}
