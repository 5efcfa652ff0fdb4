// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"github.com/rs/zerolog"
)

// Static logger getters that map directly to config log.levels
// These ensure consistent logger names across the codebase

// GetPipelineLogger returns a logger for the pipeline engine and stages
func GetPipelineLogger() zerolog.Logger {
	return GetLogger("pipeline")
}

// GetDatabaseLogger returns a logger for database operations
func GetDatabaseLogger() zerolog.Logger {
	return GetLogger("database")
}

// GetLLMLogger returns a logger for model-service calls
func GetLLMLogger() zerolog.Logger {
	return GetLogger("llm")
}

// GetEmbeddingLogger returns a logger for embedding calls
func GetEmbeddingLogger() zerolog.Logger {
	return GetLogger("embedding")
}

// GetChunkerLogger returns a logger for chunking operations
func GetChunkerLogger() zerolog.Logger {
	return GetLogger("chunker")
}

// GetSchemaLogger returns a logger for schema registry and validation
func GetSchemaLogger() zerolog.Logger {
	return GetLogger("schema")
}

// GetAPILogger returns a logger for API operations
func GetAPILogger() zerolog.Logger {
	return GetLogger("api")
}
