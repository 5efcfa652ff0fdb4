// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package schema loads versioned JSON schemas from disk and validates
// extraction output against them.
package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/docline/docline/internal/errs"
	"github.com/docline/docline/internal/logger"
)

// Registry loads and caches JSON schemas from a directory. A schema version
// "invoice_v1" maps to the file <dir>/invoice_v1.json. Safe for concurrent use.
type Registry struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]map[string]any
}

// NewRegistry creates a registry over the given schema directory.
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:   dir,
		cache: make(map[string]map[string]any),
	}
}

// Get returns the schema for a version, loading and caching it on first use.
func (r *Registry) Get(schemaVersion string) (map[string]any, error) {
	r.mu.RLock()
	if schema, ok := r.cache[schemaVersion]; ok {
		r.mu.RUnlock()
		return schema, nil
	}
	r.mu.RUnlock()

	schemaPath := filepath.Join(r.dir, schemaVersion+".json")

	raw, err := os.ReadFile(schemaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Newf(errs.KindSchemaRegistry, "schema not found: %s", schemaVersion).
				WithDetails(map[string]any{"schema_version": schemaVersion, "path": schemaPath})
		}
		return nil, errs.Wrap(errs.KindSchemaRegistry, "failed to load schema: "+schemaVersion, err)
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errs.Newf(errs.KindSchemaRegistry, "invalid JSON in schema: %s", schemaVersion).
			WithDetails(map[string]any{"schema_version": schemaVersion, "error": err.Error()})
	}

	schema, ok := parsed.(map[string]any)
	if !ok {
		return nil, errs.Newf(errs.KindSchemaRegistry, "invalid schema format: %s", schemaVersion).
			WithDetails(map[string]any{"schema_version": schemaVersion})
	}

	r.mu.Lock()
	r.cache[schemaVersion] = schema
	r.mu.Unlock()

	log := logger.GetSchemaLogger()
	log.Info().
		Str("schema_version", schemaVersion).
		Str("path", schemaPath).
		Msg("Loaded schema")

	return schema, nil
}

// List returns all available schema versions in sorted order. A missing
// schema directory yields an empty list, not an error.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errs.Wrap(errs.KindSchemaRegistry, "failed to list schemas", err)
	}

	var versions []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		versions = append(versions, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(versions)
	return versions, nil
}

// Clear empties the schema cache.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.cache = make(map[string]map[string]any)
	r.mu.Unlock()
}
