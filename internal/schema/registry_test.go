// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docline/docline/internal/errs"
)

func writeSchemaFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestRegistryGet(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "invoice_v1.json", `{"type":"object","properties":{"total":{"type":"number"}}}`)

	r := NewRegistry(dir)
	schema, err := r.Get("invoice_v1")
	require.NoError(t, err)
	assert.Equal(t, "object", schema["type"])
}

func TestRegistryGetCaches(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "invoice_v1.json", `{"type":"object"}`)

	r := NewRegistry(dir)
	_, err := r.Get("invoice_v1")
	require.NoError(t, err)

	// Deleting the file must not affect cached lookups.
	require.NoError(t, os.Remove(filepath.Join(dir, "invoice_v1.json")))
	schema, err := r.Get("invoice_v1")
	require.NoError(t, err)
	assert.Equal(t, "object", schema["type"])

	// After clearing the cache the miss surfaces.
	r.Clear()
	_, err = r.Get("invoice_v1")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindSchemaRegistry))
}

func TestRegistryGetMissing(t *testing.T) {
	r := NewRegistry(t.TempDir())
	_, err := r.Get("nope_v1")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindSchemaRegistry))
}

func TestRegistryGetMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "broken_v1.json", `{not json`)

	r := NewRegistry(dir)
	_, err := r.Get("broken_v1")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindSchemaRegistry))
}

func TestRegistryGetNonObjectSchema(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "list_v1.json", `["not", "an", "object"]`)

	r := NewRegistry(dir)
	_, err := r.Get("list_v1")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindSchemaRegistry))
}

func TestRegistryListSorted(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "receipt_v2.json", `{}`)
	writeSchemaFile(t, dir, "invoice_v1.json", `{}`)
	writeSchemaFile(t, dir, "notes.txt", `ignored`)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir.json"), 0o755))

	r := NewRegistry(dir)
	versions, err := r.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"invoice_v1", "receipt_v2"}, versions)
}

func TestRegistryListMissingDir(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "does-not-exist"))
	versions, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, versions)
}
