// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docline/docline/internal/config"
	"github.com/docline/docline/internal/database"
	"github.com/docline/docline/internal/models"
	"github.com/docline/docline/internal/pipeline"
	"github.com/docline/docline/internal/schema"
	"github.com/docline/docline/internal/storage"
)

// stubRunner records pipeline executions without running anything.
type stubRunner struct {
	executed chan uint
}

func newStubRunner() *stubRunner {
	return &stubRunner{executed: make(chan uint, 10)}
}

func (s *stubRunner) Execute(ctx context.Context, documentID uint, correlationID string) (map[string]pipeline.StageResult, error) {
	s.executed <- documentID
	return map[string]pipeline.StageResult{}, nil
}

type testServer struct {
	router  http.Handler
	db      *database.GormDB
	runner  *stubRunner
	schemas string
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := database.NewGormDB(&config.DatabaseConfig{
		URL: "sqlite://" + filepath.Join(t.TempDir(), "api.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.AutoMigrate())

	schemaDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(schemaDir, "invoice_v1.json"), []byte(`{"type":"object"}`), 0o644))

	cfg := &config.AppConfig{
		Server:  config.ServerConfig{Host: "127.0.0.1", Port: 8000},
		Storage: config.StorageConfig{MaxFileSizeMB: 1},
	}

	runner := newStubRunner()
	handlers := NewHandlers(db, runner, schema.NewRegistry(schemaDir), cfg)
	return &testServer{
		router:  NewRouter(cfg, handlers),
		db:      db,
		runner:  runner,
		schemas: schemaDir,
	}
}

func multipartBody(t *testing.T, filename string, content []byte, schemaVersion string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	if schemaVersion != "" {
		require.NoError(t, writer.WriteField("schema_version", schemaVersion))
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func postDocument(ts *testServer, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSubmitDocument(t *testing.T) {
	ts := setupTestServer(t)
	content := []byte("invoice text to process")

	body, contentType := multipartBody(t, "invoice.txt", content, "invoice_v1")
	rec := postDocument(ts, body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotZero(t, resp.DocumentID)
	assert.NotEmpty(t, resp.CorrelationID)
	assert.Equal(t, "pending", resp.Status)

	doc, err := ts.db.GetDocument(context.Background(), resp.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "invoice.txt", doc.Source)
	assert.Equal(t, storage.HashBytes(content), doc.ContentHash)
	assert.Equal(t, int64(len(content)), doc.FileSizeBytes)

	rc, err := ts.db.GetRawContent(context.Background(), resp.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, rc)
	assert.Equal(t, content, rc.Content)

	select {
	case executedID := <-ts.runner.executed:
		assert.Equal(t, resp.DocumentID, executedID)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline was never started for the submission")
	}
}

func TestSubmitDuplicateReturnsStoredDocument(t *testing.T) {
	ts := setupTestServer(t)
	content := []byte("same bytes both times")

	body, contentType := multipartBody(t, "a.txt", content, "invoice_v1")
	first := postDocument(ts, body, contentType)
	require.Equal(t, http.StatusOK, first.Code)
	var firstResp SubmitResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))
	<-ts.runner.executed

	// Mark the stored document completed; the duplicate reply must carry the
	// stored status, not "pending".
	require.NoError(t, ts.db.UpdateDocumentStatus(context.Background(), firstResp.DocumentID, models.DocumentStatusCompleted))

	body, contentType = multipartBody(t, "b.txt", content, "invoice_v1")
	second := postDocument(ts, body, contentType)
	require.Equal(t, http.StatusOK, second.Code)

	var secondResp SubmitResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))
	assert.Equal(t, firstResp.DocumentID, secondResp.DocumentID)
	assert.Equal(t, "completed", secondResp.Status)

	select {
	case <-ts.runner.executed:
		t.Fatal("duplicate submission must not start the pipeline again")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubmitSameContentDifferentSchemaIsNewDocument(t *testing.T) {
	ts := setupTestServer(t)
	content := []byte("shared content")

	body, contentType := multipartBody(t, "a.txt", content, "invoice_v1")
	first := postDocument(ts, body, contentType)
	require.Equal(t, http.StatusOK, first.Code)
	var firstResp SubmitResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))

	body, contentType = multipartBody(t, "a.txt", content, "receipt_v2")
	second := postDocument(ts, body, contentType)
	require.Equal(t, http.StatusOK, second.Code)
	var secondResp SubmitResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))

	assert.NotEqual(t, firstResp.DocumentID, secondResp.DocumentID)
}

func TestSubmitMissingSchemaVersion(t *testing.T) {
	ts := setupTestServer(t)
	body, contentType := multipartBody(t, "a.txt", []byte("content"), "")
	rec := postDocument(ts, body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitMissingFile(t *testing.T) {
	ts := setupTestServer(t)
	body, contentType := multipartBody(t, "", nil, "invoice_v1")
	rec := postDocument(ts, body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitFileTooLarge(t *testing.T) {
	ts := setupTestServer(t)
	oversized := make([]byte, 1<<20+1) // cap is 1 MB

	body, contentType := multipartBody(t, "big.txt", oversized, "invoice_v1")
	rec := postDocument(ts, body, contentType)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGetStatusNotFound(t *testing.T) {
	ts := setupTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/9999/status", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStatusBadID(t *testing.T) {
	ts := setupTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/abc/status", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStatusListsStageRuns(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	doc := &models.Document{Source: "a.txt", ContentHash: "h", SchemaVersion: "invoice_v1"}
	require.NoError(t, ts.db.CreateDocument(ctx, doc))

	run := &models.PipelineRun{DocumentID: doc.ID, Stage: "chunking", Status: models.RunStatusRunning, Attempt: 1}
	require.NoError(t, ts.db.CreatePipelineRun(ctx, run))
	require.NoError(t, ts.db.FinishPipelineRun(ctx, run.ID, models.RunStatusFailed, "transient_external", "blip"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+uintParam(doc.ID)+"/status", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, doc.ID, resp.DocumentID)
	assert.Equal(t, "invoice_v1", resp.SchemaVersion)
	require.Len(t, resp.Stages, 1)
	assert.Equal(t, "chunking", resp.Stages[0].Stage)
	assert.Equal(t, "failed", resp.Stages[0].Status)
	assert.Equal(t, "transient_external", resp.Stages[0].ErrorType)
	assert.Equal(t, "blip", resp.Stages[0].ErrorMessage)
}

func TestGetExtractions(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	doc := &models.Document{Source: "a.txt", ContentHash: "h", SchemaVersion: "invoice_v1"}
	require.NoError(t, ts.db.CreateDocument(ctx, doc))
	require.NoError(t, ts.db.ReplaceChunks(ctx, doc.ID, []models.Chunk{
		{Sequence: 0, Text: "first", TokenCount: 1},
		{Sequence: 1, Text: "second", TokenCount: 1},
	}))
	chunks, err := ts.db.GetChunks(ctx, doc.ID)
	require.NoError(t, err)

	valid := &models.Extraction{
		ChunkID: chunks[0].ID, SchemaVersion: "invoice_v1", Model: "m",
		JSONResult: `{"total":1}`, IsValid: true, CostUSD: 0.25, TokensIn: 100, TokensOut: 20,
	}
	require.NoError(t, ts.db.CreateExtraction(ctx, valid))

	invalid := &models.Extraction{
		ChunkID: chunks[1].ID, SchemaVersion: "invoice_v1", Model: "m",
		JSONResult: `{}`, IsValid: false, CostUSD: 0.15,
	}
	require.NoError(t, ts.db.CreateExtraction(ctx, invalid))
	require.NoError(t, ts.db.ReplaceValidationErrors(ctx, invalid.ID, []models.ValidationError{
		{JSONPath: "$", Message: "total is required"},
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+uintParam(doc.ID)+"/extractions", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ExtractionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Extractions, 2)
	assert.InDelta(t, 0.4, resp.TotalCostUSD, 0.0001)

	assert.Equal(t, 0, resp.Extractions[0].Sequence)
	assert.True(t, resp.Extractions[0].IsValid)
	assert.Equal(t, map[string]any{"total": 1.0}, resp.Extractions[0].JSONResult)
	assert.Empty(t, resp.Extractions[0].ValidationErrors)

	assert.Equal(t, 1, resp.Extractions[1].Sequence)
	assert.False(t, resp.Extractions[1].IsValid)
	require.Len(t, resp.Extractions[1].ValidationErrors, 1)
	assert.Equal(t, "$", resp.Extractions[1].ValidationErrors[0].JSONPath)
}

func TestGetMetrics(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	doc := &models.Document{Source: "a.txt", ContentHash: "h", SchemaVersion: "invoice_v1"}
	require.NoError(t, ts.db.CreateDocument(ctx, doc))
	require.NoError(t, ts.db.ReplaceChunks(ctx, doc.ID, []models.Chunk{
		{Sequence: 0, Text: "chunk", TokenCount: 1},
	}))
	chunks, err := ts.db.GetChunks(ctx, doc.ID)
	require.NoError(t, err)

	run := &models.PipelineRun{DocumentID: doc.ID, Stage: "structured_extraction", Status: models.RunStatusCompleted}
	require.NoError(t, ts.db.CreatePipelineRun(ctx, run))
	require.NoError(t, ts.db.CreateMetric(ctx, &models.Metric{RunID: run.ID, Stage: "structured_extraction", LatencyMS: 400}))

	require.NoError(t, ts.db.CreateExtraction(ctx, &models.Extraction{
		ChunkID: chunks[0].ID, SchemaVersion: "invoice_v1", Model: "m",
		JSONResult: `{}`, IsValid: true, TokensIn: 200, TokensOut: 40, CostUSD: 0.5,
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+uintParam(doc.ID)+"/metrics", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MetricsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(200), resp.TotalTokensIn)
	assert.Equal(t, int64(40), resp.TotalTokensOut)
	assert.InDelta(t, 0.5, resp.TotalCostUSD, 0.0001)
	assert.InDelta(t, 400.0, resp.TotalLatencyMS, 0.001)
	assert.Equal(t, 1, resp.ChunkCount)
	assert.Equal(t, 1, resp.ExtractionCount)
	assert.Equal(t, 1, resp.ValidExtractionCount)
	assert.Equal(t, 0, resp.InvalidExtractionCount)
	require.Len(t, resp.StageMetrics, 1)
	assert.Equal(t, "structured_extraction", resp.StageMetrics[0].Stage)
}

func TestListSchemas(t *testing.T) {
	ts := setupTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(ts.schemas, "receipt_v2.json"), []byte(`{}`), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schemas", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Schemas []string `json:"schemas"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"invoice_v1", "receipt_v2"}, resp.Schemas)
}

func TestCORSPreflight(t *testing.T) {
	ts := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/schemas", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDValidation(t *testing.T) {
	ts := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-id-123")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, "client-id-123", rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "bad id with spaces!")
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	generated := rec.Header().Get("X-Request-ID")
	assert.NotEmpty(t, generated)
	assert.NotEqual(t, "bad id with spaces!", generated)
}

func uintParam(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
