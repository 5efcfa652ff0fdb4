// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultServer = "http://localhost:8000"

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

// getJSON fetches a URL and decodes the body into out, surfacing API error
// payloads as plain errors.
func getJSON(serverURL, path string, out any) error {
	resp, err := newHTTPClient().Get(strings.TrimRight(serverURL, "/") + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	return json.Unmarshal(body, out)
}

func submitCommand(args []string) error {
	var serverURL, schemaVersion string
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	fs.StringVar(&serverURL, "server", defaultServer, "API server URL")
	fs.StringVar(&schemaVersion, "schema", "", "Schema version for extraction (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	remaining := fs.Args()
	if len(remaining) == 0 {
		return fmt.Errorf("usage: %s submit <file> --schema <version>", appName)
	}
	if schemaVersion == "" {
		return fmt.Errorf("--schema is required")
	}
	filePath := remaining[0]

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return err
	}
	if _, err := part.Write(content); err != nil {
		return err
	}
	if err := writer.WriteField("schema_version", schemaVersion); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	resp, err := newHTTPClient().Post(
		strings.TrimRight(serverURL, "/")+"/api/v1/documents",
		writer.FormDataContentType(),
		&buf,
	)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result struct {
		DocumentID    uint   `json:"document_id"`
		CorrelationID string `json:"correlation_id"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Document ID:    %d\n", result.DocumentID)
	fmt.Printf("Correlation ID: %s\n", result.CorrelationID)
	fmt.Printf("Status:         %s\n", result.Status)
	return nil
}

func statusCommand(args []string) error {
	var serverURL string
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.StringVar(&serverURL, "server", defaultServer, "API server URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) == 0 {
		return fmt.Errorf("usage: %s status <doc-id>", appName)
	}
	documentID := fs.Args()[0]

	var result struct {
		DocumentID    uint   `json:"document_id"`
		Source        string `json:"source"`
		SchemaVersion string `json:"schema_version"`
		Status        string `json:"status"`
		Stages        []struct {
			Stage        string `json:"stage"`
			Status       string `json:"status"`
			Attempt      int    `json:"attempt"`
			ErrorType    string `json:"error_type"`
			ErrorMessage string `json:"error_message"`
		} `json:"stages"`
	}
	if err := getJSON(serverURL, "/api/v1/documents/"+documentID+"/status", &result); err != nil {
		return err
	}

	fmt.Printf("Document %d (%s)\n", result.DocumentID, result.Source)
	fmt.Printf("Schema:  %s\n", result.SchemaVersion)
	fmt.Printf("Status:  %s\n\n", result.Status)
	for _, stage := range result.Stages {
		line := fmt.Sprintf("  %-24s %-10s attempt %d", stage.Stage, stage.Status, stage.Attempt)
		if stage.ErrorType != "" {
			line += fmt.Sprintf("  [%s] %s", stage.ErrorType, stage.ErrorMessage)
		}
		fmt.Println(line)
	}
	return nil
}

func resultsCommand(args []string) error {
	var serverURL string
	fs := flag.NewFlagSet("results", flag.ExitOnError)
	fs.StringVar(&serverURL, "server", defaultServer, "API server URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) == 0 {
		return fmt.Errorf("usage: %s results <doc-id>", appName)
	}
	documentID := fs.Args()[0]

	var result struct {
		DocumentID    uint   `json:"document_id"`
		SchemaVersion string `json:"schema_version"`
		Extractions   []struct {
			ChunkID          uint           `json:"chunk_id"`
			Sequence         int            `json:"sequence"`
			JSONResult       map[string]any `json:"json_result"`
			IsValid          bool           `json:"is_valid"`
			ValidationErrors []struct {
				JSONPath string `json:"json_path"`
				Message  string `json:"message"`
			} `json:"validation_errors"`
			CostUSD float64 `json:"cost_usd"`
		} `json:"extractions"`
		TotalCostUSD float64 `json:"total_cost_usd"`
	}
	if err := getJSON(serverURL, "/api/v1/documents/"+documentID+"/extractions", &result); err != nil {
		return err
	}

	fmt.Printf("Document %d, schema %s, %d extraction(s), total cost $%.4f\n\n",
		result.DocumentID, result.SchemaVersion, len(result.Extractions), result.TotalCostUSD)
	for _, extraction := range result.Extractions {
		pretty, _ := json.MarshalIndent(extraction.JSONResult, "  ", "  ")
		fmt.Printf("Chunk %d (seq %d) valid=%v cost=$%.4f\n  %s\n",
			extraction.ChunkID, extraction.Sequence, extraction.IsValid, extraction.CostUSD, pretty)
		for _, issue := range extraction.ValidationErrors {
			fmt.Printf("  ! %s: %s\n", issue.JSONPath, issue.Message)
		}
		fmt.Println()
	}
	return nil
}

func metricsCommand(args []string) error {
	var serverURL string
	fs := flag.NewFlagSet("metrics", flag.ExitOnError)
	fs.StringVar(&serverURL, "server", defaultServer, "API server URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) == 0 {
		return fmt.Errorf("usage: %s metrics <doc-id>", appName)
	}
	documentID := fs.Args()[0]

	var result struct {
		DocumentID             uint    `json:"document_id"`
		TotalLatencyMS         float64 `json:"total_latency_ms"`
		TotalTokensIn          int64   `json:"total_tokens_in"`
		TotalTokensOut         int64   `json:"total_tokens_out"`
		TotalCostUSD           float64 `json:"total_cost_usd"`
		ChunkCount             int     `json:"chunk_count"`
		ExtractionCount        int     `json:"extraction_count"`
		ValidExtractionCount   int     `json:"valid_extraction_count"`
		InvalidExtractionCount int     `json:"invalid_extraction_count"`
		StageMetrics           []struct {
			Stage          string  `json:"stage"`
			Attempts       int64   `json:"attempts"`
			TotalLatencyMS float64 `json:"total_latency_ms"`
			CostUSD        float64 `json:"cost_usd"`
		} `json:"stage_metrics"`
	}
	if err := getJSON(serverURL, "/api/v1/documents/"+documentID+"/metrics", &result); err != nil {
		return err
	}

	fmt.Printf("Document %d\n", result.DocumentID)
	fmt.Printf("  Latency:     %.1f ms\n", result.TotalLatencyMS)
	fmt.Printf("  Tokens:      %d in / %d out\n", result.TotalTokensIn, result.TotalTokensOut)
	fmt.Printf("  Cost:        $%.4f\n", result.TotalCostUSD)
	fmt.Printf("  Chunks:      %d\n", result.ChunkCount)
	fmt.Printf("  Extractions: %d (%d valid, %d invalid)\n\n",
		result.ExtractionCount, result.ValidExtractionCount, result.InvalidExtractionCount)
	for _, stage := range result.StageMetrics {
		fmt.Printf("  %-24s %d attempt(s)  %.1f ms  $%.4f\n",
			stage.Stage, stage.Attempts, stage.TotalLatencyMS, stage.CostUSD)
	}
	return nil
}
