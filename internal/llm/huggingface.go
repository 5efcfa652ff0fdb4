// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docline/docline/internal/config"
	"github.com/docline/docline/internal/errs"
	"github.com/docline/docline/internal/logger"
)

const huggingFaceSystemPrompt = "You are a precise data extraction assistant. " +
	"Extract information and return ONLY valid JSON conforming to the schema. " +
	"No explanations, no markdown, just raw JSON."

// HuggingFaceClient calls the HuggingFace Inference API. The API reports no
// token usage, so counts are estimated from word counts.
type HuggingFaceClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewHuggingFaceClient creates a client for the HuggingFace Inference API.
func NewHuggingFaceClient(cfg *config.LLMConfig) *HuggingFaceClient {
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

type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
}

type inferenceParameters struct {
	Temperature    float64 `json:"temperature"`
	MaxNewTokens   int     `json:"max_new_tokens"`
	ReturnFullText bool    `json:"return_full_text"`
}

type inferenceResult struct {
	GeneratedText string `json:"generated_text"`
}

// GenerateStructured implements Client.
func (c *HuggingFaceClient) GenerateStructured(ctx context.Context, prompt string, schema map[string]any, temperature float64, maxTokens int) (*Response, error) {
	start := time.Now()

	schemaStr, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "failed to encode schema", err)
	}
	fullPrompt := fmt.Sprintf("%s\n\n%s\n\nJSON Schema:\n%s\n\nJSON Output:", huggingFaceSystemPrompt, prompt, schemaStr)

	payload, err := json.Marshal(inferenceRequest{
		Inputs: fullPrompt,
		Parameters: inferenceParameters{
			Temperature:    temperature,
			MaxNewTokens:   maxTokens,
			ReturnFullText: false,
		},
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/models/"+c.model, bytes.NewReader(payload))
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

	rawResponse, err := decodeGeneratedText(body)
	if err != nil {
		return nil, err
	}

	parsed, err := parseModelJSON(rawResponse)
	if err != nil {
		log := logger.GetLLMLogger()
		log.Warn().
			Err(err).
			Str("model", c.model).
			Msg("Failed to parse JSON from model output")
		return nil, err
	}

	return &Response{
		RawResponse: rawResponse,
		ParsedJSON:  parsed,
		TokensIn:    estimateTokens(fullPrompt),
		TokensOut:   estimateTokens(rawResponse),
		LatencyMS:   latencyMS,
		Metadata:    map[string]any{"model": c.model},
	}, nil
}

// decodeGeneratedText handles both response shapes the Inference API uses:
// a list of results or a single result object.
func decodeGeneratedText(body []byte) (string, error) {
	var asList []inferenceResult
	if err := json.Unmarshal(body, &asList); err == nil {
		if len(asList) == 0 {
			return "", nil
		}
		return asList[0].GeneratedText, nil
	}

	var asObject inferenceResult
	if err := json.Unmarshal(body, &asObject); err != nil {
		return "", errs.Wrap(errs.KindModelOutput, "unparseable API response", err)
	}
	return asObject.GeneratedText, nil
}
