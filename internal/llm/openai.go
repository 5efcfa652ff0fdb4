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

const openAISystemPrompt = "You are a precise data extraction assistant. " +
	"Extract information from the provided text and return ONLY valid JSON " +
	"that strictly conforms to the provided schema. " +
	"Do not include any explanations, markdown formatting, or additional text. " +
	"Return only the raw JSON object."

// OpenAIClient calls an OpenAI-compatible chat completions API.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(cfg *config.LLMConfig) *OpenAIClient {
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

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// GenerateStructured implements Client.
func (c *OpenAIClient) GenerateStructured(ctx context.Context, prompt string, schema map[string]any, temperature float64, maxTokens int) (*Response, error) {
	start := time.Now()

	schemaStr, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "failed to encode schema", err)
	}
	fullPrompt := fmt.Sprintf("%s\n\nRequired JSON Schema:\n%s", prompt, schemaStr)

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: openAISystemPrompt},
			{Role: "user", Content: fullPrompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
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

	var data chatResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, errs.Wrap(errs.KindModelOutput, "unparseable API response", err)
	}
	if len(data.Choices) == 0 {
		return nil, errs.New(errs.KindModelOutput, "API response contained no choices")
	}

	rawResponse := data.Choices[0].Message.Content
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
		TokensIn:    data.Usage.PromptTokens,
		TokensOut:   data.Usage.CompletionTokens,
		LatencyMS:   latencyMS,
		Metadata: map[string]any{
			"model":         c.model,
			"finish_reason": data.Choices[0].FinishReason,
		},
	}, nil
}
