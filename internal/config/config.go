// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// AppConfig holds all application configuration.
// It is instantiated by NewConfig() and passed to components that need it.
type AppConfig struct {
	Database       DatabaseConfig       `mapstructure:"database"`
	Log            LogConfig            `mapstructure:"log"`
	Server         ServerConfig         `mapstructure:"server"`
	LLM            LLMConfig            `mapstructure:"llm"`
	Embedding      EmbeddingConfig      `mapstructure:"embedding"`
	Pipeline       PipelineConfig       `mapstructure:"pipeline"`
	Chunk          ChunkConfig          `mapstructure:"chunk"`
	SchemaRegistry SchemaRegistryConfig `mapstructure:"schema_registry"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Cost           CostConfig           `mapstructure:"cost"`
	Redact         RedactConfig         `mapstructure:"redact"`
	Otel           OtelConfig           `mapstructure:"otel"`
}

// DatabaseConfig holds the database connection settings. URL accepts
// sqlite://<path>, a bare sqlite file path, or a postgres:// DSN.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string            `mapstructure:"level"`
	Format string            `mapstructure:"format"`
	Output []LogOutputConfig `mapstructure:"output"`
	Levels map[string]string `mapstructure:"levels"`
}

// LogOutputConfig defines where logs are written.
type LogOutputConfig struct {
	Type    string          `mapstructure:"type"` // "file" or "console"
	Enabled bool            `mapstructure:"enabled"`
	Path    string          `mapstructure:"path"`
	Rotate  LogRotateConfig `mapstructure:"rotate"`
}

// LogRotateConfig defines log rotation settings.
type LogRotateConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LLMConfig holds model-service client configuration.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"` // "openai" or "huggingface"
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     int     `mapstructure:"timeout"` // seconds
	MaxRetries  int     `mapstructure:"max_retries"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// RequestTimeout returns the per-request deadline for model calls.
func (lc *LLMConfig) RequestTimeout() time.Duration {
	return time.Duration(lc.Timeout) * time.Second
}

// EmbeddingConfig holds embedding client configuration.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	BatchSize int    `mapstructure:"batch_size"`
	Timeout   int    `mapstructure:"timeout"` // seconds
}

// RequestTimeout returns the per-request deadline for embedding calls.
func (ec *EmbeddingConfig) RequestTimeout() time.Duration {
	return time.Duration(ec.Timeout) * time.Second
}

// PipelineConfig holds engine execution settings.
type PipelineConfig struct {
	MaxConcurrentChunks int     `mapstructure:"max_concurrent_chunks"`
	StageTimeout        int     `mapstructure:"stage_timeout"` // seconds, soft deadline
	RetryBackoffBase    float64 `mapstructure:"retry_backoff_base"`
	RetryBackoffMax     float64 `mapstructure:"retry_backoff_max"` // seconds
	RetryJitter         bool    `mapstructure:"retry_jitter"`
}

// StageTimeoutDuration returns the per-stage soft deadline.
func (pc *PipelineConfig) StageTimeoutDuration() time.Duration {
	return time.Duration(pc.StageTimeout) * time.Second
}

// ChunkConfig holds chunking engine settings.
type ChunkConfig struct {
	Size    int `mapstructure:"size"`    // target tokens per chunk
	Overlap int `mapstructure:"overlap"` // overlap tokens
	MinSize int `mapstructure:"min_size"`
}

// SchemaRegistryConfig holds the schema directory location.
type SchemaRegistryConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig holds raw-content and provenance persistence settings.
type StorageConfig struct {
	MaxFileSizeMB       int  `mapstructure:"max_file_size_mb"`
	PersistPrompts      bool `mapstructure:"persist_prompts"`
	PersistRawResponses bool `mapstructure:"persist_raw_responses"`
}

// MaxFileSizeBytes returns the upload size cap in bytes.
func (sc *StorageConfig) MaxFileSizeBytes() int64 {
	return int64(sc.MaxFileSizeMB) * 1024 * 1024
}

// CostConfig holds per-1K-token USD prices.
type CostConfig struct {
	Per1KInputTokens  float64 `mapstructure:"per_1k_input_tokens"`
	Per1KOutputTokens float64 `mapstructure:"per_1k_output_tokens"`
}

// RedactConfig lists field names redacted from log previews.
type RedactConfig struct {
	Fields []string `mapstructure:"fields"`
}

// OtelConfig holds tracing configuration.
type OtelConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	ServiceName      string `mapstructure:"service_name"`
	ExporterEndpoint string `mapstructure:"exporter_endpoint"`
}

// NewConfig creates a new AppConfig by reading from an optional config file,
// environment variables, and typed defaults. Environment variables bind
// without a prefix: llm.provider <- LLM_PROVIDER, database.url <- DATABASE_URL.
func NewConfig(configPath string) (*AppConfig, error) {
	cfg := defaultConfig()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/docline/")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults must be registered with viper so AutomaticEnv binds keys that
	// never appear in a config file.
	setDefaults(v)

	// Read the config file. It's okay if it doesn't exist.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment values always arrive as strings; weakly typed decoding
	// turns them into the int and bool fields they target.
	if err := v.Unmarshal(&cfg,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)),
		func(dc *mapstructure.DecoderConfig) { dc.WeaklyTypedInput = true },
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// ENABLE_OTEL_TRACING is the documented switch; otel.enabled also works.
	if v.GetBool("enable_otel_tracing") {
		cfg.Otel.Enabled = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// defaultConfig returns an AppConfig with default values.
// This is more type-safe than relying on viper.SetDefault alone.
func defaultConfig() AppConfig {
	return AppConfig{
		Database: DatabaseConfig{
			URL: "sqlite://./docline.db",
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "json",
			Output: []LogOutputConfig{
				{
					Type:    "file",
					Enabled: true,
					Path:    "./logs/docline.log",
					Rotate: LogRotateConfig{
						MaxSizeMB:  100,
						MaxBackups: 7,
						MaxAgeDays: 30,
						Compress:   true,
					},
				},
				{
					Type:    "console",
					Enabled: true,
				},
			},
			Levels: map[string]string{
				"pipeline":  "INFO",
				"database":  "INFO",
				"llm":       "INFO",
				"embedding": "INFO",
				"chunker":   "INFO",
				"schema":    "INFO",
				"api":       "INFO",
			},
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4-turbo-preview",
			Timeout:     120,
			MaxRetries:  3,
			Temperature: 0.0,
			MaxTokens:   4096,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			BaseURL:   "https://api.openai.com/v1",
			Model:     "text-embedding-3-small",
			BatchSize: 100,
			Timeout:   60,
		},
		Pipeline: PipelineConfig{
			MaxConcurrentChunks: 10,
			StageTimeout:        3600,
			RetryBackoffBase:    2.0,
			RetryBackoffMax:     60.0,
			RetryJitter:         true,
		},
		Chunk: ChunkConfig{
			Size:    1000,
			Overlap: 200,
			MinSize: 100,
		},
		SchemaRegistry: SchemaRegistryConfig{
			Path: "./schemas",
		},
		Storage: StorageConfig{
			MaxFileSizeMB:       100,
			PersistPrompts:      true,
			PersistRawResponses: true,
		},
		Cost: CostConfig{
			Per1KInputTokens:  0.01,
			Per1KOutputTokens: 0.03,
		},
		Redact: RedactConfig{
			Fields: []string{"ssn", "credit_card", "password"},
		},
		Otel: OtelConfig{
			Enabled:     false,
			ServiceName: "docline",
		},
	}
}

// setDefaults registers every env-bound key with viper.
func setDefaults(v *viper.Viper) {
	d := defaultConfig()

	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.max_retries", d.LLM.MaxRetries)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.batch_size", d.Embedding.BatchSize)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)
	v.SetDefault("pipeline.max_concurrent_chunks", d.Pipeline.MaxConcurrentChunks)
	v.SetDefault("pipeline.stage_timeout", d.Pipeline.StageTimeout)
	v.SetDefault("pipeline.retry_backoff_base", d.Pipeline.RetryBackoffBase)
	v.SetDefault("pipeline.retry_backoff_max", d.Pipeline.RetryBackoffMax)
	v.SetDefault("pipeline.retry_jitter", d.Pipeline.RetryJitter)
	v.SetDefault("chunk.size", d.Chunk.Size)
	v.SetDefault("chunk.overlap", d.Chunk.Overlap)
	v.SetDefault("chunk.min_size", d.Chunk.MinSize)
	v.SetDefault("schema_registry.path", d.SchemaRegistry.Path)
	v.SetDefault("storage.max_file_size_mb", d.Storage.MaxFileSizeMB)
	v.SetDefault("storage.persist_prompts", d.Storage.PersistPrompts)
	v.SetDefault("storage.persist_raw_responses", d.Storage.PersistRawResponses)
	v.SetDefault("cost.per_1k_input_tokens", d.Cost.Per1KInputTokens)
	v.SetDefault("cost.per_1k_output_tokens", d.Cost.Per1KOutputTokens)
	v.SetDefault("redact.fields", strings.Join(d.Redact.Fields, ","))
	v.SetDefault("enable_otel_tracing", false)
	v.SetDefault("otel.enabled", d.Otel.Enabled)
	v.SetDefault("otel.service_name", d.Otel.ServiceName)
	v.SetDefault("otel.exporter_endpoint", d.Otel.ExporterEndpoint)
}

// validate checks if the configuration is valid.
func (c *AppConfig) validate() error {
	if c.Database.URL == "" {
		return errors.New("database url is required")
	}

	validLogLevels := map[string]bool{
		"TRACE": true, "DEBUG": true, "INFO": true, "WARN": true, "ERROR": true, "FATAL": true, "PANIC": true,
	}
	if !validLogLevels[strings.ToUpper(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.LLM.Provider {
	case "openai", "huggingface":
	default:
		return fmt.Errorf("llm.provider must be 'openai' or 'huggingface', got: %s", c.LLM.Provider)
	}
	switch c.Embedding.Provider {
	case "openai", "huggingface":
	default:
		return fmt.Errorf("embedding.provider must be 'openai' or 'huggingface', got: %s", c.Embedding.Provider)
	}

	if c.Pipeline.RetryBackoffBase < 1.0 {
		return fmt.Errorf("pipeline.retry_backoff_base must be >= 1.0, got: %g", c.Pipeline.RetryBackoffBase)
	}
	if c.Chunk.MinSize < 1 {
		return fmt.Errorf("chunk.min_size must be >= 1, got: %d", c.Chunk.MinSize)
	}

	return nil
}

// Driver returns the database driver implied by the URL.
func (dc *DatabaseConfig) Driver() string {
	switch {
	case strings.HasPrefix(dc.URL, "postgres://"), strings.HasPrefix(dc.URL, "postgresql://"):
		return "postgres"
	default:
		return "sqlite"
	}
}

// GetDSN returns the driver-specific connection string.
func (dc *DatabaseConfig) GetDSN() string {
	switch dc.Driver() {
	case "postgres":
		return dc.URL
	default:
		dsn := strings.TrimPrefix(dc.URL, "sqlite://")
		if dsn == ":memory:" {
			dsn = "file::memory:?cache=shared"
		}
		return dsn
	}
}
