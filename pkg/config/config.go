// Package config defines the docfoundry configuration surface.
//
// Configuration is layered: YAML file, then environment variables, then
// defaults. String fields support ${VAR} and ${VAR:-default} expansion.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the docfoundry service.
type Config struct {
	// Root is the corpus root directory.
	Root string `yaml:"root" env:"DOCFOUNDRY_ROOT"`

	// CacheTTLMs is the doc index cache TTL in milliseconds.
	CacheTTLMs int `yaml:"cache_ttl_ms,omitempty" env:"DOCFOUNDRY_CACHE_TTL_MS"`

	// Watch enables the corpus file watcher.
	Watch *bool `yaml:"watch,omitempty" env:"DOCFOUNDRY_WATCH"`

	// MaxConcurrency bounds concurrent embedding/upsert work.
	MaxConcurrency int `yaml:"max_concurrency,omitempty" env:"DOCFOUNDRY_MAX_CONCURRENCY"`

	LogLevel  string `yaml:"log_level,omitempty" env:"DOCFOUNDRY_LOG_LEVEL"`
	LogFormat string `yaml:"log_format,omitempty" env:"DOCFOUNDRY_LOG_FORMAT"`

	Server      ServerConfig      `yaml:"server,omitempty"`
	VectorStore VectorStoreConfig `yaml:"vector_store,omitempty"`
	Embedder    EmbedderConfig    `yaml:"embedder,omitempty"`
	Generator   GeneratorConfig   `yaml:"generator,omitempty"`
	Reranker    RerankerConfig    `yaml:"reranker,omitempty"`
	Search      SearchConfig      `yaml:"search,omitempty"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Host string `yaml:"host,omitempty" env:"DOCFOUNDRY_HOST"`
	Port int    `yaml:"port,omitempty" env:"DOCFOUNDRY_PORT"`
}

// VectorStoreConfig configures the vector store adapter.
type VectorStoreConfig struct {
	// Type selects the adapter: "qdrant" or "chromem" (embedded).
	Type       string `yaml:"type,omitempty" env:"DOCFOUNDRY_VECTOR_TYPE"`
	Host       string `yaml:"host,omitempty" env:"DOCFOUNDRY_VECTOR_HOST"`
	Port       int    `yaml:"port,omitempty" env:"DOCFOUNDRY_VECTOR_PORT"`
	APIKey     string `yaml:"api_key,omitempty" env:"QDRANT_API_KEY"`
	EnableTLS  bool   `yaml:"enable_tls,omitempty" env:"DOCFOUNDRY_VECTOR_TLS"`
	Collection string `yaml:"collection,omitempty" env:"DOCFOUNDRY_COLLECTION"`
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	// Provider selects the embedder: "openai" (OpenAI-compatible HTTP API)
	// or "hash" (deterministic local fallback).
	Provider   string `yaml:"provider,omitempty" env:"DOCFOUNDRY_EMBEDDER"`
	Model      string `yaml:"model,omitempty" env:"DOCFOUNDRY_EMBED_MODEL"`
	Dimension  int    `yaml:"dimension,omitempty" env:"DOCFOUNDRY_EMBED_DIMENSION"`
	APIKey     string `yaml:"api_key,omitempty" env:"OPENAI_API_KEY"`
	Host       string `yaml:"host,omitempty" env:"DOCFOUNDRY_EMBED_HOST"`
	BatchSize  int    `yaml:"batch_size,omitempty" env:"DOCFOUNDRY_EMBED_BATCH"`
	Timeout    int    `yaml:"timeout,omitempty"`
	MaxRetries int    `yaml:"max_retries,omitempty"`
}

// GeneratorConfig configures the answer-generation provider.
type GeneratorConfig struct {
	Provider    string  `yaml:"provider,omitempty" env:"DOCFOUNDRY_GENERATOR"`
	Model       string  `yaml:"model,omitempty" env:"DOCFOUNDRY_GEN_MODEL"`
	APIKey      string  `yaml:"api_key,omitempty" env:"DOCFOUNDRY_GEN_API_KEY"`
	Host        string  `yaml:"host,omitempty" env:"DOCFOUNDRY_GEN_HOST"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	Timeout     int     `yaml:"timeout,omitempty"`
}

// RerankerConfig configures the cross-relevance reranker.
type RerankerConfig struct {
	Enabled bool   `yaml:"enabled,omitempty" env:"DOCFOUNDRY_RERANK_ENABLED"`
	Model   string `yaml:"model,omitempty" env:"DOCFOUNDRY_RERANK_MODEL"`
	APIKey  string `yaml:"api_key,omitempty" env:"COHERE_API_KEY"`
	Host    string `yaml:"host,omitempty" env:"DOCFOUNDRY_RERANK_HOST"`
	TopK    int    `yaml:"top_k,omitempty"`
	Timeout int    `yaml:"timeout,omitempty"`
}

// SearchConfig configures lexical search and the query cache.
type SearchConfig struct {
	MaxResults int `yaml:"max_results,omitempty"`
	CacheSize  int `yaml:"cache_size,omitempty"`
	CacheTTLMs int `yaml:"cache_ttl_ms,omitempty"`
	VectorTopK int `yaml:"vector_top_k,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.CacheTTLMs <= 0 {
		c.CacheTTLMs = 300000
	}
	if c.Watch == nil {
		watch := true
		c.Watch = &watch
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 10
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8700
	}
	if c.VectorStore.Type == "" {
		c.VectorStore.Type = "chromem"
	}
	if c.VectorStore.Host == "" {
		c.VectorStore.Host = "localhost"
	}
	if c.VectorStore.Port == 0 {
		c.VectorStore.Port = 6334
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "docfoundry_chunks"
	}
	if c.Embedder.Provider == "" {
		c.Embedder.Provider = "hash"
	}
	if c.Embedder.Model == "" {
		c.Embedder.Model = "text-embedding-3-small"
	}
	if c.Embedder.Dimension <= 0 {
		c.Embedder.Dimension = 768
	}
	if c.Embedder.BatchSize <= 0 {
		c.Embedder.BatchSize = 32
	}
	if c.Embedder.Timeout <= 0 {
		c.Embedder.Timeout = 30
	}
	if c.Embedder.MaxRetries <= 0 {
		c.Embedder.MaxRetries = 3
	}
	if c.Generator.Model == "" {
		c.Generator.Model = "gpt-4o-mini"
	}
	if c.Generator.MaxTokens <= 0 {
		c.Generator.MaxTokens = 1024
	}
	if c.Generator.Temperature == 0 {
		c.Generator.Temperature = 0.1
	}
	if c.Generator.Timeout <= 0 {
		c.Generator.Timeout = 60
	}
	if c.Reranker.Model == "" {
		c.Reranker.Model = "rerank-english-v3.0"
	}
	if c.Reranker.TopK <= 0 {
		c.Reranker.TopK = 6
	}
	if c.Reranker.Timeout <= 0 {
		c.Reranker.Timeout = 30
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 5
	}
	if c.Search.CacheSize <= 0 {
		c.Search.CacheSize = 1000
	}
	if c.Search.CacheTTLMs <= 0 {
		c.Search.CacheTTLMs = 300000
	}
	if c.Search.VectorTopK <= 0 {
		c.Search.VectorTopK = 10
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("corpus root is required")
	}
	info, err := os.Stat(c.Root)
	if err != nil {
		return fmt.Errorf("corpus root %q is not readable: %w", c.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("corpus root %q is not a directory", c.Root)
	}
	switch c.VectorStore.Type {
	case "qdrant", "chromem":
	default:
		return fmt.Errorf("unsupported vector store type: %q", c.VectorStore.Type)
	}
	switch c.Embedder.Provider {
	case "openai", "hash":
	default:
		return fmt.Errorf("unsupported embedder provider: %q", c.Embedder.Provider)
	}
	return nil
}

// Load reads the configuration from an optional YAML file, overlays
// environment variables, and applies defaults. Validation is left to the
// caller so that commands that do not need a corpus can still load config.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.SetDefaults()
	return cfg, nil
}
