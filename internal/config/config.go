// Package config provides YAML-based configuration for laborsaver.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. LABORSAVER_CONFIG environment variable
//  3. ~/.laborsaver/config.yaml
//  4. ./laborsaver.yaml
//
// If no file is found the system runs entirely from env vars (backwards compatible).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the LLM chat model provider used for answer generation.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider for retrieval.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the Qdrant vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Engine configures the tiered answer engine (cache, retrieval, rate
	// limiting, generation dispatch).
	Engine EngineYAML `yaml:"engine"`

	// Data configures the curated dataset file paths.
	Data DataConfig `yaml:"data"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// AnswerLog configures the per-request answer log.
	AnswerLog AnswerLogConfig `yaml:"answer_log"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, bedrock, gemini.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`

	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`

	// Bedrock holds AWS Bedrock-specific settings.
	Bedrock BedrockConfig `yaml:"bedrock"`

	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// BedrockConfig holds AWS Bedrock provider settings.
type BedrockConfig struct {
	// Region is the AWS region for Bedrock.
	Region string `yaml:"region"`
	// ModelID is the Bedrock model identifier.
	ModelID string `yaml:"model_id"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings for retrieval.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// EngineYAML holds answer-engine tunables in the YAML file. Every value is
// mirrored by an env var; see [EngineFromEnv] for the effective defaults.
type EngineYAML struct {
	// CacheCapacity is the embedding cache size (entries).
	CacheCapacity int `yaml:"cache_capacity"`
	// TopK is the number of chunks requested from the vector store.
	TopK int `yaml:"top_k"`
	// SimilarityThreshold is the minimum cosine similarity for a chunk to
	// be admissible (0–1).
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// SimWeight is the similarity weight in the combined ranking score.
	SimWeight float64 `yaml:"sim_weight"`
	// KeywordWeight is the keyword-overlap weight in the combined score.
	KeywordWeight float64 `yaml:"keyword_weight"`
	// RateBudget is the number of requests allowed per client per window.
	RateBudget int `yaml:"rate_budget"`
	// RateWindowSeconds is the sliding-window length in seconds.
	RateWindowSeconds int `yaml:"rate_window_seconds"`
	// Workers is the number of concurrent in-flight generation calls.
	Workers int `yaml:"workers"`
	// GenerationTimeoutSeconds is the per-request generation timeout.
	GenerationTimeoutSeconds int `yaml:"generation_timeout_seconds"`
	// OutboundRPS paces calls to the generative model (0 disables pacing).
	OutboundRPS float64 `yaml:"outbound_rps"`
	// OutboundBurst is the pacer burst size (0 derives it from Workers).
	OutboundBurst int `yaml:"outbound_burst"`
	// MaxContextTokens is the prompt context budget in tokens.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// DataConfig holds curated dataset file paths.
type DataConfig struct {
	// PresetPath is the preset Q&A table JSON file.
	PresetPath string `yaml:"preset_path"`
	// BenefitsPath is the disability benefit standards JSON file.
	BenefitsPath string `yaml:"benefits_path"`
	// OfficesPath is the labor-bureau office list JSON file.
	OfficesPath string `yaml:"offices_path"`
	// HospitalsPath is the accredited hospital list JSON file.
	HospitalsPath string `yaml:"hospitals_path"`
	// DatasetDir is the directory holding the raw knowledge-base datasets
	// consumed by `laborsaver ingest`.
	DatasetDir string `yaml:"dataset_dir"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var LABORSAVER_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// AnswerLogConfig holds answer log settings.
type AnswerLogConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"AWS_REGION", func(c *Config) string { return c.Model.Bedrock.Region }},
	{"BEDROCK_MODEL_ID", func(c *Config) string { return c.Model.Bedrock.ModelID }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"CACHE_CAPACITY", func(c *Config) string { return intStr(c.Engine.CacheCapacity) }},
	{"RETRIEVAL_TOP_K", func(c *Config) string { return intStr(c.Engine.TopK) }},
	{"SIMILARITY_THRESHOLD", func(c *Config) string { return float64Str(c.Engine.SimilarityThreshold) }},
	{"RETRIEVAL_SIM_WEIGHT", func(c *Config) string { return float64Str(c.Engine.SimWeight) }},
	{"RETRIEVAL_KEYWORD_WEIGHT", func(c *Config) string { return float64Str(c.Engine.KeywordWeight) }},
	{"RATE_LIMIT_REQUESTS", func(c *Config) string { return intStr(c.Engine.RateBudget) }},
	{"RATE_LIMIT_WINDOW", func(c *Config) string { return intStr(c.Engine.RateWindowSeconds) }},
	{"GENERATION_WORKERS", func(c *Config) string { return intStr(c.Engine.Workers) }},
	{"GENERATION_TIMEOUT", func(c *Config) string { return intStr(c.Engine.GenerationTimeoutSeconds) }},
	{"GENERATION_OUTBOUND_RPS", func(c *Config) string { return float64Str(c.Engine.OutboundRPS) }},
	{"GENERATION_OUTBOUND_BURST", func(c *Config) string { return intStr(c.Engine.OutboundBurst) }},
	{"CONTEXT_MAX_TOKENS", func(c *Config) string { return intStr(c.Engine.MaxContextTokens) }},
	{"PRESET_PATH", func(c *Config) string { return c.Data.PresetPath }},
	{"BENEFITS_PATH", func(c *Config) string { return c.Data.BenefitsPath }},
	{"OFFICES_PATH", func(c *Config) string { return c.Data.OfficesPath }},
	{"HOSPITALS_PATH", func(c *Config) string { return c.Data.HospitalsPath }},
	{"DATASET_DIR", func(c *Config) string { return c.Data.DatasetDir }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LABORSAVER_ANSWER_DB", func(c *Config) string { return c.AnswerLog.DBPath }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("LABORSAVER_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".laborsaver", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("laborsaver.yaml"); err == nil {
		return "laborsaver.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// float64Str converts a float64 to string, returning "" for zero values.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
