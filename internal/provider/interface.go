// Package provider selects and constructs the LLM chat model backend used
// for answer generation. Supported backends: Ollama, OpenAI, Azure OpenAI,
// AWS Bedrock, Google Gemini.
package provider

import (
	"context"
	"fmt"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendBedrock selects AWS Bedrock.
	BackendBedrock Backend = "bedrock"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// ProviderOllama holds Ollama backend settings.
type ProviderOllama struct {
	// Host is the Ollama API base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the Ollama model name.
	Model string
}

// ProviderOpenAI holds OpenAI backend settings.
type ProviderOpenAI struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the model name (e.g. "gpt-4o").
	Model string
}

// ProviderAzureOpenAI holds Azure OpenAI backend settings.
type ProviderAzureOpenAI struct {
	// APIKey is the Azure OpenAI API key.
	APIKey string
	// Endpoint is the Azure resource endpoint.
	Endpoint string
	// Deployment is the Azure deployment name.
	Deployment string
	// APIVersion is the Azure REST API version.
	APIVersion string
}

// ProviderBedrock holds AWS Bedrock backend settings. Credentials are
// resolved via the standard AWS SDK chain.
type ProviderBedrock struct {
	// AWSRegion is the AWS region for Bedrock.
	AWSRegion string
	// ModelID is the Bedrock model identifier.
	ModelID string
	// APIKey and BaseURL configure the OpenAI-compatible Bedrock gateway.
	APIKey  string
	BaseURL string
}

// ProviderGemini holds Google Gemini backend settings.
type ProviderGemini struct {
	// APIKey is the Google AI Studio API key.
	APIKey string
	// Model is the Gemini model name.
	Model string
}

// SharedTuning holds generation parameters common to every backend.
type SharedTuning struct {
	// MaxTokens caps the number of tokens generated per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. Only the section matching
// Backend is consulted.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Bedrock     ProviderBedrock
	Gemini      ProviderGemini
	Tuning      SharedTuning
}

// Validate checks that the selected backend has the configuration it needs.
// Called once at startup so misconfiguration fails loudly before the first
// question arrives.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendBedrock:
		if c.Bedrock.ModelID == "" {
			return fmt.Errorf("provider: BEDROCK_MODEL_ID is required for bedrock backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q — valid values: ollama, openai, azure, bedrock, gemini", c.Backend)
	}
	return nil
}

// HealthCheckConfig is implemented by backends that can report reachability
// without burning a Generate call. Used by the readiness endpoint.
type HealthCheckConfig interface {
	// HealthCheck probes the backend. Returns nil when reachable.
	HealthCheck(ctx context.Context) error
}
