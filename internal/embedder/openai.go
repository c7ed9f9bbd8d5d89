// Package embedder provides implementations of the rag.Embedder interface for
// converting question and regulation text into dense vector embeddings. Each
// implementation talks to a different backend (OpenAI, Azure OpenAI, Ollama)
// via plain HTTP — no additional SDK dependencies are required. The Cache
// wrapper adds content-hash memoization in front of any of them.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OpenAIEmbedder implements rag.Embedder against the OpenAI or Azure OpenAI
// embeddings REST API. Safe for concurrent use.
type OpenAIEmbedder struct {
	cfg    OpenAIConfig
	client *http.Client
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API base URL. For OpenAI: "https://api.openai.com/v1".
	// For Azure: "https://<resource>.openai.azure.com/openai".
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model name (e.g. "text-embedding-3-small").
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure enables Azure OpenAI mode (api-key header + api-version param).
	Azure bool
	// APIVersion is the Azure OpenAI API version (e.g. "2025-04-01-preview").
	// Ignored when Azure is false.
	APIVersion string
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		cfg:    *cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// endpoint returns the embeddings URL for the configured API flavor.
func (e *OpenAIEmbedder) endpoint() string {
	if e.cfg.Azure {
		return e.cfg.BaseURL + "/deployments/" + e.cfg.Model + "/embeddings?api-version=" + e.cfg.APIVersion
	}
	return e.cfg.BaseURL + "/embeddings"
}

// authorize sets the auth header: Azure uses api-key, OpenAI a Bearer token.
func (e *OpenAIEmbedder) authorize(req *http.Request) {
	if e.cfg.Azure {
		req.Header.Set("api-key", e.cfg.APIKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed sends the whole batch in one embeddings call and returns the vectors
// parallel to texts. An empty batch is a no-op.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(openaiEmbedRequest{
		Input:      texts,
		Model:      e.cfg.Model,
		Dimensions: e.cfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	e.authorize(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("openai embedder: decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if result.Error != nil {
			return nil, fmt.Errorf("openai embedder: %s", result.Error.Message)
		}
		return nil, fmt.Errorf("openai embedder: HTTP %d", resp.StatusCode)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedder: expected %d embeddings, got %d", len(texts), len(result.Data))
	}

	// Data items carry explicit indices and may arrive out of order.
	embeddings := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embedder: index %d out of range [0, %d)", d.Index, len(texts))
		}
		embeddings[d.Index] = d.Embedding
	}
	return embeddings, nil
}
