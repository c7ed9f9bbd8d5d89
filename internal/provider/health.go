package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// httpCheck is an HTTP GET reachability probe against a backend's cheapest
// endpoint. It implements HealthCheckConfig without spending model tokens.
type httpCheck struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// HealthCheck issues the probe request and treats any 2xx status as healthy.
func (c *httpCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("provider health: create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider health: %s returned HTTP %d", c.url, resp.StatusCode)
	}
	return nil
}

// NewHealthCheck returns the token-free reachability probe for the configured
// backend, or nil when the backend has no cheap probe endpoint (Bedrock goes
// through the AWS SDK and is checked lazily on first use).
func NewHealthCheck(cfg *Config) HealthCheckConfig {
	client := &http.Client{Timeout: 5 * time.Second}

	switch cfg.Backend {
	case BackendOllama:
		host := cfg.Ollama.Host
		if host == "" {
			host = "http://localhost:11434"
		}
		return &httpCheck{url: host + "/api/tags", client: client}

	case BackendOpenAI:
		return &httpCheck{
			url:     "https://api.openai.com/v1/models",
			headers: map[string]string{"Authorization": "Bearer " + cfg.OpenAI.APIKey},
			client:  client,
		}

	case BackendAzure:
		return &httpCheck{
			url:     cfg.AzureOpenAI.Endpoint + "/openai/models?api-version=" + cfg.AzureOpenAI.APIVersion,
			headers: map[string]string{"api-key": cfg.AzureOpenAI.APIKey},
			client:  client,
		}

	case BackendGemini:
		return &httpCheck{
			url:    "https://generativelanguage.googleapis.com/v1beta/models?key=" + cfg.Gemini.APIKey,
			client: client,
		}

	default:
		return nil
	}
}
