package server

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/Gskdl78/Labor-saver/internal/provider"
)

// LLMPinger probes an LLM backend through its zero-cost HTTP health check.
// It satisfies the Pinger interface and is used by GET /api/ready.
type LLMPinger struct {
	// healthCheck is the backend's HTTP reachability probe.
	healthCheck provider.HealthCheckConfig
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given health check and backend
// name. Returns nil when the backend has no HTTP health check (bedrock), so
// callers can skip registering it.
func NewLLMPinger(hc provider.HealthCheckConfig, name string) *LLMPinger {
	if hc == nil {
		return nil
	}
	return &LLMPinger{healthCheck: hc, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping probes the LLM backend for reachability.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if err := p.healthCheck.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
