package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Gskdl78/Labor-saver/internal/logging"
)

// probeTimeout bounds each dependency probe during a readiness check, so
// /api/ready answers quickly even when a dependency hangs instead of
// refusing connections.
const probeTimeout = 5 * time.Second

// Pinger is implemented by any dependency that can report its own
// reachability. Ping returns nil when the dependency is healthy and a
// descriptive error otherwise. Implementations must be safe for concurrent
// use — readiness probes run in parallel.
type Pinger interface {
	// Ping checks whether the dependency is reachable within the given context.
	Ping(ctx context.Context) error

	// Name returns a short label used in readiness responses
	// (e.g. "ollama", "qdrant").
	Name() string
}

// MultiPinger folds several Pingers into one, failing on the first
// unreachable dependency.
type MultiPinger struct {
	pingers []Pinger
}

// NewMultiPinger constructs a MultiPinger from the provided list of Pingers.
func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers}
}

// Ping runs all registered probes sequentially and returns the first error
// encountered, prefixed with the failing dependency's name.
func (m *MultiPinger) Ping(ctx context.Context) error {
	for _, p := range m.pingers {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}

// Name returns a combined label for logging purposes.
func (m *MultiPinger) Name() string { return "multi" }

// readyCheck is the per-dependency result inside the readiness response.
type readyCheck struct {
	// Name is the dependency label (e.g. "ollama", "qdrant").
	Name string `json:"name"`
	// OK is true when the dependency responded successfully.
	OK bool `json:"ok"`
	// Error contains the failure reason when OK is false. Empty on success.
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	// Ready is true only when every dependency probe succeeded.
	Ready bool `json:"ready"`
	// Checks contains the per-dependency probe results, in registration order.
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready. All registered Pingers are probed in
// parallel, each under its own short timeout; the response is 200 only when
// every dependency answered. Unlike /api/health (liveness), this endpoint
// reflects actual dependency state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	checks := make([]readyCheck, len(s.pingers))

	var g errgroup.Group
	for i, p := range s.pingers {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()

			err := p.Ping(probeCtx)
			checks[i] = readyCheck{Name: p.Name(), OK: err == nil}
			if err != nil {
				checks[i].Error = err.Error()
				log.Warn("readiness probe failed",
					slog.String("dependency", p.Name()),
					slog.Any("error", err),
				)
			}
			return err
		})
	}
	err := g.Wait()

	status := http.StatusOK
	if err != nil {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResponse{Ready: err == nil, Checks: checks})
}
