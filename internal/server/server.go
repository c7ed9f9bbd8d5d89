// Package server implements the HTTP server that exposes the labor insurance
// answer engine via a REST API: chat, curated questions, disability benefit
// lookups, and the maps endpoints for offices and hospitals.
// The server is started by the `laborsaver serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Gskdl78/Labor-saver/internal/logging"
)

// New constructs a Server from the provided dependencies and config.
func New(deps *Deps, cfg *Config) (*Server, error) {
	if deps == nil || deps.Engine == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full generation round-trip.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(registry),
	}
	if deps.CacheStats != nil {
		registerCacheMetrics(registry, deps.CacheStats)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat/preset-questions", s.handlePresetQuestions)
	mux.HandleFunc("GET /api/rag/status", s.handleRAGStatus)
	mux.HandleFunc("POST /api/rag/reload", s.handleRAGReload)
	mux.HandleFunc("POST /api/disability/benefit", s.handleDisabilityBenefit)
	mux.HandleFunc("POST /api/maps/nearby", s.handleNearby)
	mux.HandleFunc("GET /api/maps/cities", s.handleCities)
	mux.HandleFunc("GET /api/maps/city/{city}", s.handleCityLocations)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	if cfg.APIKey == "" {
		log.Warn("LABORSAVER_API_KEY not set — API authentication is disabled")
	}

	var handler http.Handler = mux
	handler = authMiddleware(cfg.APIKey, handler)
	handler = s.metricsMiddleware(handler)
	handler = requestLogger(log, handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("laborsaver server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends the shared error envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
