// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Gskdl78/Labor-saver/internal/embedder"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// chatRequestsTotal counts completed /api/chat requests, partitioned by
	// the tier that answered ("preset", "rag", "degraded") or "rate_limited".
	chatRequestsTotal *prometheus.CounterVec

	// chatDurationSeconds records the wall-clock duration of each answered
	// /api/chat request, partitioned by tier.
	chatDurationSeconds *prometheus.HistogramVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "laborsaver",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of /api/chat requests completed, partitioned by answering tier.",
		}, []string{"tier"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "laborsaver",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of answered /api/chat requests, partitioned by tier.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"tier"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "laborsaver",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "laborsaver",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// registerCacheMetrics exposes the embedding cache counters as Prometheus
// metrics sampled at scrape time from the stats snapshot.
func registerCacheMetrics(reg prometheus.Registerer, stats func() embedder.CacheStats) {
	factory := promauto.With(reg)

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "laborsaver",
		Subsystem: "embedding_cache",
		Name:      "hits_total",
		Help:      "Total number of embedding lookups served from the cache.",
	}, func() float64 { return float64(stats().Hits) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "laborsaver",
		Subsystem: "embedding_cache",
		Name:      "misses_total",
		Help:      "Total number of embedding lookups that required an upstream call.",
	}, func() float64 { return float64(stats().Misses) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "laborsaver",
		Subsystem: "embedding_cache",
		Name:      "entries",
		Help:      "Current number of cached embedding entries.",
	}, func() float64 { return float64(stats().Size) })
}
