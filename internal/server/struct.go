package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Gskdl78/Labor-saver/internal/benefits"
	"github.com/Gskdl78/Labor-saver/internal/embedder"
	"github.com/Gskdl78/Labor-saver/internal/engine"
	"github.com/Gskdl78/Labor-saver/internal/ingestion"
	"github.com/Gskdl78/Labor-saver/internal/locator"
	"github.com/Gskdl78/Labor-saver/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics. If nil, a private
	// registry is created; GET /metrics always serves whatever is used.
	Registry *prometheus.Registry
	// EmbeddingModel is the embedding model name reported by GET /api/rag/status.
	EmbeddingModel string
	// Collection is the vector collection name reported by GET /api/rag/status.
	Collection string
	// DatasetDir is the dataset directory used by POST /api/rag/reload.
	DatasetDir string
}

// answerer is the interface handleChat calls to answer a question.
// *engine.Engine satisfies it; tests inject a fake.
type answerer interface {
	Answer(ctx context.Context, clientID, question string) (*engine.Response, error)
}

// questionLister is the interface behind GET /api/chat/preset-questions.
type questionLister interface {
	Questions() []string
}

// pointCounter is the interface behind the vector count in GET /api/rag/status.
type pointCounter interface {
	Count(ctx context.Context) (uint64, error)
}

// reloader is the interface behind POST /api/rag/reload.
type reloader interface {
	Run(ctx context.Context, dir string, force bool) (*ingestion.Stats, error)
}

// Deps bundles the components the server exposes over HTTP. Engine is
// required; everything else degrades the corresponding endpoint when nil.
type Deps struct {
	// Engine answers chat questions.
	Engine answerer
	// Presets lists the curated questions for the UI.
	Presets questionLister
	// Locator serves the maps endpoints.
	Locator *locator.Locator
	// Benefits serves the disability benefit lookup.
	Benefits *benefits.Table
	// AnswerLog records every answered question. Append failures are logged,
	// never surfaced to the client.
	AnswerLog store.AnswerLog
	// VectorStore reports the knowledge base size on GET /api/rag/status.
	VectorStore pointCounter
	// CacheStats reports embedding cache counters on GET /api/rag/status.
	CacheStats func() embedder.CacheStats
	// Reloader re-ingests the datasets on POST /api/rag/reload.
	Reloader reloader
}

// Server is the HTTP server that fronts the answer engine.
type Server struct {
	// deps holds the wired application components.
	deps *Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Message is the user's question.
	Message string `json:"message"`
	// SessionID groups questions from one conversation. Defaults to "default".
	SessionID string `json:"session_id"`
}

// errorResponse is the JSON error envelope shared by all endpoints.
type errorResponse struct {
	// Error is the human-readable failure description.
	Error string `json:"error"`
	// RetryAfter is the wait hint in seconds for rate-limited requests.
	RetryAfter int `json:"retry_after,omitempty"`
	// Success is always false on errors.
	Success bool `json:"success"`
}

// presetQuestionsResponse is the JSON response for GET /api/chat/preset-questions.
type presetQuestionsResponse struct {
	// Questions is the curated question list, database entries first.
	Questions []string `json:"questions"`
	// Total is len(Questions).
	Total int `json:"total"`
}

// ragStatusResponse is the JSON response for GET /api/rag/status.
type ragStatusResponse struct {
	// Status is "healthy" or "error".
	Status string `json:"status"`
	// Message is the human-readable status summary.
	Message string `json:"message"`
	// VectorDBCount is the number of points in the knowledge base.
	VectorDBCount uint64 `json:"vector_db_count"`
	// EmbeddingModel is the embedding model in use.
	EmbeddingModel string `json:"embedding_model,omitempty"`
	// Collections lists the vector collections in use.
	Collections []string `json:"collections,omitempty"`
	// Cache holds the embedding cache counters, when a cache is wired.
	Cache *embedder.CacheStats `json:"cache,omitempty"`
	// Tiers counts recorded answers per tier, when an answer log is wired.
	Tiers map[string]int64 `json:"tiers,omitempty"`
}

// reloadResponse is the JSON response for POST /api/rag/reload.
type reloadResponse struct {
	// Success is true when the reload completed.
	Success bool `json:"success"`
	// Message is the human-readable result summary.
	Message string `json:"message"`
	// RecordCount is the number of documents ingested.
	RecordCount int `json:"record_count,omitempty"`
}

// benefitRequest is the JSON body for POST /api/disability/benefit.
type benefitRequest struct {
	// Level is the disability grade, 1 through 15.
	Level int `json:"level"`
	// InjuryType selects the payout schedule; defaults to 普通傷病.
	InjuryType string `json:"injury_type"`
}

// benefitResponse is the JSON response for POST /api/disability/benefit.
type benefitResponse struct {
	benefits.Benefit
	// Success is true on a resolved lookup.
	Success bool `json:"success"`
}

// nearbyRequest is the JSON body for POST /api/maps/nearby.
type nearbyRequest struct {
	// Latitude is the search origin latitude.
	Latitude float64 `json:"latitude"`
	// Longitude is the search origin longitude.
	Longitude float64 `json:"longitude"`
	// Type is "hospital" or "labor_office". Defaults to "hospital".
	Type string `json:"type"`
}

// nearbyResponse is the JSON response for POST /api/maps/nearby.
type nearbyResponse struct {
	// Locations is the ranked result list.
	Locations []locator.Location `json:"locations"`
	// Total is the number of candidates before truncation.
	Total int `json:"total"`
	// Message is the human-readable result summary.
	Message string `json:"message"`
	// Success is true on a completed search.
	Success bool `json:"success"`
}

// cityLocationsResponse is the JSON response for GET /api/maps/city/{city}.
type cityLocationsResponse struct {
	// Locations lists every match in the city.
	Locations []locator.Location `json:"locations"`
	// City echoes the requested city name.
	City string `json:"city"`
	// Type echoes the requested location type.
	Type string `json:"type"`
	// Success is true on a completed lookup.
	Success bool `json:"success"`
}

// citiesResponse is the JSON response for GET /api/maps/cities.
type citiesResponse struct {
	// Cities is the sorted city list with administrative suffixes stripped.
	Cities []string `json:"cities"`
	// Success is true on a completed lookup.
	Success bool `json:"success"`
}
