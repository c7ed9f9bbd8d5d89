package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Engine defaults. These mirror the tunables of the answer engine and are
// overridable per env var (see EngineFromEnv).
const (
	DefaultCacheCapacity       = 1000
	DefaultTopK                = 5
	DefaultSimilarityThreshold = 0.6
	DefaultSimWeight           = 1.0
	DefaultKeywordWeight       = 0.05
	DefaultRateBudget          = 20
	DefaultRateWindow          = 60 * time.Second
	DefaultWorkers             = 4
	DefaultGenerationTimeout   = 30 * time.Second
	DefaultMaxContextTokens    = 6000

	// DefaultOutboundRPS disables outbound pacing; set
	// GENERATION_OUTBOUND_RPS to protect a shared upstream model.
	DefaultOutboundRPS = 0.0
)

// Engine is the resolved answer-engine configuration. All values are
// validated once at startup; a bad value is process-fatal rather than
// silently clamped.
type Engine struct {
	// CacheCapacity is the embedding cache size in entries.
	CacheCapacity int

	// TopK is the number of chunks requested from the vector store per query.
	TopK int

	// SimilarityThreshold is the minimum cosine similarity for a retrieved
	// chunk to be admissible.
	SimilarityThreshold float64

	// SimWeight and KeywordWeight combine similarity and keyword overlap
	// into the ranking score.
	SimWeight     float64
	KeywordWeight float64

	// RateBudget is the number of requests each client may make per RateWindow.
	RateBudget int

	// RateWindow is the sliding-window length for rate limiting.
	RateWindow time.Duration

	// Workers bounds the number of concurrent in-flight generation calls.
	Workers int

	// GenerationTimeout is the per-request deadline for answer generation.
	GenerationTimeout time.Duration

	// OutboundRPS paces calls to the generative model (requests/second
	// across all workers). Zero disables pacing.
	OutboundRPS float64

	// OutboundBurst is the pacer burst size. Zero means the dispatcher
	// derives it from the worker count.
	OutboundBurst int

	// MaxContextTokens is the token budget for retrieved context in the prompt.
	MaxContextTokens int
}

// EngineFromEnv builds the engine configuration from environment variables,
// falling back to the documented defaults. Unparseable values are errors,
// not silent fallbacks.
func EngineFromEnv() (*Engine, error) {
	e := &Engine{
		CacheCapacity:       DefaultCacheCapacity,
		TopK:                DefaultTopK,
		SimilarityThreshold: DefaultSimilarityThreshold,
		SimWeight:           DefaultSimWeight,
		KeywordWeight:       DefaultKeywordWeight,
		RateBudget:          DefaultRateBudget,
		RateWindow:          DefaultRateWindow,
		Workers:             DefaultWorkers,
		GenerationTimeout:   DefaultGenerationTimeout,
		OutboundRPS:         DefaultOutboundRPS,
		MaxContextTokens:    DefaultMaxContextTokens,
	}

	var err error
	if e.CacheCapacity, err = envInt("CACHE_CAPACITY", e.CacheCapacity); err != nil {
		return nil, err
	}
	if e.TopK, err = envInt("RETRIEVAL_TOP_K", e.TopK); err != nil {
		return nil, err
	}
	if e.SimilarityThreshold, err = envFloat("SIMILARITY_THRESHOLD", e.SimilarityThreshold); err != nil {
		return nil, err
	}
	if e.SimWeight, err = envFloat("RETRIEVAL_SIM_WEIGHT", e.SimWeight); err != nil {
		return nil, err
	}
	if e.KeywordWeight, err = envFloat("RETRIEVAL_KEYWORD_WEIGHT", e.KeywordWeight); err != nil {
		return nil, err
	}
	if e.RateBudget, err = envInt("RATE_LIMIT_REQUESTS", e.RateBudget); err != nil {
		return nil, err
	}
	if e.RateWindow, err = envSeconds("RATE_LIMIT_WINDOW", e.RateWindow); err != nil {
		return nil, err
	}
	if e.Workers, err = envInt("GENERATION_WORKERS", e.Workers); err != nil {
		return nil, err
	}
	if e.GenerationTimeout, err = envSeconds("GENERATION_TIMEOUT", e.GenerationTimeout); err != nil {
		return nil, err
	}
	if e.OutboundRPS, err = envFloat("GENERATION_OUTBOUND_RPS", e.OutboundRPS); err != nil {
		return nil, err
	}
	if e.OutboundBurst, err = envInt("GENERATION_OUTBOUND_BURST", e.OutboundBurst); err != nil {
		return nil, err
	}
	if e.MaxContextTokens, err = envInt("CONTEXT_MAX_TOKENS", e.MaxContextTokens); err != nil {
		return nil, err
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks that every engine tunable is in its legal range.
// Configuration errors detected here are the only process-fatal conditions;
// everything downstream degrades instead of crashing.
func (e *Engine) Validate() error {
	if e.CacheCapacity < 1 {
		return fmt.Errorf("engine config: cache capacity must be >= 1, got %d", e.CacheCapacity)
	}
	if e.TopK < 1 {
		return fmt.Errorf("engine config: retrieval top-k must be >= 1, got %d", e.TopK)
	}
	if e.SimilarityThreshold < 0 || e.SimilarityThreshold > 1 {
		return fmt.Errorf("engine config: similarity threshold must be in [0,1], got %g", e.SimilarityThreshold)
	}
	if e.SimWeight < 0 {
		return fmt.Errorf("engine config: similarity weight must be >= 0, got %g", e.SimWeight)
	}
	if e.KeywordWeight < 0 {
		return fmt.Errorf("engine config: keyword weight must be >= 0, got %g", e.KeywordWeight)
	}
	if e.RateBudget < 1 {
		return fmt.Errorf("engine config: rate budget must be >= 1, got %d", e.RateBudget)
	}
	if e.RateWindow <= 0 {
		return fmt.Errorf("engine config: rate window must be positive, got %s", e.RateWindow)
	}
	if e.Workers < 1 {
		return fmt.Errorf("engine config: generation workers must be >= 1, got %d", e.Workers)
	}
	if e.GenerationTimeout <= 0 {
		return fmt.Errorf("engine config: generation timeout must be positive, got %s", e.GenerationTimeout)
	}
	if e.OutboundRPS < 0 {
		return fmt.Errorf("engine config: outbound RPS must be >= 0, got %g", e.OutboundRPS)
	}
	if e.OutboundBurst < 0 {
		return fmt.Errorf("engine config: outbound burst must be >= 0, got %d", e.OutboundBurst)
	}
	if e.MaxContextTokens < 1 {
		return fmt.Errorf("engine config: context token budget must be >= 1, got %d", e.MaxContextTokens)
	}
	return nil
}

// envInt reads an integer env var, returning the fallback when unset.
func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("engine config: invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

// envFloat reads a float env var, returning the fallback when unset.
func envFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("engine config: invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

// envSeconds reads an env var expressed in whole seconds.
func envSeconds(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("engine config: invalid %s %q: %w", key, raw, err)
	}
	return time.Duration(secs) * time.Second, nil
}
