package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/Gskdl78/Labor-saver/internal/benefits"
	"github.com/Gskdl78/Labor-saver/internal/config"
	"github.com/Gskdl78/Labor-saver/internal/dispatch"
	"github.com/Gskdl78/Labor-saver/internal/embedder"
	"github.com/Gskdl78/Labor-saver/internal/engine"
	"github.com/Gskdl78/Labor-saver/internal/ingestion"
	"github.com/Gskdl78/Labor-saver/internal/locator"
	"github.com/Gskdl78/Labor-saver/internal/preset"
	"github.com/Gskdl78/Labor-saver/internal/provider"
	"github.com/Gskdl78/Labor-saver/internal/rag"
	"github.com/Gskdl78/Labor-saver/internal/ratelimit"
)

// Default file locations, overridable per env var.
const (
	defaultCollection  = "labor_insurance_knowledge"
	defaultDatasetDir  = "勞保資料集"
	defaultPresetPath  = "常見問題資料庫.json"
	defaultOfficesFile = "勞保局各地辦事處.json"
	defaultHospitals   = "衛生福利部評鑑合格之醫院名單_含經緯度.json"
	defaultBenefitsTbl = "各失能等級之給付標準.json"
)

// runtime bundles the wired answer pipeline plus the handles the serve
// command exposes over HTTP.
type runtime struct {
	engine      *engine.Engine
	presets     *preset.Matcher
	cache       *embedder.Cache
	vecStore    *rag.QdrantStore
	pipeline    *ingestion.Pipeline
	providerCfg *provider.Config
	engCfg      *config.Engine

	// closers run in reverse order on shutdown.
	closers []func()
}

// close releases everything the runtime owns.
func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// buildVectorStore connects to Qdrant using the standard env knobs.
func buildVectorStore(ctx context.Context, log *slog.Logger) (*rag.QdrantStore, error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", defaultCollection)
	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	vectorSize := uint64(embedder.DefaultDimensions(embBackend)) //nolint:gosec // dimensions are bounded

	vecStore, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: collection,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}
	log.Info("qdrant store ready",
		slog.String("host", host), slog.Int("port", port), slog.String("collection", collection))
	return vecStore, nil
}

// buildRuntime wires the full answer pipeline from the environment.
func buildRuntime(ctx context.Context, log *slog.Logger) (*runtime, error) {
	engCfg, err := config.EngineFromEnv()
	if err != nil {
		return nil, err
	}

	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	cache, err := embedder.NewCache(emb, engCfg.CacheCapacity)
	if err != nil {
		return nil, err
	}

	r := &runtime{engCfg: engCfg, cache: cache}

	vecStore, err := buildVectorStore(ctx, log)
	if err != nil {
		return nil, err
	}
	r.vecStore = vecStore
	r.closers = append(r.closers, func() { _ = vecStore.Close() })

	retriever, err := rag.NewHybridRetriever(cache, vecStore, rag.RetrieverConfig{
		TopK:                engCfg.TopK,
		SimilarityThreshold: engCfg.SimilarityThreshold,
		SimWeight:           engCfg.SimWeight,
		KeywordWeight:       engCfg.KeywordWeight,
	})
	if err != nil {
		r.close()
		return nil, err
	}

	limiter, stopLimiter := ratelimit.NewSlidingWindow(engCfg.RateBudget, engCfg.RateWindow, log)
	r.closers = append(r.closers, stopLimiter)

	r.presets = buildPresetMatcher(log)

	r.providerCfg = provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, r.providerCfg)
	if err != nil {
		r.close()
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("provider", string(r.providerCfg.Backend)))

	dispatcher, err := dispatch.New(chatModel, dispatch.Config{
		Workers:       engCfg.Workers,
		Timeout:       engCfg.GenerationTimeout,
		OutboundRPS:   engCfg.OutboundRPS,
		OutboundBurst: engCfg.OutboundBurst,
	}, log)
	if err != nil {
		r.close()
		return nil, err
	}

	eng, err := engine.New(limiter, r.presets, retriever, dispatcher, engine.Config{
		MaxContextTokens: engCfg.MaxContextTokens,
	})
	if err != nil {
		r.close()
		return nil, err
	}
	r.engine = eng

	pipeline, err := ingestion.New(cache, vecStore, log)
	if err != nil {
		r.close()
		return nil, err
	}
	r.pipeline = pipeline

	return r, nil
}

// buildPresetMatcher loads the curated Q&A database when present; the
// matcher falls back to its builtin table otherwise.
func buildPresetMatcher(log *slog.Logger) *preset.Matcher {
	path := getEnvOrDefault("PRESET_PATH", defaultPresetPath)
	db, err := preset.LoadDatabase(path)
	if err != nil {
		log.Warn("preset database unavailable, using builtin table",
			slog.String("path", path), slog.Any("error", err))
		return preset.NewMatcher(nil)
	}
	log.Info("preset database loaded", slog.String("path", path))
	return preset.NewMatcher(db)
}

// buildBenefitsTable loads the annex day table when present, falling back to
// the builtin statutory values.
func buildBenefitsTable(log *slog.Logger) *benefits.Table {
	path := os.Getenv("BENEFITS_PATH")
	if path == "" {
		path = getEnvOrDefault("DATASET_DIR", defaultDatasetDir) + "/" + defaultBenefitsTbl
	}
	table, err := benefits.LoadTable(path)
	if err != nil {
		log.Warn("benefits table unavailable, using builtin values",
			slog.String("path", path), slog.Any("error", err))
		return benefits.NewTable()
	}
	return table
}

// buildLocator loads the maps datasets. Returns nil when they are missing
// so the serve command can degrade the maps endpoints.
func buildLocator(log *slog.Logger) *locator.Locator {
	dir := getEnvOrDefault("DATASET_DIR", defaultDatasetDir)
	hospitals := getEnvOrDefault("HOSPITALS_PATH", dir+"/"+defaultHospitals)
	offices := getEnvOrDefault("OFFICES_PATH", dir+"/"+defaultOfficesFile)

	l, err := locator.Load(hospitals, offices)
	if err != nil {
		log.Warn("maps datasets unavailable, maps endpoints disabled", slog.Any("error", err))
		return nil
	}
	return l
}

// getEnvOrDefault returns the env value or fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env value parsed as int, or fallback when unset or
// unparseable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
