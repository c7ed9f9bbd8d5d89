// Package engine orchestrates the tiered answer pipeline: rate check, preset
// lookup, retrieval, and generation. Each tier is cheaper than the next, and
// every failure past the rate check degrades to a usable answer instead of
// an error — the only error callers ever see is the rate limit rejection.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Gskdl78/Labor-saver/internal/budget"
	"github.com/Gskdl78/Labor-saver/internal/logging"
	"github.com/Gskdl78/Labor-saver/internal/rag"
	"github.com/Gskdl78/Labor-saver/internal/ratelimit"
)

// Tier labels the pipeline stage that produced an answer.
type Tier string

const (
	// TierPreset marks answers served from the curated Q&A table.
	TierPreset Tier = "preset"
	// TierRAG marks answers generated from retrieved regulation context.
	TierRAG Tier = "rag"
	// TierDegraded marks fallback answers produced when retrieval or
	// generation was unavailable.
	TierDegraded Tier = "degraded"
)

// Pipeline stages, logged as the request advances. Every request ends at
// stageResponded regardless of which tier answered.
const (
	stageReceived           = "received"
	stageRateChecked        = "rate_checked"
	stagePresetAttempted    = "preset_attempted"
	stageRetrievalAttempted = "retrieval_attempted"
	stageGenerationDone     = "generation_attempted"
	stageResponded          = "responded"
)

// Canned degraded answers, kept verbatim from the operator-approved copy.
const (
	answerNoKnowledge   = "此問題的相關資料可能不在我們的知識庫中，建議您直接聯繫勞保局或相關機構獲得更準確的資訊。勞保局專線：0800-078-777"
	answerRetrievalDown = "知識庫查詢暫時無法使用，請稍後再試。您也可以直接撥打勞保局專線：0800-078-777"
	answerModelDown     = "AI 服務暫時無法使用，請稍後再試或直接聯繫勞保局：0800-078-777"

	sourcePresetTable = "預設知識庫"
	sourceSystem      = "系統訊息"
	sourceModel       = "AI 語言模型"
	sourceUnknown     = "未知來源"
)

// Synthetic source IDs for contributions that are not retrieved chunks.
const (
	sourceIDPreset = "preset"
	sourceIDSystem = "system"
	sourceIDModel  = "model"
)

// promptReserveTokens is the headroom kept for the prompt scaffolding and the
// model's own answer when trimming retrieved context to the token budget.
const promptReserveTokens = 600

// Source identifies one origin that contributed to an answer. Retrieved
// chunks carry their chunk ID and ingestion metadata; synthetic entries
// (the preset table, the model, system notices) carry a fixed ID. The
// display name always lives under the "name" metadata key.
type Source struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

// Response is the engine's answer envelope.
type Response struct {
	// Answer is the final answer text.
	Answer string `json:"response"`

	// Sources lists the origins that contributed to the answer.
	Sources []Source `json:"sources"`

	// Tier identifies which pipeline stage produced the answer.
	Tier Tier `json:"tier"`

	// Success is false for degraded answers.
	Success bool `json:"success"`
}

// SourceNames returns the unique display names of the sources, in order of
// first appearance. Used where only the human-readable labels matter, such
// as the answer log and CLI output.
func (r *Response) SourceNames() []string {
	seen := make(map[string]bool, len(r.Sources))
	var out []string
	for _, s := range r.Sources {
		name := s.Metadata["name"]
		if name == "" {
			name = sourceUnknown
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// RateLimitError is returned when a client exhausts its request budget.
// It carries the wait hint surfaced as the Retry-After header.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("engine: rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

// Limiter is the rate-limiting dependency of the engine.
type Limiter interface {
	Allow(clientID string) ratelimit.Decision
}

// PresetMatcher is the curated-table dependency of the engine.
type PresetMatcher interface {
	Match(question string) (string, bool)
}

// Generator is the generation dependency of the engine.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds the engine tunables not owned by a dependency.
type Config struct {
	// MaxContextTokens is the token budget for retrieved context.
	MaxContextTokens int
}

// Engine wires the pipeline tiers together. It is stateless per request and
// safe for concurrent use.
type Engine struct {
	limiter   Limiter
	presets   PresetMatcher
	retriever rag.Retriever
	generator Generator
	cfg       Config
}

// New constructs an Engine. All dependencies are required.
func New(limiter Limiter, presets PresetMatcher, retriever rag.Retriever, generator Generator, cfg Config) (*Engine, error) {
	if limiter == nil || presets == nil || retriever == nil || generator == nil {
		return nil, fmt.Errorf("engine: all dependencies are required")
	}
	if cfg.MaxContextTokens < 1 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	return &Engine{
		limiter:   limiter,
		presets:   presets,
		retriever: retriever,
		generator: generator,
		cfg:       cfg,
	}, nil
}

// Answer runs a question through the tiered pipeline on behalf of clientID.
// A *RateLimitError is the only error return; everything downstream degrades
// into a Response so the caller always has something to show the user.
func (e *Engine) Answer(ctx context.Context, clientID, question string) (*Response, error) {
	log := logging.FromContext(ctx).With(slog.String("client", clientID))
	log.Debug("question received", slog.String("stage", stageReceived))

	decision := e.limiter.Allow(clientID)
	if !decision.Allowed {
		return nil, &RateLimitError{RetryAfter: decision.RetryAfter}
	}
	log.Debug("rate check passed",
		slog.String("stage", stageRateChecked),
		slog.Int("remaining", decision.Remaining),
	)

	if answer, ok := e.presets.Match(question); ok {
		log.Info("answered from preset table", slog.String("stage", stageResponded))
		return &Response{
			Answer:  answer,
			Sources: []Source{syntheticSource(sourceIDPreset, sourcePresetTable)},
			Tier:    TierPreset,
			Success: true,
		}, nil
	}
	log.Debug("no preset match", slog.String("stage", stagePresetAttempted))

	passages, err := e.retriever.Retrieve(ctx, question)
	if err != nil {
		log.Error("retrieval failed, degrading",
			slog.String("stage", stageRetrievalAttempted),
			slog.Any("error", err),
		)
		return degraded(answerRetrievalDown), nil
	}
	log.Debug("retrieval completed",
		slog.String("stage", stageRetrievalAttempted),
		slog.Int("passages", len(passages)),
	)

	reserve := promptReserveTokens + budget.Estimate(question)
	passages = budget.TrimPassages(passages, reserve, e.cfg.MaxContextTokens)

	if len(passages) == 0 {
		log.Info("no admissible context, degrading", slog.String("stage", stageResponded))
		return degraded(answerNoKnowledge), nil
	}

	answer, err := e.generator.Generate(ctx, BuildPrompt(question, passages))
	if err != nil {
		log.Error("generation failed, echoing best passage",
			slog.String("stage", stageGenerationDone),
			slog.Any("error", err),
		)
		return passageEcho(passages), nil
	}

	log.Info("answered from retrieval pipeline",
		slog.String("stage", stageResponded),
		slog.Int("passages", len(passages)),
	)
	return &Response{
		Answer:  strings.TrimSpace(answer),
		Sources: append(passageSources(passages), syntheticSource(sourceIDModel, sourceModel)),
		Tier:    TierRAG,
		Success: true,
	}, nil
}

// degraded builds a canned-answer degraded response.
func degraded(answer string) *Response {
	return &Response{
		Answer:  answer,
		Sources: []Source{syntheticSource(sourceIDSystem, sourceSystem)},
		Tier:    TierDegraded,
		Success: false,
	}
}

// passageEcho degrades a generation failure by returning the two
// highest-ranked retrieved passages directly.
func passageEcho(passages []rag.ScoredDocument) *Response {
	var b strings.Builder
	b.WriteString(answerModelDown)
	b.WriteString("\n\n以下為知識庫中最相關的原始資料：\n")
	for i, p := range passages {
		if i >= 2 {
			break
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(p.Content))
		b.WriteString("\n")
	}
	return &Response{
		Answer:  b.String(),
		Sources: append(passageSources(passages), syntheticSource(sourceIDSystem, sourceSystem)),
		Tier:    TierDegraded,
		Success: false,
	}
}

// passageSources builds one Source per passage in rank order, keyed by chunk
// ID. Each entry copies the chunk's ingestion metadata and records its
// display label under "name".
func passageSources(passages []rag.ScoredDocument) []Source {
	seen := make(map[string]bool, len(passages))
	var out []Source
	for _, p := range passages {
		if p.ID != "" && seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		name := p.Source
		if name == "" {
			name = sourceUnknown
		}
		md := make(map[string]string, len(p.Metadata)+1)
		for k, v := range p.Metadata {
			md[k] = v
		}
		md["name"] = name
		out = append(out, Source{ID: p.ID, Metadata: md})
	}
	return out
}

// syntheticSource builds a Source for a contribution that is not a retrieved
// chunk.
func syntheticSource(id, name string) Source {
	return Source{ID: id, Metadata: map[string]string{"name": name}}
}
