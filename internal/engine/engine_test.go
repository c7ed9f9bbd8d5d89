package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Gskdl78/Labor-saver/internal/rag"
	"github.com/Gskdl78/Labor-saver/internal/ratelimit"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeLimiter struct {
	allowed    bool
	retryAfter time.Duration
	calls      int
}

func (f *fakeLimiter) Allow(clientID string) ratelimit.Decision {
	f.calls++
	return ratelimit.Decision{Allowed: f.allowed, RetryAfter: f.retryAfter}
}

type fakePresets struct {
	answer string
	hit    bool
	calls  int
}

func (f *fakePresets) Match(question string) (string, bool) {
	f.calls++
	return f.answer, f.hit
}

type fakeRetriever struct {
	passages []rag.ScoredDocument
	err      error
	calls    int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, question string) ([]rag.ScoredDocument, error) {
	f.calls++
	return f.passages, f.err
}

type fakeGenerator struct {
	answer string
	err    error
	calls  int
	prompt string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.answer, f.err
}

func somePassages() []rag.ScoredDocument {
	return []rag.ScoredDocument{
		{Document: rag.Document{ID: "a", Content: "第1級失能給付1200日", Source: "失能給付標準", Metadata: map[string]string{"category": "失能給付"}, Score: 0.9}, Combined: 0.9},
		{Document: rag.Document{ID: "b", Content: "職業傷病給付為1.5倍", Source: "勞工保險條例", Score: 0.8}, Combined: 0.8},
	}
}

func newTestEngine(t *testing.T, l *fakeLimiter, p *fakePresets, r *fakeRetriever, g *fakeGenerator) *Engine {
	t.Helper()
	e, err := New(l, p, r, g, Config{MaxContextTokens: 6000})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

// ── tests ────────────────────────────────────────────────────────────────────

// TestAnswer_RateLimited checks that an exhausted client gets a
// RateLimitError and no downstream tier runs.
func TestAnswer_RateLimited(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{allowed: false, retryAfter: 42 * time.Second}
	presets := &fakePresets{}
	retriever := &fakeRetriever{}
	generator := &fakeGenerator{}
	e := newTestEngine(t, limiter, presets, retriever, generator)

	resp, err := e.Answer(context.Background(), "client", "問題")
	if resp != nil {
		t.Error("rate-limited request must not produce a response")
	}
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rle.RetryAfter != 42*time.Second {
		t.Errorf("retry-after: got %s, want 42s", rle.RetryAfter)
	}
	if presets.calls != 0 || retriever.calls != 0 || generator.calls != 0 {
		t.Error("no downstream tier may run after a rate rejection")
	}
}

// TestAnswer_PresetBypassesPipeline checks that a preset hit answers without
// touching retrieval or generation.
func TestAnswer_PresetBypassesPipeline(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{allowed: true}
	presets := &fakePresets{answer: "curated answer", hit: true}
	retriever := &fakeRetriever{}
	generator := &fakeGenerator{}
	e := newTestEngine(t, limiter, presets, retriever, generator)

	resp, err := e.Answer(context.Background(), "client", "什麼是勞工保險")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if resp.Tier != TierPreset || !resp.Success {
		t.Errorf("got tier %q success %v, want preset/true", resp.Tier, resp.Success)
	}
	if resp.Answer != "curated answer" {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].ID != "preset" || resp.Sources[0].Metadata["name"] != "預設知識庫" {
		t.Errorf("sources: got %v", resp.Sources)
	}
	if retriever.calls != 0 || generator.calls != 0 {
		t.Error("preset hit must not reach retrieval or generation")
	}
}

// TestAnswer_RAGSuccess checks the full pipeline path with sources and tier.
func TestAnswer_RAGSuccess(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{allowed: true}
	presets := &fakePresets{}
	retriever := &fakeRetriever{passages: somePassages()}
	generator := &fakeGenerator{answer: "  生成的答案  "}
	e := newTestEngine(t, limiter, presets, retriever, generator)

	resp, err := e.Answer(context.Background(), "client", "失能給付如何計算")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if resp.Tier != TierRAG || !resp.Success {
		t.Errorf("got tier %q success %v, want rag/true", resp.Tier, resp.Success)
	}
	if resp.Answer != "生成的答案" {
		t.Errorf("answer not trimmed: %q", resp.Answer)
	}

	// One source per retrieved chunk in rank order, then the model entry.
	want := []struct{ id, name string }{
		{"a", "失能給付標準"},
		{"b", "勞工保險條例"},
		{"model", "AI 語言模型"},
	}
	if len(resp.Sources) != len(want) {
		t.Fatalf("sources: got %v, want %d entries", resp.Sources, len(want))
	}
	for i, w := range want {
		if resp.Sources[i].ID != w.id {
			t.Errorf("source %d id: got %q, want %q", i, resp.Sources[i].ID, w.id)
		}
		if got := resp.Sources[i].Metadata["name"]; got != w.name {
			t.Errorf("source %d name: got %q, want %q", i, got, w.name)
		}
	}
	// Chunk metadata rides along with the source entry.
	if got := resp.Sources[0].Metadata["category"]; got != "失能給付" {
		t.Errorf("source 0 category: got %q", got)
	}

	names := resp.SourceNames()
	wantNames := []string{"失能給付標準", "勞工保險條例", "AI 語言模型"}
	if len(names) != len(wantNames) {
		t.Fatalf("source names: got %v, want %v", names, wantNames)
	}
	for i, w := range wantNames {
		if names[i] != w {
			t.Errorf("source name %d: got %q, want %q", i, names[i], w)
		}
	}

	// The prompt must contain the question and the retrieved content.
	if !strings.Contains(generator.prompt, "失能給付如何計算") {
		t.Error("prompt missing the question")
	}
	if !strings.Contains(generator.prompt, "第1級失能給付1200日") {
		t.Error("prompt missing retrieved passage content")
	}
}

// TestAnswer_EmptyRetrievalDegrades checks that no admissible context skips
// generation entirely and degrades.
func TestAnswer_EmptyRetrievalDegrades(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{allowed: true}
	presets := &fakePresets{}
	retriever := &fakeRetriever{passages: nil}
	generator := &fakeGenerator{answer: "should not run"}
	e := newTestEngine(t, limiter, presets, retriever, generator)

	resp, err := e.Answer(context.Background(), "client", "冷門問題")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if resp.Tier != TierDegraded || resp.Success {
		t.Errorf("got tier %q success %v, want degraded/false", resp.Tier, resp.Success)
	}
	if generator.calls != 0 {
		t.Error("generation must be skipped when no context is admissible")
	}
	if len(resp.Sources) != 1 || resp.Sources[0].ID != "system" || resp.Sources[0].Metadata["name"] != "系統訊息" {
		t.Errorf("sources: got %v", resp.Sources)
	}
}

// TestAnswer_RetrievalErrorDegrades checks that a retrieval failure becomes
// a degraded response, not an error.
func TestAnswer_RetrievalErrorDegrades(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{allowed: true}
	presets := &fakePresets{}
	retriever := &fakeRetriever{err: errors.New("qdrant unreachable")}
	generator := &fakeGenerator{}
	e := newTestEngine(t, limiter, presets, retriever, generator)

	resp, err := e.Answer(context.Background(), "client", "問題")
	if err != nil {
		t.Fatalf("degradation must not surface as an error: %v", err)
	}
	if resp.Tier != TierDegraded || resp.Success {
		t.Errorf("got tier %q success %v, want degraded/false", resp.Tier, resp.Success)
	}
	if generator.calls != 0 {
		t.Error("generation must not run after a retrieval failure")
	}
	if !strings.Contains(resp.Answer, "0800-078-777") {
		t.Error("degraded answer should include the hotline")
	}
}

// TestAnswer_GenerationFailureEchoesPassages checks that a generation
// failure with context in hand returns the retrieved text rather than a
// bare apology.
func TestAnswer_GenerationFailureEchoesPassages(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{allowed: true}
	presets := &fakePresets{}
	retriever := &fakeRetriever{passages: somePassages()}
	generator := &fakeGenerator{err: errors.New("model timeout")}
	e := newTestEngine(t, limiter, presets, retriever, generator)

	resp, err := e.Answer(context.Background(), "client", "問題")
	if err != nil {
		t.Fatalf("degradation must not surface as an error: %v", err)
	}
	if resp.Tier != TierDegraded || resp.Success {
		t.Errorf("got tier %q success %v, want degraded/false", resp.Tier, resp.Success)
	}
	if !strings.Contains(resp.Answer, "第1級失能給付1200日") {
		t.Error("degraded answer should echo the best retrieved passage")
	}
}

// TestNew_RequiresAllDependencies checks constructor validation.
func TestNew_RequiresAllDependencies(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fakePresets{}, &fakeRetriever{}, &fakeGenerator{}, Config{}); err == nil {
		t.Error("expected error for nil limiter")
	}
	if _, err := New(&fakeLimiter{}, &fakePresets{}, nil, &fakeGenerator{}, Config{}); err == nil {
		t.Error("expected error for nil retriever")
	}
}
