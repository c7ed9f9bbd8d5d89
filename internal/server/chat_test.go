package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Gskdl78/Labor-saver/internal/engine"
	"github.com/Gskdl78/Labor-saver/internal/store"
)

// fakeAnswerer implements the answerer interface for tests.
type fakeAnswerer struct {
	resp *engine.Response
	err  error

	mu        sync.Mutex
	questions []string
	clients   []string
}

func (f *fakeAnswerer) Answer(_ context.Context, clientID, question string) (*engine.Response, error) {
	f.mu.Lock()
	f.questions = append(f.questions, question)
	f.clients = append(f.clients, clientID)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

// fakePresets implements questionLister.
type fakePresets struct {
	questions []string
}

func (f *fakePresets) Questions() []string { return f.questions }

// recordingLog implements store.AnswerLog and records appended rows.
type recordingLog struct {
	mu      sync.Mutex
	records []store.Record
}

func (l *recordingLog) Append(_ context.Context, rec store.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

func (l *recordingLog) Recent(context.Context, int) ([]store.Record, error) { return nil, nil }
func (l *recordingLog) TierCounts(context.Context) (map[string]int64, error) {
	return map[string]int64{"rag": 1}, nil
}
func (l *recordingLog) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer builds a Server wired with the given deps and a private
// metrics registry, returning the full handler chain for httptest use.
func newTestServer(t *testing.T, deps *Deps, cfg *Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	s, err := New(deps, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.7:54321"
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	return w
}

// TestHandleChat_Success verifies the engine response envelope passes
// through unchanged and the answer log records the exchange.
func TestHandleChat_Success(t *testing.T) {
	t.Parallel()

	eng := &fakeAnswerer{resp: &engine.Response{
		Answer: "第1級給付1200日",
		Sources: []engine.Source{
			{ID: "chunk-17", Metadata: map[string]string{"name": "各失能等級之給付標準", "category": "失能給付"}},
			{ID: "model", Metadata: map[string]string{"name": "AI 語言模型"}},
		},
		Tier:    engine.TierRAG,
		Success: true,
	}}
	log := &recordingLog{}
	s := newTestServer(t, &Deps{Engine: eng, AnswerLog: log}, nil)

	w := doJSON(t, s, http.MethodPost, "/api/chat",
		`{"message":"失能等級第1級給付多少天？","session_id":"abc"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp engine.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "第1級給付1200日" || resp.Tier != engine.TierRAG || !resp.Success {
		t.Errorf("unexpected envelope: %+v", resp)
	}
	if len(resp.Sources) != 2 || resp.Sources[0].ID != "chunk-17" {
		t.Fatalf("sources = %+v", resp.Sources)
	}
	if resp.Sources[0].Metadata["category"] != "失能給付" || resp.Sources[1].Metadata["name"] != "AI 語言模型" {
		t.Errorf("source metadata did not survive the round trip: %+v", resp.Sources)
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.records) != 1 {
		t.Fatalf("answer log has %d records, want 1", len(log.records))
	}
	rec := log.records[0]
	if rec.SessionID != "abc" || rec.Tier != "rag" || !rec.Success {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Sources) != 2 || rec.Sources[0] != "各失能等級之給付標準" || rec.Sources[1] != "AI 語言模型" {
		t.Errorf("logged sources = %v, want the display names", rec.Sources)
	}
	if rec.ClientID != "198.51.100.7" {
		t.Errorf("client id = %q, want the remote IP without port", rec.ClientID)
	}
}

// TestHandleChat_RateLimited verifies the 429 mapping with a Retry-After
// header derived from the engine's wait hint.
func TestHandleChat_RateLimited(t *testing.T) {
	t.Parallel()

	eng := &fakeAnswerer{err: &engine.RateLimitError{RetryAfter: 42 * time.Second}}
	s := newTestServer(t, &Deps{Engine: eng}, nil)

	w := doJSON(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "42" {
		t.Errorf("Retry-After = %q, want 42", got)
	}
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RetryAfter != 42 || resp.Success {
		t.Errorf("body = %+v", resp)
	}
}

// TestHandleChat_Validation verifies the request body checks.
func TestHandleChat_Validation(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &Deps{Engine: &fakeAnswerer{resp: &engine.Response{}}}, nil)

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `not-json`},
		{"missing message", `{"session_id":"x"}`},
		{"blank message", `{"message":"   "}`},
		{"message too long", `{"message":"` + strings.Repeat("問", maxMessageRunes+1) + `"}`},
		{"session too long", `{"message":"hi","session_id":"` + strings.Repeat("s", maxSessionIDRunes+1) + `"}`},
	}
	for _, tc := range cases {
		if w := doJSON(t, s, http.MethodPost, "/api/chat", tc.body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, w.Code)
		}
	}
}

// TestHandleChat_DefaultSessionID verifies an omitted session_id is recorded
// as "default".
func TestHandleChat_DefaultSessionID(t *testing.T) {
	t.Parallel()

	log := &recordingLog{}
	eng := &fakeAnswerer{resp: &engine.Response{Tier: engine.TierPreset, Success: true}}
	s := newTestServer(t, &Deps{Engine: eng, AnswerLog: log}, nil)

	if w := doJSON(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.records) != 1 || log.records[0].SessionID != "default" {
		t.Errorf("records = %+v", log.records)
	}
}

// TestHandlePresetQuestions verifies the curated question listing.
func TestHandlePresetQuestions(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &Deps{
		Engine:  &fakeAnswerer{resp: &engine.Response{}},
		Presets: &fakePresets{questions: []string{"勞保給付有哪些", "如何申請失能給付"}},
	}, nil)

	w := doJSON(t, s, http.MethodGet, "/api/chat/preset-questions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp presetQuestionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || len(resp.Questions) != 2 {
		t.Errorf("resp = %+v", resp)
	}
}

// countingStore implements pointCounter.
type countingStore struct {
	count uint64
	err   error
}

func (c *countingStore) Count(context.Context) (uint64, error) { return c.count, c.err }

// TestHandleRAGStatus verifies the healthy and degraded status bodies.
func TestHandleRAGStatus(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &Deps{
		Engine:      &fakeAnswerer{resp: &engine.Response{}},
		VectorStore: &countingStore{count: 321},
		AnswerLog:   &recordingLog{},
	}, &Config{EmbeddingModel: "bge-m3", Collection: "labor_insurance_knowledge"})

	w := doJSON(t, s, http.MethodGet, "/api/rag/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ragStatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || resp.VectorDBCount != 321 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Tiers["rag"] != 1 {
		t.Errorf("tiers = %v", resp.Tiers)
	}

	// No vector store wired: status degrades but the endpoint still answers.
	s2 := newTestServer(t, &Deps{Engine: &fakeAnswerer{resp: &engine.Response{}}}, nil)
	w = doJSON(t, s2, http.MethodGet, "/api/rag/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "error" {
		t.Errorf("status = %q, want error", resp.Status)
	}
}
