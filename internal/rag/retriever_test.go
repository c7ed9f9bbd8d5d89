package rag

import (
	"context"
	"errors"
	"testing"
)

// fakeEmbedder returns a fixed vector for every text, or a fixed error.
type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

// fakeStore returns a canned result set regardless of the query embedding.
type fakeStore struct {
	docs []Document
	err  error
}

func (f *fakeStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	return nil
}

func (f *fakeStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

func (f *fakeStore) Count(ctx context.Context) (uint64, error) { return uint64(len(f.docs)), nil }
func (f *fakeStore) Delete(ctx context.Context, ids []string) error {
	return nil
}
func (f *fakeStore) Close() error { return nil }

func newTestRetriever(t *testing.T, store VectorStore, cfg RetrieverConfig) *HybridRetriever {
	t.Helper()
	r, err := NewHybridRetriever(&fakeEmbedder{vector: []float32{1, 0}}, store, cfg)
	if err != nil {
		t.Fatalf("NewHybridRetriever failed: %v", err)
	}
	return r
}

// TestRetrieve_ThresholdFilter checks that chunks below the similarity
// threshold are dropped and the survivors keep similarity order.
func TestRetrieve_ThresholdFilter(t *testing.T) {
	t.Parallel()

	store := &fakeStore{docs: []Document{
		{ID: "a", Content: "勞保老年給付", Score: 0.9},
		{ID: "b", Content: "就業保險", Score: 0.4},
		{ID: "c", Content: "職災醫療給付", Score: 0.7},
	}}
	r := newTestRetriever(t, store, RetrieverConfig{
		TopK:                5,
		SimilarityThreshold: 0.6,
		SimWeight:           1.0,
		KeywordWeight:       0.05,
	})

	got, err := r.Retrieve(context.Background(), "老年給付怎麼請領")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	wantIDs := []string{"a", "c"}
	if len(got) != len(wantIDs) {
		t.Fatalf("got %d chunks, want %d", len(got), len(wantIDs))
	}
	for i, want := range wantIDs {
		if got[i].ID != want {
			t.Errorf("rank %d: got %q, want %q", i, got[i].ID, want)
		}
	}
}

// TestRetrieve_EmptyResultIsValid checks that no admissible chunks yields an
// empty slice and a nil error.
func TestRetrieve_EmptyResultIsValid(t *testing.T) {
	t.Parallel()

	store := &fakeStore{docs: []Document{
		{ID: "a", Content: "irrelevant", Score: 0.2},
	}}
	r := newTestRetriever(t, store, RetrieverConfig{
		TopK:                5,
		SimilarityThreshold: 0.6,
		SimWeight:           1.0,
	})

	got, err := r.Retrieve(context.Background(), "失業給付")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d chunks", len(got))
	}
}

// TestRetrieve_KeyPhraseBoost checks that an exact key-phrase match can
// outrank a chunk with higher raw similarity.
func TestRetrieve_KeyPhraseBoost(t *testing.T) {
	t.Parallel()

	store := &fakeStore{docs: []Document{
		{ID: "generic", Content: "失能給付的一般說明", Score: 0.85},
		{ID: "grade", Content: "第七級：終身僅能從事輕便工作者", Score: 0.80},
	}}
	r := newTestRetriever(t, store, RetrieverConfig{
		TopK:                5,
		SimilarityThreshold: 0.6,
		SimWeight:           1.0,
		KeywordWeight:       0.05,
	})

	got, err := r.Retrieve(context.Background(), "終身僅能從事輕便工作可以領多少失能給付")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	// 0.80 + 0.05*10 = 1.30 beats 0.85.
	if got[0].ID != "grade" {
		t.Errorf("expected key-phrase match first, got %q", got[0].ID)
	}
	if got[0].Combined <= got[1].Combined {
		t.Errorf("combined scores not descending: %g then %g", got[0].Combined, got[1].Combined)
	}
}

// TestRetrieve_DeterministicTieBreak checks that equal combined and
// similarity scores fall back to chunk ID order.
func TestRetrieve_DeterministicTieBreak(t *testing.T) {
	t.Parallel()

	store := &fakeStore{docs: []Document{
		{ID: "chunk-b", Content: "text", Score: 0.8},
		{ID: "chunk-a", Content: "text", Score: 0.8},
	}}
	r := newTestRetriever(t, store, RetrieverConfig{
		TopK:                5,
		SimilarityThreshold: 0.6,
		SimWeight:           1.0,
	})

	got, err := r.Retrieve(context.Background(), "question")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "chunk-a" || got[1].ID != "chunk-b" {
		t.Errorf("tie not broken by ID ascending: %+v", got)
	}
}

// TestRetrieve_EmbedderError checks that an embedding failure propagates as
// an error instead of an empty result.
func TestRetrieve_EmbedderError(t *testing.T) {
	t.Parallel()

	embErr := errors.New("embedding service down")
	r, err := NewHybridRetriever(&fakeEmbedder{err: embErr}, &fakeStore{}, RetrieverConfig{TopK: 5})
	if err != nil {
		t.Fatalf("NewHybridRetriever failed: %v", err)
	}

	if _, err := r.Retrieve(context.Background(), "question"); !errors.Is(err, embErr) {
		t.Errorf("expected wrapped embedder error, got %v", err)
	}
}

// TestRetrieve_SearchError checks that a vector store failure propagates.
func TestRetrieve_SearchError(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("qdrant unreachable")
	r := newTestRetriever(t, &fakeStore{err: storeErr}, RetrieverConfig{TopK: 5})

	if _, err := r.Retrieve(context.Background(), "question"); !errors.Is(err, storeErr) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

// TestNewHybridRetriever_NilArgs checks constructor validation.
func TestNewHybridRetriever_NilArgs(t *testing.T) {
	t.Parallel()

	if _, err := NewHybridRetriever(nil, &fakeStore{}, RetrieverConfig{}); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewHybridRetriever(&fakeEmbedder{}, nil, RetrieverConfig{}); err == nil {
		t.Error("expected error for nil store")
	}
}
