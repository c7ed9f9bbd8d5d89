package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-memory VectorStore using brute-force cosine similarity.
// It backs local development and tests where no Qdrant instance is available.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]Document
	vectors map[string][]float32
}

// NewMemoryStore creates an empty in-memory vector store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string]Document),
		vectors: make(map[string][]float32),
	}
}

// Upsert stores or replaces documents keyed by ID.
func (s *MemoryStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("memory store: %d documents but %d embeddings", len(docs), len(embeddings))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, doc := range docs {
		s.docs[doc.ID] = doc
		s.vectors[doc.ID] = embeddings[i]
	}
	return nil
}

// Search scores every stored vector against the query embedding and returns
// the top-k by cosine similarity.
func (s *MemoryStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Document, 0, len(s.docs))
	for id, vec := range s.vectors {
		doc := s.docs[id]
		doc.Score = cosineSimilarity(queryEmbedding, vec)
		results = append(results, doc)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count returns the number of stored documents.
func (s *MemoryStore) Count(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.docs)), nil
}

// Delete removes documents by ID. Unknown IDs are ignored.
func (s *MemoryStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.docs, id)
		delete(s.vectors, id)
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// cosineSimilarity computes the cosine similarity of two vectors.
// Mismatched lengths or zero vectors yield 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
