// Package rag defines the interfaces for retrieval-augmented generation
// components: vector storage, document retrieval, and embedding.
// Concrete implementations (Qdrant, in-memory) satisfy these interfaces so the
// answer engine never depends on a specific backend.
package rag

import (
	"context"
)

// Document represents a regulation chunk retrieved from or stored in the
// knowledge base.
type Document struct {
	// ID is the unique identifier for this chunk.
	ID string

	// Content is the raw text content of the chunk.
	Content string

	// Source is the originating regulation document or dataset file.
	Source string

	// Metadata holds arbitrary key-value pairs (category, article number, etc.).
	Metadata map[string]string

	// Score is the cosine similarity assigned during retrieval (0.0–1.0).
	// Zero value means the score was not computed.
	Score float32
}

// ScoredDocument is a Document annotated with the combined ranking score
// produced by the hybrid ranker. Combined folds keyword-match boosts into
// the similarity, so it can exceed the raw Score.
type ScoredDocument struct {
	Document

	// Combined is the weighted sum of similarity and keyword-match score.
	Combined float64
}

// VectorStore is the interface for persisting and searching chunk embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of documents with their pre-computed embeddings.
	// The embeddings slice must be parallel to docs — embeddings[i] is the vector for docs[i].
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search performs a semantic similarity search and returns the top-k
	// most relevant documents for the given query embedding.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error)

	// Count returns the number of chunks currently stored.
	Count(ctx context.Context) (uint64, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface used by the answer engine to fetch
// relevant regulation context for a user question. It combines embedding,
// vector search, admissibility filtering and hybrid ranking.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the admissible chunks for the question, ranked by
	// combined score. An empty slice is a valid outcome, not an error.
	Retrieve(ctx context.Context, question string) ([]ScoredDocument, error)
}
