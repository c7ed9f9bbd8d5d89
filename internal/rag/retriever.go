package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// phraseMatchBoost is the raw score added per key phrase that appears in both
// the question and a chunk. It is scaled by the configured keyword weight.
const phraseMatchBoost = 10

// defaultKeyPhrases are domain phrases whose exact presence strongly signals
// which disability-grade rows a chunk covers. Embedding similarity alone
// ranks these near-identical rows poorly, so exact matches get a boost.
var defaultKeyPhrases = []string{
	"終身僅能從事輕便工作",
	"終身無工作能力",
	"僅能從事輕便工作",
}

// RetrieverConfig holds the tunables for the hybrid retriever.
type RetrieverConfig struct {
	// TopK is the number of candidates requested from the vector store.
	TopK int

	// SimilarityThreshold is the minimum cosine similarity for a chunk to
	// be admissible. Chunks below it are dropped before ranking.
	SimilarityThreshold float64

	// SimWeight weights the similarity component of the combined score.
	SimWeight float64

	// KeywordWeight weights the key-phrase match component.
	KeywordWeight float64

	// KeyPhrases overrides the default key-phrase list when non-nil.
	KeyPhrases []string
}

// HybridRetriever implements Retriever by combining embedding similarity with
// exact key-phrase matching. It embeds the question, searches the vector
// store, drops inadmissible chunks, and re-ranks the rest by combined score.
type HybridRetriever struct {
	embedder   Embedder
	store      VectorStore
	cfg        RetrieverConfig
	keyPhrases []string
}

// NewHybridRetriever constructs a HybridRetriever from the given Embedder and
// VectorStore.
func NewHybridRetriever(embedder Embedder, store VectorStore, cfg RetrieverConfig) (*HybridRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	phrases := cfg.KeyPhrases
	if phrases == nil {
		phrases = defaultKeyPhrases
	}
	return &HybridRetriever{
		embedder:   embedder,
		store:      store,
		cfg:        cfg,
		keyPhrases: phrases,
	}, nil
}

// Retrieve returns the admissible chunks for the question, ranked by combined
// score descending. Ties break on similarity descending, then chunk ID
// ascending, so rankings are deterministic. An empty result is valid and
// signals the caller to degrade rather than fail.
func (r *HybridRetriever) Retrieve(ctx context.Context, question string) ([]ScoredDocument, error) {
	embeddings, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding question failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for question")
	}

	docs, err := r.store.Search(ctx, embeddings[0], r.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	ranked := make([]ScoredDocument, 0, len(docs))
	for _, doc := range docs {
		sim := float64(doc.Score)
		if sim < r.cfg.SimilarityThreshold {
			continue
		}
		ranked = append(ranked, ScoredDocument{
			Document: doc,
			Combined: r.cfg.SimWeight*sim + r.cfg.KeywordWeight*r.phraseScore(question, doc.Content),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Combined != ranked[j].Combined {
			return ranked[i].Combined > ranked[j].Combined
		}
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})

	return ranked, nil
}

// phraseScore returns the raw key-phrase match score for a chunk: every key
// phrase present in both the question and the chunk content adds a fixed
// boost. Matching is case-insensitive.
func (r *HybridRetriever) phraseScore(question, content string) float64 {
	q := strings.ToLower(question)
	c := strings.ToLower(content)

	score := 0.0
	for _, phrase := range r.keyPhrases {
		p := strings.ToLower(phrase)
		if strings.Contains(q, p) && strings.Contains(c, p) {
			score += phraseMatchBoost
		}
	}
	return score
}
