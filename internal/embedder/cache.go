package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Gskdl78/Labor-saver/internal/rag"
)

// Cache wraps a rag.Embedder with an LRU memoization layer keyed by the
// SHA-256 of the input text. Identical texts hit the cache; concurrent misses
// for the same text are collapsed into a single upstream call via
// singleflight. Failed upstream calls are never cached, so a transient
// embedding outage does not poison the cache.
//
// Cache is safe for concurrent use.
type Cache struct {
	inner    rag.Embedder
	lru      *lru.Cache[string, []float32]
	group    singleflight.Group
	capacity int

	hits   atomic.Uint64
	misses atomic.Uint64
}

// CacheStats is a point-in-time snapshot of cache effectiveness, surfaced on
// the retrieval status endpoint.
type CacheStats struct {
	// Hits is the number of lookups served from the cache.
	Hits uint64 `json:"hits"`
	// Misses is the number of lookups that required an upstream call.
	Misses uint64 `json:"misses"`
	// Size is the current number of cached entries.
	Size int `json:"size"`
	// Capacity is the maximum number of entries before LRU eviction.
	Capacity int `json:"capacity"`
}

// NewCache wraps inner with an LRU cache of the given capacity.
func NewCache(inner rag.Embedder, capacity int) (*Cache, error) {
	if inner == nil {
		return nil, fmt.Errorf("embedder cache: inner embedder must not be nil")
	}
	if capacity < 1 {
		return nil, fmt.Errorf("embedder cache: capacity must be >= 1, got %d", capacity)
	}
	l, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, fmt.Errorf("embedder cache: %w", err)
	}
	return &Cache{inner: inner, lru: l, capacity: capacity}, nil
}

// Embed returns embeddings for the given texts, serving repeats from the
// cache. Distinct uncached texts each trigger at most one in-flight upstream
// call regardless of how many goroutines ask for them concurrently.
func (c *Cache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		key := contentKey(text)

		if vec, ok := c.lru.Get(key); ok {
			c.hits.Add(1)
			out[i] = vec
			continue
		}
		c.misses.Add(1)

		v, err, _ := c.group.Do(key, func() (interface{}, error) {
			// Re-check under the flight: a concurrent caller may have
			// populated the entry while we waited.
			if vec, ok := c.lru.Get(key); ok {
				return vec, nil
			}
			vecs, err := c.inner.Embed(ctx, []string{text})
			if err != nil {
				return nil, err
			}
			if len(vecs) != 1 {
				return nil, fmt.Errorf("embedder cache: expected 1 embedding, got %d", len(vecs))
			}
			c.lru.Add(key, vecs[0])
			return vecs[0], nil
		})
		if err != nil {
			return nil, fmt.Errorf("embedder cache: upstream embed failed: %w", err)
		}
		out[i] = v.([]float32)
	}
	return out, nil
}

// Stats returns a snapshot of cache hit/miss counters and occupancy.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Size:     c.lru.Len(),
		Capacity: c.capacity,
	}
}

// contentKey derives the cache key from the exact text bytes. Texts are not
// normalized: whitespace or punctuation variants are distinct entries.
func contentKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
