package embedding

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/mnemo/pkg/memory"
)

// Cache memoizes an embedder by content hash: byte-identical text always
// yields the same cached vector within a process lifetime. It is unbounded
// by design and only cleared explicitly, so callers must bound the volume
// of distinct texts they embed.
type Cache struct {
	inner memory.Embedder

	mu      sync.RWMutex
	entries map[string][]float32
	hits    uint64
	misses  uint64

	logger *log.Logger
}

// NewCache wraps an embedder with memoization.
func NewCache(inner memory.Embedder) *Cache {
	return &Cache{
		inner:   inner,
		entries: make(map[string][]float32),
		logger:  log.With("component", "embedding-cache"),
	}
}

// Dimension returns the wrapped embedder's dimensionality.
func (cache *Cache) Dimension() int { return cache.inner.Dimension() }

// Embed returns the cached vector for text, generating and storing it on
// first sight.
func (cache *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := memory.HashText(text)

	cache.mu.RLock()
	vector, ok := cache.entries[key]
	cache.mu.RUnlock()

	if ok {
		cache.count(true)
		return vector, nil
	}

	cache.count(false)

	vector, err := cache.inner.Embed(ctx, text)

	if err != nil {
		return nil, err
	}

	cache.store(key, vector)
	return vector, nil
}

// EmbedBatch resolves as many texts as possible from the cache, sends the
// rest to the wrapped embedder in one call, and returns results in input
// order. Only successfully embedded texts are cached.
func (cache *Cache) EmbedBatch(ctx context.Context, texts []string) ([]memory.BatchResult, error) {
	results := make([]memory.BatchResult, len(texts))
	keys := make([]string, len(texts))

	var uncachedTexts []string
	var uncachedIdx []int

	cache.mu.RLock()

	for i, text := range texts {
		keys[i] = memory.HashText(text)

		if vector, ok := cache.entries[keys[i]]; ok {
			results[i] = memory.BatchResult{Vector: vector}
			continue
		}

		uncachedTexts = append(uncachedTexts, text)
		uncachedIdx = append(uncachedIdx, i)
	}

	cache.mu.RUnlock()

	cache.mu.Lock()
	cache.hits += uint64(len(texts) - len(uncachedTexts))
	cache.misses += uint64(len(uncachedTexts))
	cache.mu.Unlock()

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	fresh, err := cache.inner.EmbedBatch(ctx, uncachedTexts)

	if err != nil {
		return nil, err
	}

	for j, idx := range uncachedIdx {
		results[idx] = fresh[j]

		if fresh[j].Err == nil {
			cache.store(keys[idx], fresh[j].Vector)
		}
	}

	return results, nil
}

// Clear drops every cached vector.
func (cache *Cache) Clear() {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.entries = make(map[string][]float32)
	cache.logger.Info("embedding cache cleared")
}

// CacheStats reports entry count and hit/miss counters.
func (cache *Cache) CacheStats() memory.EmbeddingCacheStats {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	return memory.EmbeddingCacheStats{
		Entries: len(cache.entries),
		Hits:    cache.hits,
		Misses:  cache.misses,
	}
}

func (cache *Cache) store(key string, vector []float32) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	// Embeddings are deterministic for the same text, so last write wins
	// on a race for the same key.
	cache.entries[key] = vector
}

func (cache *Cache) count(hit bool) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if hit {
		cache.hits++
	} else {
		cache.misses++
	}
}
