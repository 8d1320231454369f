package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockEmbedder produces deterministic bag-of-words vectors so tests get
// plausible similarity behavior without a provider: texts sharing words
// land closer together than unrelated texts.
type MockEmbedder struct {
	dim         int
	mu          sync.Mutex
	singleCalls int
	batchCalls  int
}

// NewMockEmbedder creates a mock embedder with the given dimension.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{dim: dim}
}

func (svc *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	svc.mu.Lock()
	svc.singleCalls++
	svc.mu.Unlock()

	return svc.vectorFor(text), nil
}

func (svc *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]BatchResult, error) {
	svc.mu.Lock()
	svc.batchCalls++
	svc.mu.Unlock()

	results := make([]BatchResult, len(texts))

	for i, text := range texts {
		results[i] = BatchResult{Vector: svc.vectorFor(text)}
	}

	return results, nil
}

func (svc *MockEmbedder) Dimension() int { return svc.dim }

// BatchCalls reports how many EmbedBatch calls were made.
func (svc *MockEmbedder) BatchCalls() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.batchCalls
}

// SingleCalls reports how many Embed calls were made.
func (svc *MockEmbedder) SingleCalls() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.singleCalls
}

func (svc *MockEmbedder) vectorFor(text string) []float32 {
	vec := make([]float32, svc.dim)
	words := strings.Fields(strings.ToLower(text))

	if len(words) == 0 {
		return vec
	}

	for _, word := range words {
		hasher := fnv.New64a()
		hasher.Write([]byte(word))
		state := hasher.Sum64()

		for i := range vec {
			state = state*6364136223846793005 + 1442695040888963407
			vec[i] += float32(state>>12)/float32(1<<51) - 1.0
		}
	}

	var norm float64

	for _, v := range vec {
		norm += float64(v) * float64(v)
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))

		for i := range vec {
			vec[i] *= scale
		}
	}

	return vec
}

// MockIndex is an in-memory VectorIndex with real cosine scoring,
// normalized to [0,1] the way the remote index reports it.
type MockIndex struct {
	mu          sync.RWMutex
	collections map[string]map[string]Point
	UpsertCalls int
	SearchCalls int
}

func NewMockIndex() *MockIndex {
	return &MockIndex{collections: make(map[string]map[string]Point)}
}

func (idx *MockIndex) EnsureCollection(ctx context.Context, name string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.collections[name]; !ok {
		idx.collections[name] = make(map[string]Point)
	}

	return nil
}

func (idx *MockIndex) Upsert(ctx context.Context, collection string, points []Point) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.UpsertCalls++

	if _, ok := idx.collections[collection]; !ok {
		idx.collections[collection] = make(map[string]Point)
	}

	for _, point := range points {
		idx.collections[collection][point.ID] = point
	}

	return len(points), nil
}

func (idx *MockIndex) Search(ctx context.Context, collection string, vector []float32, params SearchParams) ([]SearchResult, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.SearchCalls++

	var results []SearchResult

	for _, point := range idx.collections[collection] {
		if !matchesFilters(point.Payload, params.Filters) {
			continue
		}

		score := (1 + cosine(vector, point.Vector)) / 2

		if params.ScoreThreshold > 0 && score < params.ScoreThreshold {
			continue
		}

		results = append(results, SearchResult{
			ID:      point.ID,
			Score:   score,
			Payload: point.Payload,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if params.TopK > 0 && len(results) > params.TopK {
		results = results[:params.TopK]
	}

	return results, nil
}

func (idx *MockIndex) CollectionInfo(ctx context.Context, name string) (CollectionInfo, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	points, ok := idx.collections[name]

	if !ok {
		return CollectionInfo{}, fmt.Errorf("collection not found: %s", name)
	}

	count := int64(len(points))
	return CollectionInfo{Points: count, Vectors: count, Status: "green"}, nil
}

func (idx *MockIndex) DeleteCollection(ctx context.Context, name string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.collections, name)
	return nil
}

func (idx *MockIndex) Healthy(ctx context.Context) bool { return true }

func matchesFilters(payload, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := payload[key]

		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}

	return true
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
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

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// MockQueryCache is a map-backed QueryCache + HashCache without TTL
// enforcement, for wiring tests that only care about coherency.
type MockQueryCache struct {
	mu      sync.RWMutex
	entries map[string][]SearchResult
	strings map[string]string
	hits    uint64
	misses  uint64
}

func NewMockQueryCache() *MockQueryCache {
	return &MockQueryCache{
		entries: make(map[string][]SearchResult),
		strings: make(map[string]string),
	}
}

func (cache *MockQueryCache) Connect(ctx context.Context) error { return nil }

func (cache *MockQueryCache) Get(ctx context.Context, collection, query string) ([]SearchResult, bool) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	results, ok := cache.entries[collection+"\x00"+query]

	if ok {
		cache.hits++
	} else {
		cache.misses++
	}

	return results, ok
}

func (cache *MockQueryCache) Set(ctx context.Context, collection, query string, results []SearchResult, ttl time.Duration) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.entries[collection+"\x00"+query] = results
}

func (cache *MockQueryCache) InvalidateCollection(ctx context.Context, collection string) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	for key := range cache.entries {
		if strings.HasPrefix(key, collection+"\x00") {
			delete(cache.entries, key)
		}
	}
}

func (cache *MockQueryCache) Flush(ctx context.Context) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.entries = make(map[string][]SearchResult)
	cache.strings = make(map[string]string)
}

func (cache *MockQueryCache) Stats() CacheStats {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	stats := CacheStats{
		Hits:    cache.hits,
		Misses:  cache.misses,
		Entries: len(cache.entries),
		Enabled: true,
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	return stats
}

func (cache *MockQueryCache) Close() error { return nil }

func (cache *MockQueryCache) GetString(ctx context.Context, key string) (string, bool) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	value, ok := cache.strings[key]
	return value, ok
}

func (cache *MockQueryCache) SetString(ctx context.Context, key, value string, ttl time.Duration) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.strings[key] = value
}
