package memory

import (
	"context"
	"time"
)

// Embedder represents a service capable of turning text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([]BatchResult, error)
	Dimension() int
}

// VectorIndex provides semantic search over named collections.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, collection string, points []Point) (int, error)
	Search(ctx context.Context, collection string, vector []float32, params SearchParams) ([]SearchResult, error)
	CollectionInfo(ctx context.Context, name string) (CollectionInfo, error)
	DeleteCollection(ctx context.Context, name string) error
	Healthy(ctx context.Context) bool
}

// QueryCache absorbs repeated identical queries in front of the index. All
// implementations degrade to miss / no-op on connectivity failure: the
// cache must never be a source of correctness failure, only latency.
type QueryCache interface {
	Connect(ctx context.Context) error
	Get(ctx context.Context, collection, query string) ([]SearchResult, bool)
	Set(ctx context.Context, collection, query string, results []SearchResult, ttl time.Duration)
	InvalidateCollection(ctx context.Context, collection string)
	Flush(ctx context.Context)
	Stats() CacheStats
	Close() error
}

// HashCache is the raw key/value surface the duplicate detector uses for
// its exact-hash layer. The working cache implements it alongside
// QueryCache.
type HashCache interface {
	GetString(ctx context.Context, key string) (string, bool)
	SetString(ctx context.Context, key, value string, ttl time.Duration)
}

// CrossReference is an optional structured lookup consulted by the
// duplicate detector's second layer, e.g. a ledger of already-processed
// records keyed by (source, date, scope).
type CrossReference interface {
	Find(ctx context.Context, source, date, scope string) (id string, found bool, err error)
}

// Observer receives success/failure and duration for every manager
// operation. Cost and latency accounting live with the caller.
type Observer interface {
	Record(op string, success bool, elapsed time.Duration)
}
