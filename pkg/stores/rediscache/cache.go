package rediscache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"github.com/theapemachine/mnemo/pkg/errors"
	"github.com/theapemachine/mnemo/pkg/memory"
)

const (
	defaultTTL  = 24 * time.Hour
	queryPrefix = "wq:"
)

// Cache is the Redis-backed working cache. Connectivity failures are
// absorbed locally: a failed GET is a miss, a failed SET is a no-op, and a
// failed connect disables the cache entirely. It can only ever cost
// latency, never correctness.
type Cache struct {
	client   *redis.Client
	ttl      time.Duration
	password string
	db       int
	enabled  atomic.Bool
	hits     atomic.Uint64
	misses   atomic.Uint64
	logger   *log.Logger
}

type CacheOption func(*Cache)

// WithTTL overrides the default entry TTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(cache *Cache) { cache.ttl = ttl }
}

// WithCredentials sets password and database index.
func WithCredentials(password string, db int) CacheOption {
	return func(cache *Cache) {
		cache.password = password
		cache.db = db
	}
}

// New builds a cache against the given Redis address. The cache starts
// disabled; Connect enables it.
func New(addr string, options ...CacheOption) *Cache {
	cache := &Cache{
		ttl:    defaultTTL,
		logger: log.With("component", "working-cache"),
	}

	for _, option := range options {
		option(cache)
	}

	cache.client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cache.password,
		DB:       cache.db,
	})

	return cache
}

// Connect probes the server. On failure the cache stays disabled and every
// operation degrades to miss / no-op.
func (cache *Cache) Connect(ctx context.Context) error {
	if err := cache.client.Ping(ctx).Err(); err != nil {
		cache.enabled.Store(false)
		cache.logger.Warn("redis unreachable, cache disabled", "err", err)
		return &errors.CacheError{Op: "connect", Err: err}
	}

	cache.enabled.Store(true)
	return nil
}

// Get returns cached results for (collection, query). A miss is a normal,
// non-error outcome, including when the cache is disabled or Redis fails.
func (cache *Cache) Get(ctx context.Context, collection, query string) ([]memory.SearchResult, bool) {
	if !cache.enabled.Load() {
		cache.misses.Add(1)
		return nil, false
	}

	raw, err := cache.client.Get(ctx, queryKey(collection, query)).Result()

	if err != nil {
		if err != redis.Nil {
			cache.logger.Warn("cache get failed, treating as miss", "err", err)
		}

		cache.misses.Add(1)
		return nil, false
	}

	var results []memory.SearchResult

	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		cache.logger.Warn("cache entry corrupt, treating as miss", "err", err)
		cache.misses.Add(1)
		return nil, false
	}

	cache.hits.Add(1)
	return results, true
}

// Set stores results under (collection, query), overwriting any previous
// entry. Zero ttl uses the cache default.
func (cache *Cache) Set(ctx context.Context, collection, query string, results []memory.SearchResult, ttl time.Duration) {
	if !cache.enabled.Load() {
		return
	}

	if ttl <= 0 {
		ttl = cache.ttl
	}

	raw, err := json.Marshal(results)

	if err != nil {
		cache.logger.Warn("cache set skipped, marshal failed", "err", err)
		return
	}

	if err := cache.client.SetEx(ctx, queryKey(collection, query), raw, ttl).Err(); err != nil {
		cache.logger.Warn("cache set failed", "err", err)
	}
}

// InvalidateCollection removes every cached query for one collection, so a
// write is never followed by a stale read from before it.
func (cache *Cache) InvalidateCollection(ctx context.Context, collection string) {
	if !cache.enabled.Load() {
		return
	}

	keys, err := cache.client.Keys(ctx, queryPrefix+collection+":*").Result()

	if err != nil {
		cache.logger.Warn("cache invalidation scan failed", "collection", collection, "err", err)
		return
	}

	if len(keys) == 0 {
		return
	}

	if err := cache.client.Del(ctx, keys...).Err(); err != nil {
		cache.logger.Warn("cache invalidation delete failed", "collection", collection, "err", err)
	}
}

// Flush clears the entire database. Administrative only.
func (cache *Cache) Flush(ctx context.Context) {
	if !cache.enabled.Load() {
		return
	}

	cache.logger.Warn("flushing working cache")

	if err := cache.client.FlushDB(ctx).Err(); err != nil {
		cache.logger.Warn("cache flush failed", "err", err)
	}
}

// Stats returns process-lifetime counters.
func (cache *Cache) Stats() memory.CacheStats {
	stats := memory.CacheStats{
		Hits:    cache.hits.Load(),
		Misses:  cache.misses.Load(),
		Enabled: cache.enabled.Load(),
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	return stats
}

// Close releases the connection.
func (cache *Cache) Close() error {
	return cache.client.Close()
}

// GetString serves the duplicate detector's hash lookups. Same degradation
// rules as Get.
func (cache *Cache) GetString(ctx context.Context, key string) (string, bool) {
	if !cache.enabled.Load() {
		return "", false
	}

	value, err := cache.client.Get(ctx, key).Result()

	if err != nil {
		if err != redis.Nil {
			cache.logger.Warn("hash lookup failed, treating as miss", "err", err)
		}

		return "", false
	}

	return value, true
}

// SetString stores one hash entry with a TTL.
func (cache *Cache) SetString(ctx context.Context, key, value string, ttl time.Duration) {
	if !cache.enabled.Load() {
		return
	}

	if ttl <= 0 {
		ttl = cache.ttl
	}

	if err := cache.client.SetEx(ctx, key, value, ttl).Err(); err != nil {
		cache.logger.Warn("hash store failed", "err", err)
	}
}

func queryKey(collection, query string) string {
	return queryPrefix + collection + ":" + memory.HashText(query)
}
