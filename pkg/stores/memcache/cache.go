package memcache

// Cache is an in-process working cache with the same contract as the
// Redis-backed one. It exists for cacheless deployments and tests; the
// production swap-in is pkg/stores/rediscache.

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/theapemachine/mnemo/pkg/memory"
)

const defaultTTL = 24 * time.Hour

type entry struct {
	results   []memory.SearchResult
	value     string
	expiresAt time.Time
}

// Cache implements memory.QueryCache and memory.HashCache over a mutex
// guarded map with lazy expiry plus a background sweep.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	hits    uint64
	misses  uint64
	done    chan struct{}
	sweep   sync.Once
}

// New returns a cache with the given default TTL (zero means 24h).
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &Cache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
}

// Connect starts the expiry sweeper. Always succeeds.
func (cache *Cache) Connect(ctx context.Context) error {
	cache.sweep.Do(func() {
		go cache.sweepExpired()
	})

	return nil
}

func (cache *Cache) Get(ctx context.Context, collection, query string) ([]memory.SearchResult, bool) {
	return cache.lookup(queryKey(collection, query))
}

func (cache *Cache) Set(ctx context.Context, collection, query string, results []memory.SearchResult, ttl time.Duration) {
	if ttl <= 0 {
		ttl = cache.ttl
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.entries[queryKey(collection, query)] = &entry{
		results:   results,
		expiresAt: time.Now().Add(ttl),
	}
}

func (cache *Cache) InvalidateCollection(ctx context.Context, collection string) {
	prefix := "wq\x00" + collection + "\x00"

	cache.mu.Lock()
	defer cache.mu.Unlock()

	for key := range cache.entries {
		if strings.HasPrefix(key, prefix) {
			delete(cache.entries, key)
		}
	}
}

func (cache *Cache) Flush(ctx context.Context) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.entries = make(map[string]*entry)
}

func (cache *Cache) Stats() memory.CacheStats {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	stats := memory.CacheStats{
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

// Close stops the sweeper.
func (cache *Cache) Close() error {
	select {
	case <-cache.done:
	default:
		close(cache.done)
	}

	return nil
}

func (cache *Cache) GetString(ctx context.Context, key string) (string, bool) {
	cache.mu.RLock()
	item, ok := cache.entries[key]
	cache.mu.RUnlock()

	if !ok || time.Now().After(item.expiresAt) {
		return "", false
	}

	return item.value, true
}

func (cache *Cache) SetString(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = cache.ttl
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.entries[key] = &entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

func (cache *Cache) lookup(key string) ([]memory.SearchResult, bool) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	item, ok := cache.entries[key]

	if !ok || time.Now().After(item.expiresAt) {
		if ok {
			delete(cache.entries, key)
		}

		cache.misses++
		return nil, false
	}

	cache.hits++
	return item.results, true
}

func (cache *Cache) sweepExpired() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-cache.done:
			return
		case <-ticker.C:
			now := time.Now()

			cache.mu.Lock()

			for key, item := range cache.entries {
				if now.After(item.expiresAt) {
					delete(cache.entries, key)
				}
			}

			cache.mu.Unlock()
		}
	}
}

func queryKey(collection, query string) string {
	return "wq\x00" + collection + "\x00" + memory.HashText(query)
}
