package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/theapemachine/mnemo/pkg/memory"
)

func connectedCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	cache := New(server.Addr())
	t.Cleanup(func() { cache.Close() })

	assert.NoError(t, cache.Connect(context.Background()))
	return cache, server
}

func TestCacheRoundtrip(t *testing.T) {
	ctx := context.Background()
	cache, _ := connectedCache(t)

	results := []memory.SearchResult{
		{ID: "a", Score: 0.9, Payload: map[string]any{"content": "first"}},
		{ID: "b", Score: 0.7, Payload: map[string]any{"content": "second"}},
	}

	_, ok := cache.Get(ctx, "invoices", "acme train ticket")
	assert.False(t, ok)

	cache.Set(ctx, "invoices", "acme train ticket", results, 0)

	cached, ok := cache.Get(ctx, "invoices", "acme train ticket")
	assert.True(t, ok)
	assert.Len(t, cached, 2)
	assert.Equal(t, "a", cached[0].ID)
	assert.Equal(t, 0.9, cached[0].Score)
	assert.Equal(t, "first", cached[0].Payload["content"])
}

func TestCacheKeysAreQueryScoped(t *testing.T) {
	ctx := context.Background()
	cache, _ := connectedCache(t)

	cache.Set(ctx, "invoices", "query one", []memory.SearchResult{{ID: "a"}}, 0)

	_, ok := cache.Get(ctx, "invoices", "query two")
	assert.False(t, ok)

	_, ok = cache.Get(ctx, "captions", "query one")
	assert.False(t, ok, "same query in another collection is a different key")
}

func TestCacheInvalidateCollection(t *testing.T) {
	ctx := context.Background()
	cache, _ := connectedCache(t)

	cache.Set(ctx, "invoices", "query one", []memory.SearchResult{{ID: "a"}}, 0)
	cache.Set(ctx, "invoices", "query two", []memory.SearchResult{{ID: "b"}}, 0)
	cache.Set(ctx, "captions", "query one", []memory.SearchResult{{ID: "c"}}, 0)

	cache.InvalidateCollection(ctx, "invoices")

	_, ok := cache.Get(ctx, "invoices", "query one")
	assert.False(t, ok)

	_, ok = cache.Get(ctx, "invoices", "query two")
	assert.False(t, ok)

	cached, ok := cache.Get(ctx, "captions", "query one")
	assert.True(t, ok, "other collections must survive the invalidation")
	assert.Equal(t, "c", cached[0].ID)
}

func TestCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	cache, server := connectedCache(t)

	cache.Set(ctx, "invoices", "query", []memory.SearchResult{{ID: "a"}}, time.Minute)

	server.FastForward(2 * time.Minute)

	_, ok := cache.Get(ctx, "invoices", "query")
	assert.False(t, ok)
}

func TestCacheDisabledOnConnectFailure(t *testing.T) {
	ctx := context.Background()

	cache := New("127.0.0.1:1")
	defer cache.Close()

	assert.Error(t, cache.Connect(ctx))

	// All operations degrade to miss / no-op.
	cache.Set(ctx, "invoices", "query", []memory.SearchResult{{ID: "a"}}, 0)

	_, ok := cache.Get(ctx, "invoices", "query")
	assert.False(t, ok)

	cache.SetString(ctx, "dup:invoices:abc", "id", time.Minute)

	_, ok = cache.GetString(ctx, "dup:invoices:abc")
	assert.False(t, ok)

	assert.False(t, cache.Stats().Enabled)
}

func TestCacheCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	cache, server := connectedCache(t)

	cache.Set(ctx, "invoices", "query", []memory.SearchResult{{ID: "a"}}, 0)

	key := "wq:invoices:" + memory.HashText("query")
	server.Set(key, "{not json")

	_, ok := cache.Get(ctx, "invoices", "query")
	assert.False(t, ok)
}

func TestCacheHashEntries(t *testing.T) {
	ctx := context.Background()
	cache, server := connectedCache(t)

	_, ok := cache.GetString(ctx, "dup:invoices:abc123")
	assert.False(t, ok)

	cache.SetString(ctx, "dup:invoices:abc123", "obs-1", time.Hour)

	value, ok := cache.GetString(ctx, "dup:invoices:abc123")
	assert.True(t, ok)
	assert.Equal(t, "obs-1", value)

	server.FastForward(2 * time.Hour)

	_, ok = cache.GetString(ctx, "dup:invoices:abc123")
	assert.False(t, ok)
}

func TestCacheStats(t *testing.T) {
	ctx := context.Background()
	cache, _ := connectedCache(t)

	cache.Set(ctx, "invoices", "query", []memory.SearchResult{{ID: "a"}}, 0)

	cache.Get(ctx, "invoices", "query")
	cache.Get(ctx, "invoices", "other")

	stats := cache.Stats()
	assert.True(t, stats.Enabled)
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.Equal(t, 50.0, stats.HitRate)
}

func TestCacheFlush(t *testing.T) {
	ctx := context.Background()
	cache, _ := connectedCache(t)

	cache.Set(ctx, "invoices", "query", []memory.SearchResult{{ID: "a"}}, 0)
	cache.Flush(ctx)

	_, ok := cache.Get(ctx, "invoices", "query")
	assert.False(t, ok)
}
