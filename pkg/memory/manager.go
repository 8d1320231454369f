package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/mnemo/pkg/errors"
)

const (
	defaultTopK       = 5
	defaultScoreFloor = 0.5
	defaultCacheTTL   = 24 * time.Hour
	defaultCallBudget = 15 * time.Second
)

// Manager composes the embedder, vector index and working cache into the
// save/search surface the rest of the system drives. It owns collection
// bootstrap, health checks and the fallback policy.
type Manager struct {
	registry *Registry
	embedder Embedder
	index    VectorIndex
	cache    QueryCache
	observer Observer

	fallback   FallbackPolicy
	scoreFloor float64
	cacheTTL   time.Duration
	callBudget time.Duration
	ownsDeps   bool
	degraded   bool

	logger *log.Logger
}

type ManagerOption func(*Manager)

// WithFallback selects the degrade-vs-raise behavior for downstream
// failures. The default raises.
func WithFallback(policy FallbackPolicy) ManagerOption {
	return func(mgr *Manager) { mgr.fallback = policy }
}

// WithScoreFloor sets the similarity floor applied to every search.
// Non-positive keeps the default.
func WithScoreFloor(floor float64) ManagerOption {
	return func(mgr *Manager) {
		if floor > 0 {
			mgr.scoreFloor = floor
		}
	}
}

// WithCacheTTL overrides the working cache TTL for search results.
// Non-positive keeps the default.
func WithCacheTTL(ttl time.Duration) ManagerOption {
	return func(mgr *Manager) {
		if ttl > 0 {
			mgr.cacheTTL = ttl
		}
	}
}

// WithCallBudget bounds every external call the manager makes.
func WithCallBudget(budget time.Duration) ManagerOption {
	return func(mgr *Manager) { mgr.callBudget = budget }
}

// WithObserver injects the metrics sink manager operations report to.
func WithObserver(observer Observer) ManagerOption {
	return func(mgr *Manager) { mgr.observer = observer }
}

// WithOwnedDependencies marks the composed clients as owned by the
// manager, so Close releases them. Externally-owned instances are left
// untouched.
func WithOwnedDependencies() ManagerOption {
	return func(mgr *Manager) { mgr.ownsDeps = true }
}

// WithManagerLogger overrides the component logger.
func WithManagerLogger(logger *log.Logger) ManagerOption {
	return func(mgr *Manager) { mgr.logger = logger }
}

// NewManager wires a manager from its collaborators. The cache may be nil,
// in which case every search goes to the index.
func NewManager(registry *Registry, embedder Embedder, index VectorIndex, cache QueryCache, options ...ManagerOption) *Manager {
	mgr := &Manager{
		registry:   registry,
		embedder:   embedder,
		index:      index,
		cache:      cache,
		scoreFloor: defaultScoreFloor,
		cacheTTL:   defaultCacheTTL,
		callBudget: defaultCallBudget,
		logger:     log.With("component", "memory"),
	}

	for _, option := range options {
		option(mgr)
	}

	return mgr
}

// Initialize connects the working cache, health-checks the index and
// ensures every registered collection exists. With fallback disabled an
// unhealthy index fails fast with a ConnectionError; otherwise the manager
// continues in degraded mode and errors surface per call.
func (mgr *Manager) Initialize(ctx context.Context) error {
	if mgr.cache != nil {
		if err := mgr.cache.Connect(ctx); err != nil {
			mgr.logger.Warn("working cache unavailable, continuing without it", "err", err)
		}
	}

	for _, name := range mgr.registry.Names() {
		schema, _ := mgr.registry.Get(name)

		if dim := mgr.embedder.Dimension(); dim != schema.VectorDim {
			return &errors.ConfigurationError{
				Field: name + ".dimension",
				Msg:   fmt.Sprintf("collection wants %d, embedder produces %d", schema.VectorDim, dim),
			}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, mgr.callBudget)
	defer cancel()

	if !mgr.index.Healthy(callCtx) {
		if mgr.fallback == FallbackDisabled {
			return &errors.ConnectionError{
				Service: "vector index",
				Err:     fmt.Errorf("health check failed"),
			}
		}

		mgr.degraded = true
		mgr.logger.Warn("vector index unhealthy, running degraded")
		return nil
	}

	for _, name := range mgr.registry.Names() {
		if err := mgr.index.EnsureCollection(ctx, name); err != nil {
			if mgr.fallback == FallbackDisabled {
				return err
			}

			mgr.logger.Warn("could not ensure collection", "collection", name, "err", err)
		}
	}

	return nil
}

// Save embeds content, upserts a single point and invalidates the working
// cache for the collection. When id is empty a deterministic id is derived
// from content plus metadata, which makes identical saves idempotent at
// the storage layer. Invalidation happens strictly after a successful
// upsert, so concurrent reads see either pre-save or post-save state.
func (mgr *Manager) Save(ctx context.Context, collection, content string, metadata map[string]any, id string) (string, error) {
	start := time.Now()

	if err := mgr.registry.Validate(collection, metadata); err != nil {
		mgr.observe("save", start, false)
		return "", err
	}

	vector, err := mgr.embed(ctx, content)

	if err != nil {
		mgr.observe("save", start, false)

		if mgr.fallback == FallbackDegrade {
			mgr.logger.Error("save degraded: embedding failed", "collection", collection, "err", err)
			return FailedID, nil
		}

		return "", err
	}

	payload := make(map[string]any, len(metadata)+2)

	for key, value := range metadata {
		payload[key] = value
	}

	payload["content"] = content
	payload["created_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	if id == "" {
		id = DeterministicID(content, metadata)
	}

	callCtx, cancel := context.WithTimeout(ctx, mgr.callBudget)
	defer cancel()

	if _, err = mgr.index.Upsert(callCtx, collection, []Point{{ID: id, Vector: vector, Payload: payload}}); err != nil {
		mgr.observe("save", start, false)

		if mgr.fallback == FallbackDegrade {
			mgr.logger.Error("save degraded: upsert failed", "collection", collection, "err", err)
			return FailedID, nil
		}

		return "", err
	}

	if mgr.cache != nil {
		mgr.cache.InvalidateCollection(ctx, collection)
	}

	mgr.observe("save", start, true)
	return id, nil
}

// Search serves from the working cache when possible, otherwise embeds the
// query, asks the index, and writes non-empty results back into the cache.
// Under FallbackDegrade downstream failures yield an empty slice.
func (mgr *Manager) Search(ctx context.Context, collection, query string, opts SearchOptions) ([]SearchResult, error) {
	start := time.Now()

	if !mgr.registry.Has(collection) {
		mgr.observe("search", start, false)
		return nil, &errors.ConfigurationError{Field: collection, Msg: "unknown collection"}
	}

	topK := opts.TopK

	if topK <= 0 {
		topK = defaultTopK
	}

	if mgr.cache != nil && !opts.NoCache {
		if cached, ok := mgr.cache.Get(ctx, collection, query); ok {
			if len(cached) > topK {
				cached = cached[:topK]
			}

			mgr.observe("search", start, true)
			return cached, nil
		}
	}

	vector, err := mgr.embed(ctx, query)

	if err != nil {
		mgr.observe("search", start, false)

		if mgr.fallback == FallbackDegrade {
			mgr.logger.Error("search degraded: embedding failed", "collection", collection, "err", err)
			return []SearchResult{}, nil
		}

		return nil, err
	}

	floor := mgr.scoreFloor

	if opts.MinScore > 0 {
		floor = opts.MinScore
	}

	callCtx, cancel := context.WithTimeout(ctx, mgr.callBudget)
	defer cancel()

	results, err := mgr.index.Search(callCtx, collection, vector, SearchParams{
		TopK:           topK,
		Filters:        opts.Filters,
		ScoreThreshold: floor,
	})

	if err != nil {
		mgr.observe("search", start, false)

		if mgr.fallback == FallbackDegrade {
			mgr.logger.Error("search degraded: index failed", "collection", collection, "err", err)
			return []SearchResult{}, nil
		}

		return nil, err
	}

	if mgr.cache != nil && !opts.NoCache && len(results) > 0 {
		mgr.cache.Set(ctx, collection, query, results, mgr.cacheTTL)
	}

	mgr.observe("search", start, true)
	return results, nil
}

// BatchSave embeds every item in one batch call, upserts all points in one
// index call, and invalidates the cache once. The report carries a status
// per item so callers can tell exactly which items failed.
func (mgr *Manager) BatchSave(ctx context.Context, collection string, items []BatchItem) (BatchReport, error) {
	start := time.Now()
	report := BatchReport{Items: make([]ItemStatus, len(items))}

	if !mgr.registry.Has(collection) {
		mgr.observe("batch_save", start, false)
		return report, &errors.ConfigurationError{Field: collection, Msg: "unknown collection"}
	}

	if len(items) == 0 {
		mgr.observe("batch_save", start, true)
		return report, nil
	}

	texts := make([]string, len(items))

	for i, item := range items {
		texts[i] = item.Content
	}

	embedCtx, cancelEmbed := context.WithTimeout(ctx, mgr.callBudget)
	defer cancelEmbed()

	embedded, err := mgr.embedder.EmbedBatch(embedCtx, texts)

	if err != nil {
		mgr.observe("batch_save", start, false)

		if mgr.fallback == FallbackDegrade {
			mgr.logger.Error("batch save degraded: embedding failed", "collection", collection, "err", err)

			for i := range report.Items {
				report.Items[i] = ItemStatus{ID: items[i].ID, Err: err}
			}

			report.Failed = len(items)
			return report, nil
		}

		return report, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	points := make([]Point, 0, len(items))
	pointIdx := make([]int, 0, len(items))

	for i, item := range items {
		if embedded[i].Err != nil {
			report.Items[i] = ItemStatus{ID: item.ID, Err: embedded[i].Err}
			report.Failed++
			continue
		}

		payload := make(map[string]any, len(item.Metadata)+2)

		for key, value := range item.Metadata {
			payload[key] = value
		}

		payload["content"] = item.Content
		payload["created_at"] = now

		id := item.ID

		if id == "" {
			id = DeterministicID(item.Content, item.Metadata)
		}

		report.Items[i] = ItemStatus{ID: id}
		points = append(points, Point{ID: id, Vector: embedded[i].Vector, Payload: payload})
		pointIdx = append(pointIdx, i)
	}

	if len(points) > 0 {
		upsertCtx, cancelUpsert := context.WithTimeout(ctx, mgr.callBudget)
		defer cancelUpsert()

		if _, err = mgr.index.Upsert(upsertCtx, collection, points); err != nil {
			for _, i := range pointIdx {
				report.Items[i].Err = err
			}

			report.Failed += len(points)
			mgr.observe("batch_save", start, false)

			if mgr.fallback == FallbackDegrade {
				mgr.logger.Error("batch save degraded: upsert failed", "collection", collection, "err", err)
				return report, nil
			}

			return report, err
		}

		report.Saved = len(points)

		if mgr.cache != nil {
			mgr.cache.InvalidateCollection(ctx, collection)
		}
	}

	mgr.observe("batch_save", start, report.Failed == 0)
	return report, nil
}

// SystemStats aggregates cache, embedding-cache and per-collection state.
// Best-effort: a collection the index cannot describe is reported with
// status "unavailable" instead of failing the call.
func (mgr *Manager) SystemStats(ctx context.Context) SystemStats {
	stats := SystemStats{
		Collections: make(map[string]CollectionInfo, len(mgr.registry.Names())),
		CollectedAt: time.Now().UTC(),
	}

	callCtx, cancel := context.WithTimeout(ctx, mgr.callBudget)
	defer cancel()

	stats.Healthy = mgr.index.Healthy(callCtx)

	if mgr.cache != nil {
		stats.QueryCache = mgr.cache.Stats()
	}

	if counted, ok := mgr.embedder.(interface{ CacheStats() EmbeddingCacheStats }); ok {
		stats.EmbeddingCache = counted.CacheStats()
	}

	for _, name := range mgr.registry.Names() {
		info, err := mgr.index.CollectionInfo(ctx, name)

		if err != nil {
			info = CollectionInfo{Status: "unavailable"}
		}

		stats.Collections[name] = info
	}

	return stats
}

// CollectionStats returns the index's view of a single collection.
func (mgr *Manager) CollectionStats(ctx context.Context, name string) (CollectionInfo, error) {
	if !mgr.registry.Has(name) {
		return CollectionInfo{}, &errors.ConfigurationError{Field: name, Msg: "unknown collection"}
	}

	callCtx, cancel := context.WithTimeout(ctx, mgr.callBudget)
	defer cancel()

	return mgr.index.CollectionInfo(callCtx, name)
}

// Registry exposes the immutable collection declarations.
func (mgr *Manager) Registry() *Registry { return mgr.registry }

// Close releases owned connections. For externally-owned dependencies it
// is a no-op.
func (mgr *Manager) Close() error {
	if !mgr.ownsDeps || mgr.cache == nil {
		return nil
	}

	return mgr.cache.Close()
}

func (mgr *Manager) embed(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, mgr.callBudget)
	defer cancel()

	return mgr.embedder.Embed(callCtx, text)
}

func (mgr *Manager) observe(op string, start time.Time, success bool) {
	if mgr.observer == nil {
		return
	}

	mgr.observer.Record(op, success, time.Since(start))
}
