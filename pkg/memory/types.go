package memory

import "time"

// FallbackPolicy controls whether downstream failures degrade to
// empty/sentinel results or propagate to the caller.
type FallbackPolicy int

const (
	// FallbackDisabled raises embedding and index errors to the caller.
	FallbackDisabled FallbackPolicy = iota
	// FallbackDegrade absorbs downstream failures: Save returns FailedID,
	// Search returns an empty slice, and the error is logged instead.
	FallbackDegrade
)

// FailedID is the sentinel returned by Save under FallbackDegrade when the
// point could not be stored.
const FailedID = "failed"

// Observation is the unit stored by the memory layer. Content is the text
// that gets embedded; Source, Date, Scope and Amount are the key facts the
// duplicate hash is computed over; Metadata travels into the point payload.
type Observation struct {
	ID         string         `json:"id,omitempty"`
	Collection string         `json:"collection"`
	Content    string         `json:"content"`
	Source     string         `json:"source"`
	Date       string         `json:"date"`
	Scope      string         `json:"scope,omitempty"`
	Amount     float64        `json:"amount,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Point is a single vector + payload pair as stored in the index.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// SearchResult is one nearest-neighbour hit. Score is cosine-normalized to
// [0,1] and results are always ordered descending by score.
type SearchResult struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// SearchParams specify vector search options at the index level.
type SearchParams struct {
	TopK           int
	Filters        map[string]any
	ScoreThreshold float64
}

// SearchOptions are the caller-facing knobs on Manager.Search.
type SearchOptions struct {
	TopK     int
	Filters  map[string]any
	NoCache  bool
	MinScore float64
}

// BatchResult carries the outcome of embedding one text out of a batch. A
// failed batch yields per-item errors rather than silent zero vectors, so
// callers can always tell a failure from a legitimately empty input.
type BatchResult struct {
	Vector []float32
	Err    error
}

// BatchItem is one entry handed to Manager.BatchSave.
type BatchItem struct {
	ID       string         `json:"id,omitempty"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ItemStatus reports the outcome for a single batch item.
type ItemStatus struct {
	ID  string `json:"id"`
	Err error  `json:"-"`
}

// BatchReport is the per-item outcome of a BatchSave call.
type BatchReport struct {
	Saved  int          `json:"saved"`
	Failed int          `json:"failed"`
	Items  []ItemStatus `json:"items"`
}

// CollectionInfo mirrors the index service's view of one collection.
type CollectionInfo struct {
	Points  int64  `json:"points"`
	Vectors int64  `json:"vectors"`
	Status  string `json:"status"`
}

// CacheStats are process-lifetime counters for the working cache.
type CacheStats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate_percent"`
	Entries int     `json:"entries,omitempty"`
	Enabled bool    `json:"enabled"`
}

// EmbeddingCacheStats describe the in-memory embedding cache.
type EmbeddingCacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// SystemStats aggregate the observable state of the memory layer. Read-only
// and best-effort: collecting them never fails the caller.
type SystemStats struct {
	Healthy        bool                      `json:"healthy"`
	QueryCache     CacheStats                `json:"query_cache"`
	EmbeddingCache EmbeddingCacheStats       `json:"embedding_cache"`
	Collections    map[string]CollectionInfo `json:"collections"`
	CollectedAt    time.Time                 `json:"collected_at"`
}

// DuplicateType identifies which detector layer flagged an observation.
type DuplicateType string

const (
	DuplicateNone           DuplicateType = "none"
	DuplicateExact          DuplicateType = "exact"
	DuplicateCrossReference DuplicateType = "cross_reference"
	DuplicateSemantic       DuplicateType = "semantic"
)

// RecommendedAction tells the caller what to do with the observation.
type RecommendedAction string

const (
	ActionProceed RecommendedAction = "proceed"
	ActionSkip    RecommendedAction = "skip"
	ActionUpdate  RecommendedAction = "update"
	ActionWarn    RecommendedAction = "warn"
)

// DuplicateVerdict is the outcome of running the layered duplicate check
// against one observation. At most one layer ever sets IsDuplicate; the
// first positive match short-circuits the rest. ChecksPerformed lists the
// layers that actually ran, and LayerErrors records collaborator failures
// so "not a duplicate" is distinguishable from "layer unavailable".
type DuplicateVerdict struct {
	IsDuplicate     bool              `json:"is_duplicate"`
	Type            DuplicateType     `json:"duplicate_type"`
	ExistingID      string            `json:"existing_id,omitempty"`
	Similarity      float64           `json:"similarity_score,omitempty"`
	Action          RecommendedAction `json:"recommended_action"`
	ChecksPerformed []string          `json:"checks_performed"`
	LayerErrors     map[string]string `json:"layer_errors,omitempty"`
}

// BatchCheckReport holds per-observation verdicts plus the aggregate rate.
// Observations are keyed by their ID, falling back to their key-fact hash.
type BatchCheckReport struct {
	Verdicts      map[string]DuplicateVerdict `json:"verdicts"`
	DuplicateRate float64                     `json:"duplicate_rate"`
}
