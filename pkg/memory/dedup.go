package memory

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/ristretto"
	"github.com/theapemachine/mnemo/pkg/errors"
)

// Layer names as they appear in DuplicateVerdict.ChecksPerformed.
const (
	CheckHash           = "hash"
	CheckCrossReference = "cross_reference"
	CheckSemantic       = "semantic"
)

const (
	defaultSemanticThreshold = 0.98
	defaultLocalEntries      = 10_000
	defaultHashTTL           = 7 * 24 * time.Hour
)

// Detector runs the layered duplicate check: exact key-fact hash, then a
// structured cross-reference lookup, then semantic similarity. Layers run
// in increasing cost order and the first positive match short-circuits the
// rest. Every collaborator is optional; missing ones are skipped and the
// verdict's ChecksPerformed records what actually ran.
type Detector struct {
	collection string
	shared     HashCache
	local      *ristretto.Cache
	xref       CrossReference
	index      VectorIndex
	embedder   Embedder

	threshold float64
	hashTTL   time.Duration
	logger    *log.Logger
}

type DetectorOption func(*Detector)

// WithSharedHashCache points the exact-hash layer at the working cache.
func WithSharedHashCache(cache HashCache) DetectorOption {
	return func(det *Detector) { det.shared = cache }
}

// WithCrossReference enables the structured lookup layer.
func WithCrossReference(xref CrossReference) DetectorOption {
	return func(det *Detector) { det.xref = xref }
}

// WithSemanticCheck enables the similarity layer against the given index
// and embedder.
func WithSemanticCheck(index VectorIndex, embedder Embedder) DetectorOption {
	return func(det *Detector) {
		det.index = index
		det.embedder = embedder
	}
}

// WithSemanticThreshold overrides the similarity score at or above which a
// neighbour counts as a duplicate. Non-positive keeps the default.
func WithSemanticThreshold(threshold float64) DetectorOption {
	return func(det *Detector) {
		if threshold > 0 {
			det.threshold = threshold
		}
	}
}

// WithHashTTL overrides how long seen hashes are remembered.
func WithHashTTL(ttl time.Duration) DetectorOption {
	return func(det *Detector) { det.hashTTL = ttl }
}

// WithDetectorLogger overrides the component logger.
func WithDetectorLogger(logger *log.Logger) DetectorOption {
	return func(det *Detector) { det.logger = logger }
}

// NewDetector builds a detector for one collection. The in-process hash
// cache is bounded and evicts under pressure, so the exact layer keeps
// working even when the shared cache is down.
func NewDetector(collection string, options ...DetectorOption) (*Detector, error) {
	local, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: defaultLocalEntries * 10,
		MaxCost:     defaultLocalEntries,
		BufferItems: 64,
	})

	if err != nil {
		return nil, err
	}

	det := &Detector{
		collection: collection,
		local:      local,
		threshold:  defaultSemanticThreshold,
		hashTTL:    defaultHashTTL,
		logger:     log.With("component", "dedup", "collection", collection),
	}

	for _, option := range options {
		option(det)
	}

	return det, nil
}

// Check runs the layers against one observation and returns a verdict. A
// layer whose collaborator fails is recorded in LayerErrors and skipped;
// duplicate detection is an optimization, so it fails open.
func (det *Detector) Check(ctx context.Context, obs Observation) DuplicateVerdict {
	verdict := DuplicateVerdict{
		Type:   DuplicateNone,
		Action: ActionProceed,
	}

	hash := ComputeHash(obs)
	verdict.ChecksPerformed = append(verdict.ChecksPerformed, CheckHash)

	if existing, ok := det.lookupHash(ctx, hash); ok {
		verdict.IsDuplicate = true
		verdict.Type = DuplicateExact
		verdict.ExistingID = existing
		verdict.Similarity = 1.0
		verdict.Action = ActionSkip
		return verdict
	}

	if det.xref != nil {
		verdict.ChecksPerformed = append(verdict.ChecksPerformed, CheckCrossReference)

		existing, found, err := det.xref.Find(ctx, obs.Source, obs.Date, obs.Scope)

		switch {
		case err != nil:
			det.recordFailure(&verdict, CheckCrossReference, err)
		case found:
			verdict.IsDuplicate = true
			verdict.Type = DuplicateCrossReference
			verdict.ExistingID = existing
			verdict.Action = ActionUpdate
			return verdict
		}
	}

	if det.index != nil && det.embedder != nil {
		verdict.ChecksPerformed = append(verdict.ChecksPerformed, CheckSemantic)

		if match, ok := det.semanticMatch(ctx, obs, &verdict); ok {
			verdict.IsDuplicate = true
			verdict.Type = DuplicateSemantic
			verdict.ExistingID = match.ID
			verdict.Similarity = match.Score
			// Soft signal: semantic near-duplicates warn instead of blocking.
			verdict.Action = ActionWarn
			return verdict
		}
	}

	det.rememberHash(ctx, hash, obs.ID)
	return verdict
}

// CheckBatch checks each observation independently and reports the
// aggregate duplicate rate. No cross-item correlation is performed: two
// mutual near-duplicates inside the same batch both come back clean.
func (det *Detector) CheckBatch(ctx context.Context, observations []Observation) BatchCheckReport {
	report := BatchCheckReport{
		Verdicts: make(map[string]DuplicateVerdict, len(observations)),
	}

	duplicates := 0

	for _, obs := range observations {
		verdict := det.Check(ctx, obs)

		key := obs.ID

		if key == "" {
			key = ComputeHash(obs)
		}

		report.Verdicts[key] = verdict

		if verdict.IsDuplicate {
			duplicates++
		}
	}

	if len(observations) > 0 {
		report.DuplicateRate = float64(duplicates) / float64(len(observations))
	}

	return report
}

// Close releases the in-process hash cache.
func (det *Detector) Close() {
	det.local.Close()
}

func (det *Detector) hashKey(hash string) string {
	return "dup:" + det.collection + ":" + hash
}

func (det *Detector) lookupHash(ctx context.Context, hash string) (string, bool) {
	key := det.hashKey(hash)

	if det.shared != nil {
		if existing, ok := det.shared.GetString(ctx, key); ok {
			return existing, true
		}
	}

	if value, ok := det.local.Get(key); ok {
		existing, _ := value.(string)
		return existing, true
	}

	return "", false
}

func (det *Detector) rememberHash(ctx context.Context, hash, id string) {
	key := det.hashKey(hash)

	if det.shared != nil {
		det.shared.SetString(ctx, key, id, det.hashTTL)
	}

	det.local.Set(key, id, 1)
}

func (det *Detector) semanticMatch(ctx context.Context, obs Observation, verdict *DuplicateVerdict) (SearchResult, bool) {
	vector, err := det.embedder.Embed(ctx, CanonicalText(obs))

	if err != nil {
		det.recordFailure(verdict, CheckSemantic, err)
		return SearchResult{}, false
	}

	results, err := det.index.Search(ctx, det.collection, vector, SearchParams{
		TopK:           1,
		ScoreThreshold: det.threshold,
	})

	if err != nil {
		det.recordFailure(verdict, CheckSemantic, err)
		return SearchResult{}, false
	}

	if len(results) == 0 || results[0].Score < det.threshold {
		return SearchResult{}, false
	}

	return results[0], true
}

func (det *Detector) recordFailure(verdict *DuplicateVerdict, layer string, err error) {
	wrapped := &errors.DuplicateCheckError{Layer: layer, Err: err}
	det.logger.Warn("duplicate check layer failed", "layer", layer, "err", err)

	if verdict.LayerErrors == nil {
		verdict.LayerErrors = make(map[string]string, 1)
	}

	verdict.LayerErrors[layer] = wrapped.Error()
}
