package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/theapemachine/mnemo/pkg/errors"
	"github.com/theapemachine/mnemo/pkg/memory"
)

const (
	defaultModel       = "text-embedding-3-small"
	defaultDimension   = 1536
	defaultBatchSize   = 100
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
)

// Provider generates embeddings through the OpenAI API. Batches are capped
// at the provider's preferred size and retried with exponential backoff;
// a batch that exhausts its retries yields a per-item error for every text
// in it, never a silent zero vector.
type Provider struct {
	client openai.Client

	model       string
	dimension   int
	batchSize   int
	maxAttempts int
	baseDelay   time.Duration

	logger *log.Logger
}

type ProviderOption func(*Provider)

// WithModel selects the embedding model. Empty keeps the default.
func WithModel(model string) ProviderOption {
	return func(prvdr *Provider) {
		if model != "" {
			prvdr.model = model
		}
	}
}

// WithDimension sets the requested vector dimensionality. Non-positive
// keeps the default.
func WithDimension(dim int) ProviderOption {
	return func(prvdr *Provider) {
		if dim > 0 {
			prvdr.dimension = dim
		}
	}
}

// WithBatchSize caps how many texts go into one provider request.
// Non-positive keeps the default.
func WithBatchSize(size int) ProviderOption {
	return func(prvdr *Provider) {
		if size > 0 {
			prvdr.batchSize = size
		}
	}
}

// WithRetry configures the backoff schedule: maxAttempts tries per batch,
// baseDelay doubling after each failure. Non-positive values keep the
// defaults.
func WithRetry(maxAttempts int, baseDelay time.Duration) ProviderOption {
	return func(prvdr *Provider) {
		if maxAttempts > 0 {
			prvdr.maxAttempts = maxAttempts
		}

		if baseDelay > 0 {
			prvdr.baseDelay = baseDelay
		}
	}
}

// WithRequestOptions forwards extra options to the OpenAI client, e.g. a
// custom base URL.
func WithRequestOptions(opts ...option.RequestOption) ProviderOption {
	return func(prvdr *Provider) {
		prvdr.client = openai.NewClient(opts...)
	}
}

// NewProvider creates a provider authenticated with the given key. Pass
// options to change model, dimension, batching or retry behavior.
func NewProvider(apiKey string, options ...ProviderOption) *Provider {
	prvdr := &Provider{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       defaultModel,
		dimension:   defaultDimension,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		logger:      log.With("component", "embedding"),
	}

	for _, opt := range options {
		opt(prvdr)
	}

	return prvdr
}

// Dimension returns the vector dimensionality this provider produces.
func (prvdr *Provider) Dimension() int { return prvdr.dimension }

// Embed generates a vector for a single text. Empty or whitespace-only
// input yields a zero vector and a warning rather than an error, so one
// blank observation never fails its caller.
func (prvdr *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		prvdr.logger.Warn("embedding empty text, returning zero vector")
		return make([]float32, prvdr.dimension), nil
	}

	vectors, err := prvdr.callAPI(ctx, []string{text})

	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

// EmbedBatch generates vectors for many texts, preserving input order.
// Texts are grouped into provider-sized batches; each batch is retried
// with exponential backoff and, on exhaustion, fails only its own items.
func (prvdr *Provider) EmbedBatch(ctx context.Context, texts []string) ([]memory.BatchResult, error) {
	results := make([]memory.BatchResult, len(texts))

	// Whitespace-only inputs short-circuit to zero vectors up front, so
	// they never consume provider quota.
	pending := make([]int, 0, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			prvdr.logger.Warn("embedding empty text in batch, returning zero vector", "index", i)
			results[i] = memory.BatchResult{Vector: make([]float32, prvdr.dimension)}
			continue
		}

		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += prvdr.batchSize {
		end := min(start+prvdr.batchSize, len(pending))
		indices := pending[start:end]

		batch := make([]string, len(indices))

		for j, idx := range indices {
			batch[j] = texts[idx]
		}

		vectors, err := prvdr.callWithRetry(ctx, batch)

		if err != nil {
			prvdr.logger.Error("embedding batch failed after retries",
				"size", len(batch), "err", err)

			for _, idx := range indices {
				results[idx] = memory.BatchResult{Err: err}
			}

			continue
		}

		for j, idx := range indices {
			results[idx] = memory.BatchResult{Vector: vectors[j]}
		}
	}

	return results, nil
}

func (prvdr *Provider) callWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	delay := prvdr.baseDelay

	var lastErr error

	for attempt := 1; attempt <= prvdr.maxAttempts; attempt++ {
		vectors, err := prvdr.callAPI(ctx, texts)

		if err == nil {
			return vectors, nil
		}

		lastErr = err

		if attempt == prvdr.maxAttempts {
			break
		}

		prvdr.logger.Warn("embedding request failed, retrying",
			"attempt", attempt, "delay", delay, "err", err)

		select {
		case <-ctx.Done():
			return nil, &errors.EmbeddingError{Op: "batch", Err: ctx.Err()}
		case <-time.After(delay):
		}

		delay *= 2
	}

	return nil, &errors.EmbeddingError{Op: "batch", Err: lastErr}
}

func (prvdr *Provider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := prvdr.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:      openai.EmbeddingModel(prvdr.model),
		Dimensions: openai.Int(int64(prvdr.dimension)),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})

	if err != nil {
		return nil, &errors.EmbeddingError{Op: "request", Err: err}
	}

	if len(resp.Data) != len(texts) {
		return nil, &errors.EmbeddingError{
			Op:  "response",
			Err: fmt.Errorf("provider returned %d embeddings for %d inputs", len(resp.Data), len(texts)),
		}
	}

	vectors := make([][]float32, len(texts))

	for _, item := range resp.Data {
		if item.Index < 0 || int(item.Index) >= len(vectors) {
			continue
		}

		vector := make([]float32, len(item.Embedding))

		for i, component := range item.Embedding {
			vector[i] = float32(component)
		}

		vectors[item.Index] = vector
	}

	return vectors, nil
}
