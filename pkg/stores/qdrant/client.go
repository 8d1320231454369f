package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/mnemo/pkg/errors"
	"github.com/theapemachine/mnemo/pkg/memory"
)

const defaultUpsertBatch = 64

// Client talks to a Qdrant instance over its HTTP API. Collection shapes
// come from the injected registry; the client never invents a dimension or
// distance metric on its own.
type Client struct {
	endpoint    string
	registry    *memory.Registry
	httpClient  *http.Client
	upsertBatch int
	logger      *log.Logger
}

type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client, e.g. for custom
// timeouts.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(client *Client) { client.httpClient = httpClient }
}

// WithUpsertBatch overrides how many points go into one upsert request.
func WithUpsertBatch(size int) ClientOption {
	return func(client *Client) { client.upsertBatch = size }
}

// New returns a Client with sane defaults.
func New(endpoint string, registry *memory.Registry, options ...ClientOption) *Client {
	client := &Client{
		endpoint:    endpoint,
		registry:    registry,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		upsertBatch: defaultUpsertBatch,
		logger:      log.With("component", "qdrant"),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// EnsureCollection creates the collection if it does not exist remotely,
// using the registry's declared dimension and distance metric. Idempotent.
func (client *Client) EnsureCollection(ctx context.Context, name string) error {
	schema, err := client.registry.Get(name)

	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		fmt.Sprintf("%s/collections/%s", client.endpoint, name),
		nil,
	)

	if err != nil {
		return &errors.IndexError{Op: "ensure", Collection: name, Err: err}
	}

	resp, err := client.httpClient.Do(req)

	if err != nil {
		return &errors.IndexError{Op: "ensure", Collection: name, Err: err}
	}

	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			"size":     schema.VectorDim,
			"distance": schema.Distance,
		},
	})

	if err != nil {
		return &errors.IndexError{Op: "ensure", Collection: name, Err: err}
	}

	createReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPut,
		fmt.Sprintf("%s/collections/%s", client.endpoint, name),
		bytes.NewReader(body),
	)

	if err != nil {
		return &errors.IndexError{Op: "ensure", Collection: name, Err: err}
	}

	createReq.Header.Set("Content-Type", "application/json")

	createResp, err := client.httpClient.Do(createReq)

	if err != nil {
		return &errors.IndexError{Op: "ensure", Collection: name, Err: err}
	}

	createResp.Body.Close()

	if createResp.StatusCode != http.StatusOK {
		return &errors.IndexError{
			Op:         "ensure",
			Collection: name,
			Err:        fmt.Errorf("create returned status %s", createResp.Status),
		}
	}

	client.logger.Info("collection created", "collection", name,
		"dimension", schema.VectorDim, "distance", schema.Distance)
	return nil
}

// Upsert writes points in internal batches to bound request size. Qdrant
// upserts are last-writer-wins per id; no optimistic concurrency is
// offered. Returns the number of points written.
func (client *Client) Upsert(ctx context.Context, collection string, points []memory.Point) (int, error) {
	written := 0

	for start := 0; start < len(points); start += client.upsertBatch {
		end := min(start+client.upsertBatch, len(points))

		if err := client.upsertBatchReq(ctx, collection, points[start:end]); err != nil {
			return written, err
		}

		written += end - start
	}

	return written, nil
}

func (client *Client) upsertBatchReq(ctx context.Context, collection string, points []memory.Point) error {
	wire := make([]map[string]any, 0, len(points))

	for _, point := range points {
		wire = append(wire, map[string]any{
			"id":      point.ID,
			"vector":  point.Vector,
			"payload": point.Payload,
		})
	}

	body, err := json.Marshal(map[string]any{"points": wire})

	if err != nil {
		return &errors.IndexError{Op: "upsert", Collection: collection, Err: err}
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPut,
		fmt.Sprintf("%s/collections/%s/points?wait=true", client.endpoint, collection),
		bytes.NewReader(body),
	)

	if err != nil {
		return &errors.IndexError{Op: "upsert", Collection: collection, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.httpClient.Do(req)

	if err != nil {
		return &errors.IndexError{Op: "upsert", Collection: collection, Err: err}
	}

	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &errors.IndexError{
			Op:         "upsert",
			Collection: collection,
			Err:        fmt.Errorf("status %s", resp.Status),
		}
	}

	return nil
}

// Search performs filtered nearest-neighbour search. Filters are an
// exact-match conjunction over payload fields; a positive score threshold
// is enforced server-side. Results come back descending by score.
func (client *Client) Search(ctx context.Context, collection string, vector []float32, params memory.SearchParams) ([]memory.SearchResult, error) {
	payload := map[string]any{
		"vector":       vector,
		"limit":        params.TopK,
		"with_payload": true,
	}

	if params.ScoreThreshold > 0 {
		payload["score_threshold"] = params.ScoreThreshold
	}

	if len(params.Filters) > 0 {
		conditions := make([]map[string]any, 0, len(params.Filters))

		for field, value := range params.Filters {
			conditions = append(conditions, map[string]any{
				"key":   field,
				"match": map[string]any{"value": value},
			})
		}

		// Stable request bodies make tests and request logs deterministic.
		sort.Slice(conditions, func(i, j int) bool {
			return conditions[i]["key"].(string) < conditions[j]["key"].(string)
		})

		payload["filter"] = map[string]any{"must": conditions}
	}

	body, err := json.Marshal(payload)

	if err != nil {
		return nil, &errors.IndexError{Op: "search", Collection: collection, Err: err}
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/search", client.endpoint, collection),
		bytes.NewReader(body),
	)

	if err != nil {
		return nil, &errors.IndexError{Op: "search", Collection: collection, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.httpClient.Do(req)

	if err != nil {
		return nil, &errors.IndexError{Op: "search", Collection: collection, Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errors.IndexError{
			Op:         "search",
			Collection: collection,
			Err:        fmt.Errorf("status %s", resp.Status),
		}
	}

	var out struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &errors.IndexError{Op: "search", Collection: collection, Err: err}
	}

	results := make([]memory.SearchResult, 0, len(out.Result))

	for _, item := range out.Result {
		results = append(results, memory.SearchResult{
			ID:      item.ID,
			Score:   item.Score,
			Payload: item.Payload,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results, nil
}

// CollectionInfo fetches point counts and status for one collection.
func (client *Client) CollectionInfo(ctx context.Context, name string) (memory.CollectionInfo, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		fmt.Sprintf("%s/collections/%s", client.endpoint, name),
		nil,
	)

	if err != nil {
		return memory.CollectionInfo{}, &errors.IndexError{Op: "info", Collection: name, Err: err}
	}

	resp, err := client.httpClient.Do(req)

	if err != nil {
		return memory.CollectionInfo{}, &errors.IndexError{Op: "info", Collection: name, Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return memory.CollectionInfo{}, &errors.IndexError{
			Op:         "info",
			Collection: name,
			Err:        fmt.Errorf("status %s", resp.Status),
		}
	}

	var out struct {
		Result struct {
			Status       string `json:"status"`
			PointsCount  int64  `json:"points_count"`
			VectorsCount int64  `json:"vectors_count"`
		} `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return memory.CollectionInfo{}, &errors.IndexError{Op: "info", Collection: name, Err: err}
	}

	return memory.CollectionInfo{
		Points:  out.Result.PointsCount,
		Vectors: out.Result.VectorsCount,
		Status:  out.Result.Status,
	}, nil
}

// DeleteCollection removes a collection and everything in it.
// Administrative only: the normal save/search paths never call it.
func (client *Client) DeleteCollection(ctx context.Context, name string) error {
	client.logger.Warn("deleting collection", "collection", name)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodDelete,
		fmt.Sprintf("%s/collections/%s", client.endpoint, name),
		nil,
	)

	if err != nil {
		return &errors.IndexError{Op: "delete", Collection: name, Err: err}
	}

	resp, err := client.httpClient.Do(req)

	if err != nil {
		return &errors.IndexError{Op: "delete", Collection: name, Err: err}
	}

	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &errors.IndexError{
			Op:         "delete",
			Collection: name,
			Err:        fmt.Errorf("status %s", resp.Status),
		}
	}

	return nil
}

// Healthy probes connectivity by listing collections. It never returns an
// error: an unreachable service is simply unhealthy.
func (client *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		fmt.Sprintf("%s/collections", client.endpoint),
		nil,
	)

	if err != nil {
		return false
	}

	resp, err := client.httpClient.Do(req)

	if err != nil {
		return false
	}

	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
