package service

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/theapemachine/mnemo/pkg/memory"
	"github.com/theapemachine/mnemo/pkg/metrics"
)

func testServer(t *testing.T) *MemoryServer {
	t.Helper()

	registry, err := memory.NewRegistry(
		memory.CollectionSchema{
			Name:      "invoices",
			VectorDim: 32,
			Fields:    []memory.Field{{Name: "vendor", Type: memory.FieldString, Required: true}},
		},
		memory.CollectionSchema{Name: "captions", VectorDim: 32},
	)
	assert.NoError(t, err)

	manager := memory.NewManager(
		registry,
		memory.NewMockEmbedder(32),
		memory.NewMockIndex(),
		memory.NewMockQueryCache(),
	)
	assert.NoError(t, manager.Initialize(t.Context()))

	detector, err := memory.NewDetector("invoices",
		memory.WithSharedHashCache(memory.NewMockQueryCache()))
	assert.NoError(t, err)
	t.Cleanup(detector.Close)

	return NewMemoryServer(manager, detector, metrics.NewOperationMetrics())
}

func postJSON(t *testing.T, srv *MemoryServer, path string, body any) *http.Response {
	t.Helper()

	raw, err := json.Marshal(body)
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req)
	assert.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	resp.Body.Close()

	assert.NoError(t, json.Unmarshal(raw, out))
}

func TestServerSaveAndSearch(t *testing.T) {
	srv := testServer(t)

	resp := postJSON(t, srv, "/v1/save", map[string]any{
		"collection": "invoices",
		"content":    "Invoice from Acme Rail for the train ticket",
		"metadata":   map[string]any{"vendor": "acme-rail"},
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var saved struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &saved)
	assert.NotEmpty(t, saved.ID)

	resp = postJSON(t, srv, "/v1/search", map[string]any{
		"collection": "invoices",
		"query":      "Acme train ticket",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var found struct {
		Results []memory.SearchResult `json:"results"`
	}
	decodeBody(t, resp, &found)
	assert.NotEmpty(t, found.Results)
	assert.Equal(t, saved.ID, found.Results[0].ID)
}

func TestServerSaveValidation(t *testing.T) {
	srv := testServer(t)

	t.Run("missing content", func(t *testing.T) {
		resp := postJSON(t, srv, "/v1/save", map[string]any{"collection": "invoices"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing required metadata", func(t *testing.T) {
		resp := postJSON(t, srv, "/v1/save", map[string]any{
			"collection": "invoices",
			"content":    "no vendor",
		})
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})

	t.Run("unknown collection", func(t *testing.T) {
		resp := postJSON(t, srv, "/v1/save", map[string]any{
			"collection": "nope",
			"content":    "anything",
		})
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})
}

func TestServerSearchValidation(t *testing.T) {
	srv := testServer(t)

	resp := postJSON(t, srv, "/v1/search", map[string]any{"collection": "invoices"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerBatch(t *testing.T) {
	srv := testServer(t)

	resp := postJSON(t, srv, "/v1/batch", map[string]any{
		"collection": "captions",
		"items": []map[string]any{
			{"content": "first caption"},
			{"content": "second caption"},
		},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var report batchResponse
	decodeBody(t, resp, &report)
	assert.Equal(t, 2, report.Saved)
	assert.Equal(t, 0, report.Failed)
	assert.Len(t, report.Items, 2)
	assert.NotEmpty(t, report.Items[0].ID)
	assert.Empty(t, report.Items[0].Error)
}

func TestServerCheck(t *testing.T) {
	srv := testServer(t)

	observation := map[string]any{
		"collection": "invoices",
		"content":    "train ticket",
		"source":     "acme-rail",
		"date":       "2026-03-14",
		"amount":     22.70,
	}

	resp := postJSON(t, srv, "/v1/check", observation)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var first memory.DuplicateVerdict
	decodeBody(t, resp, &first)
	assert.False(t, first.IsDuplicate)
	assert.Equal(t, memory.ActionProceed, first.Action)

	resp = postJSON(t, srv, "/v1/check", observation)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var second memory.DuplicateVerdict
	decodeBody(t, resp, &second)
	assert.True(t, second.IsDuplicate)
	assert.Equal(t, memory.DuplicateExact, second.Type)
	assert.Equal(t, memory.ActionSkip, second.Action)
}

func TestServerCheckValidation(t *testing.T) {
	srv := testServer(t)

	resp := postJSON(t, srv, "/v1/check", map[string]any{"content": "no key facts"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerCheckWithoutDetector(t *testing.T) {
	registry, err := memory.NewRegistry(memory.CollectionSchema{Name: "captions", VectorDim: 8})
	assert.NoError(t, err)

	manager := memory.NewManager(registry, memory.NewMockEmbedder(8), memory.NewMockIndex(), nil)
	srv := NewMemoryServer(manager, nil, nil)

	resp := postJSON(t, srv, "/v1/check", map[string]any{
		"source": "acme",
		"date":   "2026-01-01",
	})
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestServerHealthz(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := srv.App().Test(req)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerStats(t *testing.T) {
	srv := testServer(t)

	resp := postJSON(t, srv, "/v1/save", map[string]any{
		"collection": "captions",
		"content":    "a caption",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	resp, err := srv.App().Test(req)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		System     memory.SystemStats         `json:"system"`
		Operations map[string]json.RawMessage `json:"operations"`
	}
	decodeBody(t, resp, &payload)

	assert.True(t, payload.System.Healthy)
	assert.EqualValues(t, 1, payload.System.Collections["captions"].Points)
	assert.NotNil(t, payload.Operations)
}
