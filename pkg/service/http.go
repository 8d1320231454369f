package service

// MemoryServer is the thin HTTP facade over the memory layer. It exposes
// the same plain-value API the Go surface does, so orchestrators that do
// not link this module can still drive save/search/check over JSON.

import (
	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	"github.com/theapemachine/mnemo/pkg/memory"
	"github.com/theapemachine/mnemo/pkg/metrics"
)

type MemoryServer struct {
	app      *fiber.App
	manager  *memory.Manager
	detector *memory.Detector
	metrics  *metrics.OperationMetrics
	logger   *log.Logger
}

// NewMemoryServer builds the facade. detector and sink may be nil, in
// which case /v1/check returns 501 and /v1/stats omits operation metrics.
func NewMemoryServer(manager *memory.Manager, detector *memory.Detector, sink *metrics.OperationMetrics) *MemoryServer {
	srv := &MemoryServer{
		app: fiber.New(fiber.Config{
			AppName:      "mnemo",
			ServerHeader: "mnemo",
		}),
		manager:  manager,
		detector: detector,
		metrics:  sink,
		logger:   log.With("component", "http"),
	}

	srv.routes()
	return srv
}

// App exposes the underlying fiber app for tests.
func (srv *MemoryServer) App() *fiber.App { return srv.app }

// Run blocks serving on addr.
func (srv *MemoryServer) Run(addr string) error {
	srv.logger.Info("listening", "addr", addr)
	return srv.app.Listen(addr)
}

// Shutdown stops the server gracefully.
func (srv *MemoryServer) Shutdown() error {
	return srv.app.Shutdown()
}

type saveRequest struct {
	Collection string         `json:"collection"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	ID         string         `json:"id"`
}

type searchRequest struct {
	Collection string         `json:"collection"`
	Query      string         `json:"query"`
	TopK       int            `json:"top_k"`
	Filters    map[string]any `json:"filters"`
	NoCache    bool           `json:"no_cache"`
}

type batchRequest struct {
	Collection string             `json:"collection"`
	Items      []memory.BatchItem `json:"items"`
}

type batchItemStatus struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

type batchResponse struct {
	Saved  int               `json:"saved"`
	Failed int               `json:"failed"`
	Items  []batchItemStatus `json:"items"`
}

func (srv *MemoryServer) routes() {
	srv.app.Get("/healthz", func(ctx fiber.Ctx) error {
		stats := srv.manager.SystemStats(ctx.RequestCtx())

		if !stats.Healthy {
			return ctx.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"healthy": false})
		}

		return ctx.JSON(fiber.Map{"healthy": true})
	})

	srv.app.Post("/v1/save", srv.handleSave)
	srv.app.Post("/v1/search", srv.handleSearch)
	srv.app.Post("/v1/batch", srv.handleBatch)
	srv.app.Post("/v1/check", srv.handleCheck)
	srv.app.Get("/v1/stats", srv.handleStats)
}

func (srv *MemoryServer) handleSave(ctx fiber.Ctx) error {
	var req saveRequest

	if err := ctx.Bind().Body(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if req.Collection == "" || req.Content == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "collection and content are required"})
	}

	id, err := srv.manager.Save(ctx.RequestCtx(), req.Collection, req.Content, req.Metadata, req.ID)

	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func (srv *MemoryServer) handleSearch(ctx fiber.Ctx) error {
	var req searchRequest

	if err := ctx.Bind().Body(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if req.Collection == "" || req.Query == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "collection and query are required"})
	}

	results, err := srv.manager.Search(ctx.RequestCtx(), req.Collection, req.Query, memory.SearchOptions{
		TopK:    req.TopK,
		Filters: req.Filters,
		NoCache: req.NoCache,
	})

	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.JSON(fiber.Map{"results": results})
}

func (srv *MemoryServer) handleBatch(ctx fiber.Ctx) error {
	var req batchRequest

	if err := ctx.Bind().Body(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if req.Collection == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "collection is required"})
	}

	report, err := srv.manager.BatchSave(ctx.RequestCtx(), req.Collection, req.Items)

	if err != nil {
		return srv.fail(ctx, err)
	}

	resp := batchResponse{
		Saved:  report.Saved,
		Failed: report.Failed,
		Items:  make([]batchItemStatus, len(report.Items)),
	}

	for i, item := range report.Items {
		resp.Items[i].ID = item.ID

		if item.Err != nil {
			resp.Items[i].Error = item.Err.Error()
		}
	}

	return ctx.JSON(resp)
}

func (srv *MemoryServer) handleCheck(ctx fiber.Ctx) error {
	if srv.detector == nil {
		return ctx.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "duplicate detection not configured"})
	}

	var obs memory.Observation

	if err := ctx.Bind().Body(&obs); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if obs.Source == "" || obs.Date == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "source and date are required"})
	}

	verdict := srv.detector.Check(ctx.RequestCtx(), obs)
	return ctx.JSON(verdict)
}

func (srv *MemoryServer) handleStats(ctx fiber.Ctx) error {
	payload := fiber.Map{
		"system": srv.manager.SystemStats(ctx.RequestCtx()),
	}

	if srv.metrics != nil {
		payload["operations"] = srv.metrics.Snapshot()
	}

	return ctx.JSON(payload)
}

func (srv *MemoryServer) fail(ctx fiber.Ctx, err error) error {
	srv.logger.Error("request failed", "path", ctx.Path(), "err", err)
	return ctx.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
}
