// Package http exposes the report API: two-phase report generation and
// endpoint documentation management.
package http

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"log/slog"

	"tagstats/internal/containers"
	"tagstats/internal/pipeline"
	"tagstats/internal/query"
	"tagstats/internal/reports"
	"tagstats/internal/storage"
)

// StatsHandler serves the two-phase report API. Phase one submits the bulk
// query and returns its execution id; phase two waits on the execution,
// writes the report documents and returns download URLs.
type StatsHandler struct {
	orchestrator *pipeline.Orchestrator
	writer       *reports.Writer
	containers   containers.Store
	logger       *slog.Logger
}

func NewStatsHandler(o *pipeline.Orchestrator, w *reports.Writer, cs containers.Store, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{orchestrator: o, writer: w, containers: cs, logger: logger}
}

type queryRequest struct {
	Stime int64 `json:"stime"`
	Etime int64 `json:"etime"`
}

type resultRequest struct {
	ExecutionID string `json:"execution_id"`
	Stime       int64  `json:"stime"`
	Etime       int64  `json:"etime"`
}

func malformedInput(ctx *fiber.Ctx, message string) error {
	return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "MalformedInput",
		"message": message,
	})
}

func (h *StatsHandler) resolveContainer(ctx *fiber.Ctx) (*containers.Container, error) {
	tid := ctx.Params("tid")
	c, err := h.containers.Get(ctx.Context(), tid)
	if errors.Is(err, containers.ErrNotFound) {
		return nil, ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "container not found",
		})
	}
	if err != nil {
		h.logger.Error("Container lookup failed", slog.String("tid", tid), slog.Any("error", err))
		return nil, ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "container lookup failed",
		})
	}
	return c, nil
}

func validRange(stime, etime int64) bool {
	return stime > 0 && etime > 0 && stime < etime
}

// StartQueryAction submits the bulk query for one report.
func (h *StatsHandler) StartQueryAction(ctx *fiber.Ctx) error {
	reportType := ctx.Params("type")
	if !pipeline.ValidType(reportType) {
		return malformedInput(ctx, "unknown report type")
	}

	var req queryRequest
	if err := ctx.BodyParser(&req); err != nil {
		return malformedInput(ctx, "invalid request body")
	}
	if !validRange(req.Stime, req.Etime) {
		return malformedInput(ctx, "stime and etime must be positive epoch milliseconds with stime < etime")
	}

	c, err := h.resolveContainer(ctx)
	if c == nil {
		return err
	}

	id, err := h.orchestrator.Start(ctx.Context(), c.Organization, c.TID, reportType,
		time.UnixMilli(req.Stime).UTC(), time.UnixMilli(req.Etime).UTC())
	if err != nil {
		h.logger.Error("Report query submission failed",
			slog.String("tid", c.TID),
			slog.String("type", reportType),
			slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "query submission failed",
		})
	}

	return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"execution_id": id,
	})
}

// QueryResultAction waits on a submitted execution, writes the report
// documents and returns presigned download URLs.
func (h *StatsHandler) QueryResultAction(ctx *fiber.Ctx) error {
	reportType := ctx.Params("type")
	if !pipeline.ValidType(reportType) {
		return malformedInput(ctx, "unknown report type")
	}

	var req resultRequest
	if err := ctx.BodyParser(&req); err != nil {
		return malformedInput(ctx, "invalid request body")
	}
	if req.ExecutionID == "" {
		return malformedInput(ctx, "execution_id is required")
	}
	if !validRange(req.Stime, req.Etime) {
		return malformedInput(ctx, "stime and etime must be positive epoch milliseconds with stime < etime")
	}

	c, err := h.resolveContainer(ctx)
	if c == nil {
		return err
	}

	keys, err := h.orchestrator.Collect(ctx.Context(), c.Organization, c.TID, reportType,
		req.ExecutionID, time.UnixMilli(req.Stime).UTC(), time.UnixMilli(req.Etime).UTC())

	var failed *query.FailedError
	switch {
	case errors.As(err, &failed):
		return ctx.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"state":  "failed",
			"reason": failed.Reason,
		})
	case errors.Is(err, query.ErrTimeout):
		return ctx.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
			"state": "running",
		})
	case err != nil:
		h.logger.Error("Report collection failed",
			slog.String("tid", c.TID),
			slog.String("type", reportType),
			slog.String("execution_id", req.ExecutionID),
			slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "report collection failed",
		})
	}

	urls, err := h.orchestrator.Presign(ctx.Context(), keys)
	if err != nil {
		h.logger.Error("Presign failed", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "presign failed",
		})
	}

	return ctx.JSON(fiber.Map{
		"state": "succeeded",
		"files": urls,
	})
}

// GraphURLsAction serves one written event_graph document filtered down to
// the edges touching an endpoint pattern, with dangling click states
// decorated. The file name is resolved under the container's own prefix, so
// a caller can never read across containers.
func (h *StatsHandler) GraphURLsAction(ctx *fiber.Ctx) error {
	urlFilter := ctx.Query("url_filter")
	if urlFilter == "" {
		return malformedInput(ctx, "url_filter is required")
	}

	file := ctx.Params("file")
	if file == "" || strings.Contains(file, "/") || strings.Contains(file, "..") {
		return malformedInput(ctx, "invalid file name")
	}

	c, err := h.resolveContainer(ctx)
	if c == nil {
		return err
	}

	doc, err := h.writer.ReadDocument(ctx.Context(), c.Organization, c.TID, file)
	if errors.Is(err, storage.ErrNotFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "report document not found",
		})
	}
	if err != nil {
		h.logger.Error("Report document read failed",
			slog.String("tid", c.TID),
			slog.String("file", file),
			slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "report document read failed",
		})
	}
	if doc.Meta.Type != reports.TypeEventGraph {
		return malformedInput(ctx, "file is not an event_graph document")
	}

	return ctx.JSON(fiber.Map{
		"meta":   doc.Meta,
		"result": reports.FilterGraph(doc.Result, urlFilter),
	})
}
