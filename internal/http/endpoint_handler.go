package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"log/slog"

	"tagstats/internal/containers"
	"tagstats/internal/pathtree"
	"tagstats/internal/reports"
	"tagstats/internal/storage"
)

// EndpointDocHandler manages a container's endpoint documentation. Report
// runs seed the doc from observed traffic; this API lets operators read and
// edit it.
type EndpointDocHandler struct {
	writer     *reports.Writer
	containers containers.Store
	logger     *slog.Logger
}

func NewEndpointDocHandler(w *reports.Writer, cs containers.Store, logger *slog.Logger) *EndpointDocHandler {
	return &EndpointDocHandler{writer: w, containers: cs, logger: logger}
}

func (h *EndpointDocHandler) resolveContainer(ctx *fiber.Ctx) (*containers.Container, error) {
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

// ShowAction returns the container's endpoint documentation.
func (h *EndpointDocHandler) ShowAction(ctx *fiber.Ctx) error {
	c, err := h.resolveContainer(ctx)
	if c == nil {
		return err
	}

	doc, err := h.writer.ReadEndpointDoc(ctx.Context(), c.Organization, c.TID)
	if errors.Is(err, storage.ErrNotFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "endpoint documentation not found",
		})
	}
	if err != nil {
		h.logger.Error("Endpoint doc read failed", slog.String("tid", c.TID), slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "endpoint documentation read failed",
		})
	}
	return ctx.JSON(doc)
}

// UpdateAction replaces the container's endpoint documentation.
func (h *EndpointDocHandler) UpdateAction(ctx *fiber.Ctx) error {
	var doc pathtree.EndpointDoc
	if err := ctx.BodyParser(&doc); err != nil || doc.Paths == nil {
		return malformedInput(ctx, "body must be an endpoint document with a paths object")
	}
	for p := range doc.Paths {
		if !strings.HasPrefix(p, "/") {
			return malformedInput(ctx, "every path must start with /")
		}
	}

	c, err := h.resolveContainer(ctx)
	if c == nil {
		return err
	}

	if _, err := h.writer.WriteEndpointDoc(ctx.Context(), c.Organization, c.TID, doc); err != nil {
		h.logger.Error("Endpoint doc write failed", slog.String("tid", c.TID), slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "endpoint documentation write failed",
		})
	}
	return ctx.JSON(doc)
}
