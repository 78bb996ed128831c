// Package handlers exposes the printer over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"resume-printer/internal/domain"
	"resume-printer/internal/infra/chrome"
	"resume-printer/internal/infra/logging"
)

// Printer is the print surface used by the handlers.
type Printer interface {
	PrintResume(ctx context.Context, req domain.RenderRequest) (string, error)
	PrintPreview(ctx context.Context, req domain.RenderRequest) (string, error)
	Version(ctx context.Context) (string, error)
}

// StatsProvider reports browser session counters.
type StatsProvider interface {
	Stats() chrome.Stats
}

// PrintRequest is the JSON body of the print endpoints.
type PrintRequest struct {
	ID     string          `json:"id"`
	UserID string          `json:"userId"`
	Title  string          `json:"title"`
	Data   json.RawMessage `json:"data"`
}

// PrinterHandler bundles the printer routes.
type PrinterHandler struct {
	printer Printer
	stats   StatsProvider
	timeout time.Duration
}

// NewPrinterHandler bounds each request by timeout; zero means no bound beyond the client's.
func NewPrinterHandler(p Printer, stats StatsProvider, timeout time.Duration) *PrinterHandler {
	return &PrinterHandler{printer: p, stats: stats, timeout: timeout}
}

// HandleResume prints the full resume and returns its URL.
func (h *PrinterHandler) HandleResume(c *fiber.Ctx) error {
	return h.handlePrint(c, domain.ModePDF, h.printer.PrintResume)
}

// HandlePreview prints the first page as an image and returns its URL.
func (h *PrinterHandler) HandlePreview(c *fiber.Ctx) error {
	return h.handlePrint(c, domain.ModeImage, h.printer.PrintPreview)
}

func (h *PrinterHandler) handlePrint(c *fiber.Ctx, mode domain.Mode, printFn func(context.Context, domain.RenderRequest) (string, error)) error {
	req, err := parsePrintRequest(c, mode)
	if err != nil {
		return err
	}

	ctx, cancel := h.context(c)
	defer cancel()

	url, err := printFn(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, "Printer error: "+err.Error())
	}

	logging.Info("Document printed", "mode", string(mode), "id", req.DocumentID, "request_id", c.GetRespHeader(fiber.HeaderXRequestID))
	return c.JSON(fiber.Map{"url": url})
}

func parsePrintRequest(c *fiber.Ctx, mode domain.Mode) (domain.RenderRequest, error) {
	var body PrintRequest
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return domain.RenderRequest{}, fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body: "+err.Error())
	}
	req, err := domain.ParseResume(body.ID, body.UserID, body.Title, body.Data)
	if err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := req.Validate(mode); err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return req, nil
}

// HandleVersion reports the browser product string.
func (h *PrinterHandler) HandleVersion(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	v, err := h.printer.Version(ctx)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Printer error: "+err.Error())
	}
	return c.JSON(fiber.Map{"version": v})
}

// HandleStats exposes the session counters of the browser connector.
func (h *PrinterHandler) HandleStats(c *fiber.Ctx) error {
	if h.stats == nil {
		return c.JSON(fiber.Map{"enabled": false})
	}
	return c.JSON(h.stats.Stats())
}

func (h *PrinterHandler) context(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx := c.UserContext()
	if h.timeout > 0 {
		return context.WithTimeout(ctx, h.timeout)
	}
	return context.WithCancel(ctx)
}
