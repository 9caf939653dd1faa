package status

import (
	"errors"

	"catalogue-ingester/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// HealthPath is served without an API key.
const HealthPath = "/healthz"

// Handler handles HTTP requests for the status endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the status routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Get(HealthPath, h.HandleHealth)

	group := app.Group("/status")
	group.Get("/", h.HandleStatus)
	group.Get("/failures", h.HandleFailures)
}

// HandleHealth reports that the process is up.
func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// HandleStatus returns the controller counters.
func (h *Handler) HandleStatus(c *fiber.Ctx) error {
	return c.JSON(h.service.Report())
}

// HandleFailures returns recently recorded failed keys.
func (h *Handler) HandleFailures(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must not be negative"})
	}

	rows, err := h.service.RecentFailures(c.UserContext(), limit)
	if errors.Is(err, ErrLedgerDisabled) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		l.Error("Failed to list failed keys", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"count":    len(rows),
		"failures": rows,
	})
}
