package health

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler serves the aggregated check results.
type Handler struct {
	logger   *slog.Logger
	checkers []Checker
}

// NewHandler creates the health route handler.
func NewHandler(log *slog.Logger, checkers []Checker) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		logger:   log.With(slog.String("handler", "health")),
		checkers: checkers,
	}
}

// Register registers the health routes.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)
	e.HEAD("/healthz", h.HealthzHead)
}

// Healthz runs every check and reports 503 when any fails.
func (h *Handler) Healthz(c echo.Context) error {
	results := Run(c.Request().Context(), h.checkers)
	status := http.StatusOK
	if !Healthy(results) {
		status = http.StatusServiceUnavailable
		for _, r := range results {
			if r.Status != StatusOK {
				h.logger.Warn("health check failed",
					slog.String("check", r.ID),
					slog.String("detail", r.Detail))
			}
		}
	}
	return c.JSON(status, map[string]any{
		"status": statusWord(results),
		"checks": results,
	})
}

// HealthzHead serves probes that only want the status code.
func (h *Handler) HealthzHead(c echo.Context) error {
	if !Healthy(Run(c.Request().Context(), h.checkers)) {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusOK)
}

func statusWord(results []CheckResult) string {
	if Healthy(results) {
		return StatusOK
	}
	return StatusError
}
