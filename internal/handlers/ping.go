package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a backing service is reachable. *pgxpool.Pool
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingHandler struct {
	logger *slog.Logger
	db     Pinger
}

func NewPingHandler(log *slog.Logger, db Pinger) *PingHandler {
	return &PingHandler{logger: log.With(slog.String("handler", "ping")), db: db}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.GET("/health", h.Health)
	e.HEAD("/health", h.Health)
}

func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Health godoc
// @Summary Readiness check
// @Description Reports 503 while the database is unreachable
// @Tags health
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *PingHandler) Health(c echo.Context) error {
	status := http.StatusOK
	body := map[string]string{"status": "ok", "database": "ok"}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("database ping failed", slog.Any("error", err))
			status = http.StatusServiceUnavailable
			body = map[string]string{"status": "degraded", "database": "unreachable"}
		}
	}
	if c.Request().Method == http.MethodHead {
		return c.NoContent(status)
	}
	return c.JSON(status, body)
}
