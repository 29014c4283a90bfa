package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics http.Handler
	db      pinger
	cache   pinger
}

// NewMetricsHandler constructs a metrics handler. cache may be nil.
func NewMetricsHandler(metrics http.Handler, db pinger, cache pinger) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, db: db, cache: cache}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.ServeHTTP(c.Writer, c.Request)
}

// Health godoc
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *MetricsHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"status": "ok", "database": "ok"}
	status := http.StatusOK
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			body["status"] = "degraded"
			body["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if h.cache != nil {
		body["cache"] = "ok"
		if err := h.cache.PingContext(ctx); err != nil {
			// the cache is optional; report it without failing the check
			body["cache"] = err.Error()
		}
	}
	c.JSON(status, body)
}
