package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cuaderno-api/internal/service"
	appErrors "github.com/noah-isme/cuaderno-api/pkg/errors"
	"github.com/noah-isme/cuaderno-api/pkg/response"
)

const readyTimeout = 2 * time.Second

// Pinger reports whether the backing store answers.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics   *service.MetricsService
	store     Pinger
	storeName string
	startedAt time.Time
}

// NewMetricsHandler constructs a metrics handler. store may be nil, in which case the
// store is reported as disconnected.
func NewMetricsHandler(metrics *service.MetricsService, store Pinger, storeName string) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, store: store, storeName: storeName, startedAt: time.Now()}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health godoc
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} response.Payload
// @Router /health [get]
func (h *MetricsHandler) Health(c *gin.Context) {
	response.OK(c, response.Payload{
		"uptime":    time.Since(h.startedAt).Seconds(),
		"store":     h.storeState(c.Request.Context()),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Ready godoc
// @Summary Readiness probe
// @Tags Health
// @Produce json
// @Success 200 {object} response.Payload
// @Failure 503 {object} response.ErrorEnvelope
// @Router /ready [get]
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.storeState(c.Request.Context()) != "connected" {
		response.Error(c, appErrors.New("SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, h.storeName+" is not reachable"))
		return
	}
	response.OK(c, response.Payload{"store": h.storeName})
}

func (h *MetricsHandler) storeState(ctx context.Context) string {
	if h.store == nil {
		return "disconnected"
	}
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := h.store.PingContext(ctx); err != nil {
		return "disconnected"
	}
	return "connected"
}
