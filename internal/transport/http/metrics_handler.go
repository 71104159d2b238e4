package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"filterfinder/internal/services"
	ws "filterfinder/internal/websocket"
)

// HubStatsProvider reports progress stream activity
type HubStatsProvider interface {
	Stats() ws.HubStats
}

// MetricsHandler serves JSON statistics. Prometheus metrics are served
// separately on /metrics.
type MetricsHandler struct {
	health *services.HealthService
	hub    HubStatsProvider
}

// NewMetricsHandler creates a new metrics handler. hub may be nil.
func NewMetricsHandler(health *services.HealthService, hub HubStatsProvider) *MetricsHandler {
	return &MetricsHandler{health: health, hub: hub}
}

// Routes sets up the stats routes
func (h *MetricsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetStats)
	r.Get("/websocket", h.GetWebSocketStats)
	return r
}

// GetStats handles GET /api/v1/stats
func (h *MetricsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.health.SystemStats(r.Context()))
}

// GetWebSocketStats handles GET /api/v1/stats/websocket
func (h *MetricsHandler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	var stats ws.HubStats
	if h.hub != nil {
		stats = h.hub.Stats()
	}
	render.JSON(w, r, stats)
}
