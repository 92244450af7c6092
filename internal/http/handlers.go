package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-forecast-service/internal/lifecycle"
	"github.com/kjstillabower/weather-forecast-service/internal/service"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	forecastService *service.ForecastService
	serviceName     string
	version         string
	logger          *zap.Logger
	// storePing, when set, is called to check cache reachability. Used when
	// the backend is memcached or redis.
	storePing func() error

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(forecastService *service.ForecastService, serviceName, version string, logger *zap.Logger, storePing func() error) *Handler {
	return &Handler{
		forecastService: forecastService,
		serviceName:     serviceName,
		version:         version,
		logger:          logger,
		storePing:       storePing,
	}
}

// GetForecast handles GET /forecast. Failed responses carry a do-not-cache
// directive so intermediaries never retain them.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	resp := h.forecastService.GetAggregate(r.Context())
	resp.Service = h.serviceName
	resp.Version = h.version
	if v := r.Context().Value("correlation_id"); v != nil {
		if corrID, ok := v.(string); ok {
			resp.RequestID = corrID
		}
	}

	if resp.Success {
		w.Header().Set("Cache-Control", "public, max-age=60")
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Warn("aggregate forecast failed", zap.String("error", resp.Error))
	}
	w.Header().Set("Cache-Control", "max-age=0")
	writeJSON(w, http.StatusBadGateway, resp)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health. Not subject to caching.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if h.storePing != nil {
		if h.storePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   h.serviceName,
		"version":   h.version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, result.statusCode, resp)
}

func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
