// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stone-hmi-service/internal/config"
	"stone-hmi-service/internal/service"
	"stone-hmi-service/internal/utils"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	displayService *service.DisplayService
	config         *config.Config
	startedAt      time.Time
	logger         *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(displayService *service.DisplayService, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		displayService: displayService,
		config:         config,
		startedAt:      time.Now(),
		logger:         utils.NewServiceLogger(logger, "health-handler"),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck performs general health check
// @Summary Health check
// @Description Get overall service health including the display link
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Service is healthy"
// @Failure 503 {object} HealthResponse "Service is unhealthy"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult),
	}

	metrics := h.displayService.Health()
	if h.displayService.IsConnected() {
		health.Checks["display"] = CheckResult{
			Status:  "healthy",
			Message: "Display link open",
			Data: map[string]interface{}{
				"health_score":     metrics.HealthScore,
				"success_rate":     metrics.SuccessRate,
				"response_time_ms": metrics.ResponseTime.Milliseconds(),
				"total_operations": metrics.TotalOperations,
			},
		}
	} else {
		health.Status = "degraded"
		health.Checks["display"] = CheckResult{
			Status:  "unhealthy",
			Message: "Display not connected",
		}
	}

	if stats := h.displayService.ConnectionStats(); stats != nil {
		health.Checks["connection"] = CheckResult{
			Status: "healthy",
			Data: map[string]interface{}{
				"bytes_written": stats.BytesWritten,
				"bytes_read":    stats.BytesRead,
				"errors":        stats.ErrorCount,
				"last_activity": stats.LastActivity,
			},
		}
	}

	// The HTTP side is up even when the display is not, so degraded stays 200
	c.JSON(http.StatusOK, health)
}

// ReadinessCheck for Kubernetes readiness probe
// @Summary Readiness check
// @Description Ready once the display link is open
// @Tags Health
// @Produce json
// @Success 200 {object} object{status=string,timestamp=string} "Service is ready"
// @Failure 503 {object} object{status=string,reason=string} "Service is not ready"
// @Router /ready [get]
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if !h.displayService.IsConnected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "display not connected",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck for Kubernetes liveness probe
// @Summary Liveness check
// @Description Check if service is alive
// @Tags Health
// @Produce json
// @Success 200 {object} object{status=string,timestamp=string} "Service is alive"
// @Router /live [get]
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
