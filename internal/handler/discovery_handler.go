// internal/handler/discovery_handler.go
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stone-hmi-service/internal/discovery"
	"stone-hmi-service/internal/utils"
)

const maxScanTimeout = 2 * time.Minute

// DiscoveryHandler probes host links for displays
type DiscoveryHandler struct {
	scanners *discovery.ScannerManager
	logger   *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(scanners *discovery.ScannerManager, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		scanners: scanners,
		logger:   utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	d := router.Group("/discovery")
	{
		d.GET("/scanners", h.GetScanners)
		d.GET("/scan", h.ScanDisplays)
	}
}

// ScanDisplays probes links for displays
// @Summary Scan for displays
// @Description Probe host links by reading the firmware version register. Ports already held by the service fail to open and are skipped.
// @Tags Discovery
// @Produce json
// @Param type query string false "Scanner type" Enums(all, serial) default(all)
// @Param timeout query string false "Scan timeout" default(30s)
// @Success 200 {object} utils.APIResponse{data=object{displays_found=int,displays=[]discovery.DiscoveredDisplay}} "Scan completed"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Router /discovery/scan [get]
func (h *DiscoveryHandler) ScanDisplays(c *gin.Context) {
	scanType := c.DefaultQuery("type", "all")
	timeout, err := time.ParseDuration(c.DefaultQuery("timeout", "30s"))
	if err != nil || timeout <= 0 || timeout > maxScanTimeout {
		utils.ErrorResponse(c, http.StatusBadRequest, "timeout must be a duration up to 2m", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	var displays []*discovery.DiscoveredDisplay
	if scanType == "all" {
		displays, err = h.scanners.ScanAll(ctx)
	} else {
		displays, err = h.scanners.ScanByType(ctx, scanType)
	}
	if err != nil && ctx.Err() == nil {
		logFailure(c, h.logger.Logger, "Failed to scan for displays", err, zap.String("type", scanType))
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to scan for displays", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Display scan completed", gin.H{
		"displays_found": len(displays),
		"displays":       displays,
		"complete":       ctx.Err() == nil,
	})
}

// GetScanners lists the available scanner types
// @Summary List scanners
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]string} "Scanners"
// @Router /discovery/scanners [get]
func (h *DiscoveryHandler) GetScanners(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Scanners retrieved", h.scanners.GetAvailableScanners())
}
