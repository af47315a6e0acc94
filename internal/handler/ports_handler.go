// internal/handler/ports_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	internalDriver "stone-hmi-service/internal/driver"
	"stone-hmi-service/internal/protocol"
	"stone-hmi-service/internal/utils"
)

// PortsHandler lists local serial ports and supported display models
type PortsHandler struct {
	registry  *internalDriver.Registry
	listPorts func() ([]protocol.SerialPortInfo, error)
	logger    *utils.ServiceLogger
}

// NewPortsHandler creates a new ports handler
func NewPortsHandler(registry *internalDriver.Registry, logger *zap.Logger) *PortsHandler {
	return &PortsHandler{
		registry:  registry,
		listPorts: protocol.ListSerialPorts,
		logger:    utils.NewServiceLogger(logger, "ports-handler"),
	}
}

// RegisterRoutes registers discovery routes
func (h *PortsHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ports", h.ListPorts)
	router.GET("/models", h.ListModels)
}

// ListPorts lists serial ports a display could be attached to
// @Summary List serial ports
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{count=int,ports=[]protocol.SerialPortInfo}} "Serial ports"
// @Failure 500 {object} utils.APIResponse "Enumeration failed"
// @Router /ports [get]
func (h *PortsHandler) ListPorts(c *gin.Context) {
	ports, err := h.listPorts()
	if err != nil {
		logFailure(c, h.logger.Logger, "Failed to list serial ports", err)
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list serial ports", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Serial ports listed", gin.H{
		"count": len(ports),
		"ports": ports,
	})
}

// ListModels lists the registered display models
// @Summary List display models
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]internalDriver.ModelProfile} "Models"
// @Router /models [get]
func (h *PortsHandler) ListModels(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Display models listed", h.registry.ListModels())
}
