// internal/handler/display_handler.go
package handler

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stone-hmi-service/internal/driver/stone"
	"stone-hmi-service/internal/model"
	"stone-hmi-service/internal/service"
	"stone-hmi-service/internal/utils"
)

const defaultOperationsLimit = 50

// DisplayHandler exposes the attached display over HTTP
type DisplayHandler struct {
	displayService *service.DisplayService
	logger         *utils.ServiceLogger
}

// NewDisplayHandler creates a new display handler
func NewDisplayHandler(displayService *service.DisplayService, logger *zap.Logger) *DisplayHandler {
	return &DisplayHandler{
		displayService: displayService,
		logger:         utils.NewServiceLogger(logger, "display-handler"),
	}
}

// RegisterRoutes registers read-only display routes
func (h *DisplayHandler) RegisterRoutes(router *gin.RouterGroup) {
	display := router.Group("/display")
	{
		display.GET("", h.GetDisplay)
		display.GET("/status", h.GetStatus)
		display.GET("/health", h.GetHealth)
		display.GET("/operations", h.ListOperations)
		display.GET("/registers/:addr", h.ReadRegister)
		display.GET("/variables/:addr", h.ReadVariable)
		display.GET("/rtc", h.GetRTC)
		display.GET("/page", h.GetPage)
		display.GET("/touch", h.GetTouch)
		display.GET("/runtime", h.GetRuntime)
	}
}

// RegisterWriteRoutes registers routes that change display state. They are
// kept separate so the router can rate limit them.
func (h *DisplayHandler) RegisterWriteRoutes(router *gin.RouterGroup) {
	display := router.Group("/display")
	{
		display.POST("/connect", h.Connect)
		display.POST("/disconnect", h.Disconnect)
		display.PUT("/timeout", h.SetTimeout)
		display.PUT("/registers/:addr", h.WriteRegister)
		display.PUT("/variables/:addr", h.WriteVariable)
		display.PUT("/rtc", h.SetRTC)
		display.POST("/page", h.SwitchPage)
		display.POST("/beep", h.Beep)
		display.POST("/backlight", h.SetBacklight)
		display.POST("/touch", h.SetTouch)
		display.POST("/touch/calibrate", h.CalibrateTouch)
		display.POST("/curves/clear", h.ClearCurves)
		display.POST("/reset", h.Reset)
		display.POST("/drain", h.Drain)
	}
}

// GetDisplay returns display information
// @Summary Get display
// @Description Get display information, link statistics and health
// @Tags Display
// @Produce json
// @Success 200 {object} utils.APIResponse "Display information"
// @Router /display [get]
func (h *DisplayHandler) GetDisplay(c *gin.Context) {
	info, err := h.displayService.Info(c.Request.Context())
	if err != nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Display busy", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Display retrieved successfully", gin.H{
		"display":    info,
		"connection": h.displayService.ConnectionStats(),
		"health":     h.displayService.Health(),
	})
}

// Connect opens the display link
// @Summary Connect display
// @Tags Display
// @Produce json
// @Success 200 {object} utils.APIResponse "Display connected"
// @Failure 503 {object} utils.APIResponse "Connection failed"
// @Router /display/connect [post]
func (h *DisplayHandler) Connect(c *gin.Context) {
	if err := h.displayService.Connect(c.Request.Context()); err != nil {
		logFailure(c, h.logger.Logger, "Failed to connect display", err)
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Failed to connect display", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Display connected", nil)
}

// Disconnect closes the display link
// @Summary Disconnect display
// @Tags Display
// @Produce json
// @Success 200 {object} utils.APIResponse "Display disconnected"
// @Router /display/disconnect [post]
func (h *DisplayHandler) Disconnect(c *gin.Context) {
	if err := h.displayService.Disconnect(c.Request.Context(), "api request"); err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to disconnect display", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Display disconnected", nil)
}

// GetStatus returns the link status
func (h *DisplayHandler) GetStatus(c *gin.Context) {
	status, err := h.displayService.Status(c.Request.Context())
	if err != nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Display busy", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Display status retrieved", status)
}

// GetHealth returns accumulated health metrics
func (h *DisplayHandler) GetHealth(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Display health retrieved", h.displayService.Health())
}

// ListOperations returns recent display operations
// @Summary List operations
// @Description List the most recent display exchanges, newest first
// @Tags Display
// @Produce json
// @Param limit query int false "Maximum number of operations" default(50)
// @Success 200 {object} utils.APIResponse{data=[]model.DisplayOperation} "Operations"
// @Router /display/operations [get]
func (h *DisplayHandler) ListOperations(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultOperationsLimit)))
	if err != nil || limit < 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	ops := h.displayService.RecentOperations(limit)
	utils.SuccessResponse(c, http.StatusOK, "Operations retrieved", gin.H{
		"count":      len(ops),
		"operations": ops,
	})
}

// SetTimeout changes the per-byte read timeout
// @Summary Set timeout
// @Tags Display
// @Accept json
// @Produce json
// @Param request body model.TimeoutRequest true "Timeout"
// @Success 200 {object} utils.APIResponse "Timeout updated"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Router /display/timeout [put]
func (h *DisplayHandler) SetTimeout(c *gin.Context) {
	var req model.TimeoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if err := h.displayService.SetTimeout(h.ctx(c), timeout); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to set timeout", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Timeout updated", gin.H{"timeout_ms": req.TimeoutMs})
}

// ReadRegister reads register bytes
// @Summary Read register
// @Tags Registers
// @Produce json
// @Param addr path string true "Register address, decimal or 0x-prefixed hex"
// @Param count query int false "Number of bytes" default(1)
// @Success 200 {object} utils.APIResponse{data=model.RegisterReadResponse} "Register data"
// @Failure 400 {object} utils.APIResponse "Invalid address"
// @Failure 502 {object} utils.APIResponse "Unexpected frame from display"
// @Failure 504 {object} utils.APIResponse "Display did not answer"
// @Router /display/registers/{addr} [get]
func (h *DisplayHandler) ReadRegister(c *gin.Context) {
	addr, ok := parseAddress(c, 8)
	if !ok {
		return
	}
	count, ok := parseCount(c)
	if !ok {
		return
	}

	data, err := h.displayService.ReadRegister(h.ctx(c), byte(addr), count)
	if err != nil {
		utils.DisplayErrorResponse(c, "Failed to read register", err)
		return
	}

	values := make([]int, len(data))
	for i, b := range data {
		values[i] = int(b)
	}
	utils.SuccessResponse(c, http.StatusOK, "Register read", model.RegisterReadResponse{
		Address: byte(addr),
		Data:    values,
		Hex:     hex.EncodeToString(data),
	})
}

// WriteRegister writes register bytes
// @Summary Write register
// @Tags Registers
// @Accept json
// @Produce json
// @Param addr path string true "Register address"
// @Param request body model.RegisterWriteRequest true "Bytes to write"
// @Success 200 {object} utils.APIResponse "Register written"
// @Router /display/registers/{addr} [put]
func (h *DisplayHandler) WriteRegister(c *gin.Context) {
	addr, ok := parseAddress(c, 8)
	if !ok {
		return
	}

	var req model.RegisterWriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	data := make([]byte, len(req.Data))
	for i, v := range req.Data {
		data[i] = byte(v)
	}

	if err := h.displayService.WriteRegister(h.ctx(c), byte(addr), data); err != nil {
		utils.DisplayErrorResponse(c, "Failed to write register", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Register written", gin.H{"address": addr, "bytes": len(data)})
}

// ReadVariable reads variable words
// @Summary Read variable
// @Tags Variables
// @Produce json
// @Param addr path string true "Variable address, decimal or 0x-prefixed hex"
// @Param count query int false "Number of words" default(1)
// @Success 200 {object} utils.APIResponse{data=model.VariableReadResponse} "Variable data"
// @Router /display/variables/{addr} [get]
func (h *DisplayHandler) ReadVariable(c *gin.Context) {
	addr, ok := parseAddress(c, 16)
	if !ok {
		return
	}
	count, ok := parseCount(c)
	if !ok {
		return
	}

	words, err := h.displayService.ReadVariable(h.ctx(c), uint16(addr), count)
	if err != nil {
		utils.DisplayErrorResponse(c, "Failed to read variable", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Variable read", model.VariableReadResponse{
		Address: uint16(addr),
		Words:   words,
	})
}

// WriteVariable writes variable words
// @Summary Write variable
// @Tags Variables
// @Accept json
// @Produce json
// @Param addr path string true "Variable address"
// @Param request body model.VariableWriteRequest true "Words to write"
// @Success 200 {object} utils.APIResponse "Variable written"
// @Router /display/variables/{addr} [put]
func (h *DisplayHandler) WriteVariable(c *gin.Context) {
	addr, ok := parseAddress(c, 16)
	if !ok {
		return
	}

	var req model.VariableWriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.displayService.WriteVariable(h.ctx(c), uint16(addr), req.Words); err != nil {
		utils.DisplayErrorResponse(c, "Failed to write variable", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Variable written", gin.H{"address": addr, "words": len(req.Words)})
}

// GetRTC reads the display clock
// @Summary Read clock
// @Tags Clock
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.RTCResponse} "Display clock"
// @Router /display/rtc [get]
func (h *DisplayHandler) GetRTC(c *gin.Context) {
	dt, err := h.displayService.GetRTC(h.ctx(c))
	if err != nil {
		utils.DisplayErrorResponse(c, "Failed to read clock", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Clock read", service.FromDateTime(dt))
}

// SetRTC sets the display clock from explicit fields or from the host clock
// @Summary Set clock
// @Tags Clock
// @Accept json
// @Produce json
// @Param request body model.RTCWriteRequest true "Clock value"
// @Success 200 {object} utils.APIResponse{data=model.RTCResponse} "Clock set"
// @Router /display/rtc [put]
func (h *DisplayHandler) SetRTC(c *gin.Context) {
	var req model.RTCWriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var dt stone.DateTime
	if req.SyncHost {
		dt = stone.FromTime(time.Now())
	} else {
		if errs := validateRTCRequest(&req); len(errs) > 0 {
			utils.ValidationErrorResponse(c, errs)
			return
		}
		dt = stone.NewDateTime(req.Year, req.Month, req.Day, req.Week, req.Hour, req.Minute, req.Second)
	}

	if err := h.displayService.SetRTC(h.ctx(c), dt, req.SyncHost); err != nil {
		utils.DisplayErrorResponse(c, "Failed to set clock", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Clock set", service.FromDateTime(dt))
}

// validateRTCRequest rejects values the display would otherwise clamp
func validateRTCRequest(req *model.RTCWriteRequest) map[string]string {
	errs := make(map[string]string)
	check := func(field string, v, lo, hi int) {
		if v < lo || v > hi {
			errs[field] = fmt.Sprintf("must be between %d and %d", lo, hi)
		}
	}
	check("year", req.Year, 2000, 2099)
	check("month", req.Month, 1, 12)
	check("day", req.Day, 1, 31)
	check("week", int(req.Week), 0, 6)
	check("hour", req.Hour, 0, 23)
	check("minute", req.Minute, 0, 59)
	check("second", req.Second, 0, 59)
	return errs
}

// GetPage returns the displayed page id
func (h *DisplayHandler) GetPage(c *gin.Context) {
	id, err := h.displayService.CurrentPage(h.ctx(c))
	if err != nil {
		utils.DisplayErrorResponse(c, "Failed to read page", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Page read", gin.H{"page_id": id})
}

// SwitchPage shows another page
// @Summary Switch page
// @Tags Display
// @Accept json
// @Produce json
// @Param request body model.PageRequest true "Page"
// @Success 200 {object} utils.APIResponse "Page switched"
// @Router /display/page [post]
func (h *DisplayHandler) SwitchPage(c *gin.Context) {
	var req model.PageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.displayService.SwitchPage(h.ctx(c), req.PageID); err != nil {
		utils.DisplayErrorResponse(c, "Failed to switch page", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Page switched", gin.H{"page_id": req.PageID})
}

// Beep sounds the buzzer
func (h *DisplayHandler) Beep(c *gin.Context) {
	var req model.BeepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.displayService.Beep(h.ctx(c), time.Duration(req.DurationMs)*time.Millisecond); err != nil {
		utils.DisplayErrorResponse(c, "Failed to beep", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Beep sent", gin.H{"duration_ms": req.DurationMs})
}

// SetBacklight sets the backlight level
func (h *DisplayHandler) SetBacklight(c *gin.Context) {
	var req model.BacklightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.displayService.SetBacklight(h.ctx(c), req.Level); err != nil {
		utils.DisplayErrorResponse(c, "Failed to set backlight", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Backlight set", gin.H{"level": req.Level})
}

// GetTouch returns the last touch report
func (h *DisplayHandler) GetTouch(c *gin.Context) {
	ts, err := h.displayService.TouchState(h.ctx(c))
	if err != nil {
		utils.DisplayErrorResponse(c, "Failed to read touch state", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Touch state read", gin.H{
		"touch":  ts,
		"status": ts.Status.String(),
	})
}

// SetTouch enables or disables touch input
func (h *DisplayHandler) SetTouch(c *gin.Context) {
	var req model.TouchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.displayService.SetTouchEnabled(h.ctx(c), req.Enabled); err != nil {
		utils.DisplayErrorResponse(c, "Failed to set touch", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Touch updated", gin.H{"enabled": req.Enabled})
}

// CalibrateTouch starts touch calibration
func (h *DisplayHandler) CalibrateTouch(c *gin.Context) {
	if err := h.displayService.CalibrateTouch(h.ctx(c)); err != nil {
		utils.DisplayErrorResponse(c, "Failed to start calibration", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Calibration started", nil)
}

// ClearCurves clears curve buffers
func (h *DisplayHandler) ClearCurves(c *gin.Context) {
	var req model.CurvesClearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	channel := -1
	if req.Channel != nil {
		channel = *req.Channel
	}

	if err := h.displayService.ClearCurves(h.ctx(c), channel); err != nil {
		utils.DisplayErrorResponse(c, "Failed to clear curves", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Curves cleared", gin.H{"channel": req.Channel})
}

// GetRuntime returns the display's power-on time
func (h *DisplayHandler) GetRuntime(c *gin.Context) {
	rt, err := h.displayService.Runtime(h.ctx(c))
	if err != nil {
		utils.DisplayErrorResponse(c, "Failed to read runtime", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Runtime read", gin.H{
		"runtime":         rt.String(),
		"runtime_seconds": int64(rt.Seconds()),
	})
}

// Reset reboots the display
// @Summary Reset display
// @Tags Display
// @Produce json
// @Success 200 {object} utils.APIResponse "Reset sent"
// @Router /display/reset [post]
func (h *DisplayHandler) Reset(c *gin.Context) {
	if err := h.displayService.ResetDisplay(h.ctx(c)); err != nil {
		utils.DisplayErrorResponse(c, "Failed to reset display", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Reset sent", nil)
}

// Drain discards unread input on the link
func (h *DisplayHandler) Drain(c *gin.Context) {
	n, err := h.displayService.Drain(h.ctx(c))
	if err != nil {
		utils.DisplayErrorResponse(c, "Failed to drain input", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Input drained", gin.H{"dropped_bytes": n})
}

func (h *DisplayHandler) ctx(c *gin.Context) context.Context {
	return service.WithRequestID(c.Request.Context(), utils.GetRequestID(c))
}

// logFailure logs err tagged with the ID of the request that hit it
func logFailure(c *gin.Context, logger *zap.Logger, message string, err error, fields ...zap.Field) {
	utils.LogError(utils.LoggerWithRequestID(logger, utils.GetRequestID(c)), message, err, fields...)
}

// parseAddress reads the :addr path parameter as an unsigned value of the
// given bit size; 0x-prefixed hex is accepted.
func parseAddress(c *gin.Context, bits int) (uint64, bool) {
	addr, err := strconv.ParseUint(c.Param("addr"), 0, bits)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid address", err)
		return 0, false
	}
	return addr, true
}

func parseCount(c *gin.Context) (byte, bool) {
	count, err := strconv.ParseUint(c.DefaultQuery("count", "1"), 10, 8)
	if err != nil || count == 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, "count must be between 1 and 255", err)
		return 0, false
	}
	return byte(count), true
}
