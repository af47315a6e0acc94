package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"stone-hmi-service/internal/config"
	"stone-hmi-service/internal/discovery"
	"stone-hmi-service/internal/displaytest"
	internalDriver "stone-hmi-service/internal/driver"
	"stone-hmi-service/internal/middleware"
	"stone-hmi-service/internal/protocol"
	"stone-hmi-service/internal/service"
	"stone-hmi-service/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router  *gin.Engine
	sim     *displaytest.Sim
	service *service.DisplayService
	bus     *EventBus
}

func newTestEnv(t *testing.T, connect bool) *testEnv {
	t.Helper()

	cfg := &config.Config{
		App: config.AppConfig{Name: "stone-hmi-service", Version: "test"},
		Display: config.DisplayConfig{
			DeviceID:      "hmi-test",
			Model:         "STONE_STVI",
			HeaderHigh:    0xA5,
			HeaderLow:     0x5A,
			Timeout:       5 * time.Millisecond,
			MaxEventWords: 8,
		},
		Connection: config.ConnectionConfig{Type: "serial"},
	}

	logger := zap.NewNop()
	registry := internalDriver.NewRegistry(logger)
	internalDriver.RegisterDefaultDrivers(registry, logger)

	sim := displaytest.NewSim()
	bus := NewEventBus(logger)
	svc := service.NewDisplayService(cfg, registry,
		func() (protocol.Connection, error) { return sim, nil },
		nil, NewDisplayEventHandler(bus, logger), logger)
	if connect {
		require.NoError(t, svc.Connect(context.Background()))
	}

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	NewHealthHandler(svc, cfg, logger).RegisterRoutes(&router.RouterGroup)

	api := router.Group("/api/v1")
	display := NewDisplayHandler(svc, logger)
	display.RegisterRoutes(api)
	display.RegisterWriteRoutes(api)

	ports := NewPortsHandler(registry, logger)
	ports.listPorts = func() ([]protocol.SerialPortInfo, error) {
		return []protocol.SerialPortInfo{{Name: "/dev/ttyUSB0"}}, nil
	}
	ports.RegisterRoutes(api)

	return &testEnv{router: router, sim: sim, service: svc, bus: bus}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, utils.APIResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp utils.APIResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func dataMap(t *testing.T, resp utils.APIResponse) map[string]interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func TestRegisterEndpoints(t *testing.T) {
	env := newTestEnv(t, true)

	rec, resp := env.do(t, http.MethodPut, "/api/v1/display/registers/0x40", map[string]interface{}{"data": []int{1, 2, 255}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RequestID)

	rec, resp = env.do(t, http.MethodGet, "/api/v1/display/registers/64?count=3", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := dataMap(t, resp)
	assert.Equal(t, "0102ff", data["hex"])
	assert.Equal(t, []interface{}{1.0, 2.0, 255.0}, data["data"])
}

func TestRegisterEndpointValidation(t *testing.T) {
	env := newTestEnv(t, true)

	rec, _ := env.do(t, http.MethodGet, "/api/v1/display/registers/0x100", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/display/registers/1?count=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPut, "/api/v1/display/registers/1", map[string]interface{}{"data": []int{256}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/display/registers/1?count=253", nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", resp.Error.Code)
}

func TestVariableEndpoints(t *testing.T) {
	env := newTestEnv(t, true)

	rec, _ := env.do(t, http.MethodPut, "/api/v1/display/variables/0x1000", map[string]interface{}{"words": []int{0x1234, 7}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, uint16(7), env.sim.Variable(0x1001))

	rec, resp := env.do(t, http.MethodGet, "/api/v1/display/variables/0x1000?count=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{float64(0x1234), 7.0}, dataMap(t, resp)["words"])
}

func TestDisplayErrorsMapToStatus(t *testing.T) {
	env := newTestEnv(t, false)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/display/registers/0", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error.Code)

	require.NoError(t, env.service.Connect(context.Background()))
	env.sim.SetSilent(true)

	rec, resp = env.do(t, http.MethodGet, "/api/v1/display/rtc", nil)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "DISPLAY_TIMEOUT", resp.Error.Code)
}

func TestRTCEndpoints(t *testing.T) {
	env := newTestEnv(t, true)

	body := map[string]interface{}{"year": 2025, "month": 3, "day": 14, "week": 5, "hour": 15, "minute": 9, "second": 26}
	rec, _ := env.do(t, http.MethodPut, "/api/v1/display/rtc", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, resp := env.do(t, http.MethodGet, "/api/v1/display/rtc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, resp)
	assert.Equal(t, 2025.0, data["year"])
	assert.Equal(t, 26.0, data["second"])

	rec, _ = env.do(t, http.MethodPut, "/api/v1/display/rtc", map[string]interface{}{"sync_host": true})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp = env.do(t, http.MethodPut, "/api/v1/display/rtc", map[string]interface{}{"year": 1999, "month": 13, "day": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errs := dataMap(t, resp)["validation_errors"].(map[string]interface{})
	assert.Contains(t, errs, "year")
	assert.Contains(t, errs, "month")
}

func TestHelperEndpoints(t *testing.T) {
	env := newTestEnv(t, true)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/display/page", map[string]interface{}{"page_id": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, resp := env.do(t, http.MethodGet, "/api/v1/display/page", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3.0, dataMap(t, resp)["page_id"])

	rec, _ = env.do(t, http.MethodPost, "/api/v1/display/beep", map[string]interface{}{"duration_ms": 200})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, byte(20), env.sim.Register(0x02))

	rec, _ = env.do(t, http.MethodPost, "/api/v1/display/beep", map[string]interface{}{"duration_ms": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/display/backlight", map[string]interface{}{"level": 64})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, byte(64), env.sim.Register(0x01))

	rec, _ = env.do(t, http.MethodPost, "/api/v1/display/curves/clear", map[string]interface{}{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, byte(0x55), env.sim.Register(0xEB))

	env.sim.SetRegister(0x05, 0x5A, 0x01, 0x00, 0x10, 0x00, 0x20)
	rec, resp = env.do(t, http.MethodGet, "/api/v1/display/touch", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pressed", dataMap(t, resp)["status"])

	env.sim.SetRegister(0x0C, 0x00, 0x01, 0x02, 0x03)
	rec, resp = env.do(t, http.MethodGet, "/api/v1/display/runtime", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3723.0, dataMap(t, resp)["runtime_seconds"])

	rec, _ = env.do(t, http.MethodPost, "/api/v1/display/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, byte(0x5A), env.sim.Register(0xEE))

	env.sim.Inject(1, 2)
	rec, resp = env.do(t, http.MethodPost, "/api/v1/display/drain", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, dataMap(t, resp)["dropped_bytes"])
}

func TestTimeoutAndOperations(t *testing.T) {
	env := newTestEnv(t, true)

	rec, _ := env.do(t, http.MethodPut, "/api/v1/display/timeout", map[string]interface{}{"timeout_ms": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPut, "/api/v1/display/timeout", map[string]interface{}{"timeout_ms": 300})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/display", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	display := dataMap(t, resp)["display"].(map[string]interface{})
	assert.Equal(t, 300.0, display["timeout_ms"])
	assert.Equal(t, "ONLINE", display["status"])

	env.do(t, http.MethodGet, "/api/v1/display/registers/0", nil)
	rec, resp = env.do(t, http.MethodGet, "/api/v1/display/operations?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, resp)
	assert.Equal(t, 1.0, data["count"])
	op := data["operations"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "REGISTER_READ", op["operation_type"])
	assert.NotEmpty(t, op["request_id"])
}

func TestConnectDisconnectEndpoints(t *testing.T) {
	env := newTestEnv(t, false)

	rec, _ := env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/display/connect", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/display/disconnect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.service.IsConnected())

	env.sim.SetOpenError(errors.New("port busy"))
	rec, resp := env.do(t, http.MethodPost, "/api/v1/display/connect", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, resp.Error.Details, "port busy")
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, true)

	rec, _ := env.do(t, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Checks["display"].Status)
	assert.Contains(t, health.Checks, "connection")
}

func TestPortsEndpoints(t *testing.T) {
	env := newTestEnv(t, false)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/ports", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, dataMap(t, resp)["count"])

	rec, resp = env.do(t, http.MethodGet, "/api/v1/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 4)
}

func TestPortsFailureLogsRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ports := NewPortsHandler(internalDriver.NewRegistry(zap.NewNop()), zap.New(core))
	ports.listPorts = func() ([]protocol.SerialPortInfo, error) {
		return nil, errors.New("permission denied")
	}

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	ports.RegisterRoutes(router.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ports", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	entries := logs.FilterMessage("Failed to list serial ports").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "permission denied", fields["error"])
	assert.Equal(t, "ports-handler", fields["service"])
}

type fixedScanner struct{}

func (fixedScanner) Scan(context.Context) ([]*discovery.DiscoveredDisplay, error) {
	return []*discovery.DiscoveredDisplay{{
		ConnectionType:  "SERIAL",
		ConnectionInfo:  map[string]interface{}{"port": "/dev/ttyUSB0"},
		FirmwareVersion: 3,
	}}, nil
}
func (fixedScanner) GetScannerType() string { return "serial" }
func (fixedScanner) IsAvailable() bool      { return true }

func TestDiscoveryEndpoints(t *testing.T) {
	scanners := discovery.NewScannerManager(zap.NewNop())
	scanners.RegisterScanner(fixedScanner{})

	router := gin.New()
	NewDiscoveryHandler(scanners, zap.NewNop()).RegisterRoutes(router.Group("/api/v1"))
	env := &testEnv{router: router}

	rec, resp := env.do(t, http.MethodGet, "/api/v1/discovery/scan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, resp)
	assert.Equal(t, 1.0, data["displays_found"])
	assert.Equal(t, true, data["complete"])

	rec, _ = env.do(t, http.MethodGet, "/api/v1/discovery/scan?type=usb", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/discovery/scan?timeout=forever", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = env.do(t, http.MethodGet, "/api/v1/discovery/scanners", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"serial"}, resp.Data)
}
