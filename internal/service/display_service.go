// internal/service/display_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stone-hmi-service/internal/config"
	internalDriver "stone-hmi-service/internal/driver"
	"stone-hmi-service/internal/driver/stone"
	"stone-hmi-service/internal/model"
	"stone-hmi-service/internal/protocol"
	"stone-hmi-service/internal/utils"
	"stone-hmi-service/pkg/driver"
)

// ErrNotConnected is returned when an operation needs an open display link
var ErrNotConnected = fmt.Errorf("display not connected: %w", stone.ErrNotReady)

// ConnectionFactory creates a fresh, unopened display link
type ConnectionFactory func() (protocol.Connection, error)

// LinkObserver receives protocol metrics and link state changes
type LinkObserver interface {
	stone.Observer
	SetConnected(connected bool)
}

type requestIDKey struct{}

// WithRequestID attaches an API request ID to ctx for operation records
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// DisplayService owns the display link and serialises every exchange on it
type DisplayService struct {
	// sem is a one-slot lock that can be abandoned when ctx ends
	sem chan struct{}

	cfg      *config.DisplayConfig
	connType string
	registry *internalDriver.Registry
	connect  ConnectionFactory
	observer LinkObserver
	events   driver.EventHandler

	logger      *utils.ServiceLogger
	deviceLog   *utils.DeviceLogger
	auditLogger *utils.AuditLogger

	// guarded by sem
	conn        protocol.Connection
	display     *stone.Display
	status      model.DisplayStatus
	lastErr     error
	connectedAt *time.Time
	firmware    *int

	health healthTracker
	ops    *OperationLog
}

// NewDisplayService creates the display service. observer and events may be nil.
func NewDisplayService(
	cfg *config.Config,
	registry *internalDriver.Registry,
	connect ConnectionFactory,
	observer LinkObserver,
	events driver.EventHandler,
	logger *zap.Logger,
) *DisplayService {
	display := cfg.Display
	return &DisplayService{
		sem:         make(chan struct{}, 1),
		cfg:         &display,
		connType:    cfg.Connection.Type,
		registry:    registry,
		connect:     connect,
		observer:    observer,
		events:      events,
		logger:      utils.NewServiceLogger(logger, "display-service"),
		deviceLog:   utils.NewDeviceLogger(logger, display.DeviceID, display.Model, cfg.Connection.Type),
		auditLogger: utils.NewAuditLogger(logger),
		status:      model.DisplayStatusOffline,
		ops:         NewOperationLog(defaultOperationLogSize),
	}
}

func (s *DisplayService) lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *DisplayService) unlock() { <-s.sem }

// Connect opens the link and attaches the protocol driver. Connecting an
// already connected display is a no-op.
func (s *DisplayService) Connect(ctx context.Context) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	if s.display != nil {
		return nil
	}
	s.status = model.DisplayStatusConnecting

	conn, err := s.connect()
	if err != nil {
		return s.connectFailed("create_connection", fmt.Errorf("failed to create connection: %w", err))
	}
	if err := conn.Open(ctx); err != nil {
		return s.connectFailed("open", fmt.Errorf("failed to open connection: %w", err))
	}

	opts := []stone.Option{
		stone.WithHeader(s.registry.ResolveHeader(s.cfg.Model, s.cfg.HeaderHigh, s.cfg.HeaderLow)),
		stone.WithTimeout(s.cfg.Timeout),
		stone.WithPollInterval(s.cfg.PollInterval),
		stone.WithLogger(s.deviceLog.Logger),
	}
	if s.observer != nil {
		opts = append(opts, stone.WithObserver(s.observer))
	}

	display, err := s.registry.CreateDriver(s.cfg.Model, conn, opts...)
	if err != nil {
		_ = conn.Close()
		return s.connectFailed("create_driver", fmt.Errorf("failed to create driver: %w", err))
	}

	now := time.Now()
	s.conn = conn
	s.display = display
	s.status = model.DisplayStatusOnline
	s.lastErr = nil
	s.connectedAt = &now
	s.health.reset()

	if s.observer != nil {
		s.observer.SetConnected(true)
	}
	s.deviceLog.LogConnection("connect", nil)
	if s.events != nil {
		s.events.OnDeviceConnected(s.cfg.DeviceID)
	}

	if v, err := display.FirmwareVersion(); err == nil {
		fw := int(v)
		s.firmware = &fw
	} else {
		s.deviceLog.Warn("Failed to read firmware version", zap.Error(err))
	}

	if s.cfg.SyncRTCOnStart {
		start := time.Now()
		err := display.SyncRTC(time.Now())
		s.record(ctx, model.OperationTypeRTCWrite, start, err)
		if err == nil {
			s.auditLogger.LogClockChange(s.cfg.DeviceID, "", stone.FromTime(start).String(), true)
		}
	}

	return nil
}

func (s *DisplayService) connectFailed(action string, err error) error {
	s.status = model.DisplayStatusError
	s.lastErr = err
	s.deviceLog.LogConnection(action, err)
	if s.events != nil {
		s.events.OnDeviceError(s.cfg.DeviceID, err)
	}
	return err
}

// Disconnect detaches the driver and closes the link
func (s *DisplayService) Disconnect(ctx context.Context, reason string) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	return s.disconnectLocked(reason)
}

func (s *DisplayService) disconnectLocked(reason string) error {
	if s.conn == nil {
		s.status = model.DisplayStatusOffline
		return nil
	}

	err := s.conn.Close()
	s.conn = nil
	s.display = nil
	s.connectedAt = nil
	s.status = model.DisplayStatusOffline

	if s.observer != nil {
		s.observer.SetConnected(false)
	}
	s.deviceLog.LogConnection("disconnect", err)
	if s.events != nil {
		s.events.OnDeviceDisconnected(s.cfg.DeviceID, reason)
	}

	if err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// IsConnected reports whether a driver is attached
func (s *DisplayService) IsConnected() bool {
	s.sem <- struct{}{}
	defer s.unlock()
	return s.display != nil
}

// Info returns the service's view of the display
func (s *DisplayService) Info(ctx context.Context) (*model.Display, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	info := &model.Display{
		DeviceID:        s.cfg.DeviceID,
		Model:           s.cfg.Model,
		Manufacturer:    "STONE",
		FirmwareVersion: s.firmware,
		ConnectionType:  model.ConnectionType(strings.ToUpper(s.connType)),
		TimeoutMs:       s.cfg.Timeout.Milliseconds(),
		Status:          s.status,
		ConnectedAt:     s.connectedAt,
	}
	info.HeaderHigh, info.HeaderLow = s.registry.ResolveHeader(s.cfg.Model, s.cfg.HeaderHigh, s.cfg.HeaderLow)
	if s.conn != nil {
		info.ConnectionType = s.conn.Type()
	}
	if s.display != nil {
		info.HeaderHigh, info.HeaderLow = s.display.Header()
		info.TimeoutMs = s.display.Timeout().Milliseconds()
	}
	if s.lastErr != nil {
		msg := s.lastErr.Error()
		info.LastError = &msg
	}
	return info, nil
}

// Status returns the current link status
func (s *DisplayService) Status(ctx context.Context) (*driver.DeviceStatus, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	st := &driver.DeviceStatus{
		Status:   string(s.status),
		IsReady:  s.display != nil,
		HasError: s.lastErr != nil,
	}
	if s.lastErr != nil {
		st.ErrorMessage = s.lastErr.Error()
	}
	if last := s.health.snapshot(true, 0).LastSuccessTime; last != nil {
		st.LastResponse = *last
	}
	return st, nil
}

// Health returns accumulated health metrics since the last connect
func (s *DisplayService) Health() driver.HealthMetrics {
	s.sem <- struct{}{}
	connected := s.display != nil
	timeout := s.cfg.Timeout
	if s.display != nil {
		timeout = s.display.Timeout()
	}
	s.unlock()

	return s.health.snapshot(connected, timeout)
}

// ConnectionStats returns transport statistics, or nil when disconnected
func (s *DisplayService) ConnectionStats() *protocol.ProtocolStats {
	s.sem <- struct{}{}
	defer s.unlock()

	if s.conn == nil {
		return nil
	}
	stats := s.conn.Stats()
	return &stats
}

// RecentOperations returns up to limit recorded operations, newest first
func (s *DisplayService) RecentOperations(limit int) []model.DisplayOperation {
	return s.ops.Recent(limit)
}

// exec runs fn against the attached display while holding the lock and
// records the outcome.
func (s *DisplayService) exec(ctx context.Context, opType model.OperationType, fn func(d *stone.Display) error) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	if s.display == nil {
		return ErrNotConnected
	}

	start := time.Now()
	err := fn(s.display)
	s.record(ctx, opType, start, err)
	return err
}

// record must be called with the lock held
func (s *DisplayService) record(ctx context.Context, opType model.OperationType, start time.Time, err error) {
	duration := time.Since(start)
	s.health.record(duration, err)

	op := model.DisplayOperation{
		ID:            uuid.New(),
		DeviceID:      s.cfg.DeviceID,
		OperationType: opType,
		Status:        operationStatus(err),
		StartedAt:     start,
		DurationMs:    duration.Milliseconds(),
		RequestID:     requestIDFrom(ctx),
	}
	if err != nil {
		msg := err.Error()
		op.ErrorMessage = &msg
		s.lastErr = err
	}
	s.ops.Add(op)
	s.deviceLog.LogOperation(string(opType), op.ID.String(), duration, err)
}

func operationStatus(err error) model.OperationStatus {
	switch {
	case err == nil:
		return model.OperationStatusSuccess
	case errors.Is(err, stone.ErrTimeout):
		return model.OperationStatusTimeout
	case errors.Is(err, stone.ErrFrameMismatch):
		return model.OperationStatusMismatch
	default:
		return model.OperationStatusFailed
	}
}

// SetTimeout changes the per-byte read timeout
func (s *DisplayService) SetTimeout(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", timeout)
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	old := s.cfg.Timeout
	s.cfg.Timeout = timeout
	if s.display != nil {
		old = s.display.Timeout()
		s.display.SetTimeout(timeout)
	}
	s.auditLogger.LogTimeoutChange(s.cfg.DeviceID, requestIDFrom(ctx), old, timeout)
	return nil
}

// Drain discards unread input and returns the number of bytes dropped
func (s *DisplayService) Drain(ctx context.Context) (int, error) {
	var n int
	err := s.exec(ctx, model.OperationTypeStatusCheck, func(d *stone.Display) error {
		n = d.DrainInput()
		return nil
	})
	return n, err
}

// ReadRegister reads n bytes starting at register addr
func (s *DisplayService) ReadRegister(ctx context.Context, addr, n byte) ([]byte, error) {
	var data []byte
	err := s.exec(ctx, model.OperationTypeRegisterRead, func(d *stone.Display) (err error) {
		data, err = d.ReadRegister(addr, n)
		return err
	})
	return data, err
}

// WriteRegister writes data starting at register addr
func (s *DisplayService) WriteRegister(ctx context.Context, addr byte, data []byte) error {
	return s.exec(ctx, model.OperationTypeRegisterWrite, func(d *stone.Display) error {
		return d.WriteRegister(addr, data)
	})
}

// ReadVariable reads n words starting at variable addr
func (s *DisplayService) ReadVariable(ctx context.Context, addr uint16, n byte) ([]uint16, error) {
	var words []uint16
	err := s.exec(ctx, model.OperationTypeVariableRead, func(d *stone.Display) (err error) {
		words, err = d.ReadVariable(addr, n)
		return err
	})
	return words, err
}

// WriteVariable writes words starting at variable addr
func (s *DisplayService) WriteVariable(ctx context.Context, addr uint16, words []uint16) error {
	return s.exec(ctx, model.OperationTypeVariableWrite, func(d *stone.Display) error {
		return d.WriteVariable(addr, words)
	})
}

// GetRTC reads the display clock
func (s *DisplayService) GetRTC(ctx context.Context) (stone.DateTime, error) {
	var dt stone.DateTime
	err := s.exec(ctx, model.OperationTypeRTCRead, func(d *stone.Display) (err error) {
		dt, err = d.GetRTC()
		return err
	})
	return dt, err
}

// SetRTC writes the display clock
func (s *DisplayService) SetRTC(ctx context.Context, dt stone.DateTime, fromHost bool) error {
	err := s.exec(ctx, model.OperationTypeRTCWrite, func(d *stone.Display) error {
		return d.SetRTC(dt)
	})
	if err == nil {
		s.auditLogger.LogClockChange(s.cfg.DeviceID, requestIDFrom(ctx), dt.String(), fromHost)
	}
	return err
}

// SwitchPage shows page id
func (s *DisplayService) SwitchPage(ctx context.Context, id uint16) error {
	return s.exec(ctx, model.OperationTypeSwitchPage, func(d *stone.Display) error {
		return d.SwitchPage(id)
	})
}

// CurrentPage returns the displayed page id
func (s *DisplayService) CurrentPage(ctx context.Context) (uint16, error) {
	var id uint16
	err := s.exec(ctx, model.OperationTypeSwitchPage, func(d *stone.Display) (err error) {
		id, err = d.CurrentPage()
		return err
	})
	return id, err
}

// Beep sounds the buzzer
func (s *DisplayService) Beep(ctx context.Context, duration time.Duration) error {
	return s.exec(ctx, model.OperationTypeBeep, func(d *stone.Display) error {
		return d.Beep(duration)
	})
}

// SetBacklight sets the backlight level
func (s *DisplayService) SetBacklight(ctx context.Context, level byte) error {
	return s.exec(ctx, model.OperationTypeBacklight, func(d *stone.Display) error {
		return d.SetBacklight(level)
	})
}

// TouchState reads the last touch report
func (s *DisplayService) TouchState(ctx context.Context) (stone.TouchState, error) {
	var ts stone.TouchState
	err := s.exec(ctx, model.OperationTypeTouch, func(d *stone.Display) (err error) {
		ts, err = d.TouchState()
		return err
	})
	return ts, err
}

// SetTouchEnabled turns touch input on or off
func (s *DisplayService) SetTouchEnabled(ctx context.Context, enabled bool) error {
	return s.exec(ctx, model.OperationTypeTouch, func(d *stone.Display) error {
		return d.SetTouchEnabled(enabled)
	})
}

// CalibrateTouch starts the touch calibration screen
func (s *DisplayService) CalibrateTouch(ctx context.Context) error {
	return s.exec(ctx, model.OperationTypeTouch, func(d *stone.Display) error {
		return d.CalibrateTouch()
	})
}

// ClearCurves clears one curve channel, or all of them for a negative channel
func (s *DisplayService) ClearCurves(ctx context.Context, channel int) error {
	return s.exec(ctx, model.OperationTypeCurves, func(d *stone.Display) error {
		return d.ClearCurves(channel)
	})
}

// Runtime returns the display's accumulated power-on time
func (s *DisplayService) Runtime(ctx context.Context) (time.Duration, error) {
	var rt time.Duration
	err := s.exec(ctx, model.OperationTypeStatusCheck, func(d *stone.Display) (err error) {
		rt, err = d.Runtime()
		return err
	})
	return rt, err
}

// ResetDisplay reboots the display
func (s *DisplayService) ResetDisplay(ctx context.Context) error {
	err := s.exec(ctx, model.OperationTypeReset, func(d *stone.Display) error {
		return d.ResetDisplay()
	})
	s.auditLogger.LogReset(s.cfg.DeviceID, requestIDFrom(ctx), err == nil)
	return err
}

// FromDateTime converts a display clock value for API responses
func FromDateTime(dt stone.DateTime) model.RTCResponse {
	return model.RTCResponse{
		Year:     dt.Year(),
		Month:    dt.Month(),
		Day:      dt.Day(),
		Week:     dt.Week(),
		Hour:     dt.Hour(),
		Minute:   dt.Minute(),
		Second:   dt.Second(),
		ISO8601:  dt.Time(time.Local).Format(time.RFC3339),
		Readable: dt.String(),
	}
}
