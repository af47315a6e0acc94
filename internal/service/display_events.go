// internal/service/display_events.go
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"stone-hmi-service/internal/driver/stone"
	"stone-hmi-service/internal/model"
	"stone-hmi-service/pkg/driver"
)

// maxEventsPerTick bounds how long one poll holds the display lock
const maxEventsPerTick = 16

// ErrLinkLost is reported when the transport dies underneath a connected display
var ErrLinkLost = errors.New("display link lost")

// StartEventPolling polls the display for unsolicited frames until ctx ends
func (s *DisplayService) StartEventPolling(ctx context.Context) {
	interval := s.cfg.EventPollInterval
	if interval <= 0 {
		s.logger.Info("Event polling disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Event polling started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Event polling stopped")
			return
		case <-ticker.C:
			for _, ev := range s.PollEvents(ctx) {
				if s.events != nil {
					s.events.OnDisplayEvent(s.cfg.DeviceID, ev)
				}
			}
		}
	}
}

// PollEvents collects the events currently buffered on the link. Frame
// errors are reported to the event handler and end the batch.
func (s *DisplayService) PollEvents(ctx context.Context) []*driver.InputEvent {
	if err := s.lock(ctx); err != nil {
		return nil
	}
	defer s.unlock()

	if s.display == nil {
		return nil
	}
	if !s.conn.IsOpen() {
		s.lastErr = ErrLinkLost
		s.status = model.DisplayStatusError
		s.logger.Warn("Display link lost, detaching driver", zap.String("device_id", s.cfg.DeviceID))
		_ = s.disconnectLocked(ErrLinkLost.Error())
		s.status = model.DisplayStatusError
		return nil
	}

	var events []*driver.InputEvent
	for i := 0; i < maxEventsPerTick; i++ {
		ev, err := s.display.PollEvent(byte(s.cfg.MaxEventWords))
		if err != nil {
			s.lastErr = err
			s.deviceLog.Debug("Event frame rejected", zap.Error(err))
			if s.events != nil {
				s.events.OnDeviceError(s.cfg.DeviceID, err)
			}
			break
		}
		if ev == nil {
			if s.conn.Buffered() == 0 {
				break
			}
			// a stray byte was consumed, keep scanning
			continue
		}
		events = append(events, toInputEvent(ev))
	}
	return events
}

func toInputEvent(ev *stone.Event) *driver.InputEvent {
	return &driver.InputEvent{
		Command:    ev.Command,
		Address:    ev.Address,
		DataLen:    ev.DataLen,
		Data:       ev.Data,
		Truncated:  ev.Truncated(),
		ReceivedAt: time.Now(),
	}
}

// StartHealthMonitoring probes the display every interval and logs health
func (s *DisplayService) StartHealthMonitoring(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Ping(ctx); err != nil && !errors.Is(err, stone.ErrNotReady) {
				s.deviceLog.Warn("Display ping failed", zap.Error(err))
			}
			h := s.Health()
			s.deviceLog.LogHealth(h.HealthScore, h.ResponseTime, h.SuccessRate)
		}
	}
}

// Ping reads the firmware version register as a round-trip check
func (s *DisplayService) Ping(ctx context.Context) error {
	return s.exec(ctx, model.OperationTypeStatusCheck, func(d *stone.Display) error {
		_, err := d.FirmwareVersion()
		return err
	})
}
