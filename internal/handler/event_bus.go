// internal/handler/event_bus.go
package handler

import (
	"sync"

	"go.uber.org/zap"

	"stone-hmi-service/internal/model"
	"stone-hmi-service/pkg/driver"
)

// AllEvents subscribes to every event type
const AllEvents model.EventType = "*"

// EventBus manages event distribution
type EventBus struct {
	subscribers map[model.EventType][]chan model.DisplayEvent
	events      chan model.DisplayEvent
	done        chan struct{}
	closeOnce   sync.Once
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[model.EventType][]chan model.DisplayEvent),
		events:      make(chan model.DisplayEvent, 1000),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Start distributes published events until Stop is called
func (eb *EventBus) Start() {
	for {
		select {
		case event := <-eb.events:
			eb.distributeEvent(event)
		case <-eb.done:
			return
		}
	}
}

// Stop ends Start
func (eb *EventBus) Stop() {
	eb.closeOnce.Do(func() { close(eb.done) })
}

// Publish publishes an event
func (eb *EventBus) Publish(event model.DisplayEvent) {
	select {
	case eb.events <- event:
	default:
		// Event bus is full, log warning
		if eb.logger != nil {
			eb.logger.Warn("Event bus full, dropping event",
				zap.String("event_type", string(event.EventType)),
			)
		}
	}
}

// Subscribe subscribes to events of a specific type, or AllEvents
func (eb *EventBus) Subscribe(eventType model.EventType) <-chan model.DisplayEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan model.DisplayEvent, 100)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
	return subscriber
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event model.DisplayEvent) {
	eb.mutex.RLock()
	subscribers := append([]chan model.DisplayEvent(nil), eb.subscribers[event.EventType]...)
	subscribers = append(subscribers, eb.subscribers[AllEvents]...)
	eb.mutex.RUnlock()

	for _, subscriber := range subscribers {
		select {
		case subscriber <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

// DisplayEventHandler turns service notifications into bus events
type DisplayEventHandler struct {
	bus    *EventBus
	logger *zap.Logger
}

var _ driver.EventHandler = (*DisplayEventHandler)(nil)

// NewDisplayEventHandler creates a new display event handler
func NewDisplayEventHandler(bus *EventBus, logger *zap.Logger) *DisplayEventHandler {
	return &DisplayEventHandler{
		bus:    bus,
		logger: logger,
	}
}

// OnDeviceConnected handles display connected events
func (deh *DisplayEventHandler) OnDeviceConnected(deviceID string) {
	deh.bus.Publish(model.NewDisplayEvent(model.EventDisplayConnected, deviceID, "INFO", model.JSONObject{
		"status":  string(model.DisplayStatusOnline),
		"message": "Display connected successfully",
	}))

	deh.logger.Info("Display connected event published", zap.String("device_id", deviceID))
}

// OnDeviceDisconnected handles display disconnected events
func (deh *DisplayEventHandler) OnDeviceDisconnected(deviceID string, reason string) {
	deh.bus.Publish(model.NewDisplayEvent(model.EventDisplayDisconnected, deviceID, "WARNING", model.JSONObject{
		"status": string(model.DisplayStatusOffline),
		"reason": reason,
	}))

	deh.logger.Info("Display disconnected event published",
		zap.String("device_id", deviceID),
		zap.String("reason", reason),
	)
}

// OnDeviceError handles display error events
func (deh *DisplayEventHandler) OnDeviceError(deviceID string, err error) {
	deh.bus.Publish(model.NewDisplayEvent(model.EventDisplayError, deviceID, "ERROR", model.JSONObject{
		"error": err.Error(),
	}))

	deh.logger.Debug("Display error event published",
		zap.String("device_id", deviceID),
		zap.Error(err),
	)
}

// OnDisplayEvent handles unsolicited input frames
func (deh *DisplayEventHandler) OnDisplayEvent(deviceID string, event *driver.InputEvent) {
	deh.bus.Publish(model.NewDisplayEvent(model.EventDisplayInput, deviceID, "INFO", model.JSONObject{
		"input": model.InputEventData{
			Command:   event.Command,
			Address:   event.Address,
			DataLen:   event.DataLen,
			Data:      event.Data,
			Truncated: event.Truncated,
		},
		"received_at": event.ReceivedAt,
	}))
}
