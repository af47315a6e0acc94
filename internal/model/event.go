// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventDisplayConnected    EventType = "DISPLAY_CONNECTED"
	EventDisplayDisconnected EventType = "DISPLAY_DISCONNECTED"
	EventDisplayError        EventType = "DISPLAY_ERROR"
	EventDisplayInput        EventType = "DISPLAY_INPUT"
	EventOperationCompleted  EventType = "OPERATION_COMPLETED"
	EventOperationFailed     EventType = "OPERATION_FAILED"
	EventHealthUpdate        EventType = "HEALTH_UPDATE"
)

// DisplayEvent represents an event in the system
type DisplayEvent struct {
	ID        uuid.UUID  `json:"id"`
	EventType EventType  `json:"event_type"`
	DeviceID  string     `json:"device_id"`
	Data      JSONObject `json:"data"`
	Timestamp time.Time  `json:"timestamp"`
	Source    string     `json:"source"`
	Severity  string     `json:"severity"` // INFO, WARNING, ERROR, CRITICAL
}

// NewDisplayEvent stamps a new event with an ID and the current time
func NewDisplayEvent(eventType EventType, deviceID, severity string, data JSONObject) DisplayEvent {
	return DisplayEvent{
		ID:        uuid.New(),
		EventType: eventType,
		DeviceID:  deviceID,
		Data:      data,
		Timestamp: time.Now(),
		Source:    "stone-hmi-service",
		Severity:  severity,
	}
}

// InputEventData is the payload of a DISPLAY_INPUT event
type InputEventData struct {
	Command   byte     `json:"command"`
	Address   uint16   `json:"address"`
	DataLen   byte     `json:"data_len"`
	Data      []uint16 `json:"data"`
	Truncated bool     `json:"truncated"`
}

// DisplayErrorEventData represents display error event
type DisplayErrorEventData struct {
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
	ErrorTime    time.Time `json:"error_time"`
	Recovery     bool      `json:"auto_recovery_possible"`
}
