// internal/model/device.go
package model

import (
	"time"
)

// ConnectionType represents how the display is connected
type ConnectionType string

const (
	ConnectionTypeSerial ConnectionType = "SERIAL"
	ConnectionTypeUSB    ConnectionType = "USB"
	ConnectionTypeTCP    ConnectionType = "TCP"
)

// DisplayStatus represents the current status of the display link
type DisplayStatus string

const (
	DisplayStatusOnline     DisplayStatus = "ONLINE"
	DisplayStatusOffline    DisplayStatus = "OFFLINE"
	DisplayStatusError      DisplayStatus = "ERROR"
	DisplayStatusConnecting DisplayStatus = "CONNECTING"
)

// JSONObject is a free-form JSON object
type JSONObject map[string]interface{}

// Display is the service's view of the attached HMI display
type Display struct {
	DeviceID        string         `json:"device_id"`
	Model           string         `json:"model"`
	Manufacturer    string         `json:"manufacturer"`
	FirmwareVersion *int           `json:"firmware_version,omitempty"`
	ConnectionType  ConnectionType `json:"connection_type"`
	HeaderHigh      byte           `json:"header_high"`
	HeaderLow       byte           `json:"header_low"`
	TimeoutMs       int64          `json:"timeout_ms"`
	Status          DisplayStatus  `json:"status"`
	LastError       *string        `json:"last_error,omitempty"`
	ConnectedAt     *time.Time     `json:"connected_at,omitempty"`
}

// IsOnline checks if the display is currently online
func (d *Display) IsOnline() bool {
	return d.Status == DisplayStatusOnline
}
