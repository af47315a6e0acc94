// pkg/driver/types.go
package driver

import (
	"time"
)

// DeviceInfo contains basic display information
type DeviceInfo struct {
	DeviceID        string `json:"device_id"`
	Model           string `json:"model"`
	Manufacturer    string `json:"manufacturer"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	ConnectionType  string `json:"connection_type"`
	HeaderHigh      byte   `json:"header_high"`
	HeaderLow       byte   `json:"header_low"`
}

// DeviceStatus represents current display status
type DeviceStatus struct {
	Status       string    `json:"status"`
	IsReady      bool      `json:"is_ready"`
	HasError     bool      `json:"has_error"`
	ErrorMessage string    `json:"error_message,omitempty"`
	LastResponse time.Time `json:"last_response"`
}

// HealthMetrics contains display health information
type HealthMetrics struct {
	HealthScore     int           `json:"health_score"` // 0-100
	ResponseTime    time.Duration `json:"response_time"`
	SuccessRate     float64       `json:"success_rate"` // 0.0-1.0
	ErrorCount      int64         `json:"error_count"`
	TimeoutCount    int64         `json:"timeout_count"`
	MismatchCount   int64         `json:"mismatch_count"`
	TotalOperations int64         `json:"total_operations"`
	LastErrorTime   *time.Time    `json:"last_error_time,omitempty"`
	LastSuccessTime *time.Time    `json:"last_success_time,omitempty"`
}

// InputEvent is an unsolicited frame reported by the display, such as a
// touch on a control bound to a variable.
type InputEvent struct {
	Command    byte      `json:"command"`
	Address    uint16    `json:"address"`
	DataLen    byte      `json:"data_len"`
	Data       []uint16  `json:"data"`
	Truncated  bool      `json:"truncated"`
	ReceivedAt time.Time `json:"received_at"`
}
