// internal/model/operation.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// OperationType represents the type of display operation
type OperationType string

const (
	OperationTypeRegisterRead  OperationType = "REGISTER_READ"
	OperationTypeRegisterWrite OperationType = "REGISTER_WRITE"
	OperationTypeVariableRead  OperationType = "VARIABLE_READ"
	OperationTypeVariableWrite OperationType = "VARIABLE_WRITE"
	OperationTypeRTCRead       OperationType = "RTC_READ"
	OperationTypeRTCWrite      OperationType = "RTC_WRITE"
	OperationTypeSwitchPage    OperationType = "SWITCH_PAGE"
	OperationTypeBeep          OperationType = "BEEP"
	OperationTypeBacklight     OperationType = "BACKLIGHT"
	OperationTypeTouch         OperationType = "TOUCH"
	OperationTypeCurves        OperationType = "CURVES"
	OperationTypeReset         OperationType = "RESET"
	OperationTypeStatusCheck   OperationType = "STATUS_CHECK"
)

// OperationStatus represents the status of an operation
type OperationStatus string

const (
	OperationStatusSuccess  OperationStatus = "SUCCESS"
	OperationStatusFailed   OperationStatus = "FAILED"
	OperationStatusTimeout  OperationStatus = "TIMEOUT"
	OperationStatusMismatch OperationStatus = "MISMATCH"
)

// DisplayOperation records one completed exchange with the display
type DisplayOperation struct {
	ID            uuid.UUID       `json:"id"`
	DeviceID      string          `json:"device_id"`
	OperationType OperationType   `json:"operation_type"`
	Status        OperationStatus `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	DurationMs    int64           `json:"duration_ms"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	RequestID     string          `json:"request_id,omitempty"`
}

// IsSuccessful checks if the operation completed without error
func (op *DisplayOperation) IsSuccessful() bool {
	return op.Status == OperationStatusSuccess
}

// Request payloads

// RegisterWriteRequest writes raw bytes starting at a register. Data is a
// JSON array of numbers, not base64.
type RegisterWriteRequest struct {
	Data []int `json:"data" binding:"required,min=1,max=253,dive,min=0,max=255"`
}

// VariableWriteRequest writes 16-bit words starting at a variable address
type VariableWriteRequest struct {
	Words []uint16 `json:"words" binding:"required,min=1,max=126"`
}

// RTCWriteRequest sets the display clock. SyncHost uses the service's own
// clock and ignores the other fields.
type RTCWriteRequest struct {
	SyncHost bool `json:"sync_host"`
	Year     int  `json:"year"`
	Month    int  `json:"month"`
	Day      int  `json:"day"`
	Week     byte `json:"week"`
	Hour     int  `json:"hour"`
	Minute   int  `json:"minute"`
	Second   int  `json:"second"`
}

// TimeoutRequest changes the per-byte read timeout
type TimeoutRequest struct {
	TimeoutMs int64 `json:"timeout_ms" binding:"required,min=1,max=10000"`
}

// PageRequest switches the displayed page
type PageRequest struct {
	PageID uint16 `json:"page_id"`
}

// BeepRequest sounds the buzzer
type BeepRequest struct {
	DurationMs int64 `json:"duration_ms" binding:"required,min=10,max=2550"`
}

// BacklightRequest sets the backlight level
type BacklightRequest struct {
	Level byte `json:"level" binding:"max=64"`
}

// TouchRequest enables or disables touch input
type TouchRequest struct {
	Enabled bool `json:"enabled"`
}

// CurvesClearRequest clears one curve channel, or all when Channel is nil
type CurvesClearRequest struct {
	Channel *int `json:"channel" binding:"omitempty,min=0,max=7"`
}

// Response payloads

// RegisterReadResponse carries register bytes as numbers and as hex
type RegisterReadResponse struct {
	Address byte   `json:"address"`
	Data    []int  `json:"data"`
	Hex     string `json:"hex"`
}

// VariableReadResponse carries variable words
type VariableReadResponse struct {
	Address uint16   `json:"address"`
	Words   []uint16 `json:"words"`
}

// RTCResponse is the display clock in both broken-down and RFC 3339 form
type RTCResponse struct {
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Day      int    `json:"day"`
	Week     byte   `json:"week"`
	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
	Second   int    `json:"second"`
	ISO8601  string `json:"iso8601"`
	Readable string `json:"readable"`
}
