// internal/driver/stone/command.go
package stone

import "time"

// Frame header and session defaults
const (
	DefaultHeaderHigh byte = 0xA5
	DefaultHeaderLow  byte = 0x5A

	DefaultTimeout      = 200 * time.Millisecond
	DefaultPollInterval = time.Millisecond

	// maxFrameLength is the largest value the one-byte length field can carry
	maxFrameLength = 0xFF
)

// Command bytes
const (
	CmdRegisterWrite    byte = 0x80
	CmdRegisterRead     byte = 0x81
	CmdVariableWrite    byte = 0x82
	CmdVariableRead     byte = 0x83
	CmdCurveBufferWrite byte = 0x84
)

// Register map
const (
	RegVersion     byte = 0x00
	RegBacklight   byte = 0x01
	RegBuzzer      byte = 0x02 // unit 10 ms
	RegPageID      byte = 0x03 // 2 bytes
	RegTouchFlag   byte = 0x05 // 0x5A = updated
	RegTouchStatus byte = 0x06
	RegTouchPos    byte = 0x07 // 4 bytes, XH XL YH YL
	RegTouchEnable byte = 0x0B // 0x00 = disabled
	RegRuntime     byte = 0x0C // 4 bytes, HHHH MM SS in BCD
	RegRTCAdjust   byte = 0x1F
	RegRTCNow      byte = 0x20 // 7 bytes BCD
	RegTouchCal    byte = 0xEA
	RegCurveClear  byte = 0xEB
	RegReset       byte = 0xEE // 2 bytes
)

// Register values with fixed meaning
const (
	RTCApplyMarker   byte   = 0x5A
	TouchFlagUpdated byte   = 0x5A
	TouchCalTrigger  byte   = 0x5A
	CurveClearAll    byte   = 0x55
	curveClearBase   byte   = 0x56
	ResetMagic       uint16 = 0x5AA5
)

// TouchStatus is the press state reported in RegTouchStatus
type TouchStatus byte

const (
	TouchIdle     TouchStatus = 0x00
	TouchPressed  TouchStatus = 0x01
	TouchReleased TouchStatus = 0x02
	TouchHeld     TouchStatus = 0x03
)

func (s TouchStatus) String() string {
	switch s {
	case TouchIdle:
		return "idle"
	case TouchPressed:
		return "pressed"
	case TouchReleased:
		return "released"
	case TouchHeld:
		return "held"
	default:
		return "unknown"
	}
}

// CommandName returns a readable name for logs and metric labels
func CommandName(cmd byte) string {
	switch cmd {
	case CmdRegisterWrite:
		return "register_write"
	case CmdRegisterRead:
		return "register_read"
	case CmdVariableWrite:
		return "variable_write"
	case CmdVariableRead:
		return "variable_read"
	case CmdCurveBufferWrite:
		return "curve_buffer_write"
	default:
		return "unknown"
	}
}
