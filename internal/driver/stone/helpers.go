// internal/driver/stone/helpers.go
package stone

import (
	"fmt"
	"time"
)

const (
	touchEnabled  byte = 0xFF
	touchDisabled byte = 0x00
	curveChannels      = 8
	touchBlockLen      = 6 // flag, status, XH XL YH YL
)

// TouchState is the last touch report held in registers 0x05..0x0A.
type TouchState struct {
	Updated bool        `json:"updated"`
	Status  TouchStatus `json:"status"`
	X       uint16      `json:"x"`
	Y       uint16      `json:"y"`
}

// FirmwareVersion reads the version register.
func (d *Display) FirmwareVersion() (byte, error) {
	data, err := d.ReadRegister(RegVersion, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// SetBacklight sets the backlight level, 0x00 (off) to 0x40 (full).
func (d *Display) SetBacklight(level byte) error {
	return d.WriteRegisterByte(RegBacklight, level)
}

// Beep sounds the buzzer for duration, rounded down to 10 ms units and clamped
// to 0..2550 ms.
func (d *Display) Beep(duration time.Duration) error {
	units := duration / (10 * time.Millisecond)
	switch {
	case units < 0:
		units = 0
	case units > 0xFF:
		units = 0xFF
	}
	return d.WriteRegisterByte(RegBuzzer, byte(units))
}

func (d *Display) CurrentPage() (uint16, error) {
	data, err := d.ReadRegister(RegPageID, 2)
	if err != nil {
		return 0, err
	}
	return PackWord(data[0], data[1]), nil
}

func (d *Display) SwitchPage(id uint16) error {
	return d.WriteRegisterWord(RegPageID, id)
}

// TouchState reads flag, status and position in one request.
func (d *Display) TouchState() (TouchState, error) {
	data, err := d.ReadRegister(RegTouchFlag, touchBlockLen)
	if err != nil {
		return TouchState{}, err
	}
	pos := data[RegTouchPos-RegTouchFlag:]
	return TouchState{
		Updated: data[0] == TouchFlagUpdated,
		Status:  TouchStatus(data[RegTouchStatus-RegTouchFlag]),
		X:       PackWord(pos[0], pos[1]),
		Y:       PackWord(pos[2], pos[3]),
	}, nil
}

func (d *Display) SetTouchEnabled(enabled bool) error {
	v := touchDisabled
	if enabled {
		v = touchEnabled
	}
	return d.WriteRegisterByte(RegTouchEnable, v)
}

// CalibrateTouch starts the touch panel calibration screen.
func (d *Display) CalibrateTouch() error {
	return d.WriteRegisterByte(RegTouchCal, TouchCalTrigger)
}

// ClearCurves empties one curve buffer (0..7), or all of them when channel is
// negative.
func (d *Display) ClearCurves(channel int) error {
	if channel >= curveChannels {
		return fmt.Errorf("curve channel %d out of range 0-%d", channel, curveChannels-1)
	}
	v := CurveClearAll
	if channel >= 0 {
		v = curveClearBase + byte(channel)
	}
	return d.WriteRegisterByte(RegCurveClear, v)
}

// Runtime returns the display's accumulated power-on time. The register holds
// HHHH MM SS in BCD.
func (d *Display) Runtime() (time.Duration, error) {
	data, err := d.ReadRegister(RegRuntime, 4)
	if err != nil {
		return 0, err
	}
	hours := int(DecodeBCD(data[0]))*100 + int(DecodeBCD(data[1]))
	return time.Duration(hours)*time.Hour +
		time.Duration(DecodeBCD(data[2]))*time.Minute +
		time.Duration(DecodeBCD(data[3]))*time.Second, nil
}

// ResetDisplay reboots the display. It does not answer afterwards until it
// has restarted.
func (d *Display) ResetDisplay() error {
	return d.WriteRegisterWord(RegReset, ResetMagic)
}

// SyncRTC sets the display clock from t.
func (d *Display) SyncRTC(t time.Time) error {
	return d.SetRTC(FromTime(t))
}
