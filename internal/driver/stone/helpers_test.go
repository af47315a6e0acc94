package stone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTouchState(t *testing.T) {
	s := newFakeStream()
	s.respond(6, 0xA5, 0x5A, 0x09, 0x81, 0x05, 0x06, 0x5A, 0x03, 0x01, 0x40, 0x00, 0xF0)
	d := newTestDisplay(s)

	st, err := d.TouchState()
	require.NoError(t, err)
	assert.Equal(t, TouchState{Updated: true, Status: TouchHeld, X: 0x0140, Y: 0x00F0}, st)
	assert.Equal(t, "held", st.Status.String())
}

func TestRuntime(t *testing.T) {
	s := newFakeStream()
	s.respond(6, 0xA5, 0x5A, 0x07, 0x81, 0x0C, 0x04, 0x01, 0x23, 0x45, 0x06)
	d := newTestDisplay(s)

	got, err := d.Runtime()
	require.NoError(t, err)
	assert.Equal(t, 123*time.Hour+45*time.Minute+6*time.Second, got)
}

func TestRegisterWriteHelpers(t *testing.T) {
	tests := []struct {
		name string
		call func(d *Display) error
		want []byte
	}{
		{"backlight", func(d *Display) error { return d.SetBacklight(0x20) }, []byte{0x03, 0x80, 0x01, 0x20}},
		{"beep", func(d *Display) error { return d.Beep(250 * time.Millisecond) }, []byte{0x03, 0x80, 0x02, 0x19}},
		{"beep capped", func(d *Display) error { return d.Beep(time.Minute) }, []byte{0x03, 0x80, 0x02, 0xFF}},
		{"beep negative", func(d *Display) error { return d.Beep(-time.Second) }, []byte{0x03, 0x80, 0x02, 0x00}},
		{"switch page", func(d *Display) error { return d.SwitchPage(0x0102) }, []byte{0x04, 0x80, 0x03, 0x01, 0x02}},
		{"touch off", func(d *Display) error { return d.SetTouchEnabled(false) }, []byte{0x03, 0x80, 0x0B, 0x00}},
		{"touch on", func(d *Display) error { return d.SetTouchEnabled(true) }, []byte{0x03, 0x80, 0x0B, 0xFF}},
		{"calibrate", func(d *Display) error { return d.CalibrateTouch() }, []byte{0x03, 0x80, 0xEA, 0x5A}},
		{"clear all curves", func(d *Display) error { return d.ClearCurves(-1) }, []byte{0x03, 0x80, 0xEB, 0x55}},
		{"clear curve 2", func(d *Display) error { return d.ClearCurves(2) }, []byte{0x03, 0x80, 0xEB, 0x58}},
		{"reset", func(d *Display) error { return d.ResetDisplay() }, []byte{0x04, 0x80, 0xEE, 0x5A, 0xA5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeStream()
			require.NoError(t, tt.call(newTestDisplay(s)))
			assert.Equal(t, append([]byte{0xA5, 0x5A}, tt.want...), s.written())
		})
	}
}

func TestClearCurvesOutOfRange(t *testing.T) {
	s := newFakeStream()
	assert.Error(t, newTestDisplay(s).ClearCurves(8))
	assert.Empty(t, s.written())
}

func TestSyncRTC(t *testing.T) {
	s := newFakeStream()
	d := newTestDisplay(s)

	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, d.SyncRTC(ts))
	assert.Equal(t, []byte{
		0xA5, 0x5A, 0x0A, 0x80, 0x1F,
		0x5A, 0x25, 0x01, 0x02, 0x04, 0x03, 0x04, 0x05,
	}, s.written())
}
