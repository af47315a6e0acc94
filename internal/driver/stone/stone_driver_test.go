package stone

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	d := New(newFakeStream())
	hi, lo := d.Header()
	assert.Equal(t, DefaultHeaderHigh, hi)
	assert.Equal(t, DefaultHeaderLow, lo)
	assert.Equal(t, 200*time.Millisecond, d.Timeout())

	d.SetTimeout(time.Second)
	assert.Equal(t, time.Second, d.Timeout())
}

func TestWriteRegisterByteFrame(t *testing.T) {
	s := newFakeStream()
	d := newTestDisplay(s)

	require.NoError(t, d.WriteRegisterByte(0x10, 0xFF))
	assert.Equal(t, []byte{0xA5, 0x5A, 0x03, 0x80, 0x10, 0xFF}, s.written())
}

func TestWriteRegisterWordFrame(t *testing.T) {
	s := newFakeStream()
	d := newTestDisplay(s, WithHeader(0xAA, 0xBB))

	require.NoError(t, d.WriteRegisterWord(RegReset, ResetMagic))
	assert.Equal(t, []byte{0xAA, 0xBB, 0x04, 0x80, 0xEE, 0x5A, 0xA5}, s.written())
}

func TestWriteRegisterTooLarge(t *testing.T) {
	s := newFakeStream()
	d := newTestDisplay(s)

	err := d.WriteRegister(0x10, make([]byte, 254))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Empty(t, s.written())

	require.NoError(t, d.WriteRegister(0x10, make([]byte, 253)))
	assert.Equal(t, byte(0xFF), s.written()[2])
}

func TestReadRegister(t *testing.T) {
	payload := []byte{0x24, 0x03, 0x15, 0x05, 0x10, 0x30, 0x00}
	reply := append([]byte{0xA5, 0x5A, 0x0A, 0x81, 0x20, 0x07}, payload...)

	s := newFakeStream()
	s.respond(6, reply...)
	d := newTestDisplay(s)

	got, err := d.ReadRegister(0x20, 7)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, []byte{0xA5, 0x5A, 0x03, 0x81, 0x20, 0x07}, s.written())
}

func TestReadRegisterMismatch(t *testing.T) {
	tests := []struct {
		name  string
		reply []byte
		field string
	}{
		{"header high", []byte{0xA4, 0x5A, 0x04, 0x81, 0x05, 0x01, 0x00}, "header high"},
		{"header low", []byte{0xA5, 0x5B, 0x04, 0x81, 0x05, 0x01, 0x00}, "header low"},
		{"length", []byte{0xA5, 0x5A, 0x05, 0x81, 0x05, 0x01, 0x00}, "length"},
		{"command", []byte{0xA5, 0x5A, 0x04, 0x83, 0x05, 0x01, 0x00}, "command"},
		{"address", []byte{0xA5, 0x5A, 0x04, 0x81, 0x06, 0x01, 0x00}, "address byte 0"},
		{"count", []byte{0xA5, 0x5A, 0x04, 0x81, 0x05, 0x02, 0x00}, "count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeStream()
			s.respond(6, tt.reply...)
			d := newTestDisplay(s)

			got, err := d.ReadRegister(0x05, 1)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, ErrFrameMismatch)

			var fe *FrameError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestReadRegisterTimeout(t *testing.T) {
	s := newFakeStream()
	s.respond(6, 0xA5, 0x5A, 0x04, 0x81, 0x05)
	d := newTestDisplay(s)

	got, err := d.ReadRegister(0x05, 1)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, errors.Is(err, ErrFrameMismatch))
}

func TestReadRegisterDrainsStaleInput(t *testing.T) {
	s := newFakeStream(0x01, 0x02, 0x03)
	s.respond(6, 0xA5, 0x5A, 0x04, 0x81, 0x00, 0x01, 0x42)
	d := newTestDisplay(s)

	v, err := d.FirmwareVersion()
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), v)
}

func TestReadRegisterConvenienceCollapsesFailure(t *testing.T) {
	d := newTestDisplay(newFakeStream())
	assert.Equal(t, byte(0), d.ReadRegisterByte(0x01))
	assert.Equal(t, uint16(0), d.ReadRegisterWord(0x03))
	assert.Equal(t, uint16(0), d.ReadVariableWord(0x1000))

	s := newFakeStream()
	s.respond(6, 0xA5, 0x5A, 0x05, 0x81, 0x03, 0x02, 0x12, 0x34)
	d = newTestDisplay(s)
	assert.Equal(t, uint16(0x1234), d.ReadRegisterWord(0x03))
}

func TestReadRegisterTooLarge(t *testing.T) {
	s := newFakeStream()
	d := newTestDisplay(s)

	_, err := d.ReadRegister(0x10, 253)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Empty(t, s.written())
}

func TestNotReady(t *testing.T) {
	d := New(nil)

	assert.ErrorIs(t, d.WriteRegisterByte(0x01, 0x10), ErrNotReady)
	_, err := d.ReadRegister(0x00, 1)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, d.WriteVariableWord(0x1000, 1), ErrNotReady)
	_, err = d.ReadVariable(0x1000, 1)
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = d.PollEvent(4)
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = d.ReadByteWithTimeout()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, 0, d.DrainInput())
}

func TestWriteFailureIsWrapped(t *testing.T) {
	s := newFakeStream()
	s.failW = true
	d := newTestDisplay(s)

	err := d.WriteRegisterByte(0x01, 0x10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fake: write failed")
}

func TestWriteVariableFrame(t *testing.T) {
	s := newFakeStream()
	d := newTestDisplay(s)

	require.NoError(t, d.WriteVariable(0x1234, []uint16{0x0102, 0xA0B0}))
	assert.Equal(t, []byte{0xA5, 0x5A, 0x07, 0x82, 0x12, 0x34, 0x01, 0x02, 0xA0, 0xB0}, s.written())

	err := d.WriteVariable(0x1234, make([]uint16, 127))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestReadVariable(t *testing.T) {
	s := newFakeStream()
	s.respond(7, 0xA5, 0x5A, 0x08, 0x83, 0x00, 0x10, 0x02, 0x00, 0x2A, 0xFF, 0xFE)
	d := newTestDisplay(s)

	got, err := d.ReadVariable(0x0010, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x002A, 0xFFFE}, got)
	assert.Equal(t, []byte{0xA5, 0x5A, 0x04, 0x83, 0x00, 0x10, 0x02}, s.written())
}

func TestReadVariableAddressMismatch(t *testing.T) {
	s := newFakeStream()
	s.respond(7, 0xA5, 0x5A, 0x06, 0x83, 0x00, 0x11, 0x01, 0x00, 0x2A)
	d := newTestDisplay(s)

	_, err := d.ReadVariable(0x0010, 1)
	var fe *FrameError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "address byte 1", fe.Field)
	assert.Equal(t, 0x10, fe.Want)
	assert.Equal(t, 0x11, fe.Got)
}

func TestSetRTCFrame(t *testing.T) {
	s := newFakeStream()
	d := newTestDisplay(s)

	require.NoError(t, d.SetRTC(NewDateTime(2024, 3, 15, 0, 10, 30, 0)))
	assert.Equal(t, []byte{
		0xA5, 0x5A, 0x0A, 0x80, 0x1F,
		0x5A, 0x24, 0x03, 0x15, 0x00, 0x10, 0x30, 0x00,
	}, s.written())
}

func TestGetRTC(t *testing.T) {
	s := newFakeStream()
	s.respond(6, 0xA5, 0x5A, 0x0A, 0x81, 0x20, 0x07, 0x24, 0x03, 0x15, 0x05, 0x10, 0x30, 0x45)
	d := newTestDisplay(s)

	dt, err := d.GetRTC()
	require.NoError(t, err)
	assert.Equal(t, NewDateTime(2024, 3, 15, 5, 10, 30, 45), dt)
}

func TestObserverSeesEveryExchange(t *testing.T) {
	obs := &recordingObserver{}
	s := newFakeStream()
	d := newTestDisplay(s, WithObserver(obs))

	require.NoError(t, d.WriteRegisterByte(0x01, 0x20))
	_, err := d.ReadRegister(0x00, 1)
	require.Error(t, err)

	assert.Equal(t, []byte{CmdRegisterWrite, CmdRegisterRead}, obs.requests)
	require.Len(t, obs.responses, 2)
	assert.NoError(t, obs.responses[0])
	assert.ErrorIs(t, obs.responses[1], ErrTimeout)
}

func TestReadByteWithTimeoutWaitsForBudget(t *testing.T) {
	d := New(newFakeStream(), WithTimeout(20*time.Millisecond))

	start := time.Now()
	b, err := d.ReadByteWithTimeout()
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, byte(0), b)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
