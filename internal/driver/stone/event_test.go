package stone

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollEventNothingBuffered(t *testing.T) {
	d := newTestDisplay(newFakeStream())

	ev, err := d.PollEvent(4)
	assert.NoError(t, err)
	assert.Nil(t, ev)
}

func TestPollEventDropsUnframedByte(t *testing.T) {
	s := newFakeStream(0x33, 0xA5)
	d := newTestDisplay(s)

	ev, err := d.PollEvent(4)
	assert.NoError(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, 1, s.Buffered())
}

func TestPollEvent(t *testing.T) {
	s := newFakeStream(0xA5, 0x5A, 0x06, 0x83, 0x10, 0x02, 0x01, 0x00, 0x07)
	d := newTestDisplay(s)

	ev, err := d.PollEvent(4)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, CmdVariableRead, ev.Command)
	assert.Equal(t, uint16(0x1002), ev.Address)
	assert.Equal(t, byte(1), ev.DataLen)
	assert.Equal(t, []uint16{0x0007}, ev.Data)
	assert.False(t, ev.Truncated())
	assert.Zero(t, s.Buffered())
}

func TestPollEventOversizedPayload(t *testing.T) {
	// three words declared, room for one; the trailing 0xEE must survive
	s := newFakeStream(
		0xA5, 0x5A, 0x0A, 0x83, 0x20, 0x00, 0x03,
		0x00, 0x01, 0x00, 0x02, 0x00, 0x03,
		0xEE,
	)
	d := newTestDisplay(s)

	ev, err := d.PollEvent(1)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, byte(3), ev.DataLen)
	assert.Equal(t, []uint16{0x0001}, ev.Data)
	assert.True(t, ev.Truncated())

	require.Equal(t, 1, s.Buffered())
	b, _ := s.ReadByte()
	assert.Equal(t, byte(0xEE), b)
}

func TestPollEventLengthMismatch(t *testing.T) {
	obs := &recordingObserver{}
	s := newFakeStream(0xA5, 0x5A, 0x07, 0x83, 0x10, 0x02, 0x01, 0x00, 0x07)
	d := newTestDisplay(s, WithObserver(obs))

	ev, err := d.PollEvent(4)
	assert.Nil(t, ev)
	assert.ErrorIs(t, err, ErrFrameMismatch)

	var fe *FrameError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "length", fe.Field)
	assert.Equal(t, 6, fe.Want)
	assert.Equal(t, 7, fe.Got)
	assert.Zero(t, s.Buffered(), "frame is consumed even when rejected")

	require.Len(t, obs.events, 1)
	assert.Error(t, obs.events[0])
}

func TestPollEventBadHeaderLow(t *testing.T) {
	s := newFakeStream(0xA5, 0x00, 0x06)
	d := newTestDisplay(s)

	_, err := d.PollEvent(4)
	assert.ErrorIs(t, err, ErrFrameMismatch)
}

func TestPollEventTruncatedFrame(t *testing.T) {
	s := newFakeStream(0xA5, 0x5A, 0x06, 0x83, 0x10)
	d := newTestDisplay(s)

	_, err := d.PollEvent(4)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPollEventCustomHeader(t *testing.T) {
	s := newFakeStream(0xA5, 0xAA, 0xBB, 0x04, 0x83, 0x00, 0x01, 0x00)
	d := newTestDisplay(s, WithHeader(0xAA, 0xBB))

	ev, err := d.PollEvent(4)
	assert.NoError(t, err)
	assert.Nil(t, ev, "foreign header byte is dropped")

	ev, err = d.PollEvent(4)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, uint16(0x0001), ev.Address)
	assert.Empty(t, ev.Data)
}
