package stone

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when no stream is attached to the display
	ErrNotReady = errors.New("stone: transport not ready")

	// ErrTimeout is returned when an expected byte does not arrive in time
	ErrTimeout = errors.New("stone: timed out waiting for byte")

	// ErrFrameMismatch is returned when a response field differs from the request
	ErrFrameMismatch = errors.New("stone: response frame mismatch")

	// ErrPayloadTooLarge is returned when a frame length would not fit in one byte
	ErrPayloadTooLarge = errors.New("stone: payload too large for frame")

	// ErrShortBuffer is returned when a BCD date-time buffer has fewer than 7 bytes
	ErrShortBuffer = errors.New("stone: date-time buffer too short")
)

// FrameError describes the first response field that did not match.
type FrameError struct {
	Field string
	Want  int
	Got   int
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("stone: unexpected %s: got 0x%02X, expected 0x%02X", e.Field, e.Got, e.Want)
}

func (e *FrameError) Unwrap() error {
	return ErrFrameMismatch
}
