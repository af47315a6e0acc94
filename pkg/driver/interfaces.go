// pkg/driver/interfaces.go
package driver

import (
	"io"
)

// Stream is the duplex byte channel a display is attached through.
//
// Implementations buffer incoming bytes so that Buffered can be polled
// without blocking. ReadByte is only valid while Buffered reports at least
// one byte; it never waits for input.
type Stream interface {
	// Buffered returns the number of input bytes ready to be read
	Buffered() int

	io.ByteReader
	io.ByteWriter
	io.Writer
}

// EventHandler receives display lifecycle and input notifications
type EventHandler interface {
	OnDeviceConnected(deviceID string)
	OnDeviceDisconnected(deviceID string, reason string)
	OnDeviceError(deviceID string, err error)
	OnDisplayEvent(deviceID string, event *InputEvent)
}
