// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"stone-hmi-service/internal/model"
)

// SerialConnection implements Connection for serial ports
type SerialConnection struct {
	config *SerialConfig
	port   serial.Port
	input  *inputBuffer
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
	stats  statsRecorder
}

// NewSerialConnection creates a new serial connection
func NewSerialConnection(config *SerialConfig, logger *zap.Logger) *SerialConnection {
	return &SerialConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "serial"),
			zap.String("port", config.Port),
		),
	}
}

// Open opens the serial port and starts buffering input
func (sc *SerialConnection) Open(ctx context.Context) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.isOpen {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	sc.logger.Info("Opening serial port",
		zap.String("port", sc.config.Port),
		zap.Int("baud_rate", sc.config.BaudRate),
	)

	mode := &serial.Mode{
		BaudRate: sc.config.BaudRate,
		DataBits: sc.config.DataBits,
		Parity:   parseParity(sc.config.Parity),
		StopBits: parseStopBits(sc.config.StopBits),
	}

	port, err := serial.Open(sc.config.Port, mode)
	if err != nil {
		sc.logger.Error("Failed to open serial port", zap.Error(err))
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	// The pump needs Read to return periodically so it notices Close
	if err := port.SetReadTimeout(sc.config.ReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	// Bytes queued before we opened belong to no request
	if err := port.ResetInputBuffer(); err != nil {
		sc.logger.Warn("Failed to reset input buffer", zap.Error(err))
	}

	sc.attach(port)
	sc.logger.Info("Serial port opened successfully")
	return nil
}

// attach takes ownership of an opened port. Caller holds the mutex.
func (sc *SerialConnection) attach(port serial.Port) {
	sc.port = port
	sc.input = newInputBuffer()
	sc.isOpen = true
	sc.stats.setConnected(true)
	go sc.input.pump(serialReader{port}, &sc.stats, sc.logger)
}

// Close closes the serial port; the pump exits on the resulting read error
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return nil
	}

	err := sc.port.Close()
	if err == nil {
		<-sc.input.done
	}

	sc.port = nil
	sc.isOpen = false
	sc.stats.setConnected(false)

	if err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	sc.logger.Info("Serial port closed successfully")
	return nil
}

// IsOpen returns whether the port is open and still readable. An unplugged
// adapter fails the input pump, which turns this false.
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.isOpen && sc.port != nil && sc.input.Err() == nil
}

// Buffered returns the number of received bytes not yet consumed
func (sc *SerialConnection) Buffered() int {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	if sc.input == nil {
		return 0
	}
	return sc.input.Buffered()
}

// ReadByte pops one buffered byte without waiting
func (sc *SerialConnection) ReadByte() (byte, error) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	if sc.input == nil {
		return 0, ErrNotOpen
	}
	return sc.input.ReadByte()
}

func (sc *SerialConnection) WriteByte(b byte) error {
	_, err := sc.Write([]byte{b})
	return err
}

// Write writes data to the serial port
func (sc *SerialConnection) Write(data []byte) (int, error) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if !sc.isOpen || sc.port == nil {
		return 0, ErrNotOpen
	}

	startTime := time.Now()
	n, err := sc.port.Write(data)
	if err != nil {
		sc.stats.recordError()
		sc.logger.Error("Serial write failed", zap.Error(err))
		return n, fmt.Errorf("failed to write to serial port: %w", err)
	}

	if n != len(data) {
		sc.stats.recordError()
		return n, fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	sc.stats.recordWrite(n, time.Since(startTime))
	sc.logger.Debug("Serial write completed", zap.Int("bytes", n))
	return n, nil
}

// Type returns the connection type
func (sc *SerialConnection) Type() model.ConnectionType {
	return model.ConnectionTypeSerial
}

// Stats returns a snapshot of link statistics
func (sc *SerialConnection) Stats() ProtocolStats {
	return sc.stats.snapshot()
}

// serialReader maps the closed-port error to errPumpStopped so a normal
// Close is not counted as a link failure.
type serialReader struct {
	port serial.Port
}

func (r serialReader) Read(p []byte) (int, error) {
	n, err := r.port.Read(p)
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
			return n, errPumpStopped
		}
	}
	return n, err
}

func parseParity(parity string) serial.Parity {
	switch parity {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	case "mark":
		return serial.MarkParity
	case "space":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}

func parseStopBits(bits int) serial.StopBits {
	if bits == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}

// SerialPortInfo describes a serial port found on the host
type SerialPortInfo struct {
	Name string `json:"name"`
}

// ListSerialPorts returns the serial ports present on the host
func ListSerialPorts() ([]SerialPortInfo, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	ports := make([]SerialPortInfo, 0, len(names))
	for _, name := range names {
		ports = append(ports, SerialPortInfo{Name: name})
	}
	return ports, nil
}
