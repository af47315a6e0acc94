// internal/driver/stone/frame.go
package stone

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"stone-hmi-service/pkg/driver"
)

// Transport assembles command frames and parses responses one byte at a time.
// It attaches no meaning to payloads.
//
// A Transport is not safe for concurrent use. A failed read leaves the stream
// positioned mid-frame; call DrainInput before the next exchange.
type Transport struct {
	stream       driver.Stream
	headerHigh   byte
	headerLow    byte
	timeout      time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewTransport binds a transport to stream. A nil stream is accepted and makes
// every operation fail with ErrNotReady.
func NewTransport(stream driver.Stream, opts ...Option) *Transport {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newTransport(stream, cfg)
}

func newTransport(stream driver.Stream, cfg Config) *Transport {
	return &Transport{
		stream:       stream,
		headerHigh:   cfg.HeaderHigh,
		headerLow:    cfg.HeaderLow,
		timeout:      cfg.Timeout,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
	}
}

func (t *Transport) ready() error {
	if t.stream == nil {
		return ErrNotReady
	}
	return nil
}

// Header returns the frame identification bytes.
func (t *Transport) Header() (hi, lo byte) {
	return t.headerHigh, t.headerLow
}

// Timeout returns the per-byte read budget.
func (t *Transport) Timeout() time.Duration {
	return t.timeout
}

// SetTimeout changes the per-byte read budget for subsequent reads.
func (t *Transport) SetTimeout(timeout time.Duration) {
	t.timeout = timeout
}

// SendFrameHeader writes {hdrHi, hdrLo, length, cmd}.
func (t *Transport) SendFrameHeader(cmd, length byte) error {
	if err := t.ready(); err != nil {
		return err
	}
	if _, err := t.stream.Write([]byte{t.headerHigh, t.headerLow, length, cmd}); err != nil {
		return fmt.Errorf("failed to write frame header: %w", err)
	}
	return nil
}

func (t *Transport) SendByte(b byte) error {
	if err := t.ready(); err != nil {
		return err
	}
	if err := t.stream.WriteByte(b); err != nil {
		return fmt.Errorf("failed to write byte: %w", err)
	}
	return nil
}

// SendWord writes w big-endian.
func (t *Transport) SendWord(w uint16) error {
	hi, lo := UnpackWord(w)
	return t.SendBuffer([]byte{hi, lo})
}

func (t *Transport) SendBuffer(buf []byte) error {
	if err := t.ready(); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}
	if _, err := t.stream.Write(buf); err != nil {
		return fmt.Errorf("failed to write %d bytes: %w", len(buf), err)
	}
	return nil
}

// ReadByteWithTimeout waits up to the configured timeout, measured from the
// call's start, for one input byte. On expiry it returns ErrTimeout.
func (t *Transport) ReadByteWithTimeout() (byte, error) {
	if err := t.ready(); err != nil {
		return 0, err
	}
	deadline := time.Now().Add(t.timeout)
	for {
		if t.stream.Buffered() > 0 {
			b, err := t.stream.ReadByte()
			if err != nil {
				return 0, fmt.Errorf("failed to read byte: %w", err)
			}
			return b, nil
		}
		if !time.Now().Before(deadline) {
			return 0, ErrTimeout
		}
		if t.pollInterval > 0 {
			time.Sleep(t.pollInterval)
		}
	}
}

// DrainInput discards every buffered input byte and returns how many were
// dropped.
func (t *Transport) DrainInput() int {
	if t.stream == nil {
		return 0
	}
	n := 0
	for t.stream.Buffered() > 0 {
		if _, err := t.stream.ReadByte(); err != nil {
			break
		}
		n++
	}
	if n > 0 {
		t.logger.Debug("Discarded stale input", zap.Int("bytes", n))
	}
	return n
}

// expectByte reads one byte and fails with a *FrameError if it differs.
func (t *Transport) expectByte(field string, want byte) error {
	got, err := t.ReadByteWithTimeout()
	if err != nil {
		return fmt.Errorf("reading %s: %w", field, err)
	}
	if got != want {
		return &FrameError{Field: field, Want: int(want), Got: int(got)}
	}
	return nil
}

// readFull reads exactly len(buf) bytes, each with its own timeout.
func (t *Transport) readFull(buf []byte) error {
	for i := range buf {
		b, err := t.ReadByteWithTimeout()
		if err != nil {
			return fmt.Errorf("reading data byte %d of %d: %w", i+1, len(buf), err)
		}
		buf[i] = b
	}
	return nil
}

// Expectation is the shape of a read response: the echoed command, address
// bytes and unit count, and the size of one unit in bytes.
type Expectation struct {
	Command  byte
	Address  []byte
	Count    byte
	UnitSize int
}

// Length is the frame length byte a matching response declares.
func (e Expectation) Length() int {
	return 1 + len(e.Address) + 1 + int(e.Count)*e.UnitSize
}

// ReadExpectedFrame validates a response field by field and returns its data
// bytes. The first mismatch or timeout aborts the read.
func (t *Transport) ReadExpectedFrame(exp Expectation) ([]byte, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	length := exp.Length()
	if length > maxFrameLength {
		return nil, fmt.Errorf("%w: response length %d", ErrPayloadTooLarge, length)
	}

	if err := t.expectByte("header high", t.headerHigh); err != nil {
		return nil, err
	}
	if err := t.expectByte("header low", t.headerLow); err != nil {
		return nil, err
	}
	if err := t.expectByte("length", byte(length)); err != nil {
		return nil, err
	}
	if err := t.expectByte("command", exp.Command); err != nil {
		return nil, err
	}
	for i, a := range exp.Address {
		if err := t.expectByte(fmt.Sprintf("address byte %d", i), a); err != nil {
			return nil, err
		}
	}
	if err := t.expectByte("count", exp.Count); err != nil {
		return nil, err
	}

	data := make([]byte, int(exp.Count)*exp.UnitSize)
	if err := t.readFull(data); err != nil {
		return nil, err
	}
	t.logger.Debug("Response frame accepted",
		zap.String("command", CommandName(exp.Command)),
		zap.Binary("data", data))
	return data, nil
}
