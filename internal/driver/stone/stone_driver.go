// internal/driver/stone/stone_driver.go
package stone

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"stone-hmi-service/pkg/driver"
)

// Display speaks the Stone HMI register and variable protocol over a
// driver.Stream. One request is outstanding at a time and there is no retry;
// callers decide whether to reissue a failed call.
//
// Display is not safe for concurrent use.
type Display struct {
	*Transport
	observer Observer
	logger   *zap.Logger
}

// New creates a display handle. The stream is borrowed and never closed.
func New(stream driver.Stream, opts ...Option) *Display {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Display{
		Transport: newTransport(stream, cfg),
		observer:  cfg.Observer,
		logger:    cfg.Logger,
	}
}

func (d *Display) observe(cmd byte, start time.Time, err error) {
	d.observer.ObserveResponse(cmd, time.Since(start), err)
	if err != nil {
		d.logger.Debug("Display exchange failed",
			zap.String("command", CommandName(cmd)),
			zap.Error(err))
	}
}

// Register operations

// WriteRegister writes data starting at register addr.
func (d *Display) WriteRegister(addr byte, data []byte) (err error) {
	length := 2 + len(data)
	if length > maxFrameLength {
		return fmt.Errorf("%w: register write of %d bytes", ErrPayloadTooLarge, len(data))
	}
	start := time.Now()
	d.observer.ObserveRequest(CmdRegisterWrite)
	defer func() { d.observe(CmdRegisterWrite, start, err) }()

	if err = d.SendFrameHeader(CmdRegisterWrite, byte(length)); err != nil {
		return err
	}
	if err = d.SendByte(addr); err != nil {
		return err
	}
	return d.SendBuffer(data)
}

func (d *Display) WriteRegisterByte(addr, b byte) error {
	return d.WriteRegister(addr, []byte{b})
}

// WriteRegisterWord writes w big-endian into addr and addr+1.
func (d *Display) WriteRegisterWord(addr byte, w uint16) error {
	hi, lo := UnpackWord(w)
	return d.WriteRegister(addr, []byte{hi, lo})
}

// ReadRegister reads n bytes starting at register addr. Stale input is
// drained before the request. On failure no data is returned.
func (d *Display) ReadRegister(addr, n byte) (data []byte, err error) {
	exp := Expectation{Command: CmdRegisterRead, Address: []byte{addr}, Count: n, UnitSize: 1}
	if exp.Length() > maxFrameLength {
		return nil, fmt.Errorf("%w: register read of %d bytes", ErrPayloadTooLarge, n)
	}
	if err := d.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	d.observer.ObserveRequest(CmdRegisterRead)
	defer func() { d.observe(CmdRegisterRead, start, err) }()

	d.DrainInput()
	if err = d.SendFrameHeader(CmdRegisterRead, 3); err != nil {
		return nil, err
	}
	if err = d.SendBuffer([]byte{addr, n}); err != nil {
		return nil, err
	}
	data, err = d.ReadExpectedFrame(exp)
	if err != nil {
		return nil, fmt.Errorf("register 0x%02X: %w", addr, err)
	}
	return data, nil
}

// ReadRegisterByte returns 0 on failure; use ReadRegister to tell a failed
// read from a zero register.
func (d *Display) ReadRegisterByte(addr byte) byte {
	data, err := d.ReadRegister(addr, 1)
	if err != nil {
		return 0
	}
	return data[0]
}

// ReadRegisterWord reads a big-endian word from addr and addr+1. It returns 0
// on failure.
func (d *Display) ReadRegisterWord(addr byte) uint16 {
	data, err := d.ReadRegister(addr, 2)
	if err != nil {
		return 0
	}
	return PackWord(data[0], data[1])
}

// Variable operations

// WriteVariable writes words starting at variable address addr. Words go on
// the wire big-endian.
func (d *Display) WriteVariable(addr uint16, words []uint16) (err error) {
	length := 3 + 2*len(words)
	if length > maxFrameLength {
		return fmt.Errorf("%w: variable write of %d words", ErrPayloadTooLarge, len(words))
	}
	start := time.Now()
	d.observer.ObserveRequest(CmdVariableWrite)
	defer func() { d.observe(CmdVariableWrite, start, err) }()

	if err = d.SendFrameHeader(CmdVariableWrite, byte(length)); err != nil {
		return err
	}
	if err = d.SendWord(addr); err != nil {
		return err
	}
	buf := make([]byte, 0, 2*len(words))
	for _, w := range words {
		hi, lo := UnpackWord(w)
		buf = append(buf, hi, lo)
	}
	return d.SendBuffer(buf)
}

func (d *Display) WriteVariableWord(addr uint16, w uint16) error {
	return d.WriteVariable(addr, []uint16{w})
}

// ReadVariable reads n words starting at variable address addr.
func (d *Display) ReadVariable(addr uint16, n byte) (words []uint16, err error) {
	hi, lo := UnpackWord(addr)
	exp := Expectation{Command: CmdVariableRead, Address: []byte{hi, lo}, Count: n, UnitSize: 2}
	if exp.Length() > maxFrameLength {
		return nil, fmt.Errorf("%w: variable read of %d words", ErrPayloadTooLarge, n)
	}
	if err := d.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	d.observer.ObserveRequest(CmdVariableRead)
	defer func() { d.observe(CmdVariableRead, start, err) }()

	d.DrainInput()
	if err = d.SendFrameHeader(CmdVariableRead, 4); err != nil {
		return nil, err
	}
	if err = d.SendBuffer([]byte{hi, lo, n}); err != nil {
		return nil, err
	}
	data, err := d.ReadExpectedFrame(exp)
	if err != nil {
		return nil, fmt.Errorf("variable 0x%04X: %w", addr, err)
	}
	words = make([]uint16, n)
	for i := range words {
		words[i] = PackWord(data[2*i], data[2*i+1])
	}
	return words, nil
}

// ReadVariableWord returns 0 on failure.
func (d *Display) ReadVariableWord(addr uint16) uint16 {
	words, err := d.ReadVariable(addr, 1)
	if err != nil {
		return 0
	}
	return words[0]
}

// RTC

// GetRTC reads the display clock.
func (d *Display) GetRTC() (DateTime, error) {
	buf, err := d.ReadRegister(RegRTCNow, DateTimeBCDSize)
	if err != nil {
		return DefaultDateTime(), fmt.Errorf("failed to read RTC: %w", err)
	}
	return DateTimeFromBCD(buf)
}

// SetRTC writes dt to the clock adjust register, prefixed with the apply
// marker.
func (d *Display) SetRTC(dt DateTime) error {
	bcd := dt.BCD()
	buf := make([]byte, 0, 1+DateTimeBCDSize)
	buf = append(buf, RTCApplyMarker)
	buf = append(buf, bcd[:]...)
	if err := d.WriteRegister(RegRTCAdjust, buf); err != nil {
		return fmt.Errorf("failed to set RTC: %w", err)
	}
	return nil
}
