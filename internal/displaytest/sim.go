// Package displaytest provides an in-memory display for tests.
package displaytest

import (
	"context"
	"errors"
	"sync"

	"stone-hmi-service/internal/model"
	"stone-hmi-service/internal/protocol"
)

// ErrNoInput is returned by ReadByte when nothing is buffered
var ErrNoInput = errors.New("displaytest: no input")

// Sim answers register and variable frames with the default A5 5A header
// the way a panel does. It implements protocol.Connection.
type Sim struct {
	mu      sync.Mutex
	open    bool
	openErr error
	silent  bool
	in      []byte
	pending []byte
	written int
	regs    [256]byte
	vars    map[uint16]uint16
}

var _ protocol.Connection = (*Sim)(nil)

// NewSim creates a closed simulator with zeroed memory
func NewSim() *Sim {
	return &Sim{vars: make(map[uint16]uint16)}
}

// SetOpenError makes the next Open calls fail with err
func (s *Sim) SetOpenError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = err
}

// SetSilent stops the simulator from answering reads
func (s *Sim) SetSilent(silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent = silent
}

// Inject queues raw bytes as if the display had sent them
func (s *Sim) Inject(b ...byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.in = append(s.in, b...)
}

func (s *Sim) Register(addr byte) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[addr]
}

func (s *Sim) SetRegister(addr byte, b ...byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.regs[addr:], b)
}

func (s *Sim) Variable(addr uint16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vars[addr]
}

func (s *Sim) SetVariable(addr, w uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[addr] = w
}

func (s *Sim) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.open = true
	return nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *Sim) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Sim) Type() model.ConnectionType { return model.ConnectionTypeSerial }

func (s *Sim) Stats() protocol.ProtocolStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return protocol.ProtocolStats{BytesWritten: int64(s.written), IsConnected: s.open}
}

func (s *Sim) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.in)
}

func (s *Sim) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.in) == 0 {
		return 0, ErrNoInput
	}
	b := s.in[0]
	s.in = s.in[1:]
	return b, nil
}

func (s *Sim) WriteByte(b byte) error {
	_, err := s.Write([]byte{b})
	return err
}

func (s *Sim) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.written += len(p)
	s.pending = append(s.pending, p...)
	for len(s.pending) >= 3 && len(s.pending) >= 3+int(s.pending[2]) {
		n := 3 + int(s.pending[2])
		frame := append([]byte(nil), s.pending[:n]...)
		s.pending = s.pending[n:]
		s.handle(frame)
	}
	return len(p), nil
}

func (s *Sim) handle(frame []byte) {
	switch frame[3] {
	case 0x80:
		addr := int(frame[4])
		data := frame[5:]
		if addr == 0x1F && len(data) == 8 && data[0] == 0x5A {
			// RTC adjust lands in the RTC-now registers
			copy(s.regs[0x20:], data[1:])
			return
		}
		copy(s.regs[addr:], data)
	case 0x81:
		if s.silent {
			return
		}
		addr, n := frame[4], frame[5]
		reply := []byte{0xA5, 0x5A, 3 + n, 0x81, addr, n}
		for i := 0; i < int(n); i++ {
			reply = append(reply, s.regs[(int(addr)+i)&0xFF])
		}
		s.in = append(s.in, reply...)
	case 0x82:
		addr := uint16(frame[4])<<8 | uint16(frame[5])
		for i := 6; i+1 < len(frame); i += 2 {
			s.vars[addr] = uint16(frame[i])<<8 | uint16(frame[i+1])
			addr++
		}
	case 0x83:
		if s.silent {
			return
		}
		n := frame[6]
		reply := []byte{0xA5, 0x5A, 4 + 2*n, 0x83, frame[4], frame[5], n}
		addr := uint16(frame[4])<<8 | uint16(frame[5])
		for i := uint16(0); i < uint16(n); i++ {
			w := s.vars[addr+i]
			reply = append(reply, byte(w>>8), byte(w))
		}
		s.in = append(s.in, reply...)
	}
}
