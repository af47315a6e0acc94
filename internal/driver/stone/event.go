package stone

import (
	"fmt"

	"go.uber.org/zap"
)

// Event is an unsolicited frame pushed by the display, typically after a touch
// on a control bound to a variable. DataLen is the declared word count; Data
// holds at most the capacity passed to PollEvent.
type Event struct {
	Command byte
	Address uint16
	DataLen byte
	Data    []uint16
}

// Truncated reports whether the display sent more words than were kept.
func (e *Event) Truncated() bool {
	return int(e.DataLen) > len(e.Data)
}

// PollEvent checks for a pending event without waiting for the first byte.
//
// It returns nil, nil when nothing is buffered, and also when the first byte
// is not the header high byte; that byte is consumed and lost. Once a frame
// has started, the remaining bytes are read with the per-byte timeout. All
// declared words are consumed to keep the stream aligned, but only the first
// maxWords are stored. A declared length that disagrees with the word count
// fails with a *FrameError after the frame has been consumed.
func (d *Display) PollEvent(maxWords byte) (*Event, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	if d.stream.Buffered() == 0 {
		return nil, nil
	}
	first, err := d.stream.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read event byte: %w", err)
	}
	if first != d.headerHigh {
		d.logger.Debug("Dropped unframed input byte", zap.Uint8("byte", first))
		return nil, nil
	}

	ev, err := d.readEvent(maxWords)
	cmd := byte(0)
	if ev != nil {
		cmd = ev.Command
	}
	d.observer.ObserveEvent(cmd, err)
	if err != nil {
		d.logger.Debug("Event frame rejected", zap.Error(err))
		return nil, err
	}
	d.logger.Debug("Event received",
		zap.String("command", CommandName(ev.Command)),
		zap.Uint16("address", ev.Address),
		zap.Uint8("data_len", ev.DataLen))
	return ev, nil
}

func (d *Display) readEvent(maxWords byte) (*Event, error) {
	if err := d.expectByte("header low", d.headerLow); err != nil {
		return nil, err
	}
	var hdr [5]byte // length, command, addrHi, addrLo, dataLen
	if err := d.readFull(hdr[:]); err != nil {
		return nil, fmt.Errorf("reading event header: %w", err)
	}
	ev := &Event{
		Command: hdr[1],
		Address: PackWord(hdr[2], hdr[3]),
		DataLen: hdr[4],
	}

	keep := int(ev.DataLen)
	if keep > int(maxWords) {
		keep = int(maxWords)
	}
	ev.Data = make([]uint16, keep)
	var word [2]byte
	for i := 0; i < int(ev.DataLen); i++ {
		if err := d.readFull(word[:]); err != nil {
			return ev, fmt.Errorf("reading event word %d: %w", i, err)
		}
		if i < keep {
			ev.Data[i] = PackWord(word[0], word[1])
		}
	}

	want := 4 + 2*int(ev.DataLen)
	if int(hdr[0]) != want {
		return ev, &FrameError{Field: "length", Want: want, Got: int(hdr[0])}
	}
	return ev, nil
}
