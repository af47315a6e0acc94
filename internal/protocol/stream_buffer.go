// internal/protocol/stream_buffer.go
package protocol

import (
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
)

const pumpChunkSize = 256

// inputBuffer turns a blocking reader into the non-blocking Buffered/ReadByte
// pair the display protocol polls. A background pump appends everything the
// reader yields until it fails.
type inputBuffer struct {
	mu   sync.Mutex
	buf  []byte
	err  error
	done chan struct{}
}

func newInputBuffer() *inputBuffer {
	return &inputBuffer{done: make(chan struct{})}
}

// pump copies r into the buffer until r returns an error. Zero-length reads
// with a nil error are read timeouts and are skipped.
func (b *inputBuffer) pump(r io.Reader, stats *statsRecorder, logger *zap.Logger) {
	defer close(b.done)
	chunk := make([]byte, pumpChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			b.mu.Lock()
			b.buf = append(b.buf, chunk[:n]...)
			b.mu.Unlock()
			stats.recordRead(n)
		}
		if err != nil {
			b.mu.Lock()
			b.err = err
			b.mu.Unlock()
			if !errors.Is(err, io.EOF) && !errors.Is(err, errPumpStopped) {
				stats.recordError()
				logger.Debug("Input pump stopped", zap.Error(err))
			}
			return
		}
	}
}

// errPumpStopped is what readers return after Close asked them to stop
var errPumpStopped = errors.New("input pump stopped")

func (b *inputBuffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// ReadByte pops the oldest buffered byte. With nothing buffered it reports the
// pump's terminal error if there is one, and io.EOF otherwise; it never waits.
func (b *inputBuffer) ReadByte() (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	c := b.buf[0]
	b.buf = b.buf[1:]
	if len(b.buf) == 0 {
		b.buf = nil
	}
	return c, nil
}

// Err returns the error that stopped the pump, if any.
func (b *inputBuffer) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *inputBuffer) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = nil
}
