package stone

import (
	"bytes"
	"errors"
	"time"
)

// fakeStream is an in-memory driver.Stream. A scripted reply is appended to
// the input once replyAt bytes have been written, which is how a display
// answers only after the full request has arrived.
type fakeStream struct {
	in      []byte
	out     bytes.Buffer
	reply   []byte
	replyAt int
	failW   bool
}

func newFakeStream(input ...byte) *fakeStream {
	return &fakeStream{in: input}
}

// respond arms reply to arrive after n request bytes.
func (f *fakeStream) respond(n int, reply ...byte) {
	f.replyAt = n
	f.reply = reply
}

func (f *fakeStream) Buffered() int { return len(f.in) }

func (f *fakeStream) ReadByte() (byte, error) {
	if len(f.in) == 0 {
		return 0, errors.New("fake: no input")
	}
	b := f.in[0]
	f.in = f.in[1:]
	return b, nil
}

func (f *fakeStream) WriteByte(b byte) error {
	_, err := f.Write([]byte{b})
	return err
}

func (f *fakeStream) Write(p []byte) (int, error) {
	if f.failW {
		return 0, errors.New("fake: write failed")
	}
	f.out.Write(p)
	if f.reply != nil && f.out.Len() >= f.replyAt {
		f.in = append(f.in, f.reply...)
		f.reply = nil
	}
	return len(p), nil
}

func (f *fakeStream) written() []byte { return f.out.Bytes() }

// fastOpts keeps timeout paths short in tests.
var fastOpts = []Option{WithTimeout(5 * time.Millisecond), WithPollInterval(0)}

func newTestDisplay(s *fakeStream, opts ...Option) *Display {
	return New(s, append(append([]Option{}, fastOpts...), opts...)...)
}

type recordingObserver struct {
	requests  []byte
	responses []error
	events    []error
}

func (r *recordingObserver) ObserveRequest(cmd byte) { r.requests = append(r.requests, cmd) }

func (r *recordingObserver) ObserveResponse(_ byte, _ time.Duration, err error) {
	r.responses = append(r.responses, err)
}

func (r *recordingObserver) ObserveEvent(_ byte, err error) { r.events = append(r.events, err) }
