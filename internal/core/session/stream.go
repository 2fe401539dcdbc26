package session

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Send after the stream was closed.
var ErrClosed = errors.New("session closed")

// Stream is a buffered Channel drained by a transport writer (SSE, websocket).
type Stream struct {
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func NewStream(buffer int) *Stream {
	if buffer < 1 {
		buffer = 1
	}
	return &Stream{out: make(chan []byte, buffer), done: make(chan struct{})}
}

func (s *Stream) Send(ctx context.Context, payload []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.out <- payload:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages yields queued payloads in order.
func (s *Stream) Messages() <-chan []byte { return s.out }

// Done is closed once the stream is closed.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Close is safe to call more than once.
func (s *Stream) Close() {
	s.once.Do(func() { close(s.done) })
}
