package hub

import (
	"sync"

	"github.com/google/uuid"
)

// stream is a receive only sink backing a server-sent events response.
type stream struct {
	id        string
	send      chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func newStream() *stream {
	return &stream{
		id:   uuid.NewString(),
		send: make(chan Frame, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (s *stream) ID() string {
	return s.id
}

func (s *stream) Send(frame Frame) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *stream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
