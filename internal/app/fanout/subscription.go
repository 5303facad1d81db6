package fanout

import (
	"github.com/dkeye/rtcserver/internal/core"
	"github.com/dkeye/rtcserver/internal/domain"
)

// Subscription is a non-owning observer token. Its channel is closed when the
// observer cancels, the peer connection is torn down, or it falls behind.
// All fields are guarded by the hub lock.
type Subscription struct {
	id     uint64
	handle core.EngineHandle
	hub    *Hub

	ch     chan domain.Event
	closed bool
	err    error
}

// Events yields events in engine order and is closed when the stream ends.
func (s *Subscription) Events() <-chan domain.Event { return s.ch }

// Err is nil after a normal close and wraps domain.ErrBackpressure after a
// disconnect for falling behind.
func (s *Subscription) Err() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.err
}

// Close deregisters the observer. Safe to call more than once.
func (s *Subscription) Close() { s.hub.unsubscribe(s) }

func (s *Subscription) trySendLocked(ev domain.Event) error {
	if s.closed {
		return nil
	}
	select {
	case s.ch <- ev:
		return nil
	default:
		return domain.ErrBackpressure
	}
}

func (s *Subscription) finishLocked(err error) {
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
}
