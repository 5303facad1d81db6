// Package fanout routes engine events to the observers of each peer connection.
package fanout

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/rtcserver/internal/core"
	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/dkeye/rtcserver/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	reasonCancel       = "cancel"
	reasonTeardown     = "teardown"
	reasonBackpressure = "backpressure"
)

// topic is the event stream of one engine handle.
type topic struct {
	sessionID domain.SessionID
	peerID    domain.PeerConnectionID
	seq       uint64
	subs      map[uint64]*Subscription
	// history holds the latest events so observers joining late can catch up.
	history []domain.Event
}

// Hub is keyed by engine handle. Every send is non-blocking: an observer
// whose buffer is full is disconnected with ErrBackpressure.
type Hub struct {
	buffer  int
	metrics *metrics.Metrics

	mu     sync.Mutex
	topics map[core.EngineHandle]*topic
	nextID uint64
}

func NewHub(buffer int, m *metrics.Metrics) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		buffer:  buffer,
		metrics: m,
		topics:  make(map[core.EngineHandle]*topic),
	}
}

// Register opens the topic for h. Events for unregistered handles are dropped.
func (h *Hub) Register(handle core.EngineHandle, sid domain.SessionID, pcid domain.PeerConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.topics[handle]; ok {
		return
	}
	h.topics[handle] = &topic{
		sessionID: sid,
		peerID:    pcid,
		subs:      make(map[uint64]*Subscription),
	}
}

// Close ends the topic of handle; every observer gets a normal stream close.
func (h *Hub) Close(handle core.EngineHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[handle]
	if !ok {
		return
	}
	delete(h.topics, handle)
	for id, s := range t.subs {
		delete(t.subs, id)
		s.finishLocked(nil)
		h.metrics.ObserverDone(reasonTeardown)
	}
	log.Debug().Str("module", "fanout").Str("session_id", string(t.sessionID)).Str("peer_connection_id", string(t.peerID)).Msg("topic closed")
}

// Subscribe attaches a new observer to handle and replays retained events.
func (h *Hub) Subscribe(handle core.EngineHandle) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[handle]
	if !ok {
		return nil, fmt.Errorf("%w: no event stream for handle %s", domain.ErrNotFound, handle)
	}
	h.nextID++
	// the replay comes on top of the live buffer
	s := &Subscription{
		id:     h.nextID,
		handle: handle,
		hub:    h,
		ch:     make(chan domain.Event, h.buffer+len(t.history)),
	}
	for _, ev := range t.history {
		s.ch <- ev
	}
	t.subs[s.id] = s
	h.metrics.ObserverOpened()
	log.Debug().Str("module", "fanout").Str("session_id", string(t.sessionID)).Str("peer_connection_id", string(t.peerID)).
		Int("replayed", len(t.history)).Msg("observer subscribed")
	return s, nil
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	if t, ok := h.topics[s.handle]; ok {
		delete(t.subs, s.id)
	}
	s.finishLocked(nil)
	h.metrics.ObserverDone(reasonCancel)
}

// Publish delivers ev to every observer of its handle in call order.
func (h *Hub) Publish(ev core.EngineEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[ev.Handle]
	if !ok {
		log.Debug().Str("module", "fanout").Str("handle", string(ev.Handle)).Msg("event for unknown handle dropped")
		return
	}
	t.seq++
	out := domain.Event{
		SessionID:        t.sessionID,
		PeerConnectionID: t.peerID,
		Seq:              t.seq,
	}
	switch {
	case ev.Candidate != nil:
		c := *ev.Candidate
		out.Kind = domain.EventICECandidate
		out.Candidate = &c
	case ev.Transceiver != nil:
		tr := *ev.Transceiver
		out.Kind = domain.EventTransceiverChange
		out.Transceiver = &tr
	default:
		return
	}
	h.metrics.Event(string(out.Kind))

	if len(t.history) == h.buffer {
		t.history = append(t.history[:0], t.history[1:]...)
	}
	t.history = append(t.history, out)

	for id, s := range t.subs {
		if err := s.trySendLocked(out); err != nil {
			log.Warn().Str("module", "fanout").Str("session_id", string(t.sessionID)).Str("peer_connection_id", string(t.peerID)).
				Uint64("seq", out.Seq).Msg("observer too slow, disconnecting")
			delete(t.subs, id)
			s.finishLocked(err)
			h.metrics.ObserverDone(reasonBackpressure)
		}
	}
}

// Run pumps src into the hub until ctx is done or src is closed.
func (h *Hub) Run(ctx context.Context, src <-chan core.EngineEvent) {
	logger := log.With().Str("module", "fanout").Logger()
	logger.Info().Msg("event pump started")
	defer logger.Info().Msg("event pump stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-src:
			if !ok {
				return
			}
			h.Publish(ev)
		}
	}
}

// Observers returns the number of open observers of handle.
func (h *Hub) Observers(handle core.EngineHandle) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[handle]; ok {
		return len(t.subs)
	}
	return 0
}
