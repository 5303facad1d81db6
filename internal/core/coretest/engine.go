// Package coretest provides an in-memory Engine for tests.
package coretest

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/dkeye/rtcserver/internal/core"
	"github.com/dkeye/rtcserver/internal/domain"
)

// Engine is a scriptable fake. Any non-nil func field overrides the default
// behaviour for that call; defaults always succeed.
type Engine struct {
	CreatePeerConnectionFunc  func(ctx context.Context, sid domain.SessionID) (core.EngineHandle, error)
	DestroyPeerConnectionFunc func(ctx context.Context, h core.EngineHandle) error
	CreateOfferFunc           func(ctx context.Context, h core.EngineHandle) (domain.SessionDescription, error)
	CreateAnswerFunc          func(ctx context.Context, h core.EngineHandle) (domain.SessionDescription, error)
	SetLocalDescriptionFunc   func(ctx context.Context, h core.EngineHandle, desc domain.SessionDescription) error
	SetRemoteDescriptionFunc  func(ctx context.Context, h core.EngineHandle, desc domain.SessionDescription) error
	StatsFunc                 func(ctx context.Context, h core.EngineHandle) (domain.PeerConnectionState, error)

	mu           sync.Mutex
	next         int
	live         map[core.EngineHandle]*peer
	destroyed    []core.EngineHandle
	events       chan core.EngineEvent
	eventsClosed bool
}

type peer struct {
	transceivers []domain.Transceiver
	stats        domain.PeerConnectionState
}

func NewEngine() *Engine {
	return &Engine{
		live:   make(map[core.EngineHandle]*peer),
		events: make(chan core.EngineEvent, 1024),
	}
}

func (e *Engine) CreatePeerConnection(ctx context.Context, sid domain.SessionID) (core.EngineHandle, error) {
	if e.CreatePeerConnectionFunc != nil {
		h, err := e.CreatePeerConnectionFunc(ctx, sid)
		if err != nil {
			return "", err
		}
		e.mu.Lock()
		e.live[h] = &peer{}
		e.mu.Unlock()
		return h, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	h := core.EngineHandle("h" + strconv.Itoa(e.next))
	e.live[h] = &peer{}
	return h, nil
}

func (e *Engine) DestroyPeerConnection(ctx context.Context, h core.EngineHandle) error {
	if e.DestroyPeerConnectionFunc != nil {
		if err := e.DestroyPeerConnectionFunc(ctx, h); err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.live[h]; !ok {
		return fmt.Errorf("coretest: unknown handle %s", h)
	}
	delete(e.live, h)
	e.destroyed = append(e.destroyed, h)
	return nil
}

func (e *Engine) CreateOffer(ctx context.Context, h core.EngineHandle) (domain.SessionDescription, error) {
	if e.CreateOfferFunc != nil {
		return e.CreateOfferFunc(ctx, h)
	}
	if _, err := e.get(h); err != nil {
		return domain.SessionDescription{}, err
	}
	return domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0 offer " + string(h)}, nil
}

func (e *Engine) CreateAnswer(ctx context.Context, h core.EngineHandle) (domain.SessionDescription, error) {
	if e.CreateAnswerFunc != nil {
		return e.CreateAnswerFunc(ctx, h)
	}
	if _, err := e.get(h); err != nil {
		return domain.SessionDescription{}, err
	}
	return domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: "v=0 answer " + string(h)}, nil
}

func (e *Engine) SetLocalDescription(ctx context.Context, h core.EngineHandle, desc domain.SessionDescription) error {
	if e.SetLocalDescriptionFunc != nil {
		return e.SetLocalDescriptionFunc(ctx, h, desc)
	}
	_, err := e.get(h)
	return err
}

func (e *Engine) SetRemoteDescription(ctx context.Context, h core.EngineHandle, desc domain.SessionDescription) error {
	if e.SetRemoteDescriptionFunc != nil {
		return e.SetRemoteDescriptionFunc(ctx, h, desc)
	}
	_, err := e.get(h)
	return err
}

func (e *Engine) AddTrack(_ context.Context, h core.EngineHandle, trackID, label string) error {
	return e.addTransceiver(h, trackID, domain.DirectionSendOnly)
}

func (e *Engine) AddTransceiver(_ context.Context, h core.EngineHandle, trackID, label string) error {
	return e.addTransceiver(h, trackID, domain.DirectionSendRecv)
}

func (e *Engine) addTransceiver(h core.EngineHandle, id string, dir domain.Direction) error {
	e.mu.Lock()
	p, ok := e.live[h]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("coretest: unknown handle %s", h)
	}
	t := domain.Transceiver{ID: id, Mid: strconv.Itoa(len(p.transceivers)), Direction: dir, MediaType: domain.MediaVideo}
	p.transceivers = append(p.transceivers, t)
	e.mu.Unlock()
	e.Emit(core.EngineEvent{Handle: h, Transceiver: &t})
	return nil
}

func (e *Engine) Transceivers(_ context.Context, h core.EngineHandle) ([]domain.Transceiver, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.live[h]
	if !ok {
		return nil, fmt.Errorf("coretest: unknown handle %s", h)
	}
	out := make([]domain.Transceiver, len(p.transceivers))
	copy(out, p.transceivers)
	return out, nil
}

func (e *Engine) Stats(ctx context.Context, h core.EngineHandle) (domain.PeerConnectionState, error) {
	if e.StatsFunc != nil {
		return e.StatsFunc(ctx, h)
	}
	p, err := e.get(h)
	if err != nil {
		return domain.PeerConnectionState{}, err
	}
	return p.stats, nil
}

func (e *Engine) Events() <-chan core.EngineEvent { return e.events }

// Emit pushes ev to the event source as the engine would.
func (e *Engine) Emit(ev core.EngineEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.eventsClosed {
		return
	}
	e.events <- ev
}

// EmitCandidate pushes an ICE candidate event for h.
func (e *Engine) EmitCandidate(h core.EngineHandle, candidate string) {
	e.Emit(core.EngineEvent{Handle: h, Candidate: &domain.ICECandidate{Candidate: candidate}})
}

// CloseEvents closes the event source.
func (e *Engine) CloseEvents() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.eventsClosed {
		e.eventsClosed = true
		close(e.events)
	}
}

// SetStats scripts the counters returned for h.
func (e *Engine) SetStats(h core.EngineHandle, st domain.PeerConnectionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.live[h]; ok {
		p.stats = st
	}
}

// Live returns the number of handles not yet destroyed.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

// Destroyed returns the handles released so far, in order.
func (e *Engine) Destroyed() []core.EngineHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]core.EngineHandle, len(e.destroyed))
	copy(out, e.destroyed)
	return out
}

func (e *Engine) get(h core.EngineHandle) (*peer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.live[h]
	if !ok {
		return nil, fmt.Errorf("coretest: unknown handle %s", h)
	}
	return p, nil
}

var _ core.Engine = (*Engine)(nil)
