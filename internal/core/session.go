package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/rs/zerolog/log"
)

// Session is a threadsafe in-memory group of peer connections.
// It never calls the engine; callers release handles of detached peers.
type Session struct {
	id   domain.SessionID
	name string

	mu        sync.Mutex
	state     domain.SessionState
	startTime time.Time
	stopTime  time.Time
	peers     map[domain.PeerConnectionID]*PeerConnection
	order     []domain.PeerConnectionID
	removed   bool
}

func NewSession(id domain.SessionID, name string) *Session {
	return &Session{
		id:    id,
		name:  name,
		state: domain.SessionCreated,
		peers: make(map[domain.PeerConnectionID]*PeerConnection),
	}
}

func (s *Session) ID() domain.SessionID { return s.id }
func (s *Session) Name() string         { return s.name }

// PeerRef pairs a peer connection snapshot with its engine handle.
type PeerRef struct {
	Info   domain.PeerConnectionInfo
	Handle EngineHandle
}

// Snapshot is a consistent copy of a session and its peers taken under one lock.
type Snapshot struct {
	Info  domain.SessionInfo
	Peers []PeerRef
}

func (s *Session) Info() domain.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Info: s.infoLocked(), Peers: make([]PeerRef, 0, len(s.order))}
	for _, id := range s.order {
		pc := s.peers[id]
		snap.Peers = append(snap.Peers, PeerRef{Info: pc.info(), Handle: pc.handle})
	}
	return snap
}

func (s *Session) infoLocked() domain.SessionInfo {
	info := domain.SessionInfo{
		ID:                 s.id,
		Name:               s.name,
		State:              s.state,
		NumPeerConnections: len(s.peers),
	}
	if !s.startTime.IsZero() {
		t := s.startTime
		info.StartTime = &t
	}
	if !s.stopTime.IsZero() {
		t := s.stopTime
		info.StopTime = &t
	}
	return info
}

// Start moves Created -> Running and stamps the start time.
func (s *Session) Start(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.aliveLocked(); err != nil {
		return err
	}
	if s.state != domain.SessionCreated {
		return fmt.Errorf("%w: session %s is %s, want %s", domain.ErrInvalidState, s.id, s.state, domain.SessionCreated)
	}
	s.state = domain.SessionRunning
	s.startTime = now
	log.Info().Str("module", "core.session").Str("session_id", string(s.id)).Msg("session started")
	return nil
}

// Stop moves Running -> Stopped, stamps the stop time and detaches every
// peer connection. The returned peers are already marked closed.
func (s *Session) Stop(now time.Time) ([]*PeerConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.aliveLocked(); err != nil {
		return nil, err
	}
	if s.state != domain.SessionRunning {
		return nil, fmt.Errorf("%w: session %s is %s, want %s", domain.ErrInvalidState, s.id, s.state, domain.SessionRunning)
	}
	s.state = domain.SessionStopped
	s.stopTime = now
	log.Info().Str("module", "core.session").Str("session_id", string(s.id)).Int("peers", len(s.peers)).Msg("session stopped")
	return s.detachLocked(), nil
}

// Remove marks the session deleted in any state and detaches its peers.
// It returns the state the session was in. Every later operation on it fails
// with ErrNotFound.
func (s *Session) Remove() (domain.SessionState, []*PeerConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.aliveLocked(); err != nil {
		return "", nil, err
	}
	s.removed = true
	return s.state, s.detachLocked(), nil
}

func (s *Session) detachLocked() []*PeerConnection {
	out := make([]*PeerConnection, 0, len(s.order))
	for _, id := range s.order {
		pc := s.peers[id]
		pc.closed = true
		out = append(out, pc)
	}
	clear(s.peers)
	s.order = nil
	return out
}

func (s *Session) aliveLocked() error {
	if s.removed {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, s.id)
	}
	return nil
}

func (s *Session) acceptsPeersLocked() error {
	if err := s.aliveLocked(); err != nil {
		return err
	}
	if s.state == domain.SessionStopped {
		return fmt.Errorf("%w: session %s is %s", domain.ErrInvalidState, s.id, s.state)
	}
	return nil
}

// CheckInsert validates that a peer connection with id could be inserted now.
func (s *Session) CheckInsert(id domain.PeerConnectionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkInsertLocked(id)
}

func (s *Session) checkInsertLocked(id domain.PeerConnectionID) error {
	if err := s.acceptsPeersLocked(); err != nil {
		return err
	}
	if _, ok := s.peers[id]; ok {
		return fmt.Errorf("%w: peer connection %s in session %s", domain.ErrAlreadyExists, id, s.id)
	}
	return nil
}

// Insert adds pc if the session still accepts peers and the id is free.
func (s *Session) Insert(pc *PeerConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkInsertLocked(pc.id); err != nil {
		return err
	}
	s.peers[pc.id] = pc
	s.order = append(s.order, pc.id)
	log.Info().Str("module", "core.session").Str("session_id", string(s.id)).Str("peer_connection_id", string(pc.id)).Msg("peer connection added")
	return nil
}

// Peer looks up a live peer connection.
func (s *Session) Peer(id domain.PeerConnectionID) (*PeerConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.aliveLocked(); err != nil {
		return nil, err
	}
	pc, ok := s.peers[id]
	if !ok {
		return nil, fmt.Errorf("%w: peer connection %s in session %s", domain.ErrNotFound, id, s.id)
	}
	return pc, nil
}

// WithPeer runs fn under the session lock while pc is still attached.
// fn must not block.
func (s *Session) WithPeer(pc *PeerConnection, fn func(domain.PeerConnectionInfo) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.attachedLocked(pc); err != nil {
		return err
	}
	return fn(pc.info())
}

func (s *Session) attachedLocked(pc *PeerConnection) error {
	if err := s.aliveLocked(); err != nil {
		return err
	}
	if pc.closed {
		return fmt.Errorf("%w: peer connection %s in session %s", domain.ErrNotFound, pc.id, s.id)
	}
	return nil
}

// Transition is a validated negotiation step awaiting its engine call.
type Transition struct {
	pc   *PeerConnection
	from domain.NegotiationState
	to   domain.NegotiationState
}

func (t Transition) From() domain.NegotiationState { return t.from }
func (t Transition) To() domain.NegotiationState   { return t.to }

// Prepare validates op against the session and peer state. Nothing changes
// until Commit; the caller must hold pc's operation slot in between.
func (s *Session) Prepare(pc *PeerConnection, op Op, sdpType domain.SDPType) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.attachedLocked(pc); err != nil {
		return Transition{}, err
	}
	if op != OpRead {
		if err := s.acceptsPeersLocked(); err != nil {
			return Transition{}, err
		}
	}
	next, err := Next(pc.state, op, sdpType)
	if err != nil {
		return Transition{}, fmt.Errorf("peer connection %s: %w", pc.id, err)
	}
	return Transition{pc: pc, from: pc.state, to: next}, nil
}

// Commit applies a prepared transition unless the peer was torn down meanwhile.
func (s *Session) Commit(t Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.attachedLocked(t.pc); err != nil {
		return err
	}
	if t.pc.state != t.from {
		return fmt.Errorf("%w: peer connection %s moved from %s to %s", domain.ErrInvalidState, t.pc.id, t.from, t.pc.state)
	}
	t.pc.state = t.to
	if t.from != t.to {
		log.Debug().Str("module", "core.session").Str("session_id", string(s.id)).Str("peer_connection_id", string(t.pc.id)).
			Str("from", string(t.from)).Str("to", string(t.to)).Msg("negotiation state changed")
	}
	return nil
}

// StoreTransceivers replaces the cached transceiver list of a live peer.
func (s *Session) StoreTransceivers(pc *PeerConnection, ts []domain.Transceiver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.attachedLocked(pc); err != nil {
		return err
	}
	pc.transceivers = ts
	return nil
}

// Transceivers returns the cached transceiver list.
func (s *Session) Transceivers(pc *PeerConnection) ([]domain.Transceiver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.attachedLocked(pc); err != nil {
		return nil, err
	}
	return pc.transceiversCopy(), nil
}
