package app

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/rtcserver/internal/core"
	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry owns every live session. The map lock is held only for lookups
// and insert/delete; per-session state is guarded by the session itself, so
// unrelated sessions never wait on each other.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*core.Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.SessionID]*core.Session),
	}
}

// CreateSession inserts a new session in Created state if id is free.
func (r *Registry) CreateSession(id domain.SessionID, name string) (*core.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, fmt.Errorf("%w: session %s", domain.ErrAlreadyExists, id)
	}
	s := core.NewSession(id, name)
	r.sessions[id] = s
	log.Info().Str("module", "app.registry").Str("session_id", string(id)).Str("name", name).Msg("created session")
	return s, nil
}

func (r *Registry) Session(id domain.SessionID) (*core.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	return s, nil
}

// Sessions returns all sessions ordered by id.
func (r *Registry) Sessions() []*core.Session {
	r.mu.RLock()
	out := make([]*core.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *core.Session) int { return cmp.Compare(a.ID(), b.ID()) })
	return out
}

func (r *Registry) StartSession(id domain.SessionID, now time.Time) error {
	s, err := r.Session(id)
	if err != nil {
		return err
	}
	return s.Start(now)
}

// StopSession stops the session and returns its detached peer connections.
// The caller owns releasing their engine handles.
func (r *Registry) StopSession(id domain.SessionID, now time.Time) ([]*core.PeerConnection, error) {
	s, err := r.Session(id)
	if err != nil {
		return nil, err
	}
	return s.Stop(now)
}

// DeleteSession removes the session in any state and returns the state it
// was in together with its detached peer connections.
func (r *Registry) DeleteSession(id domain.SessionID) (domain.SessionState, []*core.PeerConnection, error) {
	s, err := r.Session(id)
	if err != nil {
		return "", nil, err
	}
	state, peers, err := s.Remove()
	if err != nil {
		return "", nil, err
	}
	r.mu.Lock()
	if r.sessions[id] == s {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("session_id", string(id)).Int("peers", len(peers)).Msg("deleted session")
	return state, peers, nil
}

// AddPeerConnection inserts pc into s. It fails with ErrNotFound if s was
// deleted since it was looked up.
func (r *Registry) AddPeerConnection(s *core.Session, pc *core.PeerConnection) error {
	return s.Insert(pc)
}

// PeerConnection looks up a peer connection together with its owning session.
func (r *Registry) PeerConnection(sid domain.SessionID, id domain.PeerConnectionID) (*core.Session, *core.PeerConnection, error) {
	s, err := r.Session(sid)
	if err != nil {
		return nil, nil, err
	}
	pc, err := s.Peer(id)
	if err != nil {
		return nil, nil, err
	}
	return s, pc, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
