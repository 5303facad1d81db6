package orch

import (
	"context"

	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CreateSession registers a new session in Created state. An empty id is
// replaced by a generated one.
func (o *Orchestrator) CreateSession(_ context.Context, id domain.SessionID, name string) (domain.SessionInfo, error) {
	if id == "" {
		id = domain.SessionID(uuid.NewString())
	}
	s, err := o.Registry.CreateSession(id, name)
	if err != nil {
		return domain.SessionInfo{}, err
	}
	o.Metrics.SessionTransition("", string(domain.SessionCreated))
	return s.Info(), nil
}

func (o *Orchestrator) StartSession(_ context.Context, id domain.SessionID) (domain.SessionInfo, error) {
	s, err := o.Registry.Session(id)
	if err != nil {
		return domain.SessionInfo{}, err
	}
	if err := s.Start(o.now()); err != nil {
		return domain.SessionInfo{}, err
	}
	o.Metrics.SessionTransition(string(domain.SessionCreated), string(domain.SessionRunning))
	return s.Info(), nil
}

// StopSession stops a running session and releases every engine handle it
// owned. The session itself stays listed until deleted.
func (o *Orchestrator) StopSession(ctx context.Context, id domain.SessionID) (domain.SessionInfo, error) {
	s, err := o.Registry.Session(id)
	if err != nil {
		return domain.SessionInfo{}, err
	}
	peers, err := s.Stop(o.now())
	if err != nil {
		return domain.SessionInfo{}, err
	}
	o.Metrics.SessionTransition(string(domain.SessionRunning), string(domain.SessionStopped))
	o.teardown(ctx, id, peers)
	return s.Info(), nil
}

// DeleteSession removes a session in any state, releasing its peers first.
func (o *Orchestrator) DeleteSession(ctx context.Context, id domain.SessionID) error {
	state, peers, err := o.Registry.DeleteSession(id)
	if err != nil {
		return err
	}
	o.Metrics.SessionTransition(string(state), "")
	o.teardown(ctx, id, peers)
	log.Info().Str("module", "orch").Str("session_id", string(id)).Msg("session deleted")
	return nil
}

func (o *Orchestrator) ListSessions(_ context.Context) []domain.SessionInfo {
	sessions := o.Registry.Sessions()
	out := make([]domain.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	return out
}

func (o *Orchestrator) GetSession(_ context.Context, id domain.SessionID) (domain.SessionInfo, error) {
	s, err := o.Registry.Session(id)
	if err != nil {
		return domain.SessionInfo{}, err
	}
	return s.Info(), nil
}
