package core

import (
	"context"
	"slices"

	"github.com/dkeye/rtcserver/internal/domain"
)

// PeerConnection is one negotiated connection owned by a Session.
// Its mutable fields are guarded by the owning session's lock.
type PeerConnection struct {
	id        domain.PeerConnectionID
	name      string
	sessionID domain.SessionID
	handle    EngineHandle

	// op serializes engine work on this connection.
	op chan struct{}

	state        domain.NegotiationState
	transceivers []domain.Transceiver
	closed       bool
}

func NewPeerConnection(sid domain.SessionID, id domain.PeerConnectionID, name string, h EngineHandle) *PeerConnection {
	return &PeerConnection{
		id:        id,
		name:      name,
		sessionID: sid,
		handle:    h,
		op:        make(chan struct{}, 1),
		state:     domain.NegotiationIdle,
	}
}

func (pc *PeerConnection) ID() domain.PeerConnectionID { return pc.id }
func (pc *PeerConnection) Name() string                { return pc.name }
func (pc *PeerConnection) SessionID() domain.SessionID { return pc.sessionID }
func (pc *PeerConnection) Handle() EngineHandle        { return pc.handle }

// Acquire takes the connection's operation slot. Only one lifecycle operation
// runs against a connection at a time; waiters give up when ctx is done.
func (pc *PeerConnection) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case pc.op <- struct{}{}:
		return func() { <-pc.op }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// info must be called with the session lock held.
func (pc *PeerConnection) info() domain.PeerConnectionInfo {
	return domain.PeerConnectionInfo{
		ID:               pc.id,
		Name:             pc.name,
		SessionID:        pc.sessionID,
		NegotiationState: pc.state,
	}
}

// transceiversCopy must be called with the session lock held.
func (pc *PeerConnection) transceiversCopy() []domain.Transceiver {
	return slices.Clone(pc.transceivers)
}
