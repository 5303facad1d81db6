package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/rtcserver/internal/app/fanout"
	"github.com/dkeye/rtcserver/internal/core"
	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CreatePeerConnection allocates an engine handle and inserts a new peer
// connection in Idle state. An empty id is replaced by a generated one.
func (o *Orchestrator) CreatePeerConnection(ctx context.Context, sid domain.SessionID, id domain.PeerConnectionID, name string) (domain.PeerConnectionInfo, error) {
	s, err := o.Registry.Session(sid)
	if err != nil {
		return domain.PeerConnectionInfo{}, err
	}
	if id == "" {
		id = domain.PeerConnectionID(uuid.NewString())
	}
	if err := s.CheckInsert(id); err != nil {
		return domain.PeerConnectionInfo{}, err
	}

	h, err := o.Engine.CreatePeerConnection(ctx, sid)
	if err != nil {
		return domain.PeerConnectionInfo{}, o.engineErr("create_peer_connection", err, domain.ErrEngine)
	}
	pc := core.NewPeerConnection(sid, id, name, h)
	o.Events.Register(h, sid, id)

	if err := o.Registry.AddPeerConnection(s, pc); err != nil {
		// lost a race with a duplicate create or with stop/delete
		o.Events.Close(h)
		o.destroyDetached(ctx, pc)
		return domain.PeerConnectionInfo{}, err
	}
	o.Metrics.PeerConnectionsAdd(1)

	log.Info().Str("module", "orch").Str("session_id", string(sid)).Str("peer_connection_id", string(id)).
		Str("handle", string(h)).Msg("peer connection created")
	return domain.PeerConnectionInfo{ID: id, Name: name, SessionID: sid, NegotiationState: domain.NegotiationIdle}, nil
}

func (o *Orchestrator) destroyDetached(ctx context.Context, pc *core.PeerConnection) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.teardownTimeout())
	defer cancel()
	o.destroy(ctx, pc)
}

// peerOp runs one lifecycle operation on a peer connection: validate, call the
// engine without holding the session lock, then commit the transition. The
// transition is applied only if the engine call succeeded.
func (o *Orchestrator) peerOp(
	ctx context.Context,
	sid domain.SessionID,
	id domain.PeerConnectionID,
	op core.Op,
	sdpType domain.SDPType,
	call func(ctx context.Context, h core.EngineHandle) error,
) (*core.Session, *core.PeerConnection, error) {
	s, pc, err := o.Registry.PeerConnection(sid, id)
	if err != nil {
		return nil, nil, err
	}
	release, err := pc.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("peer connection %s: waiting for pending operation: %w", id, err)
	}
	defer release()

	tr, err := s.Prepare(pc, op, sdpType)
	if err != nil {
		return nil, nil, err
	}
	if err := call(ctx, pc.Handle()); err != nil {
		return nil, nil, err
	}
	if err := s.Commit(tr); err != nil {
		return nil, nil, err
	}
	return s, pc, nil
}

func (o *Orchestrator) CreateOffer(ctx context.Context, sid domain.SessionID, id domain.PeerConnectionID) (domain.SessionDescription, error) {
	var desc domain.SessionDescription
	_, _, err := o.peerOp(ctx, sid, id, core.OpCreateOffer, "", func(ctx context.Context, h core.EngineHandle) error {
		d, err := o.Engine.CreateOffer(ctx, h)
		if err != nil {
			return o.engineErr("create_offer", err, domain.ErrEngine)
		}
		desc = d
		return nil
	})
	return desc, err
}

func (o *Orchestrator) CreateAnswer(ctx context.Context, sid domain.SessionID, id domain.PeerConnectionID) (domain.SessionDescription, error) {
	var desc domain.SessionDescription
	_, _, err := o.peerOp(ctx, sid, id, core.OpCreateAnswer, "", func(ctx context.Context, h core.EngineHandle) error {
		d, err := o.Engine.CreateAnswer(ctx, h)
		if err != nil {
			return o.engineErr("create_answer", err, domain.ErrEngine)
		}
		desc = d
		return nil
	})
	return desc, err
}

// SetLocalDescription applies desc on the local side. Engine rejection
// surfaces as ErrNegotiationFailed and leaves the state unchanged.
func (o *Orchestrator) SetLocalDescription(ctx context.Context, sid domain.SessionID, id domain.PeerConnectionID, desc domain.SessionDescription) error {
	_, _, err := o.peerOp(ctx, sid, id, core.OpSetLocal, desc.Type, func(ctx context.Context, h core.EngineHandle) error {
		if err := o.Engine.SetLocalDescription(ctx, h, desc); err != nil {
			return o.engineErr("set_local_description", err, domain.ErrNegotiationFailed)
		}
		return nil
	})
	return err
}

func (o *Orchestrator) SetRemoteDescription(ctx context.Context, sid domain.SessionID, id domain.PeerConnectionID, desc domain.SessionDescription) error {
	_, _, err := o.peerOp(ctx, sid, id, core.OpSetRemote, desc.Type, func(ctx context.Context, h core.EngineHandle) error {
		if err := o.Engine.SetRemoteDescription(ctx, h, desc); err != nil {
			return o.engineErr("set_remote_description", err, domain.ErrNegotiationFailed)
		}
		return nil
	})
	return err
}

func (o *Orchestrator) AddTrack(ctx context.Context, sid domain.SessionID, id domain.PeerConnectionID, trackID, label string) error {
	_, _, err := o.peerOp(ctx, sid, id, core.OpAddMedia, "", func(ctx context.Context, h core.EngineHandle) error {
		if err := o.Engine.AddTrack(ctx, h, trackID, label); err != nil {
			return o.engineErr("add_track", err, domain.ErrEngine)
		}
		return nil
	})
	return err
}

func (o *Orchestrator) AddTransceiver(ctx context.Context, sid domain.SessionID, id domain.PeerConnectionID, trackID, label string) error {
	_, _, err := o.peerOp(ctx, sid, id, core.OpAddMedia, "", func(ctx context.Context, h core.EngineHandle) error {
		if err := o.Engine.AddTransceiver(ctx, h, trackID, label); err != nil {
			return o.engineErr("add_transceiver", err, domain.ErrEngine)
		}
		return nil
	})
	return err
}

// GetTransceivers refreshes the cached transceiver list from the engine.
func (o *Orchestrator) GetTransceivers(ctx context.Context, sid domain.SessionID, id domain.PeerConnectionID) ([]domain.Transceiver, error) {
	var ts []domain.Transceiver
	s, pc, err := o.peerOp(ctx, sid, id, core.OpRead, "", func(ctx context.Context, h core.EngineHandle) error {
		got, err := o.Engine.Transceivers(ctx, h)
		if err != nil {
			return o.engineErr("transceivers", err, domain.ErrEngine)
		}
		ts = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.StoreTransceivers(pc, ts); err != nil {
		return nil, err
	}
	if ts == nil {
		ts = []domain.Transceiver{}
	}
	return ts, nil
}

// Observe opens an event stream for a peer connection. The subscription is
// taken under the session lock so it cannot miss a concurrent teardown. The
// caller must Close it when done.
func (o *Orchestrator) Observe(_ context.Context, sid domain.SessionID, id domain.PeerConnectionID) (*fanout.Subscription, error) {
	s, pc, err := o.Registry.PeerConnection(sid, id)
	if err != nil {
		return nil, err
	}
	var sub *fanout.Subscription
	err = s.WithPeer(pc, func(domain.PeerConnectionInfo) error {
		var err error
		sub, err = o.Events.Subscribe(pc.Handle())
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("module", "orch").Str("session_id", string(sid)).Str("peer_connection_id", string(id)).Msg("observer attached")
	return sub, nil
}
