package core

import (
	"context"

	"github.com/dkeye/rtcserver/internal/domain"
)

// EngineHandle is an opaque reference to one peer connection inside the engine.
// It is owned by exactly one PeerConnection entity.
type EngineHandle string

// EngineEvent is pushed by the engine for a handle. Exactly one of Candidate
// and Transceiver is set.
type EngineEvent struct {
	Handle      EngineHandle
	Candidate   *domain.ICECandidate
	Transceiver *domain.Transceiver
}

// Engine is the media engine capability surface consumed by the core.
// Implementations must be safe for concurrent use across handles.
type Engine interface {
	// CreatePeerConnection allocates a new native peer connection owned by
	// session sid. Handles of one session share its media source.
	CreatePeerConnection(ctx context.Context, sid domain.SessionID) (EngineHandle, error)
	// DestroyPeerConnection releases the handle and all its media resources.
	DestroyPeerConnection(ctx context.Context, h EngineHandle) error

	CreateOffer(ctx context.Context, h EngineHandle) (domain.SessionDescription, error)
	CreateAnswer(ctx context.Context, h EngineHandle) (domain.SessionDescription, error)
	// SetLocalDescription and SetRemoteDescription return an error when the
	// engine rejects the SDP.
	SetLocalDescription(ctx context.Context, h EngineHandle, desc domain.SessionDescription) error
	SetRemoteDescription(ctx context.Context, h EngineHandle, desc domain.SessionDescription) error

	AddTrack(ctx context.Context, h EngineHandle, trackID, label string) error
	AddTransceiver(ctx context.Context, h EngineHandle, trackID, label string) error
	Transceivers(ctx context.Context, h EngineHandle) ([]domain.Transceiver, error)

	// Stats returns current send/receive activity counts for the handle.
	Stats(ctx context.Context, h EngineHandle) (domain.PeerConnectionState, error)

	// Events yields ICE candidates and transceiver changes in emission order.
	Events() <-chan EngineEvent
}
