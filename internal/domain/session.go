// Package domain contains identifiers, enums and value types without logic.
package domain

import "time"

type (
	SessionID        string
	PeerConnectionID string
)

type SessionState string

const (
	SessionCreated SessionState = "created"
	SessionRunning SessionState = "running"
	SessionStopped SessionState = "stopped"
)

// SessionInfo is a read-only view of a session for APIs.
type SessionInfo struct {
	ID                 SessionID    `json:"id"`
	Name               string       `json:"name"`
	State              SessionState `json:"state"`
	StartTime          *time.Time   `json:"start_time,omitempty"`
	StopTime           *time.Time   `json:"stop_time,omitempty"`
	NumPeerConnections int          `json:"num_peer_connections"`
}

// PeerConnectionInfo is a read-only view of a peer connection for APIs.
type PeerConnectionInfo struct {
	ID               PeerConnectionID `json:"id"`
	Name             string           `json:"name"`
	SessionID        SessionID        `json:"session_id"`
	NegotiationState NegotiationState `json:"negotiation_state"`
}

type NegotiationState string

const (
	NegotiationIdle          NegotiationState = "idle"
	NegotiationOfferCreated  NegotiationState = "offer_created"
	NegotiationAnswerCreated NegotiationState = "answer_created"
	NegotiationLocalSet      NegotiationState = "local_set"
	NegotiationRemoteSet     NegotiationState = "remote_set"
	NegotiationNegotiated    NegotiationState = "negotiated"
)
