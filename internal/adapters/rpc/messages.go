package rpc

import "github.com/dkeye/rtcserver/internal/domain"

type Empty struct{}

type CreateSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Name      string `json:"name"`
}

type CreateSessionResponse struct {
	SessionID string             `json:"session_id"`
	Session   domain.SessionInfo `json:"session"`
}

type SessionRequest struct {
	SessionID string `json:"session_id"`
}

type (
	StartSessionRequest  = SessionRequest
	StopSessionRequest   = SessionRequest
	DeleteSessionRequest = SessionRequest
	GetStatsRequest      = SessionRequest
)

type ListSessionsResponse struct {
	Sessions []domain.SessionInfo `json:"sessions"`
}

type GetStatsResponse struct {
	domain.SessionStats
}

type CreatePeerConnectionRequest struct {
	SessionID        string `json:"session_id"`
	PeerConnectionID string `json:"peer_connection_id,omitempty"`
	Name             string `json:"name"`
}

type CreatePeerConnectionResponse struct {
	SessionID        string `json:"session_id"`
	PeerConnectionID string `json:"peer_connection_id"`
}

type PeerConnectionRequest struct {
	SessionID        string `json:"session_id"`
	PeerConnectionID string `json:"peer_connection_id"`
}

type (
	CreateSdpRequest       = PeerConnectionRequest
	GetTransceiversRequest = PeerConnectionRequest
	ObserverRequest        = PeerConnectionRequest
)

type CreateSdpResponse struct {
	SessionID        string `json:"session_id"`
	PeerConnectionID string `json:"peer_connection_id"`
	SDP              string `json:"sdp"`
	SDPType          string `json:"sdp_type"`
}

type SetSdpRequest struct {
	SessionID        string `json:"session_id"`
	PeerConnectionID string `json:"peer_connection_id"`
	SDP              string `json:"sdp"`
	SDPType          string `json:"sdp_type"`
}

type SetSdpResponse struct {
	SessionID        string `json:"session_id"`
	PeerConnectionID string `json:"peer_connection_id"`
	Success          bool   `json:"success"`
}

type AddTrackRequest struct {
	SessionID        string `json:"session_id"`
	PeerConnectionID string `json:"peer_connection_id"`
	TrackID          string `json:"track_id"`
	TrackLabel       string `json:"track_label"`
}

type AddTransceiverRequest = AddTrackRequest

type GetTransceiversResponse struct {
	Transceivers []domain.Transceiver `json:"transceivers"`
}

// ObserverEvent is one message of the Observer stream.
type ObserverEvent = domain.Event
