package domain

import "time"

// PeerConnectionState holds send/receive activity counters.
type PeerConnectionState struct {
	NumSending      uint64 `json:"num_sending"`
	NumNotSending   uint64 `json:"num_not_sending"`
	NumReceiving    uint64 `json:"num_receiving"`
	NumNotReceiving uint64 `json:"num_not_receiving"`
}

// Add folds o into s.
func (s *PeerConnectionState) Add(o PeerConnectionState) {
	s.NumSending += o.NumSending
	s.NumNotSending += o.NumNotSending
	s.NumReceiving += o.NumReceiving
	s.NumNotReceiving += o.NumNotReceiving
}

type PeerConnectionStats struct {
	PeerConnectionInfo
	State PeerConnectionState `json:"state"`
}

// StatsFault reports a peer connection whose engine stats could not be read.
// Its contribution to the aggregate is zero.
type StatsFault struct {
	PeerConnectionID PeerConnectionID `json:"peer_connection_id"`
	Error            string           `json:"error"`
}

// SessionStats is derived on demand, never stored.
type SessionStats struct {
	Session         SessionInfo           `json:"session"`
	ElapsedTime     time.Duration         `json:"elapsed_time"`
	State           PeerConnectionState   `json:"peer_connection_state"`
	PeerConnections []PeerConnectionStats `json:"peer_connections"`
	Faults          []StatsFault          `json:"faults,omitempty"`
}
