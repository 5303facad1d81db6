package domain

type EventKind string

const (
	EventICECandidate      EventKind = "ice_candidate"
	EventTransceiverChange EventKind = "transceiver_change"
)

// ICECandidate mirrors the candidate-init dictionary.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdp_mid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdp_mline_index,omitempty"`
	UsernameFragment *string `json:"username_fragment,omitempty"`
}

// Event is one engine-pushed notification addressed to a peer connection.
// Seq is assigned by the fan-out and increases per peer connection.
type Event struct {
	Kind             EventKind        `json:"kind"`
	SessionID        SessionID        `json:"session_id"`
	PeerConnectionID PeerConnectionID `json:"peer_connection_id"`
	Seq              uint64           `json:"seq"`
	Candidate        *ICECandidate    `json:"candidate,omitempty"`
	Transceiver      *Transceiver     `json:"transceiver,omitempty"`
}
