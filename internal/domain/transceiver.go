package domain

type Direction string

const (
	DirectionSendRecv Direction = "sendrecv"
	DirectionSendOnly Direction = "sendonly"
	DirectionRecvOnly Direction = "recvonly"
	DirectionInactive Direction = "inactive"
)

// Sends reports whether the direction includes sending.
func (d Direction) Sends() bool { return d == DirectionSendRecv || d == DirectionSendOnly }

// Receives reports whether the direction includes receiving.
func (d Direction) Receives() bool { return d == DirectionSendRecv || d == DirectionRecvOnly }

type MediaType string

const (
	MediaAudio       MediaType = "audio"
	MediaVideo       MediaType = "video"
	MediaData        MediaType = "data"
	MediaUnsupported MediaType = "unsupported"
)

// Transceiver is reported by the engine and copied into responses.
type Transceiver struct {
	ID        string    `json:"id"`
	Mid       string    `json:"mid"`
	Direction Direction `json:"direction"`
	MediaType MediaType `json:"media_type"`
}
