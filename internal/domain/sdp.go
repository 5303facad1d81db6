package domain

import (
	"fmt"
	"strings"
)

type SDPType string

const (
	SDPTypeOffer    SDPType = "offer"
	SDPTypePranswer SDPType = "pranswer"
	SDPTypeAnswer   SDPType = "answer"
	SDPTypeRollback SDPType = "rollback"
)

// ParseSDPType accepts the enum names case-insensitively.
func ParseSDPType(s string) (SDPType, error) {
	switch t := SDPType(strings.ToLower(strings.TrimSpace(s))); t {
	case SDPTypeOffer, SDPTypePranswer, SDPTypeAnswer, SDPTypeRollback:
		return t, nil
	default:
		return "", fmt.Errorf("unknown sdp type %q", s)
	}
}

// SessionDescription is SDP text plus its type.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}
