package core

import (
	"fmt"

	"github.com/dkeye/rtcserver/internal/domain"
)

// Op is a peer connection operation checked against the negotiation state.
type Op int

const (
	OpCreateOffer Op = iota
	OpCreateAnswer
	OpSetLocal
	OpSetRemote
	OpAddMedia
	OpRead
)

func (op Op) String() string {
	switch op {
	case OpCreateOffer:
		return "create offer"
	case OpCreateAnswer:
		return "create answer"
	case OpSetLocal:
		return "set local description"
	case OpSetRemote:
		return "set remote description"
	case OpAddMedia:
		return "add media"
	case OpRead:
		return "read"
	default:
		return "unknown"
	}
}

// Next returns the negotiation state reached by applying op from cur.
// sdpType is only consulted for OpSetLocal and OpSetRemote.
// Renegotiation is unsupported: nothing but OpRead is legal once Negotiated.
func Next(cur domain.NegotiationState, op Op, sdpType domain.SDPType) (domain.NegotiationState, error) {
	if op == OpRead {
		return cur, nil
	}
	if cur == domain.NegotiationNegotiated {
		return cur, invalid(cur, op, sdpType)
	}

	switch op {
	case OpCreateOffer:
		if in(cur, domain.NegotiationIdle, domain.NegotiationOfferCreated) {
			return domain.NegotiationOfferCreated, nil
		}
	case OpCreateAnswer:
		if in(cur, domain.NegotiationRemoteSet, domain.NegotiationAnswerCreated) {
			return domain.NegotiationAnswerCreated, nil
		}
	case OpAddMedia:
		return cur, nil
	case OpSetLocal:
		switch sdpType {
		case domain.SDPTypeOffer:
			if in(cur, domain.NegotiationIdle, domain.NegotiationOfferCreated) {
				return domain.NegotiationLocalSet, nil
			}
		case domain.SDPTypeAnswer:
			if in(cur, domain.NegotiationRemoteSet, domain.NegotiationAnswerCreated) {
				return domain.NegotiationNegotiated, nil
			}
		case domain.SDPTypePranswer:
			if in(cur, domain.NegotiationRemoteSet, domain.NegotiationAnswerCreated) {
				return domain.NegotiationRemoteSet, nil
			}
		case domain.SDPTypeRollback:
			if cur != domain.NegotiationIdle {
				return domain.NegotiationIdle, nil
			}
		}
	case OpSetRemote:
		switch sdpType {
		case domain.SDPTypeOffer:
			if in(cur, domain.NegotiationIdle, domain.NegotiationOfferCreated) {
				return domain.NegotiationRemoteSet, nil
			}
		case domain.SDPTypeAnswer:
			if cur == domain.NegotiationLocalSet {
				return domain.NegotiationNegotiated, nil
			}
		case domain.SDPTypePranswer:
			if cur == domain.NegotiationLocalSet {
				return domain.NegotiationLocalSet, nil
			}
		case domain.SDPTypeRollback:
			if cur != domain.NegotiationIdle {
				return domain.NegotiationIdle, nil
			}
		}
	}
	return cur, invalid(cur, op, sdpType)
}

func in(cur domain.NegotiationState, states ...domain.NegotiationState) bool {
	for _, s := range states {
		if cur == s {
			return true
		}
	}
	return false
}

func invalid(cur domain.NegotiationState, op Op, sdpType domain.SDPType) error {
	if sdpType != "" && (op == OpSetLocal || op == OpSetRemote) {
		return fmt.Errorf("%w: cannot %s (%s) in negotiation state %s", domain.ErrInvalidState, op, sdpType, cur)
	}
	return fmt.Errorf("%w: cannot %s in negotiation state %s", domain.ErrInvalidState, op, cur)
}
