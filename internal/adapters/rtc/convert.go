package rtc

import (
	"fmt"

	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

func toPionSDPType(t domain.SDPType) (webrtc.SDPType, error) {
	switch t {
	case domain.SDPTypeOffer:
		return webrtc.SDPTypeOffer, nil
	case domain.SDPTypePranswer:
		return webrtc.SDPTypePranswer, nil
	case domain.SDPTypeAnswer:
		return webrtc.SDPTypeAnswer, nil
	case domain.SDPTypeRollback:
		return webrtc.SDPTypeRollback, nil
	default:
		return webrtc.SDPType(0), fmt.Errorf("%w: unknown sdp type %q", domain.ErrNegotiationFailed, t)
	}
}

func fromPionSDPType(t webrtc.SDPType) domain.SDPType {
	switch t {
	case webrtc.SDPTypeOffer:
		return domain.SDPTypeOffer
	case webrtc.SDPTypePranswer:
		return domain.SDPTypePranswer
	case webrtc.SDPTypeAnswer:
		return domain.SDPTypeAnswer
	case webrtc.SDPTypeRollback:
		return domain.SDPTypeRollback
	default:
		return ""
	}
}

// toPionDescription validates the SDP body before pion sees it so syntax
// errors are reported the same way for local and remote descriptions.
func toPionDescription(desc domain.SessionDescription, allowEmpty bool) (webrtc.SessionDescription, error) {
	t, err := toPionSDPType(desc.Type)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if t != webrtc.SDPTypeRollback && !(allowEmpty && desc.SDP == "") {
		var parsed sdp.SessionDescription
		if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
			return webrtc.SessionDescription{}, fmt.Errorf("%w: malformed sdp: %w", domain.ErrNegotiationFailed, err)
		}
	}
	return webrtc.SessionDescription{Type: t, SDP: desc.SDP}, nil
}

func fromPionDescription(desc webrtc.SessionDescription) domain.SessionDescription {
	return domain.SessionDescription{Type: fromPionSDPType(desc.Type), SDP: desc.SDP}
}

func fromPionDirection(d webrtc.RTPTransceiverDirection) domain.Direction {
	switch d {
	case webrtc.RTPTransceiverDirectionSendrecv:
		return domain.DirectionSendRecv
	case webrtc.RTPTransceiverDirectionSendonly:
		return domain.DirectionSendOnly
	case webrtc.RTPTransceiverDirectionRecvonly:
		return domain.DirectionRecvOnly
	default:
		return domain.DirectionInactive
	}
}

func fromPionKind(k webrtc.RTPCodecType) domain.MediaType {
	switch k {
	case webrtc.RTPCodecTypeAudio:
		return domain.MediaAudio
	case webrtc.RTPCodecTypeVideo:
		return domain.MediaVideo
	default:
		return domain.MediaUnsupported
	}
}

func fromPionTransceiver(t *webrtc.RTPTransceiver) domain.Transceiver {
	out := domain.Transceiver{
		Mid:       t.Mid(),
		Direction: fromPionDirection(t.Direction()),
		MediaType: fromPionKind(t.Kind()),
	}
	if s := t.Sender(); s != nil && s.Track() != nil {
		out.ID = s.Track().ID()
	} else if r := t.Receiver(); r != nil && r.Track() != nil {
		out.ID = r.Track().ID()
	} else {
		out.ID = t.Mid()
	}
	return out
}

func fromPionCandidate(c webrtc.ICECandidateInit) *domain.ICECandidate {
	return &domain.ICECandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
