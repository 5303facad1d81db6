package rtc

import (
	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/pion/webrtc/v4"
)

// activity classifies every transceiver of the connection as sending or not
// and receiving or not. A direction counts as active once RTP packets were
// seen on one of its streams.
func (c *connection) activity() domain.PeerConnectionState {
	sent := make(map[webrtc.SSRC]uint32)
	received := make(map[webrtc.SSRC]uint32)
	for _, s := range c.pc.GetStats() {
		switch st := s.(type) {
		case webrtc.OutboundRTPStreamStats:
			sent[st.SSRC] += st.PacketsSent
		case webrtc.InboundRTPStreamStats:
			received[st.SSRC] += st.PacketsReceived
		}
	}

	var out domain.PeerConnectionState
	for _, t := range c.pc.GetTransceivers() {
		dir := fromPionDirection(t.Direction())
		if dir.Sends() {
			if senderActive(t.Sender(), sent) {
				out.NumSending++
			} else {
				out.NumNotSending++
			}
		}
		if dir.Receives() {
			if receiverActive(t.Receiver(), received) {
				out.NumReceiving++
			} else {
				out.NumNotReceiving++
			}
		}
	}
	return out
}

func senderActive(s *webrtc.RTPSender, sent map[webrtc.SSRC]uint32) bool {
	if s == nil || s.Track() == nil {
		return false
	}
	for _, enc := range s.GetParameters().Encodings {
		if sent[enc.SSRC] > 0 {
			return true
		}
	}
	return false
}

func receiverActive(r *webrtc.RTPReceiver, received map[webrtc.SSRC]uint32) bool {
	if r == nil {
		return false
	}
	for _, track := range r.Tracks() {
		if received[track.SSRC()] > 0 {
			return true
		}
	}
	return false
}
