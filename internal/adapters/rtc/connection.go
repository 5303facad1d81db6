package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/rtcserver/internal/core"
	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// connection wraps one pion PeerConnection and forwards its callbacks as
// engine events. Its local tracks are fed by the session's video source.
type connection struct {
	handle core.EngineHandle
	pc     *webrtc.PeerConnection
	src    *videoSource
	emit   func(core.EngineEvent)
	logger zerolog.Logger

	mu     sync.Mutex
	tracks []*webrtc.TrackLocalStaticSample
}

func newConnection(api *webrtc.API, cfg webrtc.Configuration, h core.EngineHandle, src *videoSource, emit func(core.EngineEvent)) (*connection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &connection{
		handle: h,
		pc:     pc,
		src:    src,
		emit:   emit,
		logger: log.With().Str("module", "rtc").Str("handle", string(h)).Str("session_id", string(src.sessionID)).Logger(),
	}
	c.bind()
	return c, nil
}

func (c *connection) bind() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if cand == nil {
			return
		}
		c.emit(core.EngineEvent{Handle: c.handle, Candidate: fromPionCandidate(cand.ToJSON())})
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		go c.drain(track)
		for _, t := range c.pc.GetTransceivers() {
			if t.Receiver() == receiver {
				tr := fromPionTransceiver(t)
				c.emit(core.EngineEvent{Handle: c.handle, Transceiver: &tr})
				return
			}
		}
	})
}

// drain reads the remote track until the connection closes so that inbound
// stream stats keep counting.
func (c *connection) drain(track *webrtc.TrackRemote) {
	logger := c.logger.With().Str("track_id", track.ID()).Logger()
	var n uint64
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Uint64("packets", n).Msg("remote track ended")
			return
		}
		if n == 0 {
			logFirstPacket(&logger, pkt)
		}
		n++
	}
}

func logFirstPacket(logger *zerolog.Logger, pkt *rtp.Packet) {
	logger.Debug().
		Uint32("ssrc", pkt.SSRC).
		Uint8("payload_type", pkt.PayloadType).
		Uint16("seq", pkt.SequenceNumber).
		Msg("first RTP packet")
}

func (c *connection) createOffer() (domain.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return fromPionDescription(offer), nil
}

func (c *connection) createAnswer() (domain.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return fromPionDescription(answer), nil
}

func (c *connection) setLocal(desc domain.SessionDescription) error {
	d, err := toPionDescription(desc, true)
	if err != nil {
		return err
	}
	if err := c.pc.SetLocalDescription(d); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNegotiationFailed, err)
	}
	return nil
}

func (c *connection) setRemote(desc domain.SessionDescription) error {
	d, err := toPionDescription(desc, false)
	if err != nil {
		return err
	}
	if err := c.pc.SetRemoteDescription(d); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNegotiationFailed, err)
	}
	return nil
}

// newLocalTrack builds a VP8 sample track whose stream id is its label.
func newLocalTrack(trackID, label string) (*webrtc.TrackLocalStaticSample, error) {
	return webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, trackID, label)
}

// feed hands a track that pion accepted to the session's video source.
func (c *connection) feed(track *webrtc.TrackLocalStaticSample) {
	c.mu.Lock()
	c.tracks = append(c.tracks, track)
	c.mu.Unlock()
	c.src.attach(track)
}

func (c *connection) addTrack(trackID, label string) error {
	track, err := newLocalTrack(trackID, label)
	if err != nil {
		return err
	}
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	c.feed(track)
	for _, t := range c.pc.GetTransceivers() {
		if t.Sender() == sender {
			c.emitTransceiver(t)
			break
		}
	}
	return nil
}

func (c *connection) addTransceiver(trackID, label string) error {
	track, err := newLocalTrack(trackID, label)
	if err != nil {
		return err
	}
	t, err := c.pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		return err
	}
	c.feed(track)
	c.emitTransceiver(t)
	return nil
}

func (c *connection) emitTransceiver(t *webrtc.RTPTransceiver) {
	tr := fromPionTransceiver(t)
	c.emit(core.EngineEvent{Handle: c.handle, Transceiver: &tr})
}

func (c *connection) transceivers() []domain.Transceiver {
	ts := c.pc.GetTransceivers()
	out := make([]domain.Transceiver, 0, len(ts))
	for _, t := range ts {
		out = append(out, fromPionTransceiver(t))
	}
	return out
}

// close releases the pion connection, giving up when ctx is done. pion keeps
// closing in the background in that case.
func (c *connection) close(ctx context.Context) error {
	c.mu.Lock()
	for _, t := range c.tracks {
		c.src.detach(t)
	}
	c.tracks = nil
	c.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.pc.Close() }()
	select {
	case err := <-done:
		if err != nil {
			c.logger.Error().Err(err).Msg("close error")
			return err
		}
		c.logger.Info().Msg("closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
