// Package rtc implements the media engine on top of pion/webrtc.
package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/rtcserver/internal/core"
	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const DefaultSTUN = "stun:stun.l.google.com:19302"

type Config struct {
	ICEServers  []string
	DisableMDNS bool
	// UDPPortMin and UDPPortMax restrict ICE host candidates; zero means any.
	UDPPortMin  uint16
	UDPPortMax  uint16
	EventBuffer int
	// VideoFile is a VP8 IVF file looped into every local track. Empty
	// means a synthetic key frame stream.
	VideoFile string
	// InitialTrack adds a video track to every new peer connection.
	InitialTrack bool
	// IncludeLoopback gathers candidates on loopback interfaces.
	IncludeLoopback bool
}

func DefaultConfig() Config {
	return Config{
		ICEServers:  []string{DefaultSTUN},
		DisableMDNS: true,
		EventBuffer: 1024,
	}
}

// Engine owns every pion PeerConnection created through it. Handles are
// opaque uuids. Each session with live handles has one running video source.
type Engine struct {
	api          *webrtc.API
	cfg          webrtc.Configuration
	videoFile    string
	initialTrack bool

	mu      sync.RWMutex
	conns   map[core.EngineHandle]*connection
	owners  map[core.EngineHandle]domain.SessionID
	sources map[domain.SessionID]*videoSource

	events chan core.EngineEvent
	done   chan struct{}
	once   sync.Once
}

func NewEngine(cfg Config) (*Engine, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	s := webrtc.SettingEngine{LoggerFactory: loggerFactory{}}
	if cfg.IncludeLoopback {
		s.SetIncludeLoopbackCandidate(true)
	}
	if cfg.DisableMDNS {
		s.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	}
	if cfg.UDPPortMin != 0 || cfg.UDPPortMax != 0 {
		if err := s.SetEphemeralUDPPortRange(cfg.UDPPortMin, cfg.UDPPortMax); err != nil {
			return nil, fmt.Errorf("udp port range: %w", err)
		}
	}

	var servers []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	buf := cfg.EventBuffer
	if buf <= 0 {
		buf = 1024
	}

	if cfg.VideoFile != "" {
		// fail at startup rather than on the first peer connection
		f, err := openIVF(cfg.VideoFile)
		if err != nil {
			return nil, err
		}
		_ = f.close()
	}

	return &Engine{
		api:          webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i), webrtc.WithSettingEngine(s)),
		cfg:          webrtc.Configuration{ICEServers: servers},
		videoFile:    cfg.VideoFile,
		initialTrack: cfg.InitialTrack,
		conns:        make(map[core.EngineHandle]*connection),
		owners:       make(map[core.EngineHandle]domain.SessionID),
		sources:      make(map[domain.SessionID]*videoSource),
		events:       make(chan core.EngineEvent, buf),
		done:         make(chan struct{}),
	}, nil
}

func (e *Engine) Events() <-chan core.EngineEvent { return e.events }

// emit blocks until the event is queued or the engine is closed.
func (e *Engine) emit(ev core.EngineEvent) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

func (e *Engine) conn(h core.EngineHandle) (*connection, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.conns[h]
	if !ok {
		return nil, fmt.Errorf("%w: unknown handle %s", domain.ErrEngine, h)
	}
	return c, nil
}

func (e *Engine) CreatePeerConnection(ctx context.Context, sid domain.SessionID) (core.EngineHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h := core.EngineHandle(uuid.NewString())

	src, err := e.acquireSource(sid)
	if err != nil {
		return "", err
	}
	c, err := newConnection(e.api, e.cfg, h, src, e.emit)
	if err != nil {
		e.releaseSource(sid)
		return "", err
	}
	if e.initialTrack {
		if err := c.addTrack("video", "0"); err != nil {
			_ = c.close(ctx)
			e.releaseSource(sid)
			return "", fmt.Errorf("initial track: %w", err)
		}
	}

	e.mu.Lock()
	e.conns[h] = c
	e.owners[h] = sid
	e.mu.Unlock()
	log.Debug().Str("module", "rtc").Str("handle", string(h)).Str("session_id", string(sid)).Msg("peer connection allocated")
	return h, nil
}

func (e *Engine) DestroyPeerConnection(ctx context.Context, h core.EngineHandle) error {
	e.mu.Lock()
	c, ok := e.conns[h]
	sid := e.owners[h]
	delete(e.conns, h)
	delete(e.owners, h)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown handle %s", domain.ErrEngine, h)
	}
	err := c.close(ctx)
	e.releaseSource(sid)
	return err
}

// acquireSource returns the running video source of sid, starting it for the
// session's first handle.
func (e *Engine) acquireSource(sid domain.SessionID) (*videoSource, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	src, ok := e.sources[sid]
	if !ok {
		var err error
		src, err = newVideoSource(sid, e.videoFile)
		if err != nil {
			return nil, fmt.Errorf("%w: video source: %w", domain.ErrEngine, err)
		}
		src.start()
		e.sources[sid] = src
	}
	src.refs++
	return src, nil
}

// releaseSource stops the source of sid once its last handle is gone.
func (e *Engine) releaseSource(sid domain.SessionID) {
	e.mu.Lock()
	src, ok := e.sources[sid]
	if !ok {
		e.mu.Unlock()
		return
	}
	src.refs--
	if src.refs > 0 {
		e.mu.Unlock()
		return
	}
	delete(e.sources, sid)
	e.mu.Unlock()
	src.stop()
}

func (e *Engine) CreateOffer(_ context.Context, h core.EngineHandle) (domain.SessionDescription, error) {
	c, err := e.conn(h)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return c.createOffer()
}

func (e *Engine) CreateAnswer(_ context.Context, h core.EngineHandle) (domain.SessionDescription, error) {
	c, err := e.conn(h)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return c.createAnswer()
}

func (e *Engine) SetLocalDescription(_ context.Context, h core.EngineHandle, desc domain.SessionDescription) error {
	c, err := e.conn(h)
	if err != nil {
		return err
	}
	return c.setLocal(desc)
}

func (e *Engine) SetRemoteDescription(_ context.Context, h core.EngineHandle, desc domain.SessionDescription) error {
	c, err := e.conn(h)
	if err != nil {
		return err
	}
	return c.setRemote(desc)
}

func (e *Engine) AddTrack(_ context.Context, h core.EngineHandle, trackID, label string) error {
	c, err := e.conn(h)
	if err != nil {
		return err
	}
	return c.addTrack(trackID, label)
}

func (e *Engine) AddTransceiver(_ context.Context, h core.EngineHandle, trackID, label string) error {
	c, err := e.conn(h)
	if err != nil {
		return err
	}
	return c.addTransceiver(trackID, label)
}

func (e *Engine) Transceivers(_ context.Context, h core.EngineHandle) ([]domain.Transceiver, error) {
	c, err := e.conn(h)
	if err != nil {
		return nil, err
	}
	return c.transceivers(), nil
}

func (e *Engine) Stats(_ context.Context, h core.EngineHandle) (domain.PeerConnectionState, error) {
	c, err := e.conn(h)
	if err != nil {
		return domain.PeerConnectionState{}, err
	}
	return c.activity(), nil
}

// Close releases every remaining connection and stops event delivery.
func (e *Engine) Close(ctx context.Context) {
	e.mu.Lock()
	conns := e.conns
	sources := e.sources
	e.conns = make(map[core.EngineHandle]*connection)
	e.owners = make(map[core.EngineHandle]domain.SessionID)
	e.sources = make(map[domain.SessionID]*videoSource)
	e.mu.Unlock()
	for h, c := range conns {
		if err := c.close(ctx); err != nil {
			log.Warn().Str("module", "rtc").Str("handle", string(h)).Err(err).Msg("close on shutdown failed")
		}
	}
	for _, src := range sources {
		src.stop()
	}
	e.once.Do(func() { close(e.done) })
}

var _ core.Engine = (*Engine)(nil)
