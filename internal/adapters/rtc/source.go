package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultFrameDuration = time.Second / 30

// frames yields encoded VP8 frames forever.
type frames interface {
	next() ([]byte, error)
	frameDuration() time.Duration
	close() error
}

// videoSource feeds one session's local tracks. Every attached track gets the
// same frame on each tick.
type videoSource struct {
	sessionID domain.SessionID
	frames    frames
	logger    zerolog.Logger

	mu     sync.Mutex
	tracks map[*webrtc.TrackLocalStaticSample]struct{}

	// refs counts the engine handles using the source, guarded by Engine.mu.
	refs int

	cancel context.CancelFunc
	done   chan struct{}
}

func newVideoSource(sid domain.SessionID, videoFile string) (*videoSource, error) {
	var f frames = &syntheticFrames{}
	if videoFile != "" {
		ivf, err := openIVF(videoFile)
		if err != nil {
			return nil, err
		}
		f = ivf
	}
	return &videoSource{
		sessionID: sid,
		frames:    f,
		logger:    log.With().Str("module", "rtc").Str("session_id", string(sid)).Logger(),
		tracks:    make(map[*webrtc.TrackLocalStaticSample]struct{}),
		done:      make(chan struct{}),
	}, nil
}

func (s *videoSource) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.loop(ctx)
	s.logger.Debug().Dur("frame_duration", s.frames.frameDuration()).Msg("video source started")
}

func (s *videoSource) stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	if err := s.frames.close(); err != nil {
		s.logger.Warn().Err(err).Msg("close frames")
	}
	s.logger.Debug().Msg("video source stopped")
}

func (s *videoSource) attach(t *webrtc.TrackLocalStaticSample) {
	s.mu.Lock()
	s.tracks[t] = struct{}{}
	s.mu.Unlock()
}

func (s *videoSource) detach(t *webrtc.TrackLocalStaticSample) {
	s.mu.Lock()
	delete(s.tracks, t)
	s.mu.Unlock()
}

func (s *videoSource) attached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

func (s *videoSource) loop(ctx context.Context) {
	defer close(s.done)
	d := s.frames.frameDuration()
	ticker := time.NewTicker(d)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		frame, err := s.frames.next()
		if err != nil {
			s.logger.Error().Err(err).Msg("video source read failed, stopping")
			return
		}
		s.write(media.Sample{Data: frame, Duration: d})
	}
}

// write snapshots the tracks and writes outside the lock.
func (s *videoSource) write(sample media.Sample) {
	s.mu.Lock()
	tracks := slices.Collect(maps.Keys(s.tracks))
	s.mu.Unlock()

	for _, t := range tracks {
		if err := t.WriteSample(sample); err != nil {
			s.logger.Warn().Err(err).Str("track_id", t.ID()).Msg("write sample failed, detaching track")
			s.detach(t)
		}
	}
}

// syntheticFrames repeats one VP8 key frame: a valid frame header for a
// 320x240 picture followed by zero padding.
type syntheticFrames struct{}

var syntheticKeyFrame = append([]byte{
	0x10, 0x02, 0x00, // key frame, shown, first partition size
	0x9d, 0x01, 0x2a, // start code
	0x40, 0x01, // width 320
	0xf0, 0x00, // height 240
}, make([]byte, 1000)...)

func (syntheticFrames) next() ([]byte, error)        { return syntheticKeyFrame, nil }
func (syntheticFrames) frameDuration() time.Duration { return defaultFrameDuration }
func (syntheticFrames) close() error                 { return nil }

// ivfFrames loops over the frames of a VP8 IVF file.
type ivfFrames struct {
	path     string
	file     *os.File
	reader   *ivfreader.IVFReader
	duration time.Duration
}

func openIVF(path string) (*ivfFrames, error) {
	f := &ivfFrames{path: path}
	if err := f.rewind(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *ivfFrames) rewind() error {
	if f.file != nil {
		_ = f.file.Close()
	}
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("open video file: %w", err)
	}
	reader, header, err := ivfreader.NewWith(file)
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("read ivf header: %w", err)
	}
	if header.FourCC != "VP80" {
		_ = file.Close()
		return fmt.Errorf("video file %s: codec %q, want VP80", f.path, header.FourCC)
	}
	f.file = file
	f.reader = reader
	f.duration = defaultFrameDuration
	if header.TimebaseDenominator != 0 && header.TimebaseNumerator != 0 {
		f.duration = time.Duration(float64(time.Second) * float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	}
	if f.duration <= 0 {
		f.duration = defaultFrameDuration
	}
	return nil
}

func (f *ivfFrames) next() ([]byte, error) {
	frame, _, err := f.reader.ParseNextFrame()
	if errors.Is(err, io.EOF) {
		if err := f.rewind(); err != nil {
			return nil, err
		}
		frame, _, err = f.reader.ParseNextFrame()
	}
	return frame, err
}

func (f *ivfFrames) frameDuration() time.Duration { return f.duration }

func (f *ivfFrames) close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}
