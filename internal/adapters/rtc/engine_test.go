package rtc

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/rtcserver/internal/core"
	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return newTestEngineWith(t, Config{DisableMDNS: true})
}

func newTestEngineWith(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.Close(ctx)
	})
	// keep the event source drained
	go func() {
		for range e.Events() {
		}
	}()
	return e
}

func TestEngineOfferAnswer(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	offerer, err := e.CreatePeerConnection(ctx, "s1")
	require.NoError(t, err)
	answerer, err := e.CreatePeerConnection(ctx, "s1")
	require.NoError(t, err)
	assert.NotEqual(t, offerer, answerer)

	require.NoError(t, e.AddTransceiver(ctx, offerer, "video0", "stream0"))

	offer, err := e.CreateOffer(ctx, offerer)
	require.NoError(t, err)
	assert.Equal(t, domain.SDPTypeOffer, offer.Type)
	assert.True(t, strings.Contains(offer.SDP, "m=video"))
	require.NoError(t, e.SetLocalDescription(ctx, offerer, offer))

	require.NoError(t, e.SetRemoteDescription(ctx, answerer, offer))
	answer, err := e.CreateAnswer(ctx, answerer)
	require.NoError(t, err)
	assert.Equal(t, domain.SDPTypeAnswer, answer.Type)
	require.NoError(t, e.SetLocalDescription(ctx, answerer, answer))
	require.NoError(t, e.SetRemoteDescription(ctx, offerer, answer))

	ts, err := e.Transceivers(ctx, offerer)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "video0", ts[0].ID)
	assert.Equal(t, domain.DirectionSendRecv, ts[0].Direction)
	assert.Equal(t, domain.MediaVideo, ts[0].MediaType)
	assert.Equal(t, "0", ts[0].Mid)

	st, err := e.Stats(ctx, offerer)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.NumSending+st.NumNotSending)
	assert.Equal(t, uint64(1), st.NumReceiving+st.NumNotReceiving)
}

func TestEngineRejectsMalformedSDP(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	h, err := e.CreatePeerConnection(ctx, "s1")
	require.NoError(t, err)

	err = e.SetRemoteDescription(ctx, h, domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "not sdp"})
	require.ErrorIs(t, err, domain.ErrNegotiationFailed)

	err = e.SetRemoteDescription(ctx, h, domain.SessionDescription{Type: "bogus", SDP: "v=0"})
	require.ErrorIs(t, err, domain.ErrNegotiationFailed)
}

func TestEngineTransceiverEvents(t *testing.T) {
	e, err := NewEngine(Config{DisableMDNS: true, EventBuffer: 16})
	require.NoError(t, err)
	ctx := context.Background()
	defer e.Close(ctx)

	h, err := e.CreatePeerConnection(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, e.AddTrack(ctx, h, "cam", "main"))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-e.Events():
			if ev.Transceiver == nil {
				continue
			}
			assert.Equal(t, h, ev.Handle)
			assert.Equal(t, "cam", ev.Transceiver.ID)
			return
		case <-deadline:
			t.Fatal("no transceiver event")
		}
	}
}

func TestEngineDestroy(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	h, err := e.CreatePeerConnection(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, e.DestroyPeerConnection(ctx, h))
	require.ErrorIs(t, e.DestroyPeerConnection(ctx, h), domain.ErrEngine)
	_, err = e.CreateOffer(ctx, h)
	require.ErrorIs(t, err, domain.ErrEngine)
	_, err = e.Stats(ctx, core.EngineHandle("missing"))
	require.ErrorIs(t, err, domain.ErrEngine)
}

// setLocalGathered applies desc and returns the local description once ICE
// gathering is complete, candidates included.
func setLocalGathered(t *testing.T, e *Engine, h core.EngineHandle, desc domain.SessionDescription) domain.SessionDescription {
	t.Helper()
	c, err := e.conn(h)
	require.NoError(t, err)
	gathered := webrtc.GatheringCompletePromise(c.pc)
	require.NoError(t, e.SetLocalDescription(context.Background(), h, desc))
	select {
	case <-gathered:
	case <-time.After(5 * time.Second):
		t.Fatal("ice gathering did not complete")
	}
	return fromPionDescription(*c.pc.LocalDescription())
}

func TestEngineSendsMediaAfterConnect(t *testing.T) {
	e := newTestEngineWith(t, Config{DisableMDNS: true, IncludeLoopback: true})
	ctx := context.Background()

	offerer, err := e.CreatePeerConnection(ctx, "s1")
	require.NoError(t, err)
	answerer, err := e.CreatePeerConnection(ctx, "s2")
	require.NoError(t, err)
	require.NoError(t, e.AddTransceiver(ctx, offerer, "video0", "stream0"))

	offer, err := e.CreateOffer(ctx, offerer)
	require.NoError(t, err)
	offer = setLocalGathered(t, e, offerer, offer)

	require.NoError(t, e.SetRemoteDescription(ctx, answerer, offer))
	answer, err := e.CreateAnswer(ctx, answerer)
	require.NoError(t, err)
	answer = setLocalGathered(t, e, answerer, answer)
	require.NoError(t, e.SetRemoteDescription(ctx, offerer, answer))

	c, err := e.conn(offerer)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return c.pc.ConnectionState() == webrtc.PeerConnectionStateConnected
	}, 10*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		st, err := e.Stats(ctx, offerer)
		return err == nil && st.NumSending == 1 && st.NumNotSending == 0
	}, 10*time.Second, 100*time.Millisecond)
}

func TestEngineSourcePerSession(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a1, err := e.CreatePeerConnection(ctx, "s1")
	require.NoError(t, err)
	a2, err := e.CreatePeerConnection(ctx, "s1")
	require.NoError(t, err)
	b1, err := e.CreatePeerConnection(ctx, "s2")
	require.NoError(t, err)

	require.NoError(t, e.AddTrack(ctx, a1, "t1", "main"))
	require.NoError(t, e.AddTransceiver(ctx, a2, "t2", "main"))
	require.NoError(t, e.AddTrack(ctx, b1, "t3", "main"))

	e.mu.RLock()
	require.Len(t, e.sources, 2)
	s1 := e.sources["s1"]
	e.mu.RUnlock()
	assert.Equal(t, 2, s1.attached())

	require.NoError(t, e.DestroyPeerConnection(ctx, a1))
	assert.Equal(t, 1, s1.attached())
	e.mu.RLock()
	assert.Contains(t, e.sources, domain.SessionID("s1"))
	e.mu.RUnlock()

	require.NoError(t, e.DestroyPeerConnection(ctx, a2))
	e.mu.RLock()
	assert.NotContains(t, e.sources, domain.SessionID("s1"))
	assert.Contains(t, e.sources, domain.SessionID("s2"))
	e.mu.RUnlock()
	select {
	case <-s1.done:
	default:
		t.Fatal("source still running after its last handle")
	}
}

func TestEngineInitialTrack(t *testing.T) {
	e := newTestEngineWith(t, Config{DisableMDNS: true, InitialTrack: true})
	ctx := context.Background()
	h, err := e.CreatePeerConnection(ctx, "s1")
	require.NoError(t, err)

	ts, err := e.Transceivers(ctx, h)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "video", ts[0].ID)
	assert.Equal(t, domain.MediaVideo, ts[0].MediaType)

	offer, err := e.CreateOffer(ctx, h)
	require.NoError(t, err)
	assert.Contains(t, offer.SDP, "m=video")
}

func writeIVF(t *testing.T, fourCC string, frames ...[]byte) string {
	t.Helper()
	header := make([]byte, 32)
	copy(header[0:], "DKIF")
	binary.LittleEndian.PutUint16(header[4:], 0)
	binary.LittleEndian.PutUint16(header[6:], 32)
	copy(header[8:], fourCC)
	binary.LittleEndian.PutUint16(header[12:], 320)
	binary.LittleEndian.PutUint16(header[14:], 240)
	binary.LittleEndian.PutUint32(header[16:], 25)
	binary.LittleEndian.PutUint32(header[20:], 1)
	binary.LittleEndian.PutUint32(header[24:], uint32(len(frames)))

	data := header
	for i, f := range frames {
		fh := make([]byte, 12)
		binary.LittleEndian.PutUint32(fh[0:], uint32(len(f)))
		binary.LittleEndian.PutUint64(fh[4:], uint64(i))
		data = append(data, fh...)
		data = append(data, f...)
	}
	path := filepath.Join(t.TempDir(), "loop.ivf")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestIVFFramesLoop(t *testing.T) {
	path := writeIVF(t, "VP80", []byte{1, 2, 3}, []byte{4, 5})
	f, err := openIVF(path)
	require.NoError(t, err)
	defer f.close()
	assert.Equal(t, 40*time.Millisecond, f.frameDuration())

	var got [][]byte
	for range 3 {
		frame, err := f.next()
		require.NoError(t, err)
		got = append(got, frame)
	}
	assert.Equal(t, [][]byte{{1, 2, 3}, {4, 5}, {1, 2, 3}}, got)
}

func TestIVFRejectsOtherCodecs(t *testing.T) {
	_, err := openIVF(writeIVF(t, "VP90", []byte{1}))
	require.Error(t, err)

	_, err = NewEngine(Config{VideoFile: filepath.Join(t.TempDir(), "missing.ivf")})
	require.Error(t, err)
}
