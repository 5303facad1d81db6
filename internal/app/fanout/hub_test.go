package fanout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dkeye/rtcserver/internal/core"
	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/dkeye/rtcserver/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(h core.EngineHandle, i int) core.EngineEvent {
	return core.EngineEvent{Handle: h, Candidate: &domain.ICECandidate{Candidate: fmt.Sprintf("c%d", i)}}
}

func drain(t *testing.T, s *Subscription) []domain.Event {
	t.Helper()
	var out []domain.Event
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-time.After(time.Second):
			t.Fatal("stream not closed")
		}
	}
}

func TestHubDeliversInOrder(t *testing.T) {
	h := NewHub(16, nil)
	h.Register("h1", "s1", "p1")
	a, err := h.Subscribe("h1")
	require.NoError(t, err)
	b, err := h.Subscribe("h1")
	require.NoError(t, err)

	for i := range 10 {
		h.Publish(candidate("h1", i))
	}
	h.Close("h1")

	for _, s := range []*Subscription{a, b} {
		evs := drain(t, s)
		require.Len(t, evs, 10)
		for i, ev := range evs {
			assert.Equal(t, uint64(i+1), ev.Seq)
			assert.Equal(t, fmt.Sprintf("c%d", i), ev.Candidate.Candidate)
			assert.Equal(t, domain.EventICECandidate, ev.Kind)
			assert.Equal(t, domain.SessionID("s1"), ev.SessionID)
			assert.Equal(t, domain.PeerConnectionID("p1"), ev.PeerConnectionID)
		}
		assert.NoError(t, s.Err())
	}
}

func TestHubSlowObserverIsDisconnected(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := NewHub(4, m)
	h.Register("h1", "s1", "p1")
	slow, err := h.Subscribe("h1")
	require.NoError(t, err)
	fast, err := h.Subscribe("h1")
	require.NoError(t, err)

	got := make(chan []domain.Event, 1)
	go func() {
		var evs []domain.Event
		for ev := range fast.Events() {
			evs = append(evs, ev)
		}
		got <- evs
	}()

	for i := range 50 {
		h.Publish(candidate("h1", i))
		// let the fast reader keep up
		require.Eventually(t, func() bool { return len(fast.Events()) == 0 }, time.Second, time.Millisecond)
	}

	slowEvents := drain(t, slow)
	assert.Len(t, slowEvents, 4)
	require.ErrorIs(t, slow.Err(), domain.ErrBackpressure)
	assert.Equal(t, 1, h.Observers("h1"))

	h.Close("h1")
	fastEvents := <-got
	assert.Len(t, fastEvents, 50)
	assert.NoError(t, fast.Err())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ObserverClosed.WithLabelValues(reasonBackpressure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ObserverClosed.WithLabelValues(reasonTeardown)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Observers))
}

func TestHubCancel(t *testing.T) {
	h := NewHub(4, nil)
	h.Register("h1", "s1", "p1")
	a, err := h.Subscribe("h1")
	require.NoError(t, err)
	b, err := h.Subscribe("h1")
	require.NoError(t, err)

	a.Close()
	a.Close()
	assert.Empty(t, drain(t, a))
	assert.NoError(t, a.Err())
	assert.Equal(t, 1, h.Observers("h1"))

	h.Publish(candidate("h1", 0))
	ev := <-b.Events()
	assert.Equal(t, "c0", ev.Candidate.Candidate)
}

func TestHubReplaysHistory(t *testing.T) {
	h := NewHub(3, nil)
	h.Register("h1", "s1", "p1")
	for i := range 5 {
		h.Publish(candidate("h1", i))
	}
	s, err := h.Subscribe("h1")
	require.NoError(t, err)
	h.Publish(core.EngineEvent{Handle: "h1", Transceiver: &domain.Transceiver{ID: "t1"}})
	h.Close("h1")

	evs := drain(t, s)
	// last 3 from history, then the live event
	require.Len(t, evs, 4)
	assert.Equal(t, []uint64{3, 4, 5, 6}, []uint64{evs[0].Seq, evs[1].Seq, evs[2].Seq, evs[3].Seq})
	assert.Equal(t, domain.EventTransceiverChange, evs[3].Kind)
	assert.NoError(t, s.Err())
}

func TestHubReplayLeavesLiveBuffer(t *testing.T) {
	h := NewHub(4, nil)
	h.Register("h1", "s1", "p1")
	for i := range 4 {
		h.Publish(candidate("h1", i))
	}
	s, err := h.Subscribe("h1")
	require.NoError(t, err)
	for i := 4; i < 8; i++ {
		h.Publish(candidate("h1", i))
	}
	assert.Equal(t, 1, h.Observers("h1"))
	assert.NoError(t, s.Err())

	h.Publish(candidate("h1", 8))
	assert.ErrorIs(t, s.Err(), domain.ErrBackpressure)
	evs := drain(t, s)
	require.Len(t, evs, 8)
	assert.Equal(t, "c7", evs[7].Candidate.Candidate)
}

func TestHubUnknownHandle(t *testing.T) {
	h := NewHub(4, nil)
	_, err := h.Subscribe("nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotPanics(t, func() {
		h.Publish(candidate("nope", 0))
		h.Close("nope")
	})
}

func TestHubRun(t *testing.T) {
	h := NewHub(8, nil)
	h.Register("h1", "s1", "p1")
	s, err := h.Subscribe("h1")
	require.NoError(t, err)

	src := make(chan core.EngineEvent)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		h.Run(ctx, src)
		close(done)
	}()

	src <- core.EngineEvent{Handle: "h1", Transceiver: &domain.Transceiver{ID: "t1", Direction: domain.DirectionSendRecv}}
	ev := <-s.Events()
	assert.Equal(t, domain.EventTransceiverChange, ev.Kind)
	assert.Equal(t, "t1", ev.Transceiver.ID)

	close(src)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
