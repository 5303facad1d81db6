package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/rtcserver/internal/app"
	"github.com/dkeye/rtcserver/internal/app/fanout"
	"github.com/dkeye/rtcserver/internal/app/orch"
	"github.com/dkeye/rtcserver/internal/core/coretest"
	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newObserverServer(t *testing.T) (*httptest.Server, *orch.Orchestrator, *coretest.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	eng := coretest.NewEngine()
	hub := fanout.NewHub(16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx, eng.Events())

	o := &orch.Orchestrator{Registry: app.NewRegistry(), Engine: eng, Events: hub, TeardownTimeout: 200 * time.Millisecond}
	ctl := NewObserverController(o, 1024, time.Second)

	r := gin.New()
	r.GET("/sessions/:sid/peers/:pcid/events", func(c *gin.Context) { ctl.HandleObserver(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, o, eng
}

func TestObserverStreamsAndClosesOnStop(t *testing.T) {
	srv, o, eng := newObserverServer(t)
	ctx := context.Background()
	_, err := o.CreateSession(ctx, "s1", "")
	require.NoError(t, err)
	_, err = o.StartSession(ctx, "s1")
	require.NoError(t, err)
	_, err = o.CreatePeerConnection(ctx, "s1", "p1", "")
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/s1/peers/p1/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	eng.EmitCandidate("h1", "candidate:1")

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev domain.Event
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, domain.EventICECandidate, ev.Kind)
	assert.Equal(t, uint64(1), ev.Seq)
	require.NotNil(t, ev.Candidate)
	assert.Equal(t, "candidate:1", ev.Candidate.Candidate)

	_, err = o.StopSession(ctx, "s1")
	require.NoError(t, err)

	_, _, err = ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestObserverUnknownPeerIsHTTPError(t *testing.T) {
	srv, _, _ := newObserverServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/nope/peers/p1/events"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestWritePumpReportsBackpressure(t *testing.T) {
	ctl := &ObserverController{PingPeriod: time.Hour}
	events := make(chan domain.Event)
	close(events)

	code, reason := ctl.writePump(context.Background(), nil, events, func() error { return domain.ErrBackpressure })
	assert.Equal(t, CloseBackpressure, code)
	assert.Equal(t, "backpressure", reason)

	code, reason = ctl.writePump(context.Background(), nil, events, func() error { return nil })
	assert.Equal(t, websocket.CloseNormalClosure, code)
	assert.Equal(t, "teardown", reason)
}
