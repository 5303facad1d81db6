package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/rtcserver/internal/adapters/rpc"
	"github.com/dkeye/rtcserver/internal/app"
	"github.com/dkeye/rtcserver/internal/app/fanout"
	"github.com/dkeye/rtcserver/internal/app/orch"
	"github.com/dkeye/rtcserver/internal/core/coretest"
	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

type harness struct {
	lis    *bufconn.Listener
	engine *coretest.Engine
	hub    *fanout.Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	eng := coretest.NewEngine()
	hub := fanout.NewHub(16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx, eng.Events())

	o := &orch.Orchestrator{Registry: app.NewRegistry(), Engine: eng, Events: hub, TeardownTimeout: 200 * time.Millisecond}
	lis := bufconn.Listen(1 << 20)
	gs := rpc.NewGRPCServer(o)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)
	return &harness{lis: lis, engine: eng, hub: hub}
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return h.lis.DialContext(ctx)
	}))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--server", "passthrough:///bufnet"}, args...))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestSessionCommands(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "", "session", "create", "--id", "s1", "--name", "call")
	require.NoError(t, err)
	var created rpc.CreateSessionResponse
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "s1", created.SessionID)

	out, err = h.run(t, "", "session", "start", "s1")
	require.NoError(t, err)
	assert.Equal(t, "start: s1\n", out)

	_, err = h.run(t, "", "session", "start", "s1")
	require.Error(t, err)

	out, err = h.run(t, "", "session", "list")
	require.NoError(t, err)
	var list rpc.ListSessionsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, domain.SessionRunning, list.Sessions[0].State)

	_, err = h.run(t, "", "session", "stop", "s1")
	require.NoError(t, err)
	_, err = h.run(t, "", "session", "delete", "s1")
	require.NoError(t, err)
	_, err = h.run(t, "", "session", "stats", "s1")
	require.Error(t, err)
}

func TestPeerCommands(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", "session", "create", "--id", "s1")
	require.NoError(t, err)
	_, err = h.run(t, "", "session", "start", "s1")
	require.NoError(t, err)

	_, err = h.run(t, "", "peer", "create", "s1", "--id", "p1")
	require.NoError(t, err)

	out, err := h.run(t, "", "peer", "add-transceiver", "s1", "p1", "v0", "--label", "cam")
	require.NoError(t, err)
	assert.Equal(t, "add-transceiver: v0\n", out)

	out, err = h.run(t, "", "peer", "offer", "s1", "p1")
	require.NoError(t, err)
	var offer rpc.CreateSdpResponse
	require.NoError(t, json.Unmarshal([]byte(out), &offer))
	assert.Equal(t, "offer", offer.SDPType)

	out, err = h.run(t, offer.SDP, "peer", "set-local", "s1", "p1", "--type", "offer")
	require.NoError(t, err)
	var set rpc.SetSdpResponse
	require.NoError(t, json.Unmarshal([]byte(out), &set))
	assert.True(t, set.Success)

	_, err = h.run(t, "v=0", "peer", "set-remote", "s1", "p1")
	require.Error(t, err, "--type is required")

	out, err = h.run(t, "", "peer", "transceivers", "s1", "p1")
	require.NoError(t, err)
	var ts rpc.GetTransceiversResponse
	require.NoError(t, json.Unmarshal([]byte(out), &ts))
	require.Len(t, ts.Transceivers, 1)
}

func TestObserveCommand(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", "session", "create", "--id", "s1")
	require.NoError(t, err)
	_, err = h.run(t, "", "session", "start", "s1")
	require.NoError(t, err)
	_, err = h.run(t, "", "peer", "create", "s1", "--id", "p1")
	require.NoError(t, err)

	h.engine.EmitCandidate("h1", "candidate:1")

	done := make(chan struct{})
	var out string
	go func() {
		defer close(done)
		out, err = h.run(t, "", "observe", "s1", "p1")
	}()

	require.Eventually(t, func() bool { return h.hub.Observers("h1") == 1 }, 2*time.Second, 10*time.Millisecond)
	_, serr := h.run(t, "", "session", "stop", "s1")
	require.NoError(t, serr)
	<-done

	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	var ev domain.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, "candidate:1", ev.Candidate.Candidate)
}
