package app

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/rtcserver/internal/core"
	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCreateSession(t *testing.T) {
	r := NewRegistry()
	s, err := r.CreateSession("s1", "demo")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("s1"), s.ID())

	_, err = r.CreateSession("s1", "other")
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	got, err := r.Session("s1")
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, "demo", got.Name())

	_, err = r.Session("missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistryConcurrentCreateSameID(t *testing.T) {
	r := NewRegistry()
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.CreateSession("s1", ""); err == nil {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, oks)
	assert.Equal(t, 1, r.Len())
}

func TestRegistrySessionsSorted(t *testing.T) {
	r := NewRegistry()
	for _, id := range []domain.SessionID{"c", "a", "b"} {
		_, err := r.CreateSession(id, "")
		require.NoError(t, err)
	}
	var ids []domain.SessionID
	for _, s := range r.Sessions() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []domain.SessionID{"a", "b", "c"}, ids)
}

func TestRegistryPeerConnections(t *testing.T) {
	r := NewRegistry()
	sess, err := r.CreateSession("s1", "")
	require.NoError(t, err)

	for i := range 3 {
		pc := core.NewPeerConnection("s1", domain.PeerConnectionID(fmt.Sprintf("p%d", i)), "", core.EngineHandle(fmt.Sprintf("h%d", i)))
		require.NoError(t, r.AddPeerConnection(sess, pc))
	}
	require.ErrorIs(t, r.AddPeerConnection(sess, core.NewPeerConnection("s1", "p0", "", "hx")), domain.ErrAlreadyExists)

	s, pc, err := r.PeerConnection("s1", "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("s1"), s.ID())
	assert.Equal(t, core.EngineHandle("h1"), pc.Handle())

	_, _, err = r.PeerConnection("s1", "p9")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistryStopAndDelete(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	sess, err := r.CreateSession("s1", "")
	require.NoError(t, err)
	require.NoError(t, r.AddPeerConnection(sess, core.NewPeerConnection("s1", "p1", "", "h1")))

	_, err = r.StopSession("s1", now)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.NoError(t, r.StartSession("s1", now))
	require.ErrorIs(t, r.StartSession("s1", now), domain.ErrInvalidState)

	peers, err := r.StopSession("s1", now)
	require.NoError(t, err)
	require.Len(t, peers, 1)

	_, _, err = r.PeerConnection("s1", "p1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	// stopped sessions stay listed until deleted
	assert.Equal(t, 1, r.Len())
	state, peers, err := r.DeleteSession("s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStopped, state)
	assert.Empty(t, peers)
	assert.Equal(t, 0, r.Len())

	_, _, err = r.DeleteSession("s1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.ErrorIs(t, r.AddPeerConnection(sess, core.NewPeerConnection("s1", "p2", "", "h2")), domain.ErrNotFound)
	require.ErrorIs(t, r.StartSession("s1", now), domain.ErrNotFound)
}
