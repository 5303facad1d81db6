package orch

import (
	"context"

	"github.com/dkeye/rtcserver/internal/core"
	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// teardown closes the observers of detached peers and releases their engine
// handles concurrently. It never outlives the teardown timeout: handles that
// are not released in time are reported as leaked.
func (o *Orchestrator) teardown(ctx context.Context, sid domain.SessionID, peers []*core.PeerConnection) {
	if len(peers) == 0 {
		return
	}
	for _, pc := range peers {
		o.Events.Close(pc.Handle())
	}
	o.Metrics.PeerConnectionsAdd(-len(peers))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.teardownTimeout())
	defer cancel()

	var g errgroup.Group
	for _, pc := range peers {
		g.Go(func() error {
			o.destroy(ctx, pc)
			return nil
		})
	}
	_ = g.Wait()
	log.Info().Str("module", "orch").Str("session_id", string(sid)).Int("peers", len(peers)).Msg("peer connections released")
}

// destroy waits for any in-flight operation on pc, then releases its handle.
func (o *Orchestrator) destroy(ctx context.Context, pc *core.PeerConnection) {
	logger := log.With().
		Str("module", "orch").
		Str("session_id", string(pc.SessionID())).
		Str("peer_connection_id", string(pc.ID())).
		Str("handle", string(pc.Handle())).
		Logger()

	// an in-flight operation may hold the slot for at most half the budget
	acquireCtx, cancel := context.WithTimeout(ctx, o.teardownTimeout()/2)
	release, err := pc.Acquire(acquireCtx)
	cancel()
	if err == nil {
		defer release()
	} else {
		logger.Warn().Err(err).Msg("operation still in flight, releasing handle anyway")
	}

	done := make(chan error, 1)
	go func() { done <- o.Engine.DestroyPeerConnection(ctx, pc.Handle()) }()

	select {
	case err := <-done:
		if err != nil {
			o.Metrics.EngineError("destroy_peer_connection")
			o.Metrics.TeardownLeak()
			logger.Error().Err(err).Msg("engine handle leaked: destroy failed")
		}
	case <-ctx.Done():
		o.Metrics.TeardownLeak()
		logger.Error().Err(ctx.Err()).Msg("engine handle leaked: destroy timed out")
	}
}
