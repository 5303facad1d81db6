package orch

import (
	"context"

	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// GetStats folds engine counters of every peer connection in the session
// into one summary. A peer whose stats fail contributes zero and is listed
// as a fault; the call itself only fails for an unknown session.
func (o *Orchestrator) GetStats(ctx context.Context, sid domain.SessionID) (domain.SessionStats, error) {
	s, err := o.Registry.Session(sid)
	if err != nil {
		return domain.SessionStats{}, err
	}
	snap := s.Snapshot()
	now := o.now()

	per := make([]domain.PeerConnectionStats, len(snap.Peers))
	errs := make([]error, len(snap.Peers))

	var g errgroup.Group
	g.SetLimit(o.statsConcurrency())
	for i, p := range snap.Peers {
		per[i].PeerConnectionInfo = p.Info
		g.Go(func() error {
			st, err := o.Engine.Stats(ctx, p.Handle)
			if err != nil {
				errs[i] = err
				return nil
			}
			per[i].State = st
			return nil
		})
	}
	_ = g.Wait()

	out := domain.SessionStats{
		Session:         snap.Info,
		PeerConnections: per,
	}
	for i, err := range errs {
		if err != nil {
			o.Metrics.StatsFault()
			log.Warn().Str("module", "orch").Str("session_id", string(sid)).
				Str("peer_connection_id", string(per[i].ID)).Err(err).Msg("stats unavailable")
			out.Faults = append(out.Faults, domain.StatsFault{PeerConnectionID: per[i].ID, Error: err.Error()})
			continue
		}
		out.State.Add(per[i].State)
	}

	if start := snap.Info.StartTime; start != nil {
		end := now
		if stop := snap.Info.StopTime; stop != nil {
			end = *stop
		}
		out.ElapsedTime = end.Sub(*start)
	}
	return out, nil
}
