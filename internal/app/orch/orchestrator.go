package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/rtcserver/internal/app"
	"github.com/dkeye/rtcserver/internal/app/fanout"
	"github.com/dkeye/rtcserver/internal/core"
	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/dkeye/rtcserver/internal/metrics"
)

const (
	defaultTeardownTimeout  = 5 * time.Second
	defaultStatsConcurrency = 8
)

// Orchestrator validates and executes every state-changing operation. It is
// the only caller of the engine's mutating methods.
type Orchestrator struct {
	Registry *app.Registry
	Engine   core.Engine
	Events   *fanout.Hub
	Metrics  *metrics.Metrics

	// TeardownTimeout bounds releasing engine handles on stop/delete.
	TeardownTimeout time.Duration
	// StatsConcurrency caps parallel engine stats queries per GetStats call.
	StatsConcurrency int
	Now              func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) teardownTimeout() time.Duration {
	if o.TeardownTimeout > 0 {
		return o.TeardownTimeout
	}
	return defaultTeardownTimeout
}

func (o *Orchestrator) statsConcurrency() int {
	if o.StatsConcurrency > 0 {
		return o.StatsConcurrency
	}
	return defaultStatsConcurrency
}

// engineErr classifies a failed engine call. Errors the engine already
// classified keep their kind; anything else becomes fallback.
func (o *Orchestrator) engineErr(op string, err error, fallback error) error {
	o.Metrics.EngineError(op)
	switch {
	case errors.Is(err, domain.ErrNegotiationFailed), errors.Is(err, domain.ErrEngine):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", domain.ErrEngine, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", fallback, op, err)
	}
}
