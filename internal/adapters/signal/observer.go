// Package signal streams peer connection events to websocket observers.
package signal

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/rtcserver/internal/app/orch"
	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type ObserverController struct {
	Orch       *orch.Orchestrator
	ReadLimit  int64
	PingPeriod time.Duration
	// ErrorJSON writes a pre-upgrade failure; defaults to a plain JSON body.
	ErrorJSON func(c *gin.Context, err error)
}

func NewObserverController(o *orch.Orchestrator, readLimit int64, pingPeriod time.Duration) *ObserverController {
	return &ObserverController{Orch: o, ReadLimit: readLimit, PingPeriod: pingPeriod}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleObserver subscribes before upgrading so that unknown ids are reported
// as a regular HTTP error.
func (ctl *ObserverController) HandleObserver(ctx context.Context, c *gin.Context) {
	sid := domain.SessionID(c.Param("sid"))
	pcid := domain.PeerConnectionID(c.Param("pcid"))
	logger := log.With().Str("module", "signal").
		Str("session_id", string(sid)).
		Str("peer_connection_id", string(pcid)).Logger()

	sub, err := ctl.Orch.Observe(ctx, sid, pcid)
	if err != nil {
		if ctl.ErrorJSON != nil {
			ctl.ErrorJSON(c, err)
		} else {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		}
		return
	}
	defer sub.Close()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	conn := &wsConn{conn: ws}
	logger.Info().Msg("observer connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go ctl.readPump(ctx, cancel, conn)

	code, reason := ctl.writePump(ctx, conn, sub.Events(), sub.Err)
	conn.closeWith(code, reason)
	logger.Info().Str("reason", reason).Msg("observer disconnected")
}

// writePump forwards events until the subscription ends or the peer goes away.
func (ctl *ObserverController) writePump(ctx context.Context, c *wsConn, events <-chan domain.Event, subErr func() error) (int, string) {
	period := ctl.PingPeriod
	if period <= 0 {
		period = 54 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return websocket.CloseGoingAway, "cancel"
		case ev, ok := <-events:
			if !ok {
				if errors.Is(subErr(), domain.ErrBackpressure) {
					return CloseBackpressure, "backpressure"
				}
				return websocket.CloseNormalClosure, "teardown"
			}
			if err := c.writeJSON(ev); err != nil {
				log.Debug().Str("module", "signal").Err(err).Msg("writePump write error")
				return websocket.CloseInternalServerErr, "write"
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return websocket.CloseInternalServerErr, "ping"
			}
		}
	}
}

// readPump only watches for the client going away; observers send nothing.
func (ctl *ObserverController) readPump(ctx context.Context, cancel context.CancelFunc, c *wsConn) {
	defer cancel()
	limit := ctl.ReadLimit
	if limit <= 0 {
		limit = 4096
	}
	c.conn.SetReadLimit(limit)
	deadline := func() time.Time {
		if ctl.PingPeriod <= 0 {
			return time.Time{}
		}
		return time.Now().Add(ctl.PingPeriod * 10 / 9)
	}
	_ = c.conn.SetReadDeadline(deadline())
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(deadline()) })

	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
