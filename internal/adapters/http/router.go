package http

import (
	"context"

	"github.com/dkeye/rtcserver/internal/adapters/signal"
	"github.com/dkeye/rtcserver/internal/app/orch"
	"github.com/dkeye/rtcserver/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// SetupRouter maps the control surface onto REST routes. gatherer backs
// /metrics; nil disables the endpoint.
func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(requestLogger())
	}
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "sessions": o.Registry.Len()})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	store := cookie.NewStore([]byte(cfg.Secret))
	h := &Handlers{Orch: o}
	observers := signal.NewObserverController(o, cfg.ReadLimit, cfg.PingPeriod)
	observers.ErrorJSON = writeError

	api := r.Group("/api")
	api.Use(sessions.Sessions("rtcserver", store))
	api.Use(ClientTokenMiddleware())
	api.Use(RateLimitMiddleware(NewClientRateLimiter(cfg.RateLimit, cfg.RateBurst)))

	s := api.Group("/sessions")
	s.POST("", h.CreateSession)
	s.GET("", h.ListSessions)
	s.GET("/:sid", h.GetSession)
	s.DELETE("/:sid", h.DeleteSession)
	s.POST("/:sid/start", h.StartSession)
	s.POST("/:sid/stop", h.StopSession)
	s.GET("/:sid/stats", h.GetStats)

	p := s.Group("/:sid/peers")
	p.POST("", h.CreatePeerConnection)
	p.POST("/:pcid/offer", h.CreateOffer)
	p.POST("/:pcid/answer", h.CreateAnswer)
	p.PUT("/:pcid/local-description", h.SetLocalDescription)
	p.PUT("/:pcid/remote-description", h.SetRemoteDescription)
	p.POST("/:pcid/tracks", h.AddTrack)
	p.POST("/:pcid/transceivers", h.AddTransceiver)
	p.GET("/:pcid/transceivers", h.GetTransceivers)
	p.GET("/:pcid/events", func(c *gin.Context) {
		observers.HandleObserver(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
