package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/rtcserver/internal/adapters/http"
	"github.com/dkeye/rtcserver/internal/adapters/rpc"
	"github.com/dkeye/rtcserver/internal/adapters/rtc"
	"github.com/dkeye/rtcserver/internal/app"
	"github.com/dkeye/rtcserver/internal/app/fanout"
	"github.com/dkeye/rtcserver/internal/app/orch"
	"github.com/dkeye/rtcserver/internal/config"
	"github.com/dkeye/rtcserver/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	engine, err := rtc.NewEngine(rtc.Config{
		ICEServers:   cfg.ICEServers,
		DisableMDNS:  cfg.DisableMDNS,
		UDPPortMin:   cfg.UDPPortMin,
		UDPPortMax:   cfg.UDPPortMax,
		EventBuffer:  cfg.EventBuffer,
		VideoFile:    cfg.VideoFile,
		InitialTrack: cfg.InitialVideoTrack,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	hub := fanout.NewHub(cfg.ObserverBuffer, m)
	o := &orch.Orchestrator{
		Registry:         app.NewRegistry(),
		Engine:           engine,
		Events:           hub,
		Metrics:          m,
		TeardownTimeout:  cfg.TeardownTimeout,
		StatsConcurrency: cfg.StatsConcurrency,
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router.SetupRouter(ctx, cfg, o, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcSrv := rpc.NewGRPCServer(o)
	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx, engine.Events())
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", httpSrv.Addr).Msg("http server started")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", grpcLis.Addr().String()).Msg("grpc server started")
		return grpcSrv.Serve(grpcLis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http server forced to shutdown")
		}
		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcSrv.Stop()
		}

		for _, s := range o.ListSessions(shutdownCtx) {
			if err := o.DeleteSession(shutdownCtx, s.ID); err != nil {
				log.Warn().Str("session_id", string(s.ID)).Err(err).Msg("delete on shutdown")
			}
		}
		engine.Close(shutdownCtx)
		return nil
	})
	return g.Wait()
}
