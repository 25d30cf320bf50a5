package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yonda-yonda/tle-with-mapbox/internal/api"
	"github.com/yonda-yonda/tle-with-mapbox/internal/config"
	"github.com/yonda-yonda/tle-with-mapbox/internal/health"
	"github.com/yonda-yonda/tle-with-mapbox/internal/observability"
	"github.com/yonda-yonda/tle-with-mapbox/internal/render"
	"github.com/yonda-yonda/tle-with-mapbox/internal/session"
	"github.com/yonda-yonda/tle-with-mapbox/internal/stream"
	"github.com/yonda-yonda/tle-with-mapbox/web"
)

func main() {
	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: &level,
	}))

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)

	logger.Info("track config",
		"step_seconds", cfg.Session.Track.Step.Seconds(),
		"max_duration_seconds", cfg.Session.Track.MaxDuration.Seconds(),
		"max_revolutions", cfg.Session.Track.MaxRevolutions,
		"frame_delay_ms", cfg.Session.FrameDelay.Milliseconds(),
	)
	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.Stream.MaxConcurrentPerIP,
		"keepalive_interval_seconds", cfg.Stream.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.Stream.TrustProxy,
	)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg.Tracing.ServiceName = orDefault(cfg.Tracing.ServiceName, "tlemap")
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Error("tracing init failed", "error", err)
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	registry := render.NewRegistry(logger)
	sessions := session.NewManager(registry, cfg.Session, session.RealClock(), logger)
	streamHandler := stream.NewHandler(registry, cfg.Stream, logger)
	readiness := &health.Readiness{}

	srv := api.NewServer(cfg.HTTP.Addr, logger, cfg.Auth, readiness, sessions, streamHandler, web.Content)
	// Request contexts end with the signal so open SSE streams let Shutdown finish.
	srv.HTTPServer().BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		logger.Info("starting server", "addr", cfg.HTTP.Addr, "auth_enabled", cfg.Auth.Enabled, "tracing_enabled", cfg.Tracing.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()
	readiness.SetReady(true)

	<-ctx.Done()
	readiness.SetReady(false)
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	sessions.Shutdown()

	logger.Info("server stopped", "sessions", len(sessions.List()))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
