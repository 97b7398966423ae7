// Package app provides the top-level application lifecycle for the trade
// desk. It wires the infrastructure (store, cache, blob storage,
// notifications), assembles the services and HTTP surface, and runs
// everything until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openfloor/tradedesk/internal/config"
	"github.com/openfloor/tradedesk/internal/server"
	"github.com/openfloor/tradedesk/internal/server/handler"
	"github.com/openfloor/tradedesk/internal/server/ws"
	"github.com/openfloor/tradedesk/internal/service"
)

// shutdownTimeout bounds the graceful drain of in-flight HTTP requests.
const shutdownTimeout = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the
// WebSocket hub and the HTTP server, and blocks until the context is
// cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting trade desk",
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	defer a.Close()

	// Services. The archiver is optional; keep the interface nil when blob
	// storage is disabled so the service skips archiving entirely.
	var archiver service.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	positions := service.NewPositionService(
		deps.Postgres, deps.LockManager, deps.SignalBus, deps.Notifier, archiver, a.logger)
	exits := service.NewExitService(
		deps.Postgres, deps.LockManager, deps.SignalBus, deps.Notifier, a.logger)

	// HTTP surface.
	hub := ws.NewHub(deps.SignalBus, a.logger)

	var exporter handler.Exporter
	if deps.Archiver != nil {
		exporter = deps.Archiver
	}
	pingers := map[string]handler.Pinger{
		"postgres": deps.Postgres,
		"redis":    deps.Redis,
	}
	if deps.Blob != nil {
		pingers["s3"] = deps.Blob
	}
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(pingers),
		Positions: handler.NewPositionHandler(positions, a.logger),
		Exits:     handler.NewExitHandler(exits, a.logger),
		Archive:   handler.NewArchiveHandler(positions, exporter, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		JWTSecret:       a.cfg.Auth.JWTSecret,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hub.Run(gctx); err != nil && err != context.Canceled {
			return fmt.Errorf("app: ws hub: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down trade desk")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
