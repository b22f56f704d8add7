package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tradeforge/riskmon/internal/config"
	"github.com/tradeforge/riskmon/internal/domain"
	"github.com/tradeforge/riskmon/internal/feed"
	"github.com/tradeforge/riskmon/internal/server"
	"github.com/tradeforge/riskmon/internal/server/handler"
	"github.com/tradeforge/riskmon/internal/server/ws"
)

// defaultSessionID names the session seeded from the [session] config block.
const defaultSessionID = "default"

// stopAllTimeout bounds the graceful session teardown on shutdown.
const stopAllTimeout = 10 * time.Second

// MonitorMode runs the headless monitor: a single session seeded from
// config, driven by the engine feed. No HTTP surface.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startDefaultSession(ctx, deps); err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}

	a.startFeeder(ctx, g, deps)
	a.startMirror(ctx, g, deps)
	a.stopAllOnCancel(ctx, g, deps)

	return g.Wait()
}

// ServerMode runs the HTTP and WebSocket API. Sessions are started through
// the REST surface; the engine feed runs only when a feed URL is configured.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Engine.FeedURL != "" {
		a.startFeeder(ctx, g, deps)
	}
	a.startMirror(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	a.stopAllOnCancel(ctx, g, deps)

	return g.Wait()
}

// FullMode runs everything: the config-seeded session, the engine feed, the
// status mirror, and the HTTP and WebSocket API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Session.InitialPrice.IsPositive() {
		if err := a.startDefaultSession(ctx, deps); err != nil {
			return fmt.Errorf("full mode: %w", err)
		}
	}

	a.startFeeder(ctx, g, deps)
	a.startMirror(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	a.stopAllOnCancel(ctx, g, deps)

	return g.Wait()
}

// startDefaultSession seeds the session described by the [session] config
// block so monitoring begins without an API call.
func (a *App) startDefaultSession(ctx context.Context, deps *Dependencies) error {
	cfg := defaultSessionConfig(a.cfg)
	id, err := deps.Manager.Start(ctx, defaultSessionID, cfg)
	if err != nil {
		return fmt.Errorf("start default session: %w", err)
	}
	a.logger.InfoContext(ctx, "default session started",
		slog.String("session_id", id),
		slog.String("instrument", cfg.Instrument),
	)
	return nil
}

// startFeeder adds the engine feed goroutine to the group.
func (a *App) startFeeder(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	feeder := feed.NewEngineFeeder(feed.FeederConfig{
		FeedURL:           a.cfg.Engine.FeedURL,
		AuthToken:         a.cfg.Engine.AuthToken,
		ReconnectInterval: a.cfg.Engine.ReconnectInterval.Duration,
		MaxReconnectWait:  a.cfg.Engine.MaxReconnectWait.Duration,
	}, deps.Manager, a.logger)

	g.Go(func() error {
		return feeder.Run(ctx)
	})
}

// startMirror adds the Redis status mirror goroutine to the group when
// mirroring is enabled.
func (a *App) startMirror(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Session.MirrorStatusRedis {
		return
	}
	mirror := newStatusMirror(
		deps.Manager,
		deps.StatusCache,
		deps.PriceCache,
		deps.SignalBus,
		a.cfg.Session.StatusInterval.Duration,
		a.logger,
	)
	g.Go(func() error {
		return mirror.Run(ctx)
	})
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// group. The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled")
		return
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		Sessions:  func() int { return len(deps.Manager.List()) },
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})

	srvCfg := server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AuthToken:   a.cfg.Server.AuthToken,
	}
	if a.cfg.Server.RateLimit > 0 {
		srvCfg.RateLimiter = deps.RateLimiter
		srvCfg.RateLimit = a.cfg.Server.RateLimit
		srvCfg.RateWindow = a.cfg.Server.RateWindow.Duration
	}

	srv := server.NewServer(srvCfg, server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Sessions: handler.NewSessionHandler(deps.Manager, deps.Journal, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// stopAllOnCancel stops every live session with the shutdown reason once the
// context is cancelled, so collaborators and the journal see a clean end.
func (a *App) stopAllOnCancel(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopAllTimeout)
		defer cancel()
		deps.Manager.StopAll(stopCtx)
		return ctx.Err()
	})
}

// defaultSessionConfig maps the [session] config block onto a session config.
// Ratio thresholds of zero leave the corresponding watcher out.
func defaultSessionConfig(cfg *config.Config) domain.SessionConfig {
	var watchers []domain.WatcherSpec
	if cfg.Session.StopLossRatio.IsPositive() {
		watchers = append(watchers, domain.WatcherSpec{
			Kind:      domain.WatcherStopLossPct,
			Threshold: cfg.Session.StopLossRatio.Decimal,
		})
	}
	if cfg.Session.TakeProfitRatio.IsPositive() {
		watchers = append(watchers, domain.WatcherSpec{
			Kind:      domain.WatcherTakeProfitPct,
			Threshold: cfg.Session.TakeProfitRatio.Decimal,
		})
	}
	return domain.SessionConfig{
		Instrument:      cfg.Session.Instrument,
		Allocation:      cfg.Session.Allocation.Decimal,
		MaxPositionSize: cfg.Session.MaxPositionSize.Decimal,
		InitialPrice:    cfg.Session.InitialPrice.Decimal,
		Watchers:        watchers,
	}
}
