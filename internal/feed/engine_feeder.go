// Package feed connects the execution engine's event stream to the risk
// core.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeforge/riskmon/internal/domain"
	"github.com/tradeforge/riskmon/internal/platform/engine"
	"github.com/tradeforge/riskmon/internal/risk"
)

// FeederConfig holds connection parameters for the engine feed.
type FeederConfig struct {
	FeedURL           string
	AuthToken         string
	ReconnectInterval time.Duration
	MaxReconnectWait  time.Duration
}

// EngineFeeder maintains the feed connection and forwards each fill and
// price event to the session it belongs to. Events for unknown sessions are
// expected during shutdown races and dropped quietly.
type EngineFeeder struct {
	cfg     FeederConfig
	manager *risk.StrategyManager
	logger  *slog.Logger
}

// NewEngineFeeder creates an EngineFeeder.
func NewEngineFeeder(cfg FeederConfig, manager *risk.StrategyManager, logger *slog.Logger) *EngineFeeder {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = time.Second
	}
	if cfg.MaxReconnectWait < cfg.ReconnectInterval {
		cfg.MaxReconnectWait = 30 * time.Second
	}
	return &EngineFeeder{
		cfg:     cfg,
		manager: manager,
		logger:  logger.With(slog.String("component", "engine_feeder")),
	}
}

// Run connects to the engine feed and dispatches events until ctx is
// cancelled. Disconnects are retried with exponential backoff, reset after a
// successful connect.
func (f *EngineFeeder) Run(ctx context.Context) error {
	f.logger.Info("engine feeder started", slog.String("url", f.cfg.FeedURL))
	defer f.logger.Info("engine feeder stopped")

	wait := f.cfg.ReconnectInterval
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			f.logger.Warn("engine feed disconnected, reconnecting",
				slog.String("error", err.Error()),
				slog.Duration("wait", wait),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > f.cfg.MaxReconnectWait {
			wait = f.cfg.MaxReconnectWait
		}
		if err == nil {
			wait = f.cfg.ReconnectInterval
		}
	}
}

// runConnection dials one connection and blocks until it drops or ctx is
// cancelled.
func (f *EngineFeeder) runConnection(ctx context.Context) error {
	client := engine.NewFeedClient(f.cfg.FeedURL, f.cfg.AuthToken)
	defer client.Close()

	client.OnFill(func(sessionID string, fill domain.Fill) {
		f.handleFill(ctx, sessionID, fill)
	})
	client.OnPrice(func(sessionID string, price decimal.Decimal) {
		f.handlePrice(ctx, sessionID, price)
	})
	client.OnDecodeError(func(err error, raw []byte) {
		f.logger.Warn("engine feed message dropped",
			slog.String("error", err.Error()),
			slog.Int("payload_len", len(raw)),
		)
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}
	f.logger.Info("engine feed connected")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-client.Done():
		return client.Err()
	}
}

func (f *EngineFeeder) handleFill(ctx context.Context, sessionID string, fill domain.Fill) {
	err := f.manager.FeedFill(ctx, sessionID, fill)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrSessionNotFound):
		// A fill racing the session's stop; nothing to do.
		f.logger.Debug("fill for inactive session", slog.String("session_id", sessionID))
	case errors.Is(err, domain.ErrInvalidFill):
		f.logger.Warn("fill rejected",
			slog.String("session_id", sessionID),
			slog.String("amount", fill.Amount.String()),
			slog.String("price", fill.Price.String()),
			slog.String("error", err.Error()),
		)
	default:
		f.logger.Error("fill dispatch failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}

func (f *EngineFeeder) handlePrice(ctx context.Context, sessionID string, price decimal.Decimal) {
	err := f.manager.FeedPrice(ctx, sessionID, price)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrSessionNotFound):
		f.logger.Debug("price for inactive session", slog.String("session_id", sessionID))
	default:
		f.logger.Warn("price dispatch failed",
			slog.String("session_id", sessionID),
			slog.String("price", price.String()),
			slog.String("error", err.Error()),
		)
	}
}
