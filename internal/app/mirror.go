package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/tradeforge/riskmon/internal/domain"
	"github.com/tradeforge/riskmon/internal/risk"
)

// statusMirror periodically snapshots every live session and pushes the
// snapshot into the Redis status and price caches, plus the per-session
// status channel on the signal bus.
type statusMirror struct {
	manager  *risk.StrategyManager
	statuses domain.StatusCache
	prices   domain.PriceCache
	bus      domain.SignalBus
	interval time.Duration
	logger   *slog.Logger
}

func newStatusMirror(
	manager *risk.StrategyManager,
	statuses domain.StatusCache,
	prices domain.PriceCache,
	bus domain.SignalBus,
	interval time.Duration,
	logger *slog.Logger,
) *statusMirror {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &statusMirror{
		manager:  manager,
		statuses: statuses,
		prices:   prices,
		bus:      bus,
		interval: interval,
		logger:   logger.With(slog.String("component", "status_mirror")),
	}
}

// Run mirrors session snapshots until the context is cancelled.
func (m *statusMirror) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.mirrorOnce(ctx)
		}
	}
}

func (m *statusMirror) mirrorOnce(ctx context.Context) {
	now := time.Now().UTC()
	for _, status := range m.manager.List() {
		if err := m.statuses.SetStatus(ctx, status); err != nil {
			m.logger.WarnContext(ctx, "mirror status failed",
				slog.String("session_id", status.SessionID),
				slog.String("error", err.Error()),
			)
		}
		if !status.CurrentPrice.IsZero() {
			if err := m.prices.SetPrice(ctx, status.SessionID, status.CurrentPrice, now); err != nil {
				m.logger.WarnContext(ctx, "mirror price failed",
					slog.String("session_id", status.SessionID),
					slog.String("error", err.Error()),
				)
			}
		}

		payload, err := json.Marshal(status)
		if err != nil {
			continue
		}
		if err := m.bus.Publish(ctx, statusChannelPrefix+status.SessionID, payload); err != nil {
			m.logger.WarnContext(ctx, "publish status failed",
				slog.String("session_id", status.SessionID),
				slog.String("error", err.Error()),
			)
		}
	}
}
