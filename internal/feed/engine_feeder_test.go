package feed

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/riskmon/internal/domain"
	"github.com/tradeforge/riskmon/internal/risk"
)

type nullSink struct{}

func (nullSink) Abort(context.Context, string) error { return nil }

func newFeeder(t *testing.T) (*EngineFeeder, *risk.StrategyManager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := risk.NewStrategyManager(nullSink{}, nil, logger)
	feeder := NewEngineFeeder(FeederConfig{FeedURL: "ws://unused"}, manager, logger)
	return feeder, manager
}

func startSession(t *testing.T, m *risk.StrategyManager, id string) {
	t.Helper()
	_, err := m.Start(context.Background(), id, domain.SessionConfig{
		Instrument:      "BTC-USD",
		Allocation:      decimal.RequireFromString("1000"),
		MaxPositionSize: decimal.RequireFromString("10"),
		InitialPrice:    decimal.RequireFromString("1000"),
		Watchers: []domain.WatcherSpec{
			{Kind: domain.WatcherStopLossPct, Threshold: decimal.RequireFromString("0.2")},
		},
	})
	require.NoError(t, err)
}

func TestFeederRoutesFillsAndPrices(t *testing.T) {
	feeder, manager := newFeeder(t)
	ctx := context.Background()
	startSession(t, manager, "s1")

	feeder.handleFill(ctx, "s1", domain.Fill{
		Amount: decimal.RequireFromString("2"),
		Price:  decimal.RequireFromString("1000"),
	})
	feeder.handlePrice(ctx, "s1", decimal.RequireFromString("1050"))

	st, err := manager.Status("s1")
	require.NoError(t, err)
	require.Equal(t, "2", st.PositionSize.String())
	require.Equal(t, "1050", st.CurrentPrice.String())
	require.Equal(t, "100", st.UnrealizedPnL.String())
}

func TestFeederToleratesUnknownSessions(t *testing.T) {
	feeder, _ := newFeeder(t)
	ctx := context.Background()

	// Neither call may panic or error out of the dispatch path.
	feeder.handleFill(ctx, "ghost", domain.Fill{
		Amount: decimal.RequireFromString("1"),
		Price:  decimal.RequireFromString("1000"),
	})
	feeder.handlePrice(ctx, "ghost", decimal.RequireFromString("1000"))
}

func TestFeederKeepsSessionOnRejectedFill(t *testing.T) {
	feeder, manager := newFeeder(t)
	ctx := context.Background()
	startSession(t, manager, "s1")

	// Over the position limit; dropped with the session left intact.
	feeder.handleFill(ctx, "s1", domain.Fill{
		Amount: decimal.RequireFromString("11"),
		Price:  decimal.RequireFromString("1000"),
	})

	st, err := manager.Status("s1")
	require.NoError(t, err)
	require.True(t, st.PositionSize.IsZero())
}
