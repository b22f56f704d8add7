package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/riskmon/internal/domain"
)

func newPerf(t *testing.T, initialPrice, allocation, maxSize string) (*PriceFeed, *PerformanceManager) {
	t.Helper()
	feed := NewPriceFeed(dec(initialPrice))
	pm, err := NewPerformanceManager(feed, PerformanceConfig{
		Allocation:      dec(allocation),
		MaxPositionSize: dec(maxSize),
	})
	require.NoError(t, err)
	return feed, pm
}

func fill(amount, price string) domain.Fill {
	return domain.Fill{Amount: dec(amount), Price: dec(price)}
}

func requireDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(dec(want)), "want %s, got %s", want, got)
}

func TestPerformanceManagerRejectsBadConfig(t *testing.T) {
	feed := NewPriceFeed(dec("1000"))

	_, err := NewPerformanceManager(feed, PerformanceConfig{
		Allocation:      decimal.Zero,
		MaxPositionSize: dec("10"),
	})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = NewPerformanceManager(feed, PerformanceConfig{
		Allocation:      dec("1000"),
		MaxPositionSize: dec("-1"),
	})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestAddOrderRejectsZeroAmount(t *testing.T) {
	_, pm := newPerf(t, "1000", "1000", "10")

	err := pm.AddOrder(fill("0", "1000"))
	require.ErrorIs(t, err, domain.ErrInvalidFill)
	require.Zero(t, pm.OrderCount())
}

func TestAddOrderRejectsPositionLimitBreach(t *testing.T) {
	_, pm := newPerf(t, "1000", "1000000", "10")

	require.NoError(t, pm.AddOrder(fill("8", "1000")))
	err := pm.AddOrder(fill("3", "1000"))
	require.ErrorIs(t, err, domain.ErrInvalidFill)

	// Rejected fill leaves state untouched.
	requireDec(t, "8", pm.PositionSize())
	requireDec(t, "1000", pm.AvgEntryPrice())
	require.Equal(t, 1, pm.OrderCount())

	// A short past the limit is rejected the same way.
	err = pm.AddOrder(fill("-19", "1000"))
	require.ErrorIs(t, err, domain.ErrInvalidFill)
	requireDec(t, "8", pm.PositionSize())
}

func TestPositionSizeIsSignedSumOfFills(t *testing.T) {
	_, pm := newPerf(t, "100", "100000", "100")

	amounts := []string{"1", "2.5", "-0.5", "-3", "4", "-4"}
	sum := decimal.Zero
	for _, a := range amounts {
		require.NoError(t, pm.AddOrder(fill(a, "100")))
		sum = sum.Add(dec(a))
	}
	require.True(t, pm.PositionSize().Equal(sum))
}

func TestWeightedAverageEntryPrice(t *testing.T) {
	_, pm := newPerf(t, "1000", "100000", "10")

	require.NoError(t, pm.AddOrder(fill("1", "1000")))
	requireDec(t, "1000", pm.AvgEntryPrice())

	require.NoError(t, pm.AddOrder(fill("3", "1100")))
	// (1*1000 + 3*1100) / 4 = 1075
	requireDec(t, "1075", pm.AvgEntryPrice())
	requireDec(t, "4", pm.PositionSize())
}

func TestRealizedPnLOnReducingFill(t *testing.T) {
	_, pm := newPerf(t, "1000", "100000", "10")

	require.NoError(t, pm.AddOrder(fill("2", "1000")))
	require.NoError(t, pm.AddOrder(fill("-1", "1100")))

	requireDec(t, "100", pm.RealizedPnL())
	requireDec(t, "1", pm.PositionSize())
	// Average of the remaining open portion is unchanged.
	requireDec(t, "1000", pm.AvgEntryPrice())
}

func TestExactCloseClearsAverageAndUnrealized(t *testing.T) {
	feed, pm := newPerf(t, "1000", "100000", "10")

	require.NoError(t, pm.AddOrder(fill("1", "1000")))
	require.NoError(t, pm.AddOrder(fill("-1", "1100")))

	requireDec(t, "0", pm.PositionSize())
	requireDec(t, "100", pm.RealizedPnL())
	requireDec(t, "0", pm.AvgEntryPrice())
	requireDec(t, "0", pm.UnrealizedPnL())

	// Flat position is immune to price.
	feed.Update(dec("500"))
	requireDec(t, "0", pm.UnrealizedPnL())
	requireDec(t, "100", pm.TotalPnL())
}

func TestReopenAfterFlatUsesFillPriceOnly(t *testing.T) {
	_, pm := newPerf(t, "1000", "100000", "10")

	require.NoError(t, pm.AddOrder(fill("3", "900")))
	require.NoError(t, pm.AddOrder(fill("-3", "950")))
	require.NoError(t, pm.AddOrder(fill("2", "1200")))

	// No stale averaging from the prior position's history.
	requireDec(t, "1200", pm.AvgEntryPrice())
	requireDec(t, "2", pm.PositionSize())
}

func TestFlipThroughZeroEstablishesNewAverage(t *testing.T) {
	feed, pm := newPerf(t, "1000", "100000", "10")

	require.NoError(t, pm.AddOrder(fill("2", "1000")))
	require.NoError(t, pm.AddOrder(fill("-5", "1100")))

	// 2 closed at +100 each, excess of 3 opens a short at 1100.
	requireDec(t, "200", pm.RealizedPnL())
	requireDec(t, "-3", pm.PositionSize())
	requireDec(t, "1100", pm.AvgEntryPrice())

	// Short position gains as price falls.
	feed.Update(dec("1050"))
	requireDec(t, "150", pm.UnrealizedPnL())
}

func TestShortPositionRealizedPnL(t *testing.T) {
	_, pm := newPerf(t, "1000", "100000", "10")

	require.NoError(t, pm.AddOrder(fill("-2", "1000")))
	require.NoError(t, pm.AddOrder(fill("1", "900")))

	// Buying back below the short entry locks in profit.
	requireDec(t, "100", pm.RealizedPnL())
	requireDec(t, "-1", pm.PositionSize())
	requireDec(t, "1000", pm.AvgEntryPrice())
}

func TestUnrealizedPnLTracksPriceFeed(t *testing.T) {
	feed, pm := newPerf(t, "1000", "1000", "10")

	require.NoError(t, pm.AddOrder(fill("1", "1000")))
	requireDec(t, "0", pm.UnrealizedPnL())

	feed.Update(dec("800"))
	requireDec(t, "-200", pm.UnrealizedPnL())
	requireDec(t, "-200", pm.TotalPnL())

	feed.Update(dec("1050"))
	requireDec(t, "50", pm.UnrealizedPnL())
}

func TestAllocationUsage(t *testing.T) {
	_, pm := newPerf(t, "1000", "10000", "10")

	require.NoError(t, pm.AddOrder(fill("2", "1000")))
	// |2 * 1000| / 10000 = 0.2
	requireDec(t, "0.2", pm.AllocationUsage())

	require.NoError(t, pm.AddOrder(fill("-2", "1000")))
	requireDec(t, "0", pm.AllocationUsage())
}

func TestCloseUnsubscribesFromFeed(t *testing.T) {
	feed, pm := newPerf(t, "1000", "1000", "10")
	require.NoError(t, pm.AddOrder(fill("1", "1000")))

	pm.Close()
	feed.Update(dec("800"))
	requireDec(t, "0", pm.UnrealizedPnL())

	// Idempotent.
	pm.Close()
}

func TestOnUpdateFiresPerRecompute(t *testing.T) {
	feed, pm := newPerf(t, "1000", "1000", "10")

	updates := 0
	pm.OnUpdate(func() { updates++ })

	require.NoError(t, pm.AddOrder(fill("1", "1000")))
	feed.Update(dec("900"))
	feed.Update(dec("900")) // no change, no recompute
	feed.Update(dec("950"))
	require.Equal(t, 3, updates)
}
