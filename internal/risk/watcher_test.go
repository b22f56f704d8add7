package risk

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tradeforge/riskmon/internal/domain"
)

func TestStopLossPctTriggersExactlyOnce(t *testing.T) {
	feed, pm := newPerf(t, "1000", "1000", "10")

	aborts := 0
	w, err := NewStopLossPctWatcher(pm, dec("0.2"), func() { aborts++ })
	require.NoError(t, err)

	require.NoError(t, pm.AddOrder(fill("1", "1000")))
	requireDec(t, "1", pm.PositionSize())
	requireDec(t, "1000", pm.AvgEntryPrice())

	// Loss ratio 200/1000 = 0.2 >= 0.2: trigger.
	feed.Update(dec("800"))
	require.Equal(t, 1, aborts)
	require.Equal(t, domain.WatcherTriggered, w.State())

	// Further qualifying updates must not re-trigger: the watcher detached.
	feed.Update(dec("500"))
	feed.Update(dec("100"))
	require.Equal(t, 1, aborts)
}

func TestStopLossPctDoesNotTriggerBelowThreshold(t *testing.T) {
	feed, pm := newPerf(t, "1000", "1000", "10")

	aborts := 0
	w, err := NewStopLossPctWatcher(pm, dec("0.2"), func() { aborts++ })
	require.NoError(t, err)

	require.NoError(t, pm.AddOrder(fill("1", "1000")))

	feed.Update(dec("850")) // ratio 0.15
	feed.Update(dec("900")) // ratio 0.10
	require.Zero(t, aborts)
	require.Equal(t, domain.WatcherArmed, w.State())

	feed.Update(dec("700")) // ratio 0.30
	require.Equal(t, 1, aborts)
	require.Equal(t, domain.WatcherTriggered, w.State())
}

func TestStopLossPctIgnoresProfit(t *testing.T) {
	feed, pm := newPerf(t, "1000", "1000", "10")

	aborts := 0
	_, err := NewStopLossPctWatcher(pm, dec("0.2"), func() { aborts++ })
	require.NoError(t, err)

	require.NoError(t, pm.AddOrder(fill("1", "1000")))
	feed.Update(dec("2000"))
	require.Zero(t, aborts)
}

func TestStopLossAbsWatcher(t *testing.T) {
	feed, pm := newPerf(t, "1000", "1000000", "10")

	aborts := 0
	_, err := NewStopLossAbsWatcher(pm, dec("150"), func() { aborts++ })
	require.NoError(t, err)

	require.NoError(t, pm.AddOrder(fill("1", "1000")))
	feed.Update(dec("900")) // loss 100 < 150
	require.Zero(t, aborts)
	feed.Update(dec("850")) // loss 150 >= 150
	require.Equal(t, 1, aborts)
}

func TestTakeProfitPctWatcher(t *testing.T) {
	feed, pm := newPerf(t, "1000", "1000", "10")

	aborts := 0
	w, err := NewTakeProfitPctWatcher(pm, dec("0.1"), func() { aborts++ })
	require.NoError(t, err)

	require.NoError(t, pm.AddOrder(fill("1", "1000")))
	feed.Update(dec("1050")) // +50/1000 = 0.05
	require.Zero(t, aborts)
	feed.Update(dec("1100")) // +100/1000 = 0.1
	require.Equal(t, 1, aborts)
	require.Equal(t, domain.WatcherTriggered, w.State())
}

func TestTakeProfitCountsRealizedPnL(t *testing.T) {
	feed, pm := newPerf(t, "1000", "1000", "10")

	aborts := 0
	_, err := NewTakeProfitPctWatcher(pm, dec("0.1"), func() { aborts++ })
	require.NoError(t, err)

	// The closing fill locks in 100 realized; that recompute alone crosses
	// the threshold, with no price tick needed.
	require.NoError(t, pm.AddOrder(fill("1", "1000")))
	require.NoError(t, pm.AddOrder(fill("-1", "1100")))
	require.Equal(t, 1, aborts)

	// Price movement on the now-flat position changes nothing.
	feed.Update(dec("900"))
	require.Equal(t, 1, aborts)
}

func TestWatcherCloseDetachesWithoutTrigger(t *testing.T) {
	feed, pm := newPerf(t, "1000", "1000", "10")

	aborts := 0
	w, err := NewStopLossPctWatcher(pm, dec("0.2"), func() { aborts++ })
	require.NoError(t, err)

	require.NoError(t, pm.AddOrder(fill("1", "1000")))
	w.Close()
	require.Equal(t, domain.WatcherClosed, w.State())

	feed.Update(dec("100")) // deep breach, but the watcher is gone
	require.Zero(t, aborts)

	// Close after CLOSED is a no-op.
	w.Close()
	require.Equal(t, domain.WatcherClosed, w.State())
}

func TestCloseAfterTriggerKeepsTriggeredState(t *testing.T) {
	feed, pm := newPerf(t, "1000", "1000", "10")

	w, err := NewStopLossPctWatcher(pm, dec("0.2"), func() {})
	require.NoError(t, err)

	require.NoError(t, pm.AddOrder(fill("1", "1000")))
	feed.Update(dec("700"))
	require.Equal(t, domain.WatcherTriggered, w.State())

	w.Close()
	require.Equal(t, domain.WatcherTriggered, w.State())
}

func TestSiblingWatchersEvaluateIndependently(t *testing.T) {
	feed, pm := newPerf(t, "1000", "1000", "10")

	var fired []string
	sl, err := NewStopLossPctWatcher(pm, dec("0.2"), func() { fired = append(fired, "stop_loss") })
	require.NoError(t, err)
	tp, err := NewTakeProfitPctWatcher(pm, dec("0.1"), func() { fired = append(fired, "take_profit") })
	require.NoError(t, err)

	require.NoError(t, pm.AddOrder(fill("1", "1000")))
	feed.Update(dec("1100"))

	require.Equal(t, []string{"take_profit"}, fired)
	require.Equal(t, domain.WatcherArmed, sl.State())
	require.Equal(t, domain.WatcherTriggered, tp.State())
}

func TestNewWatcherValidatesSpec(t *testing.T) {
	_, pm := newPerf(t, "1000", "1000", "10")

	_, err := NewWatcher(domain.WatcherSpec{Kind: "trailing_stop", Threshold: dec("1")}, pm, func() {})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = NewWatcher(domain.WatcherSpec{Kind: domain.WatcherStopLossPct, Threshold: dec("0")}, pm, func() {})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)

	w, err := NewWatcher(domain.WatcherSpec{Kind: domain.WatcherStopLossAbs, Threshold: dec("100")}, pm, func() {})
	require.NoError(t, err)
	require.Equal(t, domain.WatcherStopLossAbs, w.Kind())
	requireDec(t, "100", w.Threshold())
	require.Equal(t, domain.WatcherArmed, w.State())
}
