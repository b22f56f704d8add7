package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPriceFeedNotifiesOnChange(t *testing.T) {
	feed := NewPriceFeed(dec("1000"))
	require.True(t, feed.Current().Equal(dec("1000")))

	var got []string
	feed.Subscribe(func(p decimal.Decimal) {
		got = append(got, p.String())
	})

	feed.Update(dec("1001"))
	feed.Update(dec("999.5"))
	require.Equal(t, []string{"1001", "999.5"}, got)
	require.True(t, feed.Current().Equal(dec("999.5")))
}

func TestPriceFeedDropsEqualUpdates(t *testing.T) {
	feed := NewPriceFeed(dec("1000"))

	calls := 0
	feed.Subscribe(func(decimal.Decimal) { calls++ })

	feed.Update(dec("1000"))
	feed.Update(dec("1000.00")) // same value, different exponent
	require.Zero(t, calls)

	feed.Update(dec("1001"))
	require.Equal(t, 1, calls)
}

func TestPriceFeedUnsubscribe(t *testing.T) {
	feed := NewPriceFeed(dec("1"))

	calls := 0
	sub := feed.Subscribe(func(decimal.Decimal) { calls++ })

	feed.Update(dec("2"))
	feed.Unsubscribe(sub)
	feed.Update(dec("3"))
	require.Equal(t, 1, calls)

	// Unknown and nil handles are no-ops.
	feed.Unsubscribe(sub)
	feed.Unsubscribe(nil)
}

func TestPriceFeedListenerMayDetachDuringNotify(t *testing.T) {
	feed := NewPriceFeed(dec("1"))

	var sub *Subscription
	calls := 0
	sub = feed.Subscribe(func(decimal.Decimal) {
		calls++
		feed.Unsubscribe(sub)
	})
	second := 0
	feed.Subscribe(func(decimal.Decimal) { second++ })

	feed.Update(dec("2"))
	feed.Update(dec("3"))
	require.Equal(t, 1, calls)
	require.Equal(t, 2, second)
}
