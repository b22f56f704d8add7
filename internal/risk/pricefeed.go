// Package risk implements the live-strategy risk-monitoring core: a price
// feed, a performance (position/PnL) manager, threshold watchers, and the
// strategy manager that owns the lifecycle of all live sessions.
//
// Components in this package perform no I/O and never block. They are not
// internally synchronized: the StrategyManager serializes every fill, price
// tick, stop, and status read for a session behind one per-session mutex, so
// the PriceFeed → PerformanceManager → watcher chain always executes as a
// single synchronous, non-interleaved call.
package risk

import "github.com/shopspring/decimal"

// PriceListener is invoked synchronously with the new price on every change.
type PriceListener func(price decimal.Decimal)

// Subscription identifies a registered listener so it can be removed later.
type Subscription struct {
	id int
}

type priceSub struct {
	id int
	fn PriceListener
}

// PriceFeed holds the current market price for one instrument and notifies
// subscribers, in registration order, whenever it changes.
type PriceFeed struct {
	price  decimal.Decimal
	subs   []priceSub
	nextID int
}

// NewPriceFeed creates a feed seeded with the initial price.
func NewPriceFeed(initial decimal.Decimal) *PriceFeed {
	return &PriceFeed{price: initial}
}

// Current returns the latest price.
func (f *PriceFeed) Current() decimal.Decimal {
	return f.price
}

// Update replaces the current price. If the value differs from the previous
// one, all subscribers are notified synchronously before Update returns.
// Equal updates are dropped without notification.
func (f *PriceFeed) Update(price decimal.Decimal) {
	if f.price.Equal(price) {
		return
	}
	f.price = price

	// Iterate over a snapshot: a listener may unsubscribe itself (watchers
	// detach on trigger) without corrupting the walk.
	subs := make([]priceSub, len(f.subs))
	copy(subs, f.subs)
	for _, s := range subs {
		s.fn(price)
	}
}

// Subscribe registers a listener and returns its handle.
func (f *PriceFeed) Subscribe(fn PriceListener) *Subscription {
	f.nextID++
	sub := &Subscription{id: f.nextID}
	f.subs = append(f.subs, priceSub{id: sub.id, fn: fn})
	return sub
}

// Unsubscribe removes a listener. Removing a handle that is nil or no longer
// registered is a no-op.
func (f *PriceFeed) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	for i, s := range f.subs {
		if s.id == sub.id {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return
		}
	}
}
