package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradeforge/riskmon/internal/domain"
)

// avgPrecision is the number of decimal digits kept when dividing for the
// volume-weighted average entry price and for allocation usage. Divisions
// round half away from zero at this precision; every other operation is
// exact decimal arithmetic.
const avgPrecision = 16

// UpdateListener is invoked synchronously after every PnL recomputation.
type UpdateListener func()

type updateSub struct {
	id int
	fn UpdateListener
}

// PerformanceManager accumulates fills for one strategy session and derives
// position size, average entry price, allocation usage, and realized and
// unrealized PnL. It subscribes to its PriceFeed at construction and
// recomputes unrealized PnL synchronously on every price notification.
type PerformanceManager struct {
	feed    *PriceFeed
	feedSub *Subscription

	allocation      decimal.Decimal
	maxPositionSize decimal.Decimal

	orders        []domain.Fill
	positionSize  decimal.Decimal
	avgEntryPrice decimal.Decimal
	realizedPnL   decimal.Decimal
	unrealizedPnL decimal.Decimal

	subs   []updateSub
	nextID int
}

// PerformanceConfig bounds one session's position accounting.
type PerformanceConfig struct {
	Allocation      decimal.Decimal
	MaxPositionSize decimal.Decimal
}

// NewPerformanceManager creates a manager bound to the given feed. A
// non-positive allocation or max position size is a construction-time error,
// never a runtime fault.
func NewPerformanceManager(feed *PriceFeed, cfg PerformanceConfig) (*PerformanceManager, error) {
	if !cfg.Allocation.IsPositive() {
		return nil, fmt.Errorf("%w: allocation must be positive, got %s", domain.ErrInvalidConfig, cfg.Allocation)
	}
	if !cfg.MaxPositionSize.IsPositive() {
		return nil, fmt.Errorf("%w: max_position_size must be positive, got %s", domain.ErrInvalidConfig, cfg.MaxPositionSize)
	}

	pm := &PerformanceManager{
		feed:            feed,
		allocation:      cfg.Allocation,
		maxPositionSize: cfg.MaxPositionSize,
	}
	pm.feedSub = feed.Subscribe(pm.onPrice)
	return pm, nil
}

// AddOrder applies a fill to the position. It rejects zero-amount fills and
// fills that would push |positionSize| past the configured maximum; a
// rejected fill leaves all state untouched and the session live.
func (pm *PerformanceManager) AddOrder(fill domain.Fill) error {
	if err := fill.Validate(); err != nil {
		return err
	}

	newSize := pm.positionSize.Add(fill.Amount)
	if newSize.Abs().GreaterThan(pm.maxPositionSize) {
		return fmt.Errorf("%w: fill of %s would push position to %s past limit %s",
			domain.ErrInvalidFill, fill.Amount, newSize, pm.maxPositionSize)
	}

	pm.orders = append(pm.orders, fill)

	switch {
	case pm.positionSize.IsZero() || pm.positionSize.Sign() == fill.Amount.Sign():
		// Opening or adding in the same direction: re-weight the average.
		openQty := pm.positionSize.Abs()
		fillQty := fill.Amount.Abs()
		notional := pm.avgEntryPrice.Mul(openQty).Add(fill.Price.Mul(fillQty))
		pm.avgEntryPrice = notional.DivRound(openQty.Add(fillQty), avgPrecision)
		pm.positionSize = newSize

	default:
		// Opposite direction: realize PnL on the closed portion against the
		// prior average entry price.
		closedQty := decimal.Min(fill.Amount.Abs(), pm.positionSize.Abs())
		diff := fill.Price.Sub(pm.avgEntryPrice)
		if pm.positionSize.Sign() < 0 {
			diff = diff.Neg()
		}
		pm.realizedPnL = pm.realizedPnL.Add(diff.Mul(closedQty))

		pm.positionSize = newSize
		switch pm.positionSize.Sign() {
		case 0:
			// Exactly flat: the average is undefined until the next open.
			pm.avgEntryPrice = decimal.Zero
		case fill.Amount.Sign():
			// The excess beyond full closure flips the position; the new
			// average is the fill price, independent of prior history.
			pm.avgEntryPrice = fill.Price
		}
	}

	pm.recompute(pm.feed.Current())
	return nil
}

// onPrice is the PriceFeed listener.
func (pm *PerformanceManager) onPrice(price decimal.Decimal) {
	pm.recompute(price)
}

// recompute refreshes unrealized PnL at the given price and notifies update
// subscribers. A flat position is immune to price: unrealized PnL is zero.
func (pm *PerformanceManager) recompute(price decimal.Decimal) {
	if pm.positionSize.IsZero() {
		pm.unrealizedPnL = decimal.Zero
	} else {
		pm.unrealizedPnL = pm.positionSize.Mul(price.Sub(pm.avgEntryPrice))
	}

	subs := make([]updateSub, len(pm.subs))
	copy(subs, pm.subs)
	for _, s := range subs {
		s.fn()
	}
}

// OnUpdate registers a listener invoked after every PnL recomputation.
func (pm *PerformanceManager) OnUpdate(fn UpdateListener) *Subscription {
	pm.nextID++
	sub := &Subscription{id: pm.nextID}
	pm.subs = append(pm.subs, updateSub{id: sub.id, fn: fn})
	return sub
}

// RemoveListener drops a previously registered update listener; unknown or
// nil handles are ignored.
func (pm *PerformanceManager) RemoveListener(sub *Subscription) {
	if sub == nil {
		return
	}
	for i, s := range pm.subs {
		if s.id == sub.id {
			pm.subs = append(pm.subs[:i], pm.subs[i+1:]...)
			return
		}
	}
}

// Close unsubscribes from the price feed. Idempotent.
func (pm *PerformanceManager) Close() {
	pm.feed.Unsubscribe(pm.feedSub)
	pm.feedSub = nil
}

// PositionSize returns the signed running sum of fill amounts.
func (pm *PerformanceManager) PositionSize() decimal.Decimal {
	return pm.positionSize
}

// AvgEntryPrice returns the volume-weighted average price of the open
// same-sign portion of the position. It is zero while the position is flat.
func (pm *PerformanceManager) AvgEntryPrice() decimal.Decimal {
	return pm.avgEntryPrice
}

// RealizedPnL returns the PnL locked in by reducing or closing fills.
func (pm *PerformanceManager) RealizedPnL() decimal.Decimal {
	return pm.realizedPnL
}

// UnrealizedPnL returns the open position's PnL marked to the latest price.
func (pm *PerformanceManager) UnrealizedPnL() decimal.Decimal {
	return pm.unrealizedPnL
}

// TotalPnL returns realized plus unrealized PnL.
func (pm *PerformanceManager) TotalPnL() decimal.Decimal {
	return pm.realizedPnL.Add(pm.unrealizedPnL)
}

// Allocation returns the capital ceiling configured at session start.
func (pm *PerformanceManager) Allocation() decimal.Decimal {
	return pm.allocation
}

// AllocationUsage returns |positionSize × avgEntryPrice| / allocation.
func (pm *PerformanceManager) AllocationUsage() decimal.Decimal {
	return pm.positionSize.Mul(pm.avgEntryPrice).Abs().DivRound(pm.allocation, avgPrecision)
}

// OrderCount reports how many fills the append-only log holds.
func (pm *PerformanceManager) OrderCount() int {
	return len(pm.orders)
}
