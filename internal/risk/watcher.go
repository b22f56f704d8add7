package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradeforge/riskmon/internal/domain"
)

// Watcher is a risk policy attached to one PerformanceManager. Its state
// machine is ARMED → TRIGGERED (terminal) or ARMED → CLOSED (terminal).
// The abort callback fires at most once, after which the watcher detaches so
// no later price update can evaluate or re-trigger it.
type Watcher interface {
	Kind() domain.WatcherKind
	Threshold() decimal.Decimal
	State() domain.WatcherState
	// Close detaches the watcher without triggering. Calling Close after
	// TRIGGERED or CLOSED is a no-op.
	Close()
}

// breachFn decides whether the watcher threshold is met for the current
// total PnL. Each watcher kind documents its own denominator convention.
type breachFn func(totalPnL, allocation, threshold decimal.Decimal) bool

// thresholdWatcher carries the shared trigger-exactly-once machinery. The
// transition out of ARMED happens before the abort callback runs and is
// immediately followed by detaching, so a second qualifying update arriving
// before teardown cannot re-enter the callback.
type thresholdWatcher struct {
	kind      domain.WatcherKind
	threshold decimal.Decimal
	perf      *PerformanceManager
	sub       *Subscription
	state     domain.WatcherState
	breach    breachFn
	abort     func()
}

func newThresholdWatcher(kind domain.WatcherKind, perf *PerformanceManager, threshold decimal.Decimal, breach breachFn, abort func()) (*thresholdWatcher, error) {
	if !threshold.IsPositive() {
		return nil, fmt.Errorf("%w: watcher %s: threshold must be positive, got %s", domain.ErrInvalidConfig, kind, threshold)
	}
	w := &thresholdWatcher{
		kind:      kind,
		threshold: threshold,
		perf:      perf,
		state:     domain.WatcherArmed,
		breach:    breach,
		abort:     abort,
	}
	w.sub = perf.OnUpdate(w.evaluate)
	return w, nil
}

func (w *thresholdWatcher) evaluate() {
	if w.state != domain.WatcherArmed {
		return
	}
	if !w.breach(w.perf.TotalPnL(), w.perf.Allocation(), w.threshold) {
		return
	}
	w.state = domain.WatcherTriggered
	w.detach()
	w.abort()
}

func (w *thresholdWatcher) detach() {
	w.perf.RemoveListener(w.sub)
	w.sub = nil
}

func (w *thresholdWatcher) Kind() domain.WatcherKind   { return w.kind }
func (w *thresholdWatcher) Threshold() decimal.Decimal { return w.threshold }
func (w *thresholdWatcher) State() domain.WatcherState { return w.state }

func (w *thresholdWatcher) Close() {
	if w.state != domain.WatcherArmed {
		return
	}
	w.state = domain.WatcherClosed
	w.detach()
}

// NewStopLossPctWatcher triggers when the loss ratio -totalPnL / allocation
// meets or exceeds threshold (a fraction, e.g. 0.2 for 20% of allocation).
func NewStopLossPctWatcher(perf *PerformanceManager, threshold decimal.Decimal, abort func()) (Watcher, error) {
	return newThresholdWatcher(domain.WatcherStopLossPct, perf, threshold,
		func(totalPnL, allocation, threshold decimal.Decimal) bool {
			loss := totalPnL.Neg()
			if !loss.IsPositive() {
				return false
			}
			return loss.GreaterThanOrEqual(threshold.Mul(allocation))
		}, abort)
}

// NewStopLossAbsWatcher triggers when the absolute loss -totalPnL meets or
// exceeds threshold, expressed in quote currency.
func NewStopLossAbsWatcher(perf *PerformanceManager, threshold decimal.Decimal, abort func()) (Watcher, error) {
	return newThresholdWatcher(domain.WatcherStopLossAbs, perf, threshold,
		func(totalPnL, _, threshold decimal.Decimal) bool {
			loss := totalPnL.Neg()
			if !loss.IsPositive() {
				return false
			}
			return loss.GreaterThanOrEqual(threshold)
		}, abort)
}

// NewTakeProfitPctWatcher triggers when totalPnL / allocation meets or
// exceeds threshold (a fraction of allocation, matching the stop-loss
// denominator convention).
func NewTakeProfitPctWatcher(perf *PerformanceManager, threshold decimal.Decimal, abort func()) (Watcher, error) {
	return newThresholdWatcher(domain.WatcherTakeProfitPct, perf, threshold,
		func(totalPnL, allocation, threshold decimal.Decimal) bool {
			if !totalPnL.IsPositive() {
				return false
			}
			return totalPnL.GreaterThanOrEqual(threshold.Mul(allocation))
		}, abort)
}

// NewWatcher builds a watcher from its spec.
func NewWatcher(spec domain.WatcherSpec, perf *PerformanceManager, abort func()) (Watcher, error) {
	switch spec.Kind {
	case domain.WatcherStopLossPct:
		return NewStopLossPctWatcher(perf, spec.Threshold, abort)
	case domain.WatcherStopLossAbs:
		return NewStopLossAbsWatcher(perf, spec.Threshold, abort)
	case domain.WatcherTakeProfitPct:
		return NewTakeProfitPctWatcher(perf, spec.Threshold, abort)
	default:
		return nil, fmt.Errorf("%w: unknown watcher kind %q", domain.ErrInvalidConfig, spec.Kind)
	}
}

// stopReason maps a triggered watcher kind to the session stop reason.
func stopReason(kind domain.WatcherKind) domain.StopReason {
	if kind == domain.WatcherTakeProfitPct {
		return domain.StopTakeProfit
	}
	return domain.StopLossHit
}
