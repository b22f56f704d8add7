package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// WatcherKind identifies a risk-watcher policy.
type WatcherKind string

const (
	// WatcherStopLossPct aborts when -totalPnL / allocation >= threshold.
	WatcherStopLossPct WatcherKind = "stop_loss_pct"
	// WatcherStopLossAbs aborts when -totalPnL >= threshold (quote currency).
	WatcherStopLossAbs WatcherKind = "stop_loss_abs"
	// WatcherTakeProfitPct aborts when totalPnL / allocation >= threshold.
	WatcherTakeProfitPct WatcherKind = "take_profit_pct"
)

// Valid reports whether the kind is one of the recognized watcher policies.
func (k WatcherKind) Valid() bool {
	switch k {
	case WatcherStopLossPct, WatcherStopLossAbs, WatcherTakeProfitPct:
		return true
	default:
		return false
	}
}

// WatcherState is the lifecycle state of a risk watcher. Both TRIGGERED and
// CLOSED are terminal.
type WatcherState string

const (
	WatcherArmed     WatcherState = "armed"
	WatcherTriggered WatcherState = "triggered"
	WatcherClosed    WatcherState = "closed"
)

// WatcherSpec configures one risk watcher for a session.
type WatcherSpec struct {
	Kind      WatcherKind
	Threshold decimal.Decimal
}

// Validate checks the spec against the per-kind threshold rules.
func (w WatcherSpec) Validate() error {
	if !w.Kind.Valid() {
		return fmt.Errorf("%w: unknown watcher kind %q", ErrInvalidConfig, w.Kind)
	}
	if !w.Threshold.IsPositive() {
		return fmt.Errorf("%w: watcher %s: threshold must be positive, got %s", ErrInvalidConfig, w.Kind, w.Threshold)
	}
	return nil
}

// SessionConfig is the configuration accepted at session start.
type SessionConfig struct {
	Instrument      string
	Allocation      decimal.Decimal
	MaxPositionSize decimal.Decimal
	InitialPrice    decimal.Decimal
	Watchers        []WatcherSpec
}

// Validate checks the config for values that would make the session
// meaningless. A config error is fatal to session creation; no partial
// session is ever created from an invalid config.
func (c SessionConfig) Validate() error {
	if !c.Allocation.IsPositive() {
		return fmt.Errorf("%w: allocation must be positive, got %s", ErrInvalidConfig, c.Allocation)
	}
	if !c.MaxPositionSize.IsPositive() {
		return fmt.Errorf("%w: max_position_size must be positive, got %s", ErrInvalidConfig, c.MaxPositionSize)
	}
	if !c.InitialPrice.IsPositive() {
		return fmt.Errorf("%w: initial_price must be positive, got %s", ErrInvalidConfig, c.InitialPrice)
	}
	for _, w := range c.Watchers {
		if err := w.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// StopReason records why a session stopped.
type StopReason string

const (
	StopRequested  StopReason = "requested"
	StopLossHit    StopReason = "stop_loss"
	StopTakeProfit StopReason = "take_profit"
	StopShutdown   StopReason = "shutdown"
)

// SessionStatus is a point-in-time snapshot of a live (or just-stopped)
// session, suitable for relaying to a UI or log. Decimal fields encode as
// JSON strings to keep values exact across the wire.
type SessionStatus struct {
	SessionID       string          `json:"session_id"`
	Instrument      string          `json:"instrument"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	PositionSize    decimal.Decimal `json:"position_size"`
	AvgEntryPrice   decimal.Decimal `json:"avg_entry_price"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL   decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
	AllocationUsage decimal.Decimal `json:"allocation_usage"`
	Watchers        []WatcherStatus `json:"watchers"`
	StartedAt       time.Time       `json:"started_at"`
}

// WatcherStatus pairs a watcher kind with its current state.
type WatcherStatus struct {
	Kind      WatcherKind     `json:"kind"`
	Threshold decimal.Decimal `json:"threshold"`
	State     WatcherState    `json:"state"`
}
