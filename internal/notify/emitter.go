package notify

import (
	"context"
	"fmt"

	"github.com/tradeforge/riskmon/internal/domain"
)

// SessionNotifier adapts the Notifier to domain.SessionEmitter, turning
// lifecycle events into operator alerts.
type SessionNotifier struct {
	notifier *Notifier
}

// NewSessionNotifier creates a SessionNotifier.
func NewSessionNotifier(notifier *Notifier) *SessionNotifier {
	return &SessionNotifier{notifier: notifier}
}

// SessionStarted implements domain.SessionEmitter.
func (n *SessionNotifier) SessionStarted(ctx context.Context, status domain.SessionStatus) {
	title := fmt.Sprintf("Session started: %s", status.SessionID)
	message := fmt.Sprintf(
		"Instrument: %s\nInitial price: %s\nWatchers: %d",
		status.Instrument, status.CurrentPrice, len(status.Watchers),
	)
	_ = n.notifier.Notify(ctx, domain.EventSessionStarted, title, message)
}

// SessionStopped implements domain.SessionEmitter.
func (n *SessionNotifier) SessionStopped(ctx context.Context, reason domain.StopReason, status domain.SessionStatus) {
	title := fmt.Sprintf("Session stopped: %s (%s)", status.SessionID, reason)
	message := fmt.Sprintf(
		"Instrument: %s\nPosition: %s\nRealized PnL: %s\nUnrealized PnL: %s\nTotal PnL: %s",
		status.Instrument, status.PositionSize, status.RealizedPnL, status.UnrealizedPnL, status.TotalPnL,
	)
	_ = n.notifier.Notify(ctx, domain.EventSessionStopped, title, message)
}

// Compile-time interface check.
var _ domain.SessionEmitter = (*SessionNotifier)(nil)
