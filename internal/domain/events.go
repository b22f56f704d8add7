package domain

import "context"

// SessionEvent names used on the signal bus and in the journal.
const (
	EventSessionStarted = "session_started"
	EventSessionStopped = "session_stopped"
)

// SessionEmitter receives lifecycle notifications from the strategy manager.
// Implementations must not block the caller for long: the manager invokes
// these outside its per-session lock but on the event-delivery goroutine.
type SessionEmitter interface {
	SessionStarted(ctx context.Context, status SessionStatus)
	SessionStopped(ctx context.Context, reason StopReason, status SessionStatus)
}

// AbortSink is the outbound command surface of the order-execution
// collaborator. Abort requests cancellation of all open orders for the
// session; it is invoked at most once per session per abort cause.
type AbortSink interface {
	Abort(ctx context.Context, sessionID string) error
}
