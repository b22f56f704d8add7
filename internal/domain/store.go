package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// JournalEntry is a single session lifecycle record. Detail carries the final
// snapshot figures as strings to keep decimal values exact.
type JournalEntry struct {
	ID        int64
	SessionID string
	Event     string
	Reason    string
	Detail    map[string]any
	CreatedAt time.Time
}

// SessionJournal persists an append-only log of session lifecycle events.
// Tick-by-tick performance history is deliberately not stored.
type SessionJournal interface {
	Log(ctx context.Context, entry JournalEntry) error
	List(ctx context.Context, sessionID string, opts ListOpts) ([]JournalEntry, error)
}
