package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/tradeforge/riskmon/internal/domain"
)

// Bus channels. The WebSocket hub and any external consumers subscribe to
// these.
const (
	lifecycleChannel    = "sessions:lifecycle"
	statusChannelPrefix = "sessions:status:"
)

// multiEmitter fans a lifecycle event out to every registered emitter.
type multiEmitter struct {
	emitters []domain.SessionEmitter
}

func newMultiEmitter(emitters ...domain.SessionEmitter) *multiEmitter {
	return &multiEmitter{emitters: emitters}
}

func (m *multiEmitter) SessionStarted(ctx context.Context, status domain.SessionStatus) {
	for _, e := range m.emitters {
		e.SessionStarted(ctx, status)
	}
}

func (m *multiEmitter) SessionStopped(ctx context.Context, reason domain.StopReason, status domain.SessionStatus) {
	for _, e := range m.emitters {
		e.SessionStopped(ctx, reason, status)
	}
}

// lifecycleMessage is the JSON envelope published on the lifecycle channel.
type lifecycleMessage struct {
	Event     string               `json:"event"`
	Reason    string               `json:"reason,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
	Session   domain.SessionStatus `json:"session"`
}

// busEmitter publishes lifecycle events to the signal bus so WebSocket
// clients and other monitor instances see them live.
type busEmitter struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

func newBusEmitter(bus domain.SignalBus, logger *slog.Logger) *busEmitter {
	return &busEmitter{bus: bus, logger: logger.With(slog.String("component", "bus_emitter"))}
}

func (b *busEmitter) SessionStarted(ctx context.Context, status domain.SessionStatus) {
	b.publish(ctx, lifecycleMessage{
		Event:     domain.EventSessionStarted,
		Timestamp: time.Now().UTC(),
		Session:   status,
	})
}

func (b *busEmitter) SessionStopped(ctx context.Context, reason domain.StopReason, status domain.SessionStatus) {
	b.publish(ctx, lifecycleMessage{
		Event:     domain.EventSessionStopped,
		Reason:    string(reason),
		Timestamp: time.Now().UTC(),
		Session:   status,
	})
}

func (b *busEmitter) publish(ctx context.Context, msg lifecycleMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.ErrorContext(ctx, "marshal lifecycle message", slog.String("error", err.Error()))
		return
	}
	if err := b.bus.Publish(ctx, lifecycleChannel, payload); err != nil {
		b.logger.WarnContext(ctx, "publish lifecycle message",
			slog.String("session_id", msg.Session.SessionID),
			slog.String("error", err.Error()),
		)
	}
}

// cacheEmitter mirrors the latest session snapshot in Redis on start and
// drops it on stop so the status cache never serves dead sessions.
type cacheEmitter struct {
	cache  domain.StatusCache
	logger *slog.Logger
}

func newCacheEmitter(cache domain.StatusCache, logger *slog.Logger) *cacheEmitter {
	return &cacheEmitter{cache: cache, logger: logger.With(slog.String("component", "cache_emitter"))}
}

func (c *cacheEmitter) SessionStarted(ctx context.Context, status domain.SessionStatus) {
	if err := c.cache.SetStatus(ctx, status); err != nil {
		c.logger.WarnContext(ctx, "mirror session status",
			slog.String("session_id", status.SessionID),
			slog.String("error", err.Error()),
		)
	}
}

func (c *cacheEmitter) SessionStopped(ctx context.Context, _ domain.StopReason, status domain.SessionStatus) {
	if err := c.cache.Invalidate(ctx, status.SessionID); err != nil {
		c.logger.WarnContext(ctx, "invalidate session status",
			slog.String("session_id", status.SessionID),
			slog.String("error", err.Error()),
		)
	}
}

// journalEmitter appends lifecycle events to the persistent session journal.
// The final snapshot figures go into Detail as strings so decimal values stay
// exact.
type journalEmitter struct {
	journal domain.SessionJournal
	logger  *slog.Logger
}

func newJournalEmitter(journal domain.SessionJournal, logger *slog.Logger) *journalEmitter {
	return &journalEmitter{journal: journal, logger: logger.With(slog.String("component", "journal_emitter"))}
}

func (j *journalEmitter) SessionStarted(ctx context.Context, status domain.SessionStatus) {
	j.log(ctx, domain.JournalEntry{
		SessionID: status.SessionID,
		Event:     domain.EventSessionStarted,
		Detail:    statusDetail(status),
	})
}

func (j *journalEmitter) SessionStopped(ctx context.Context, reason domain.StopReason, status domain.SessionStatus) {
	j.log(ctx, domain.JournalEntry{
		SessionID: status.SessionID,
		Event:     domain.EventSessionStopped,
		Reason:    string(reason),
		Detail:    statusDetail(status),
	})
}

func (j *journalEmitter) log(ctx context.Context, entry domain.JournalEntry) {
	if err := j.journal.Log(ctx, entry); err != nil {
		j.logger.WarnContext(ctx, "journal lifecycle event",
			slog.String("session_id", entry.SessionID),
			slog.String("event", entry.Event),
			slog.String("error", err.Error()),
		)
	}
}

func statusDetail(status domain.SessionStatus) map[string]any {
	return map[string]any{
		"instrument":     status.Instrument,
		"position_size":  status.PositionSize.String(),
		"avg_entry":      status.AvgEntryPrice.String(),
		"current_price":  status.CurrentPrice.String(),
		"realized_pnl":   status.RealizedPnL.String(),
		"unrealized_pnl": status.UnrealizedPnL.String(),
		"total_pnl":      status.TotalPnL.String(),
	}
}
