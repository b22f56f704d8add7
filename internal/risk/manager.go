package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradeforge/riskmon/internal/domain"
)

// session bundles one live strategy's price feed, performance manager, and
// watchers. Sessions share no mutable state; mu serializes every fill, price
// tick, stop, and status read for this session.
type session struct {
	mu sync.Mutex

	id        string
	cfg       domain.SessionConfig
	feed      *PriceFeed
	perf      *PerformanceManager
	watchers  []Watcher
	startedAt time.Time

	stopped bool
	// abortReason is set by a watcher's abort callback while the update
	// chain is still running; the manager finalizes (collaborator abort,
	// events, removal) after the chain returns.
	abortReason domain.StopReason
}

// stopLocked tears the session down in place: every watcher is closed and
// the performance manager unsubscribed before the method returns, so no
// watcher callback can fire afterwards. Callers hold s.mu.
func (s *session) stopLocked() {
	if s.stopped {
		return
	}
	s.stopped = true
	for _, w := range s.watchers {
		w.Close()
	}
	s.perf.Close()
}

// statusLocked snapshots the session. Callers hold s.mu.
func (s *session) statusLocked() domain.SessionStatus {
	watchers := make([]domain.WatcherStatus, 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, domain.WatcherStatus{
			Kind:      w.Kind(),
			Threshold: w.Threshold(),
			State:     w.State(),
		})
	}
	return domain.SessionStatus{
		SessionID:       s.id,
		Instrument:      s.cfg.Instrument,
		CurrentPrice:    s.feed.Current(),
		PositionSize:    s.perf.PositionSize(),
		AvgEntryPrice:   s.perf.AvgEntryPrice(),
		RealizedPnL:     s.perf.RealizedPnL(),
		UnrealizedPnL:   s.perf.UnrealizedPnL(),
		TotalPnL:        s.perf.TotalPnL(),
		AllocationUsage: s.perf.AllocationUsage(),
		Watchers:        watchers,
		StartedAt:       s.startedAt,
	}
}

// StrategyManager owns the set of currently running sessions, wires their
// components at start, forwards external fill/price events, and guarantees
// full teardown on stop. It is safe for concurrent use across sessions.
type StrategyManager struct {
	mu       sync.RWMutex
	sessions map[string]*session

	aborts  domain.AbortSink
	emitter domain.SessionEmitter
	logger  *slog.Logger
}

// NewStrategyManager creates a manager. The abort sink is the external
// order-execution collaborator; emitter may be nil when no lifecycle fan-out
// is wanted.
func NewStrategyManager(aborts domain.AbortSink, emitter domain.SessionEmitter, logger *slog.Logger) *StrategyManager {
	return &StrategyManager{
		sessions: make(map[string]*session),
		aborts:   aborts,
		emitter:  emitter,
		logger:   logger.With(slog.String("component", "strategy_manager")),
	}
}

// Start validates cfg, wires a new session, and registers it. If sessionID
// is empty a UUID is generated. The returned ID identifies the live session;
// price and fill events may arrive for it as soon as Start returns. On any
// configuration error no partial session is created.
func (m *StrategyManager) Start(ctx context.Context, sessionID string, cfg domain.SessionConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	feed := NewPriceFeed(cfg.InitialPrice)
	perf, err := NewPerformanceManager(feed, PerformanceConfig{
		Allocation:      cfg.Allocation,
		MaxPositionSize: cfg.MaxPositionSize,
	})
	if err != nil {
		return "", err
	}

	s := &session{
		id:        sessionID,
		cfg:       cfg,
		feed:      feed,
		perf:      perf,
		startedAt: time.Now().UTC(),
	}

	for _, spec := range cfg.Watchers {
		reason := stopReason(spec.Kind)
		w, err := NewWatcher(spec, perf, func() {
			// Runs inside the serialized update chain: tear down in place so
			// no sibling watcher or later price tick can fire again, and let
			// the event entry point finalize once the chain unwinds.
			s.abortReason = reason
			s.stopLocked()
		})
		if err != nil {
			perf.Close()
			return "", err
		}
		s.watchers = append(s.watchers, w)
	}

	m.mu.Lock()
	if _, exists := m.sessions[sessionID]; exists {
		m.mu.Unlock()
		perf.Close()
		for _, w := range s.watchers {
			w.Close()
		}
		return "", fmt.Errorf("%w: %s", domain.ErrSessionExists, sessionID)
	}
	m.sessions[sessionID] = s
	m.mu.Unlock()

	m.logger.Info("session started",
		slog.String("session_id", sessionID),
		slog.String("instrument", cfg.Instrument),
		slog.String("allocation", cfg.Allocation.String()),
		slog.Int("watchers", len(s.watchers)),
	)
	if m.emitter != nil {
		s.mu.Lock()
		status := s.statusLocked()
		s.mu.Unlock()
		m.emitter.SessionStarted(ctx, status)
	}
	return sessionID, nil
}

// FeedFill forwards a fill event to the session's performance manager. It
// returns domain.ErrSessionNotFound for unknown or already-stopped sessions
// so callers can treat late events as a benign race, and domain.ErrInvalidFill
// when the fill is rejected (the session stays live).
func (m *StrategyManager) FeedFill(ctx context.Context, sessionID string, fill domain.Fill) error {
	s := m.lookup(sessionID)
	if s == nil {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	err := s.perf.AddOrder(fill)
	aborted := s.stopped
	reason := s.abortReason
	s.mu.Unlock()

	if aborted {
		m.finalizeAbort(ctx, s, reason)
	}
	return err
}

// FeedPrice forwards a price tick to the session's price feed, driving the
// synchronous recompute-and-evaluate chain. Unknown or stopped sessions
// yield domain.ErrSessionNotFound, a benign race by contract.
func (m *StrategyManager) FeedPrice(ctx context.Context, sessionID string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("%w: price must be positive, got %s", domain.ErrInvalidFill, price)
	}
	s := m.lookup(sessionID)
	if s == nil {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	s.feed.Update(price)
	aborted := s.stopped
	reason := s.abortReason
	s.mu.Unlock()

	if aborted {
		m.finalizeAbort(ctx, s, reason)
	}
	return nil
}

// Stop tears down a session on external request. It is idempotent: stopping
// an unknown or already-stopped session is a no-op, tolerating the race
// between an external stop and a watcher-triggered self-abort. No watcher
// callback can fire after Stop returns.
func (m *StrategyManager) Stop(ctx context.Context, sessionID string) {
	m.StopWithReason(ctx, sessionID, domain.StopRequested)
}

// StopWithReason is Stop with an explicit reason recorded in the lifecycle
// event (e.g. host shutdown).
func (m *StrategyManager) StopWithReason(ctx context.Context, sessionID string, reason domain.StopReason) {
	s := m.lookup(sessionID)
	if s == nil {
		return
	}

	s.mu.Lock()
	if s.stopped {
		// A watcher abort is racing us; its finalizer removes the session.
		s.mu.Unlock()
		return
	}
	s.stopLocked()
	status := s.statusLocked()
	s.mu.Unlock()

	m.remove(sessionID)
	m.logger.Info("session stopped",
		slog.String("session_id", sessionID),
		slog.String("reason", string(reason)),
		slog.String("realized_pnl", status.RealizedPnL.String()),
	)
	if m.emitter != nil {
		m.emitter.SessionStopped(ctx, reason, status)
	}
}

// finalizeAbort completes a watcher-triggered teardown after the update
// chain has unwound: it removes the session, signals the execution
// collaborator to cancel outstanding orders, and emits the lifecycle event.
// A collaborator failure is reported as a warning; local state is
// authoritative and the session is already stopped.
func (m *StrategyManager) finalizeAbort(ctx context.Context, s *session, reason domain.StopReason) {
	m.remove(s.id)

	s.mu.Lock()
	status := s.statusLocked()
	s.mu.Unlock()

	m.logger.Info("session aborted by watcher",
		slog.String("session_id", s.id),
		slog.String("reason", string(reason)),
		slog.String("total_pnl", status.TotalPnL.String()),
	)

	if m.aborts != nil {
		if err := m.aborts.Abort(ctx, s.id); err != nil {
			m.logger.Warn("collaborator abort failed, session stopped locally",
				slog.String("session_id", s.id),
				slog.String("error", err.Error()),
			)
		}
	}
	if m.emitter != nil {
		m.emitter.SessionStopped(ctx, reason, status)
	}
}

// Status returns a snapshot of the session or domain.ErrSessionNotFound.
func (m *StrategyManager) Status(sessionID string) (domain.SessionStatus, error) {
	s := m.lookup(sessionID)
	if s == nil {
		return domain.SessionStatus{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return domain.SessionStatus{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return s.statusLocked(), nil
}

// List snapshots every live session.
func (m *StrategyManager) List() []domain.SessionStatus {
	m.mu.RLock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	statuses := make([]domain.SessionStatus, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		if !s.stopped {
			statuses = append(statuses, s.statusLocked())
		}
		s.mu.Unlock()
	}
	return statuses
}

// StopAll stops every live session, used on host shutdown.
func (m *StrategyManager) StopAll(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.StopWithReason(ctx, id, domain.StopShutdown)
	}
}

func (m *StrategyManager) lookup(sessionID string) *session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

func (m *StrategyManager) remove(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}
