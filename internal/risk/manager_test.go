package risk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tradeforge/riskmon/internal/domain"
)

// recordingSink counts collaborator abort commands per session.
type recordingSink struct {
	mu     sync.Mutex
	aborts []string
	err    error
}

func (r *recordingSink) Abort(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborts = append(r.aborts, sessionID)
	return r.err
}

func (r *recordingSink) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.aborts...)
}

// recordingEmitter captures lifecycle notifications.
type recordingEmitter struct {
	mu      sync.Mutex
	started []string
	stopped []domain.StopReason
}

func (r *recordingEmitter) SessionStarted(_ context.Context, status domain.SessionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, status.SessionID)
}

func (r *recordingEmitter) SessionStopped(_ context.Context, reason domain.StopReason, _ domain.SessionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = append(r.stopped, reason)
}

func (r *recordingEmitter) stops() []domain.StopReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.StopReason(nil), r.stopped...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sessionConfig() domain.SessionConfig {
	return domain.SessionConfig{
		Instrument:      "BTC-USD",
		Allocation:      dec("1000"),
		MaxPositionSize: dec("10"),
		InitialPrice:    dec("1000"),
		Watchers: []domain.WatcherSpec{
			{Kind: domain.WatcherStopLossPct, Threshold: dec("0.2")},
		},
	}
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	m := NewStrategyManager(&recordingSink{}, nil, testLogger())
	ctx := context.Background()

	cfg := sessionConfig()
	cfg.Allocation = dec("0")
	_, err := m.Start(ctx, "", cfg)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)

	cfg = sessionConfig()
	cfg.Watchers = []domain.WatcherSpec{{Kind: "bogus", Threshold: dec("1")}}
	_, err = m.Start(ctx, "", cfg)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)

	// No partial session was created.
	require.Empty(t, m.List())
}

func TestStartGeneratesIDAndRejectsDuplicates(t *testing.T) {
	m := NewStrategyManager(&recordingSink{}, nil, testLogger())
	ctx := context.Background()

	id, err := m.Start(ctx, "", sessionConfig())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = m.Start(ctx, id, sessionConfig())
	require.ErrorIs(t, err, domain.ErrSessionExists)
}

func TestFeedEventsAgainstUnknownSession(t *testing.T) {
	m := NewStrategyManager(&recordingSink{}, nil, testLogger())
	ctx := context.Background()

	err := m.FeedFill(ctx, "ghost", fill("1", "1000"))
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	err = m.FeedPrice(ctx, "ghost", dec("1000"))
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestWatcherAbortStopsSessionAndSignalsCollaborator(t *testing.T) {
	sink := &recordingSink{}
	emitter := &recordingEmitter{}
	m := NewStrategyManager(sink, emitter, testLogger())
	ctx := context.Background()

	id, err := m.Start(ctx, "s1", sessionConfig())
	require.NoError(t, err)

	require.NoError(t, m.FeedFill(ctx, id, fill("1", "1000")))

	st, err := m.Status(id)
	require.NoError(t, err)
	requireDec(t, "1", st.PositionSize)
	requireDec(t, "1000", st.AvgEntryPrice)

	// Loss ratio hits exactly 0.2: the watcher aborts the session.
	require.NoError(t, m.FeedPrice(ctx, id, dec("800")))

	require.Equal(t, []string{"s1"}, sink.calls())
	require.Equal(t, []domain.StopReason{domain.StopLossHit}, emitter.stops())

	_, err = m.Status(id)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	// Late events against the aborted session are a benign race.
	err = m.FeedPrice(ctx, id, dec("700"))
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	require.Equal(t, []string{"s1"}, sink.calls())
}

func TestAbortFiresOnceUnderRepeatedBreaches(t *testing.T) {
	sink := &recordingSink{}
	m := NewStrategyManager(sink, nil, testLogger())
	ctx := context.Background()

	cfg := sessionConfig()
	cfg.Watchers = append(cfg.Watchers, domain.WatcherSpec{
		Kind: domain.WatcherStopLossAbs, Threshold: dec("500"),
	})
	id, err := m.Start(ctx, "s1", cfg)
	require.NoError(t, err)

	require.NoError(t, m.FeedFill(ctx, id, fill("1", "1000")))

	// Breaches both watchers at once; siblings are closed before either can
	// fire a duplicate abort.
	require.NoError(t, m.FeedPrice(ctx, id, dec("100")))
	require.Equal(t, []string{"s1"}, sink.calls())
}

func TestStopIsIdempotent(t *testing.T) {
	sink := &recordingSink{}
	emitter := &recordingEmitter{}
	m := NewStrategyManager(sink, emitter, testLogger())
	ctx := context.Background()

	id, err := m.Start(ctx, "s1", sessionConfig())
	require.NoError(t, err)

	m.Stop(ctx, id)
	m.Stop(ctx, id)
	m.Stop(ctx, "never-existed")

	require.Empty(t, sink.calls(), "external stop must not signal the collaborator")
	require.Equal(t, []domain.StopReason{domain.StopRequested}, emitter.stops())
}

func TestStopAfterAbortIsNoOp(t *testing.T) {
	sink := &recordingSink{}
	emitter := &recordingEmitter{}
	m := NewStrategyManager(sink, emitter, testLogger())
	ctx := context.Background()

	id, err := m.Start(ctx, "s1", sessionConfig())
	require.NoError(t, err)
	require.NoError(t, m.FeedFill(ctx, id, fill("1", "1000")))
	require.NoError(t, m.FeedPrice(ctx, id, dec("700")))

	m.Stop(ctx, id)

	require.Equal(t, []string{"s1"}, sink.calls())
	require.Equal(t, []domain.StopReason{domain.StopLossHit}, emitter.stops())
}

func TestCollaboratorFailureDoesNotBlockStop(t *testing.T) {
	sink := &recordingSink{err: errors.New("engine unreachable")}
	emitter := &recordingEmitter{}
	m := NewStrategyManager(sink, emitter, testLogger())
	ctx := context.Background()

	id, err := m.Start(ctx, "s1", sessionConfig())
	require.NoError(t, err)
	require.NoError(t, m.FeedFill(ctx, id, fill("1", "1000")))
	require.NoError(t, m.FeedPrice(ctx, id, dec("100")))

	// Local state is authoritative: the session is gone despite the failure.
	_, err = m.Status(id)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	require.Equal(t, []domain.StopReason{domain.StopLossHit}, emitter.stops())
}

func TestInvalidFillKeepsSessionLive(t *testing.T) {
	m := NewStrategyManager(&recordingSink{}, nil, testLogger())
	ctx := context.Background()

	id, err := m.Start(ctx, "s1", sessionConfig())
	require.NoError(t, err)

	err = m.FeedFill(ctx, id, fill("11", "1000"))
	require.ErrorIs(t, err, domain.ErrInvalidFill)

	st, err := m.Status(id)
	require.NoError(t, err)
	requireDec(t, "0", st.PositionSize)
}

func TestStatusSnapshotIncludesWatcherStates(t *testing.T) {
	m := NewStrategyManager(&recordingSink{}, nil, testLogger())
	ctx := context.Background()

	cfg := sessionConfig()
	cfg.Watchers = append(cfg.Watchers, domain.WatcherSpec{
		Kind: domain.WatcherTakeProfitPct, Threshold: dec("0.5"),
	})
	id, err := m.Start(ctx, "s1", cfg)
	require.NoError(t, err)

	st, err := m.Status(id)
	require.NoError(t, err)
	require.Equal(t, "BTC-USD", st.Instrument)
	requireDec(t, "1000", st.CurrentPrice)
	require.Len(t, st.Watchers, 2)
	for _, w := range st.Watchers {
		require.Equal(t, domain.WatcherArmed, w.State)
	}
	require.False(t, st.StartedAt.IsZero())
}

func TestSessionsAreIsolated(t *testing.T) {
	sink := &recordingSink{}
	m := NewStrategyManager(sink, nil, testLogger())
	ctx := context.Background()

	a, err := m.Start(ctx, "a", sessionConfig())
	require.NoError(t, err)
	b, err := m.Start(ctx, "b", sessionConfig())
	require.NoError(t, err)

	require.NoError(t, m.FeedFill(ctx, a, fill("1", "1000")))
	require.NoError(t, m.FeedFill(ctx, b, fill("2", "1000")))

	// Abort only session a.
	require.NoError(t, m.FeedPrice(ctx, a, dec("100")))
	require.Equal(t, []string{"a"}, sink.calls())

	st, err := m.Status(b)
	require.NoError(t, err)
	requireDec(t, "2", st.PositionSize)
	requireDec(t, "1000", st.CurrentPrice)
}

func TestConcurrentEventsAcrossSessions(t *testing.T) {
	m := NewStrategyManager(&recordingSink{}, nil, testLogger())
	ctx := context.Background()

	ids := []string{"s1", "s2", "s3", "s4"}
	for _, id := range ids {
		cfg := sessionConfig()
		cfg.MaxPositionSize = dec("10000")
		// A wide absolute stop keeps the session live under the churn below.
		cfg.Watchers = []domain.WatcherSpec{
			{Kind: domain.WatcherStopLossAbs, Threshold: dec("1000000")},
		}
		_, err := m.Start(ctx, id, cfg)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					_ = m.FeedFill(ctx, id, fill("1", "1000"))
					_ = m.FeedPrice(ctx, id, dec("999"))
					_ = m.FeedPrice(ctx, id, dec("1001"))
				}
			}(id)
		}
	}
	wg.Wait()

	for _, id := range ids {
		st, err := m.Status(id)
		require.NoError(t, err)
		requireDec(t, "200", st.PositionSize)
	}
}

func TestStopDuringConcurrentUpdates(t *testing.T) {
	m := NewStrategyManager(&recordingSink{}, nil, testLogger())
	ctx := context.Background()

	id, err := m.Start(ctx, "s1", sessionConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = m.FeedPrice(ctx, id, dec("999"))
			_ = m.FeedPrice(ctx, id, dec("1001"))
		}
	}()

	m.Stop(ctx, id)
	wg.Wait()

	_, err = m.Status(id)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestStopAllUsesShutdownReason(t *testing.T) {
	emitter := &recordingEmitter{}
	m := NewStrategyManager(&recordingSink{}, emitter, testLogger())
	ctx := context.Background()

	_, err := m.Start(ctx, "a", sessionConfig())
	require.NoError(t, err)
	_, err = m.Start(ctx, "b", sessionConfig())
	require.NoError(t, err)

	m.StopAll(ctx)
	require.Empty(t, m.List())
	require.Equal(t, []domain.StopReason{domain.StopShutdown, domain.StopShutdown}, emitter.stops())
}
