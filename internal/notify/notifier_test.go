package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/riskmon/internal/domain"
)

type fakeSender struct {
	name   string
	titles []string
	err    error
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.titles = append(f.titles, title)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByEvent(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{domain.EventSessionStopped}, discardLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, domain.EventSessionStarted, "started", "body"))
	require.NoError(t, n.Notify(ctx, domain.EventSessionStopped, "stopped", "body"))
	require.Equal(t, []string{"stopped"}, s.titles)
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	require.Len(t, s.titles, 1)
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("boom")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	require.Len(t, good.titles, 1)
}

func TestSessionNotifierFormatsLifecycle(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewSessionNotifier(NewNotifier([]Sender{s}, nil, discardLogger()))
	ctx := context.Background()

	status := domain.SessionStatus{
		SessionID:    "s1",
		Instrument:   "BTC-USD",
		CurrentPrice: decimal.RequireFromString("1000"),
	}
	n.SessionStarted(ctx, status)
	n.SessionStopped(ctx, domain.StopLossHit, status)

	require.Len(t, s.titles, 2)
	require.Contains(t, s.titles[0], "s1")
	require.Contains(t, s.titles[1], "stop_loss")
}
