package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeAborter struct {
	calls []string
	err   error
}

func (f *fakeAborter) Abort(_ context.Context, sessionID string) error {
	f.calls = append(f.calls, sessionID)
	return f.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEngineSinkDeliversOncePerSession(t *testing.T) {
	client := &fakeAborter{}
	sink := newEngineSink(client, discard())
	ctx := context.Background()

	require.NoError(t, sink.Abort(ctx, "s1"))
	require.NoError(t, sink.Abort(ctx, "s1"))
	require.NoError(t, sink.Abort(ctx, "s2"))
	require.Equal(t, []string{"s1", "s2"}, client.calls)
}

func TestEngineSinkPropagatesTransportErrors(t *testing.T) {
	client := &fakeAborter{err: errors.New("engine unreachable")}
	sink := newEngineSink(client, discard())

	err := sink.Abort(context.Background(), "s1")
	require.Error(t, err)

	// A failed delivery does not count against the dedup window.
	client.err = nil
	require.NoError(t, sink.Abort(context.Background(), "s1"))
	require.Equal(t, []string{"s1", "s1"}, client.calls)
}

func TestLocalSinkAlwaysSucceeds(t *testing.T) {
	sink := NewLocalSink(discard())
	require.NoError(t, sink.Abort(context.Background(), "s1"))
}

func TestDedupExpiry(t *testing.T) {
	d := NewDedup(10 * time.Millisecond)
	require.False(t, d.IsDuplicate("s1"))
	require.True(t, d.IsDuplicate("s1"))

	time.Sleep(15 * time.Millisecond)
	require.False(t, d.IsDuplicate("s1"))

	d.Cleanup()
}
