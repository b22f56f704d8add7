// Package executor delivers abort commands to the execution engine when a
// session is torn down.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/tradeforge/riskmon/internal/platform/engine"
)

// aborter is the transport an EngineSink sends commands through.
type aborter interface {
	Abort(ctx context.Context, sessionID string) error
}

// EngineSink sends abort commands over the engine control socket. Duplicate
// commands for the same session within the dedup window are suppressed, so a
// watcher abort racing an operator abort reaches the engine once.
type EngineSink struct {
	client aborter
	dedup  *Dedup
	logger *slog.Logger
}

// NewEngineSink creates a sink that dials controlURL lazily on the first
// abort.
func NewEngineSink(controlURL, authToken string, logger *slog.Logger) *EngineSink {
	return newEngineSink(engine.NewControlClient(controlURL, authToken), logger)
}

func newEngineSink(client aborter, logger *slog.Logger) *EngineSink {
	return &EngineSink{
		client: client,
		dedup:  NewDedup(2 * time.Minute),
		logger: logger.With(slog.String("component", "engine_sink")),
	}
}

// Abort implements domain.AbortSink.
func (s *EngineSink) Abort(ctx context.Context, sessionID string) error {
	if s.dedup.IsDuplicate(sessionID) {
		s.logger.Debug("duplicate abort suppressed", slog.String("session_id", sessionID))
		return nil
	}

	if err := s.client.Abort(ctx, sessionID); err != nil {
		s.dedup.Forget(sessionID)
		return err
	}
	s.logger.Info("abort delivered", slog.String("session_id", sessionID))
	return nil
}

// Close releases the underlying control connection.
func (s *EngineSink) Close() error {
	if c, ok := s.client.(*engine.ControlClient); ok {
		return c.Close()
	}
	return nil
}

// LocalSink is the abort sink used when no control socket is configured.
// Session teardown stays local and the abort is only recorded in the log.
type LocalSink struct {
	logger *slog.Logger
}

// NewLocalSink creates a LocalSink.
func NewLocalSink(logger *slog.Logger) *LocalSink {
	return &LocalSink{logger: logger.With(slog.String("component", "local_sink"))}
}

// Abort implements domain.AbortSink.
func (s *LocalSink) Abort(_ context.Context, sessionID string) error {
	s.logger.Info("abort recorded locally, no engine control socket configured",
		slog.String("session_id", sessionID),
	)
	return nil
}
