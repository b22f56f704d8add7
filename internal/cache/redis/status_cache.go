package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradeforge/riskmon/internal/domain"
)

// statusTTL bounds how long a stale snapshot survives when the monitor stops
// refreshing it.
const statusTTL = time.Hour

// StatusCache implements domain.StatusCache using JSON-serialized session
// snapshots at key "session:status:{sessionID}".
type StatusCache struct {
	rdb *redis.Client
}

// NewStatusCache creates a StatusCache backed by the given Client.
func NewStatusCache(c *Client) *StatusCache {
	return &StatusCache{rdb: c.Underlying()}
}

func statusKey(sessionID string) string {
	return "session:status:" + sessionID
}

// SetStatus stores a session snapshot, replacing any previous one.
func (sc *StatusCache) SetStatus(ctx context.Context, status domain.SessionStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("redis: marshal status %s: %w", status.SessionID, err)
	}
	if err := sc.rdb.Set(ctx, statusKey(status.SessionID), data, statusTTL).Err(); err != nil {
		return fmt.Errorf("redis: set status %s: %w", status.SessionID, err)
	}
	return nil
}

// GetStatus retrieves the last mirrored snapshot for a session. It returns
// domain.ErrNotFound when no snapshot exists.
func (sc *StatusCache) GetStatus(ctx context.Context, sessionID string) (domain.SessionStatus, error) {
	data, err := sc.rdb.Get(ctx, statusKey(sessionID)).Bytes()
	if err == redis.Nil {
		return domain.SessionStatus{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SessionStatus{}, fmt.Errorf("redis: get status %s: %w", sessionID, err)
	}

	var status domain.SessionStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return domain.SessionStatus{}, fmt.Errorf("redis: unmarshal status %s: %w", sessionID, err)
	}
	return status, nil
}

// Invalidate removes a session's snapshot after it stops.
func (sc *StatusCache) Invalidate(ctx context.Context, sessionID string) error {
	if err := sc.rdb.Del(ctx, statusKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate status %s: %w", sessionID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.StatusCache = (*StatusCache)(nil)
