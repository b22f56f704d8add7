package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache mirrors the latest instrument price per session for the hosting
// application.
type PriceCache interface {
	SetPrice(ctx context.Context, sessionID string, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, sessionID string) (decimal.Decimal, time.Time, error)
}

// StatusCache mirrors session status snapshots for the hosting application.
type StatusCache interface {
	SetStatus(ctx context.Context, status SessionStatus) error
	GetStatus(ctx context.Context, sessionID string) (SessionStatus, error)
	Invalidate(ctx context.Context, sessionID string) error
}

// SignalBus provides pub/sub fan-out of lifecycle and status events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LockManager provides distributed locks so only one monitor instance runs
// an exclusive task (e.g. schema migrations) at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter limits request rates per key across monitor instances.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
