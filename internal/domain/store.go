package domain

import (
	"context"
	"time"
)

// OrderBook persists the hub's order-book state keyed by (marketID, user).
// Put overwrites any prior order under the same key; implementations must
// make each per-key write atomic.
type OrderBook interface {
	Put(ctx context.Context, order Order) error
	Get(ctx context.Context, key OrderKey) (Order, error)
	ListActive(ctx context.Context) ([]Order, error)
	ListByMarket(ctx context.Context, marketID int64) ([]Order, error)
	Cancel(ctx context.Context, key OrderKey) error
}

// MarketTracker is the durable set of already-resolved market identifiers.
// It is read fully at bot startup and written immediately after every
// confirmed settlement so a restart never repeats a settlement call.
type MarketTracker interface {
	Load(ctx context.Context) ([]TrackedMarket, error)
	IsResolved(ctx context.Context, marketID string) (bool, error)
	MarkResolved(ctx context.Context, res Resolution) error
}

// RateLimiter gates outbound oracle calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking for multi-replica deployments.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of relay and settlement events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Archiver uploads settled-market resolution records to cold storage.
type Archiver interface {
	ArchiveResolution(ctx context.Context, res Resolution) error
}
