package domain

import (
	"context"
	"time"
)

// RateLimiter counts requests per key in a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager hands out expiring named locks. Acquire fails with
// ErrLockHeld while another holder owns key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one stream entry; ID is the broker-assigned position.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries journal events out of the core: pub/sub for live
// subscribers and an append-only stream the indexer can replay from "0".
// StreamRead never blocks and returns entries after lastID.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// NonceStore remembers signed request nonces. Claim reports false when key
// was already claimed and has not yet expired.
type NonceStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
