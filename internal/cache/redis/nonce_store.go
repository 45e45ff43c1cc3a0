package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// NonceStore records signed request nonces with SETNX so a captured request
// is accepted once across every daemon sharing the Redis instance.
type NonceStore struct {
	rdb *redis.Client
}

// NewNonceStore creates a NonceStore backed by the given Client.
func NewNonceStore(c *Client) *NonceStore {
	return &NonceStore{rdb: c.Underlying()}
}

func nonceKey(key string) string {
	return "nonce:" + key
}

// Claim stores key for ttl and reports whether it was new.
func (ns *NonceStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("redis: claim nonce %s: ttl %s: %w", key, ttl, domain.ErrInvalidArgument)
	}
	ok, err := ns.rdb.SetNX(ctx, nonceKey(key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim nonce %s: %w", key, err)
	}
	return ok, nil
}

var _ domain.NonceStore = (*NonceStore)(nil)
