package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

func TestOptions(t *testing.T) {
	opts := options(ClientConfig{Addr: "redis:6379", DB: 2, PoolSize: 7, MaxRetries: 1})
	assert.Equal(t, "redis:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, clientName, opts.ClientName)
	assert.Nil(t, opts.TLSConfig)

	opts = options(ClientConfig{Addr: "redis:6380", TLSEnabled: true})
	require.NotNil(t, opts.TLSConfig)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "lock:indexer:load", lockKey("indexer:load"))
	assert.Equal(t, "ratelimit:api:ip:10.0.0.1", rateLimitKey("api:ip:10.0.0.1"))
	assert.Equal(t, "nonce:0xabc:n1", nonceKey("0xabc:n1"))
}

func TestWindowAllowed(t *testing.T) {
	ok, err := windowAllowed("k", []int64{1, 3})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = windowAllowed("k", []int64{0, 5})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = windowAllowed("k", []int64{1})
	require.Error(t, err)
}

func TestAllowRejectsBadLimits(t *testing.T) {
	rl := &RateLimiter{now: time.Now}
	_, err := rl.Allow(context.Background(), "k", 0, time.Minute)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = rl.Allow(context.Background(), "k", 5, 0)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestNonceClaimRejectsBadTTL(t *testing.T) {
	ns := &NonceStore{}
	_, err := ns.Claim(context.Background(), "k", 0)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestHasPattern(t *testing.T) {
	assert.False(t, hasPattern("ch:auction"))
	assert.True(t, hasPattern("ch:*"))
}
