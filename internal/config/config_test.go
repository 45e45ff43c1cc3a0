package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
mode = "full"
log_level = "debug"

[auction]
administrator = "0x1111111111111111111111111111111111111111"
auditor = "0x2222222222222222222222222222222222222222"
total_supply = 1000000
start_time = 2025-03-01T00:00:00Z
bidding = "24h"
reveal = "12h"
claim = "720h"

[redis]
addr = "localhost:6379"

[server]
port = 9000
max_clock_skew = "2m"

[indexer]
private_key = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func validConfig() Config {
	cfg := Defaults()
	cfg.Auction.Administrator = "0x1111111111111111111111111111111111111111"
	cfg.Auction.Auditor = "0x2222222222222222222222222222222222222222"
	cfg.Auction.TotalSupply = 100
	cfg.Auction.StartTime = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return cfg
}

func TestLoadMergesOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), cfg.Auction.AdministratorAddress())
	assert.Equal(t, uint64(1000000), cfg.Auction.TotalSupply)
	assert.True(t, cfg.Auction.StartTime.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 24*time.Hour, cfg.Auction.Bidding.Duration)
	assert.Equal(t, 12*time.Hour, cfg.Auction.Reveal.Duration)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Server.MaxClockSkew.Duration)

	// untouched sections keep their defaults
	assert.True(t, cfg.Auction.EnforceInvestorOrder)
	assert.Equal(t, 500, cfg.Indexer.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Relay.FlushInterval.Duration)
	assert.False(t, cfg.Database.Enabled())
	assert.False(t, cfg.S3.Enabled())

	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AUCTIOND_AUCTION_TOTAL_SUPPLY", "42")
	t.Setenv("AUCTIOND_AUCTION_START_TIME", "2026-01-02T03:04:05Z")
	t.Setenv("AUCTIOND_AUCTION_ENFORCE_INVESTOR_ORDER", "false")
	t.Setenv("AUCTIOND_SERVER_CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("AUCTIOND_RELAY_FLUSH_INTERVAL", "750ms")
	t.Setenv("AUCTIOND_SERVER_PORT", "not-a-number")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, uint64(42), cfg.Auction.TotalSupply)
	assert.True(t, cfg.Auction.StartTime.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.False(t, cfg.Auction.EnforceInvestorOrder)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 750*time.Millisecond, cfg.Relay.FlushInterval.Duration)
	assert.Equal(t, 9000, cfg.Server.Port, "unparseable override is ignored")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid serve", mutate: func(*Config) {}},
		{
			name:    "bad mode",
			mutate:  func(c *Config) { c.Mode = "trade" },
			wantErr: `unknown mode "trade"`,
		},
		{
			name:    "bad administrator",
			mutate:  func(c *Config) { c.Auction.Administrator = "alice" },
			wantErr: "auction: administrator must be a hex address",
		},
		{
			name:    "zero supply",
			mutate:  func(c *Config) { c.Auction.TotalSupply = 0 },
			wantErr: "auction: total_supply must be > 0",
		},
		{
			name:    "missing start",
			mutate:  func(c *Config) { c.Auction.StartTime = time.Time{} },
			wantErr: "auction: start_time is required",
		},
		{
			name:    "zero reveal",
			mutate:  func(c *Config) { c.Auction.Reveal.Duration = 0 },
			wantErr: "durations must be > 0",
		},
		{
			name:    "rate window missing",
			mutate:  func(c *Config) { c.Server.RateWindow.Duration = 0 },
			wantErr: "server: rate_window must be > 0",
		},
		{
			name:    "full needs redis",
			mutate:  func(c *Config) { c.Mode = "full"; c.Indexer.PrivateKey = "ab" },
			wantErr: "redis: addr is required for mode full",
		},
		{
			name: "index needs api url and key",
			mutate: func(c *Config) {
				c.Mode = "index"
				c.Redis.Addr = "localhost:6379"
			},
			wantErr: "indexer: api_url is required",
		},
		{
			name: "index skips auction section",
			mutate: func(c *Config) {
				c.Mode = "index"
				c.Auction = AuctionConfig{}
				c.Redis.Addr = "localhost:6379"
				c.Indexer.APIURL = "http://auctiond:8000"
				c.Indexer.EncryptedKeyPath = "/keys/admin.json"
				c.Indexer.KeyPassword = "pw"
			},
		},
		{
			name: "encrypted key needs password",
			mutate: func(c *Config) {
				c.Mode = "full"
				c.Redis.Addr = "localhost:6379"
				c.Indexer.EncryptedKeyPath = "/keys/admin.json"
			},
			wantErr: "indexer: key_password is required",
		},
		{
			name: "database pool bounds",
			mutate: func(c *Config) {
				c.Database.Host = "db"
				c.Database.PoolMinConns = 20
			},
			wantErr: "database: pool_min_conns must be between",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"log_level", "administrator", "auditor", "total_supply", "start_time"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Keys.PrivateKey = "deadbeef"
	cfg.Database.Password = "hunter2"
	cfg.S3.SecretKey = "s3cret"
	cfg.Indexer.KeyPassword = "pw"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Keys.PrivateKey)
	assert.Equal(t, "***", out.Database.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Indexer.KeyPassword)
	assert.Empty(t, out.S3.AccessKey, "empty secrets stay empty")
	assert.Equal(t, cfg.Auction.Administrator, out.Auction.Administrator)

	out.Server.CORSOrigins[0] = "mutated"
	assert.Equal(t, "http://localhost:3000", cfg.Server.CORSOrigins[0])
	assert.Equal(t, "hunter2", cfg.Database.Password)
}
