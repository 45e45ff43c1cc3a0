// Package config defines the top-level configuration for the auction daemon
// and provides validation helpers.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AUCTIOND_* environment variables.
type Config struct {
	Auction  AuctionConfig  `toml:"auction"`
	Keys     KeysConfig     `toml:"keys"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Relay    RelayConfig    `toml:"relay"`
	Indexer  IndexerConfig  `toml:"indexer"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// AuctionConfig is the deployment-time description of the auction.
type AuctionConfig struct {
	// Administrator owns every share at start and runs the admin operations.
	Administrator string `toml:"administrator"`
	// Auditor is the only address allowed to manage certifying authorities.
	Auditor     string    `toml:"auditor"`
	TotalSupply uint64    `toml:"total_supply"`
	StartTime   time.Time `toml:"start_time"`
	Bidding     duration  `toml:"bidding"`
	Reveal      duration  `toml:"reveal"`
	Claim       duration  `toml:"claim"`
	// EnforceInvestorOrder rejects investor lists that break the ranking at
	// load time. Membership is always checked.
	EnforceInvestorOrder bool `toml:"enforce_investor_order"`
}

// AdministratorAddress parses Administrator.
func (a AuctionConfig) AdministratorAddress() common.Address {
	return common.HexToAddress(a.Administrator)
}

// AuditorAddress parses Auditor.
func (a AuctionConfig) AuditorAddress() common.Address {
	return common.HexToAddress(a.Auditor)
}

// KeysConfig locates the signing key auctionctl uses.
type KeysConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// DatabaseConfig holds PostgreSQL connection parameters. Leaving both DSN
// and Host empty runs the daemon without persistence.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// Enabled reports whether a database is configured.
func (d DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(d.DSN) != "" || d.Host != ""
}

// RedisConfig holds Redis connection parameters. An empty Addr disables the
// event stream, websocket feed, rate limiting and the indexer lock.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int    `toml:"stream_max_len"`
}

// Enabled reports whether Redis is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// S3Config holds S3-compatible object storage parameters. An empty Bucket
// disables report archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Enabled reports whether object storage is configured.
func (s S3Config) Enabled() bool { return s.Bucket != "" }

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port         int      `toml:"port"`
	CORSOrigins  []string `toml:"cors_origins"`
	MaxClockSkew duration `toml:"max_clock_skew"`
	// RateLimit is requests per RateWindow per caller; zero disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// RelayConfig controls the journal outbox loop.
type RelayConfig struct {
	FlushInterval duration `toml:"flush_interval"`
}

// IndexerConfig controls the off-core indexer.
type IndexerConfig struct {
	// APIURL is the daemon the indexer submits the investor list to. In
	// full mode it defaults to the local server.
	APIURL        string   `toml:"api_url"`
	LockTTL       duration `toml:"lock_ttl"`
	SettleDelay   duration `toml:"settle_delay"`
	BatchSize     int      `toml:"batch_size"`
	RetryInterval duration `toml:"retry_interval"`
	// The administrator key the indexer signs LoadInvestors with.
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Auction: AuctionConfig{
			Bidding:              duration{72 * time.Hour},
			Reveal:               duration{48 * time.Hour},
			Claim:                duration{30 * 24 * time.Hour},
			EnforceInvestorOrder: true,
		},
		Database: DatabaseConfig{
			Port:          5432,
			Database:      "auction",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 100000,
		},
		S3: S3Config{
			Region:         "us-east-1",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			MaxClockSkew: duration{5 * time.Minute},
			RateLimit:    120,
			RateWindow:   duration{time.Minute},
		},
		Relay: RelayConfig{
			FlushInterval: duration{2 * time.Second},
		},
		Indexer: IndexerConfig{
			LockTTL:       duration{2 * time.Minute},
			SettleDelay:   duration{30 * time.Second},
			BatchSize:     500,
			RetryInterval: duration{10 * time.Second},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"index": true,
	"full":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		add("unknown mode %q (valid: serve, index, full)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// The index mode only needs the indexer section; the core runs elsewhere.
	if mode != "index" {
		if !common.IsHexAddress(c.Auction.Administrator) {
			add("auction: administrator must be a hex address, got %q", c.Auction.Administrator)
		}
		if !common.IsHexAddress(c.Auction.Auditor) {
			add("auction: auditor must be a hex address, got %q", c.Auction.Auditor)
		}
		if c.Auction.TotalSupply == 0 {
			add("auction: total_supply must be > 0")
		}
		if c.Auction.StartTime.IsZero() {
			add("auction: start_time is required")
		}
		if c.Auction.Bidding.Duration <= 0 || c.Auction.Reveal.Duration <= 0 || c.Auction.Claim.Duration <= 0 {
			add("auction: bidding, reveal and claim durations must be > 0")
		}

		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.MaxClockSkew.Duration <= 0 {
			add("server: max_clock_skew must be > 0")
		}
		if c.Server.RateLimit < 0 {
			add("server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			add("server: rate_window must be > 0 when rate_limit is set")
		}
		if c.Relay.FlushInterval.Duration <= 0 {
			add("relay: flush_interval must be > 0")
		}
	}

	if mode == "index" || mode == "full" {
		if !c.Redis.Enabled() {
			add("redis: addr is required for mode %s", mode)
		}
		if mode == "index" && c.Indexer.APIURL == "" {
			add("indexer: api_url is required for mode index")
		}
		if c.Indexer.PrivateKey == "" && c.Indexer.EncryptedKeyPath == "" {
			add("indexer: either private_key or encrypted_key_path must be set for mode %s", mode)
		}
		if c.Indexer.EncryptedKeyPath != "" && c.Indexer.KeyPassword == "" {
			add("indexer: key_password is required when encrypted_key_path is set")
		}
		if c.Indexer.BatchSize < 1 {
			add("indexer: batch_size must be >= 1")
		}
	}

	if c.Database.Enabled() {
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				add("database: port must be 1-65535, got %d", c.Database.Port)
			}
			if c.Database.Database == "" {
				add("database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			add("database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 || c.Database.PoolMinConns > c.Database.PoolMaxConns {
			add("database: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Enabled() && c.Redis.PoolSize < 1 {
		add("redis: pool_size must be >= 1")
	}

	if c.S3.Enabled() && c.S3.Region == "" {
		add("s3: region must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}
	return nil
}
