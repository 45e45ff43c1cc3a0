package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AUCTIOND_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AUCTIOND_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Auction ──
	setStr(&cfg.Auction.Administrator, "AUCTIOND_AUCTION_ADMINISTRATOR")
	setStr(&cfg.Auction.Auditor, "AUCTIOND_AUCTION_AUDITOR")
	setUint64(&cfg.Auction.TotalSupply, "AUCTIOND_AUCTION_TOTAL_SUPPLY")
	setTime(&cfg.Auction.StartTime, "AUCTIOND_AUCTION_START_TIME")
	setDuration(&cfg.Auction.Bidding, "AUCTIOND_AUCTION_BIDDING")
	setDuration(&cfg.Auction.Reveal, "AUCTIOND_AUCTION_REVEAL")
	setDuration(&cfg.Auction.Claim, "AUCTIOND_AUCTION_CLAIM")
	setBool(&cfg.Auction.EnforceInvestorOrder, "AUCTIOND_AUCTION_ENFORCE_INVESTOR_ORDER")

	// ── Keys ──
	setStr(&cfg.Keys.PrivateKey, "AUCTIOND_KEYS_PRIVATE_KEY")
	setStr(&cfg.Keys.EncryptedKeyPath, "AUCTIOND_KEYS_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Keys.KeyPassword, "AUCTIOND_KEYS_KEY_PASSWORD")

	// ── Database ──
	setStr(&cfg.Database.DSN, "AUCTIOND_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "AUCTIOND_DATABASE_HOST")
	setInt(&cfg.Database.Port, "AUCTIOND_DATABASE_PORT")
	setStr(&cfg.Database.Database, "AUCTIOND_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "AUCTIOND_DATABASE_USER")
	setStr(&cfg.Database.Password, "AUCTIOND_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "AUCTIOND_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "AUCTIOND_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "AUCTIOND_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "AUCTIOND_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AUCTIOND_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AUCTIOND_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AUCTIOND_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AUCTIOND_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AUCTIOND_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AUCTIOND_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.StreamMaxLen, "AUCTIOND_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "AUCTIOND_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AUCTIOND_S3_REGION")
	setStr(&cfg.S3.Bucket, "AUCTIOND_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AUCTIOND_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AUCTIOND_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AUCTIOND_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AUCTIOND_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "AUCTIOND_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AUCTIOND_SERVER_CORS_ORIGINS")
	setDuration(&cfg.Server.MaxClockSkew, "AUCTIOND_SERVER_MAX_CLOCK_SKEW")
	setInt(&cfg.Server.RateLimit, "AUCTIOND_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "AUCTIOND_SERVER_RATE_WINDOW")

	// ── Relay ──
	setDuration(&cfg.Relay.FlushInterval, "AUCTIOND_RELAY_FLUSH_INTERVAL")

	// ── Indexer ──
	setStr(&cfg.Indexer.APIURL, "AUCTIOND_INDEXER_API_URL")
	setDuration(&cfg.Indexer.LockTTL, "AUCTIOND_INDEXER_LOCK_TTL")
	setDuration(&cfg.Indexer.SettleDelay, "AUCTIOND_INDEXER_SETTLE_DELAY")
	setInt(&cfg.Indexer.BatchSize, "AUCTIOND_INDEXER_BATCH_SIZE")
	setDuration(&cfg.Indexer.RetryInterval, "AUCTIOND_INDEXER_RETRY_INTERVAL")
	setStr(&cfg.Indexer.PrivateKey, "AUCTIOND_INDEXER_PRIVATE_KEY")
	setStr(&cfg.Indexer.EncryptedKeyPath, "AUCTIOND_INDEXER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Indexer.KeyPassword, "AUCTIOND_INDEXER_KEY_PASSWORD")

	// ── Top-level ──
	setStr(&cfg.Mode, "AUCTIOND_MODE")
	setStr(&cfg.LogLevel, "AUCTIOND_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

// setTime accepts RFC 3339 timestamps.
func setTime(dst *time.Time, key string) {
	if v := os.Getenv(key); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			*dst = t.UTC()
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
