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
// built-in defaults, applies RELAYBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known RELAYBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "RELAYBOT_MODE")
	setStr(&cfg.LogLevel, "RELAYBOT_LOG_LEVEL")

	// ── Relay ──
	setUint32(&cfg.Relay.LocalDomain, "RELAYBOT_RELAY_LOCAL_DOMAIN")
	setUint32(&cfg.Relay.HubDomain, "RELAYBOT_RELAY_HUB_DOMAIN")
	setStr(&cfg.Relay.HubAddress, "RELAYBOT_RELAY_HUB_ADDRESS")
	setUint32(&cfg.Relay.SpokeDomain, "RELAYBOT_RELAY_SPOKE_DOMAIN")
	setStr(&cfg.Relay.SpokeAddress, "RELAYBOT_RELAY_SPOKE_ADDRESS")
	setStr(&cfg.Relay.ListenAddr, "RELAYBOT_RELAY_LISTEN_ADDR")
	setStr(&cfg.Relay.BridgeURL, "RELAYBOT_RELAY_BRIDGE_URL")

	// ── Oracle ──
	setStr(&cfg.Oracle.PrimaryHost, "RELAYBOT_ORACLE_PRIMARY_HOST")
	setStr(&cfg.Oracle.SecondaryHost, "RELAYBOT_ORACLE_SECONDARY_HOST")
	setInt(&cfg.Oracle.RateLimit, "RELAYBOT_ORACLE_RATE_LIMIT")
	setDuration(&cfg.Oracle.RateWindow, "RELAYBOT_ORACLE_RATE_WINDOW")
	setDuration(&cfg.Oracle.MinSpacing, "RELAYBOT_ORACLE_MIN_SPACING")
	setBool(&cfg.Oracle.SharedLimiter, "RELAYBOT_ORACLE_SHARED_LIMITER")

	// ── Bot ──
	setStrSlice(&cfg.Bot.Markets, "RELAYBOT_BOT_MARKETS")
	setDuration(&cfg.Bot.PollInterval, "RELAYBOT_BOT_POLL_INTERVAL")

	// ── Resolver ──
	setStr(&cfg.Resolver.Address, "RELAYBOT_RESOLVER_ADDRESS")
	setStr(&cfg.Resolver.PrivateKey, "RELAYBOT_RESOLVER_PRIVATE_KEY")
	setStr(&cfg.Resolver.EncryptedKeyPath, "RELAYBOT_RESOLVER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Resolver.KeyPassword, "RELAYBOT_RESOLVER_KEY_PASSWORD")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "RELAYBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "RELAYBOT_SERVER_PORT")
	setStrSlice(&cfg.Server.CORSOrigins, "RELAYBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "RELAYBOT_SERVER_API_KEY")

	// ── Storage ──
	setStr(&cfg.Storage.OrderBook, "RELAYBOT_STORAGE_ORDER_BOOK")
	setStr(&cfg.Storage.Tracker, "RELAYBOT_STORAGE_TRACKER")
	setStr(&cfg.Storage.TrackerPath, "RELAYBOT_STORAGE_TRACKER_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "RELAYBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "RELAYBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "RELAYBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "RELAYBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "RELAYBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "RELAYBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "RELAYBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "RELAYBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "RELAYBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "RELAYBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "RELAYBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "RELAYBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RELAYBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RELAYBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RELAYBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RELAYBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RELAYBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "RELAYBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "RELAYBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "RELAYBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "RELAYBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "RELAYBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "RELAYBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "RELAYBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "RELAYBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "RELAYBOT_S3_PREFIX")
	setDuration(&cfg.S3.SnapshotInterval, "RELAYBOT_S3_SNAPSHOT_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "RELAYBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RELAYBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RELAYBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStrSlice(&cfg.Notify.Events, "RELAYBOT_NOTIFY_EVENTS")
}

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

func setUint32(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
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

func setStrSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
