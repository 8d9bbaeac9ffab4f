// Package config defines the top-level configuration for the relay and
// resolution services and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by RELAYBOT_* environment
// variables.
type Config struct {
	Relay    RelayConfig    `toml:"relay"`
	Oracle   OracleConfig   `toml:"oracle"`
	Bot      BotConfig      `toml:"bot"`
	Resolver ResolverConfig `toml:"resolver"`
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// RelayConfig holds the cross-domain routing parameters.
type RelayConfig struct {
	// LocalDomain is the domain this process runs on.
	LocalDomain uint32 `toml:"local_domain"`

	// HubDomain/HubAddress locate the hub the spoke relays to.
	HubDomain  uint32 `toml:"hub_domain"`
	HubAddress string `toml:"hub_address"`

	// SpokeDomain/SpokeAddress identify the one trusted spoke per origin.
	SpokeDomain  uint32 `toml:"spoke_domain"`
	SpokeAddress string `toml:"spoke_address"`

	// ListenAddr is the hub-side websocket listener bind address.
	ListenAddr string `toml:"listen_addr"`

	// BridgeURL is the spoke-side websocket URL of the hub listener.
	BridgeURL string `toml:"bridge_url"`
}

// OracleConfig holds the market-data provider endpoints and the shared
// request budget.
type OracleConfig struct {
	PrimaryHost   string   `toml:"primary_host"`
	SecondaryHost string   `toml:"secondary_host"`
	RateLimit     int      `toml:"rate_limit"`
	RateWindow    duration `toml:"rate_window"`
	MinSpacing    duration `toml:"min_spacing"`

	// SharedLimiter routes the budget through Redis so several bot
	// replicas share one window.
	SharedLimiter bool `toml:"shared_limiter"`
}

// BotConfig holds the resolution bot parameters.
type BotConfig struct {
	Markets      []string `toml:"markets"`
	PollInterval duration `toml:"poll_interval"`
}

// ResolverConfig holds the resolver key material. Modes that settle markets
// need the key itself; a hub only authorizes the resolver address.
type ResolverConfig struct {
	Address          string `toml:"address"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ServerConfig holds the admin HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects mutating endpoints; empty disables authentication.
	APIKey string `toml:"api_key"`
}

// StorageConfig selects the backing stores.
type StorageConfig struct {
	// OrderBook is "memory" or "postgres".
	OrderBook string `toml:"order_book"`
	// Tracker is "file" or "postgres".
	Tracker string `toml:"tracker"`
	// TrackerPath is the tracker document location for the file backend.
	TrackerPath string `toml:"tracker_path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
	// SnapshotInterval spaces order-book snapshots; zero disables them.
	SnapshotInterval duration `toml:"snapshot_interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "60s", "1100ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
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
func Defaults() Config {
	return Config{
		Relay: RelayConfig{
			LocalDomain: 1,
			HubDomain:   1,
			SpokeDomain: 2,
			ListenAddr:  ":8700",
		},
		Oracle: OracleConfig{
			RateLimit:  60,
			RateWindow: duration{time.Minute},
			MinSpacing: duration{1100 * time.Millisecond},
		},
		Bot: BotConfig{
			PollInterval: duration{time.Minute},
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Storage: StorageConfig{
			OrderBook:   "memory",
			Tracker:     "file",
			TrackerPath: "tracker.json",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "relaybot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:           "us-east-1",
			Bucket:           "relaybot-data",
			Prefix:           "relaybot",
			SnapshotInterval: duration{time.Hour},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// Validate checks cross-field consistency for the configured mode.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "hub", "spoke", "resolve", "full":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	mode := strings.ToLower(c.Mode)

	if mode == "hub" || mode == "full" {
		if c.Relay.SpokeAddress == "" || !common.IsHexAddress(c.Relay.SpokeAddress) {
			return fmt.Errorf("config: relay.spoke_address %q is not a valid address", c.Relay.SpokeAddress)
		}
	}
	if mode != "resolve" {
		if c.Relay.HubAddress == "" || !common.IsHexAddress(c.Relay.HubAddress) {
			return fmt.Errorf("config: relay.hub_address %q is not a valid address", c.Relay.HubAddress)
		}
	}
	if mode == "spoke" && c.Relay.BridgeURL == "" {
		return fmt.Errorf("config: relay.bridge_url is required in spoke mode")
	}

	if mode == "hub" {
		if c.Resolver.Address == "" && c.Resolver.PrivateKey == "" && c.Resolver.EncryptedKeyPath == "" {
			return fmt.Errorf("config: resolver.address or resolver key material is required in hub mode")
		}
		if c.Resolver.Address != "" && !common.IsHexAddress(c.Resolver.Address) {
			return fmt.Errorf("config: resolver.address %q is not a valid address", c.Resolver.Address)
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}

	if mode == "resolve" || mode == "full" {
		if len(c.Bot.Markets) == 0 {
			return fmt.Errorf("config: bot.markets must not be empty")
		}
		if c.Oracle.PrimaryHost == "" {
			return fmt.Errorf("config: oracle.primary_host is required")
		}
		if c.Resolver.PrivateKey == "" && c.Resolver.EncryptedKeyPath == "" {
			return fmt.Errorf("config: resolver key is required (private_key or encrypted_key_path)")
		}
		if c.Oracle.SharedLimiter && !c.Redis.Enabled {
			return fmt.Errorf("config: oracle.shared_limiter requires redis.enabled")
		}
	}

	switch c.Storage.OrderBook {
	case "memory", "postgres":
	default:
		return fmt.Errorf("config: storage.order_book %q (want memory or postgres)", c.Storage.OrderBook)
	}
	switch c.Storage.Tracker {
	case "file", "postgres":
	default:
		return fmt.Errorf("config: storage.tracker %q (want file or postgres)", c.Storage.Tracker)
	}
	if c.Storage.Tracker == "file" && c.Storage.TrackerPath == "" {
		return fmt.Errorf("config: storage.tracker_path is required for the file tracker")
	}

	return nil
}
