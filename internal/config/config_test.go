package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleTOML = `
mode = "full"
log_level = "debug"

[relay]
local_domain = 1
hub_domain = 1
hub_address = "0x1000000000000000000000000000000000000001"
spoke_domain = 2
spoke_address = "0x2000000000000000000000000000000000000002"

[oracle]
primary_host = "https://gamma-api.example.com"
rate_limit = 30
rate_window = "30s"
min_spacing = "500ms"

[bot]
markets = ["42", "77"]
poll_interval = "15s"

[resolver]
private_key = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

[storage]
order_book = "memory"
tracker = "file"
tracker_path = "state/tracker.json"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Mode != "full" {
		t.Errorf("mode = %q, want full", cfg.Mode)
	}
	if cfg.Oracle.RateLimit != 30 {
		t.Errorf("rate limit = %d, want 30", cfg.Oracle.RateLimit)
	}
	if cfg.Oracle.RateWindow.Duration != 30*time.Second {
		t.Errorf("rate window = %s, want 30s", cfg.Oracle.RateWindow.Duration)
	}
	if cfg.Bot.PollInterval.Duration != 15*time.Second {
		t.Errorf("poll interval = %s, want 15s", cfg.Bot.PollInterval.Duration)
	}
	if len(cfg.Bot.Markets) != 2 || cfg.Bot.Markets[0] != "42" {
		t.Errorf("markets = %v, want [42 77]", cfg.Bot.Markets)
	}

	// Defaults survive where the file is silent.
	if cfg.Relay.ListenAddr != ":8700" {
		t.Errorf("listen addr = %q, want default :8700", cfg.Relay.ListenAddr)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("RELAYBOT_MODE", "spoke")
	t.Setenv("RELAYBOT_ORACLE_RATE_LIMIT", "10")
	t.Setenv("RELAYBOT_BOT_POLL_INTERVAL", "5s")
	t.Setenv("RELAYBOT_BOT_MARKETS", "1, 2, 3")
	t.Setenv("RELAYBOT_REDIS_ENABLED", "true")
	t.Setenv("RELAYBOT_RESOLVER_PRIVATE_KEY", "deadbeef")

	cfg, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Mode != "spoke" {
		t.Errorf("mode = %q, want spoke", cfg.Mode)
	}
	if cfg.Oracle.RateLimit != 10 {
		t.Errorf("rate limit = %d, want 10", cfg.Oracle.RateLimit)
	}
	if cfg.Bot.PollInterval.Duration != 5*time.Second {
		t.Errorf("poll interval = %s, want 5s", cfg.Bot.PollInterval.Duration)
	}
	if len(cfg.Bot.Markets) != 3 || cfg.Bot.Markets[2] != "3" {
		t.Errorf("markets = %v, want [1 2 3]", cfg.Bot.Markets)
	}
	if !cfg.Redis.Enabled {
		t.Error("redis not enabled by env override")
	}
	if cfg.Resolver.PrivateKey != "deadbeef" {
		t.Errorf("resolver key = %q, want env override", cfg.Resolver.PrivateKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}

func validFullConfig() Config {
	cfg := Defaults()
	cfg.Mode = "full"
	cfg.Relay.HubAddress = "0x1000000000000000000000000000000000000001"
	cfg.Relay.SpokeAddress = "0x2000000000000000000000000000000000000002"
	cfg.Oracle.PrimaryHost = "https://gamma-api.example.com"
	cfg.Bot.Markets = []string{"42"}
	cfg.Resolver.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	return cfg
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid full", func(c *Config) {}, ""},
		{"unknown mode", func(c *Config) { c.Mode = "observer" }, "unsupported mode"},
		{"bad spoke address", func(c *Config) { c.Relay.SpokeAddress = "nope" }, "spoke_address"},
		{"missing hub address", func(c *Config) { c.Relay.HubAddress = "" }, "hub_address"},
		{"spoke needs bridge url", func(c *Config) {
			c.Mode = "spoke"
			c.Relay.BridgeURL = ""
		}, "bridge_url"},
		{"hub needs resolver identity", func(c *Config) {
			c.Mode = "hub"
			c.Resolver = ResolverConfig{}
		}, "resolver"},
		{"hub accepts bare resolver address", func(c *Config) {
			c.Mode = "hub"
			c.Resolver = ResolverConfig{Address: "0x3000000000000000000000000000000000000003"}
		}, ""},
		{"resolve without markets", func(c *Config) {
			c.Mode = "resolve"
			c.Bot.Markets = nil
		}, "markets"},
		{"resolve without oracle host", func(c *Config) {
			c.Mode = "resolve"
			c.Oracle.PrimaryHost = ""
		}, "primary_host"},
		{"resolve without resolver key", func(c *Config) {
			c.Mode = "resolve"
			c.Resolver = ResolverConfig{Address: "0x3000000000000000000000000000000000000003"}
		}, "resolver key"},
		{"shared limiter needs redis", func(c *Config) {
			c.Oracle.SharedLimiter = true
			c.Redis.Enabled = false
		}, "redis.enabled"},
		{"bad order book backend", func(c *Config) { c.Storage.OrderBook = "sqlite" }, "order_book"},
		{"bad tracker backend", func(c *Config) { c.Storage.Tracker = "etcd" }, "tracker"},
		{"file tracker needs path", func(c *Config) { c.Storage.TrackerPath = "" }, "tracker_path"},
		{"server port out of range", func(c *Config) {
			c.Server.Enabled = true
			c.Server.Port = 70000
		}, "server.port"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validFullConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}
