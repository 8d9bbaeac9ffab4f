package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/polycross/relaybot/internal/blob/s3"
	"github.com/polycross/relaybot/internal/cache/redis"
	"github.com/polycross/relaybot/internal/config"
	"github.com/polycross/relaybot/internal/crypto"
	"github.com/polycross/relaybot/internal/domain"
	"github.com/polycross/relaybot/internal/notify"
	"github.com/polycross/relaybot/internal/ratelimit"
	"github.com/polycross/relaybot/internal/store/file"
	"github.com/polycross/relaybot/internal/store/memory"
	"github.com/polycross/relaybot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the operating
// modes need. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	OrderBook domain.OrderBook
	Tracker   domain.MarketTracker
	Limiter   domain.RateLimiter
	Locks     domain.LockManager
	Bus       domain.SignalBus
	Archiver  domain.Archiver
	Notifier  *notify.Notifier

	// Resolver is the settlement identity. Nil in hub mode when only the
	// authorized address is configured.
	Resolver        *crypto.Identity
	ResolverAddress common.Address
}

// needsOrderBook returns true for modes that host the hub's book.
func needsOrderBook(mode string) bool {
	switch mode {
	case "hub", "resolve", "full":
		return true
	default:
		return false
	}
}

// needsTracker returns true for modes that run the resolution bot.
func needsTracker(mode string) bool {
	switch mode {
	case "resolve", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only when a selected store backs onto it) ---
	usePG := (needsOrderBook(mode) && cfg.Storage.OrderBook == "postgres") ||
		(needsTracker(mode) && cfg.Storage.Tracker == "postgres")
	var pgClient *postgres.Client
	if usePG {
		var err error
		pgClient, err = postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
	}

	// --- Order book ---
	if needsOrderBook(mode) {
		switch cfg.Storage.OrderBook {
		case "postgres":
			deps.OrderBook = postgres.NewOrderBook(pgClient.Pool())
		default:
			deps.OrderBook = memory.NewOrderBook()
		}
	}

	// --- Resolved-market tracker ---
	if needsTracker(mode) {
		switch cfg.Storage.Tracker {
		case "postgres":
			deps.Tracker = postgres.NewTracker(pgClient.Pool())
		default:
			tracker, err := file.NewTracker(cfg.Storage.TrackerPath)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: file tracker: %w", err)
			}
			deps.Tracker = tracker
		}
	}

	// --- Redis (signal bus, locks, optional shared limiter) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		if cfg.Oracle.SharedLimiter {
			deps.Limiter = redis.NewRateLimiter(
				redisClient,
				cfg.Oracle.RateLimit,
				cfg.Oracle.RateWindow.Duration,
				cfg.Oracle.MinSpacing.Duration,
			)
		}
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.New(
			cfg.Oracle.RateLimit,
			cfg.Oracle.RateWindow.Duration,
			cfg.Oracle.MinSpacing.Duration,
		)
	}

	// --- S3 archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.Archiver = s3blob.NewArchiver(s3Client, cfg.S3.Prefix)
	}

	// --- Resolver identity ---
	if cfg.Resolver.PrivateKey != "" || cfg.Resolver.EncryptedKeyPath != "" {
		identity, err := crypto.LoadIdentity(crypto.KeyConfig{
			RawPrivateKey:    cfg.Resolver.PrivateKey,
			EncryptedKeyPath: cfg.Resolver.EncryptedKeyPath,
			KeyPassword:      cfg.Resolver.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: resolver identity: %w", err)
		}
		deps.Resolver = identity
		deps.ResolverAddress = identity.Address()
	} else if cfg.Resolver.Address != "" {
		deps.ResolverAddress = common.HexToAddress(cfg.Resolver.Address)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
