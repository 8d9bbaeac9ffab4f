// Package bot implements the autonomous resolution bot: a long-running poll
// loop that queries the oracle for tracked-market outcomes and submits each
// settlement to the hub exactly once, surviving restarts through the durable
// market tracker.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/polycross/relaybot/internal/domain"
	"github.com/polycross/relaybot/internal/notify"
	"github.com/polycross/relaybot/internal/oracle"
)

// rateKey is the limiter key shared by all outbound oracle calls.
const rateKey = "oracle"

// lockTTL bounds how long a per-market settlement lock is held when running
// multiple replicas.
const lockTTL = 2 * time.Minute

// Settlement submits a market's outcome on-chain. Implementations carry the
// authorized resolver identity.
type Settlement interface {
	ResolveMarket(ctx context.Context, marketID int64, outcome int64) error
}

// Options holds the optional collaborators of the bot. Any nil field is
// simply skipped.
type Options struct {
	Bus      domain.SignalBus
	Notifier *notify.Notifier
	Archiver domain.Archiver
	Locks    domain.LockManager
}

// Bot orchestrates polling, outcome determination, and settlement for a
// fixed set of tracked markets.
type Bot struct {
	markets  []string
	tracker  domain.MarketTracker
	limiter  domain.RateLimiter
	oracle   oracle.Source
	settle   Settlement
	opts     Options
	interval time.Duration
	logger   *slog.Logger
}

// New creates a Bot polling the given tracked markets every interval
// (default 60s).
func New(
	markets []string,
	tracker domain.MarketTracker,
	limiter domain.RateLimiter,
	src oracle.Source,
	settle Settlement,
	interval time.Duration,
	opts Options,
	logger *slog.Logger,
) *Bot {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Bot{
		markets:  markets,
		tracker:  tracker,
		limiter:  limiter,
		oracle:   src,
		settle:   settle,
		opts:     opts,
		interval: interval,
		logger:   logger.With(slog.String("component", "resolution_bot")),
	}
}

// Run reloads the durable resolved set, then polls on a fixed interval until
// the context is cancelled. Cancellation stops the loop between cycles; an
// in-flight settlement completes before Run returns so the tracker never
// disagrees with the chain.
func (b *Bot) Run(ctx context.Context) error {
	// A tracker that cannot be read at startup is fatal: running without
	// the dedup record risks double settlement.
	resolved, err := b.tracker.Load(ctx)
	if err != nil {
		return fmt.Errorf("bot: load tracker: %w", err)
	}
	b.logger.InfoContext(ctx, "resolution bot starting",
		slog.Int("tracked_markets", len(b.markets)),
		slog.Int("already_resolved", len(resolved)),
		slog.Duration("poll_interval", b.interval),
	)

	b.cycle(ctx)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.logger.InfoContext(ctx, "resolution bot stopping")
			return ctx.Err()
		case <-ticker.C:
			b.cycle(ctx)
		}
	}
}

// cycle processes every tracked market once. One market's failure never
// aborts the cycle; failed markets simply stay pending for the next one.
func (b *Bot) cycle(ctx context.Context) {
	for _, marketID := range b.markets {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := b.checkMarket(ctx, marketID); err != nil {
			level := slog.LevelError
			if errors.Is(err, domain.ErrOracleUnavailable) || errors.Is(err, domain.ErrAmbiguousOutcome) {
				level = slog.LevelWarn
			}
			b.logger.Log(ctx, level, "market left pending for next cycle",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// checkMarket runs the pending → resolving → resolved transition for one
// market. Any error leaves the market pending.
func (b *Bot) checkMarket(ctx context.Context, marketID string) error {
	resolved, err := b.tracker.IsResolved(ctx, marketID)
	if err != nil {
		return fmt.Errorf("bot: check tracker: %w", err)
	}
	if resolved {
		return nil
	}

	if err := b.limiter.Wait(ctx, rateKey); err != nil {
		return fmt.Errorf("bot: rate limit: %w", err)
	}

	report, err := b.oracle.MarketReport(ctx, marketID)
	if err != nil {
		return err
	}
	if !report.Closed {
		b.logger.DebugContext(ctx, "market still open",
			slog.String("market_id", marketID),
		)
		return nil
	}

	return b.settleMarket(ctx, marketID, report)
}

// settleMarket submits the outcome and records the resolution. The
// settlement call and the tracker write run under a detached context so a
// shutdown signal cannot interrupt them halfway.
func (b *Bot) settleMarket(ctx context.Context, marketID string, report oracle.Report) error {
	numericID, err := strconv.ParseInt(marketID, 10, 64)
	if err != nil {
		return fmt.Errorf("bot: market id %q is not numeric: %w", marketID, err)
	}

	if b.opts.Locks != nil {
		unlock, err := b.opts.Locks.Acquire(ctx, "resolve:"+marketID, lockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				b.logger.DebugContext(ctx, "another replica is settling",
					slog.String("market_id", marketID),
				)
				return nil
			}
			return fmt.Errorf("bot: acquire settlement lock: %w", err)
		}
		defer unlock()
	}

	settleCtx := context.WithoutCancel(ctx)

	source := report.Source
	err = b.settle.ResolveMarket(settleCtx, numericID, report.Outcome)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAlreadyResolved):
		// Someone settled it first; the goal state is reached, so record it.
		source = "hub"
	default:
		return fmt.Errorf("bot: submit settlement: %w", err)
	}

	res := domain.Resolution{
		MarketID:   marketID,
		Outcome:    report.Outcome,
		ResolvedAt: time.Now().UTC(),
		Source:     source,
	}
	if err := b.tracker.MarkResolved(settleCtx, res); err != nil {
		// Retried next cycle; the hub then answers already-resolved and the
		// record is written without a second settlement taking effect.
		return fmt.Errorf("bot: persist resolution: %w", err)
	}

	b.logger.InfoContext(ctx, "market settled",
		slog.String("market_id", marketID),
		slog.Int64("outcome", res.Outcome),
		slog.String("source", res.Source),
	)
	b.emit(settleCtx, res)
	return nil
}

// emit fans the resolution out to the signal bus, notifier, and archiver.
// These are best-effort; failures are logged and never unwind a settlement.
func (b *Bot) emit(ctx context.Context, res domain.Resolution) {
	if b.opts.Bus != nil {
		payload, _ := json.Marshal(res)
		if err := b.opts.Bus.Publish(ctx, "market_resolved", payload); err != nil {
			b.logger.WarnContext(ctx, "publish resolution failed",
				slog.String("market_id", res.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}
	if b.opts.Notifier != nil {
		title := fmt.Sprintf("Market %s resolved", res.MarketID)
		msg := fmt.Sprintf("outcome=%d source=%s at %s",
			res.Outcome, res.Source, res.ResolvedAt.Format(time.RFC3339))
		if err := b.opts.Notifier.Notify(ctx, "market_resolved", title, msg); err != nil {
			b.logger.WarnContext(ctx, "notify resolution failed",
				slog.String("market_id", res.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}
	if b.opts.Archiver != nil {
		if err := b.opts.Archiver.ArchiveResolution(ctx, res); err != nil {
			b.logger.WarnContext(ctx, "archive resolution failed",
				slog.String("market_id", res.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}
}
