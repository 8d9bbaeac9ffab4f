package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/polycross/relaybot/internal/domain"
)

// Fallback chains a primary Source with a secondary one. A market report is
// taken from the primary when it answers; any primary failure (network,
// non-2xx, malformed body, ambiguous outcome) falls through to the
// secondary before the market is given up on for this cycle.
type Fallback struct {
	sources []Source
	logger  *slog.Logger
}

// NewFallback creates a Fallback over the given sources, tried in order.
func NewFallback(logger *slog.Logger, sources ...Source) *Fallback {
	return &Fallback{
		sources: sources,
		logger:  logger.With(slog.String("component", "oracle_fallback")),
	}
}

// Name identifies the chain in logs.
func (f *Fallback) Name() string { return "fallback" }

// MarketReport tries each source in order and returns the first answer.
// When every source fails, the error is domain.ErrAmbiguousOutcome if any
// source produced an unrecognized outcome, otherwise
// domain.ErrOracleUnavailable.
func (f *Fallback) MarketReport(ctx context.Context, marketID string) (Report, error) {
	var (
		errs      []error
		ambiguous bool
	)
	for _, src := range f.sources {
		report, err := src.MarketReport(ctx, marketID)
		if err == nil {
			return report, nil
		}
		if errors.Is(err, domain.ErrAmbiguousOutcome) {
			ambiguous = true
		}
		f.logger.DebugContext(ctx, "oracle source failed",
			slog.String("source", src.Name()),
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		errs = append(errs, err)
	}

	joined := errors.Join(errs...)
	if ambiguous {
		return Report{}, fmt.Errorf("%w: market %s: %v", domain.ErrAmbiguousOutcome, marketID, joined)
	}
	return Report{}, fmt.Errorf("%w: market %s: %v", domain.ErrOracleUnavailable, marketID, joined)
}

// Compile-time interface check.
var _ Source = (*Fallback)(nil)
