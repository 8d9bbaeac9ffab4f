package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polycross/relaybot/internal/domain"
)

// Tracker implements domain.MarketTracker on the resolved_markets table.
// MarkResolved uses ON CONFLICT DO NOTHING so two bot replicas recording the
// same market cannot disagree about the stored outcome.
type Tracker struct {
	pool *pgxpool.Pool
}

// NewTracker creates a Tracker backed by the given connection pool.
func NewTracker(pool *pgxpool.Pool) *Tracker {
	return &Tracker{pool: pool}
}

// Load returns every recorded resolution.
func (t *Tracker) Load(ctx context.Context) ([]domain.TrackedMarket, error) {
	const query = `SELECT market_id, outcome, resolved_at FROM resolved_markets`

	rows, err := t.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: load tracker: %w", err)
	}
	defer rows.Close()

	var out []domain.TrackedMarket
	for rows.Next() {
		var m domain.TrackedMarket
		var outcome int64
		if err := rows.Scan(&m.MarketID, &outcome, &m.ResolvedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan tracked market: %w", err)
		}
		m.Resolved = true
		m.Outcome = &outcome
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate tracker: %w", err)
	}
	return out, nil
}

// IsResolved reports whether marketID has a recorded resolution.
func (t *Tracker) IsResolved(ctx context.Context, marketID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM resolved_markets WHERE market_id = $1)`

	var resolved bool
	if err := t.pool.QueryRow(ctx, query, marketID).Scan(&resolved); err != nil {
		return false, fmt.Errorf("postgres: check resolved %s: %w", marketID, err)
	}
	return resolved, nil
}

// MarkResolved records a settled market. Recording an already-recorded
// market is a no-op.
func (t *Tracker) MarkResolved(ctx context.Context, res domain.Resolution) error {
	const query = `
		INSERT INTO resolved_markets (market_id, outcome, source, resolved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (market_id) DO NOTHING`

	_, err := t.pool.Exec(ctx, query, res.MarketID, res.Outcome, res.Source, res.ResolvedAt)
	if err != nil {
		return fmt.Errorf("postgres: mark resolved %s: %w", res.MarketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketTracker = (*Tracker)(nil)
