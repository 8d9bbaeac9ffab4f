package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polycross/relaybot/internal/domain"
)

// OrderBook implements domain.OrderBook using PostgreSQL. The upsert on the
// (market_id, user_addr) primary key gives the last-write-wins semantics a
// single transactional statement.
type OrderBook struct {
	pool *pgxpool.Pool
}

// NewOrderBook creates an OrderBook backed by the given connection pool.
func NewOrderBook(pool *pgxpool.Pool) *OrderBook {
	return &OrderBook{pool: pool}
}

// Put inserts or overwrites the order under its (marketID, user) key.
func (s *OrderBook) Put(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			market_id, user_addr, price, amount, is_buy,
			status, source, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (market_id, user_addr) DO UPDATE SET
			price      = EXCLUDED.price,
			amount     = EXCLUDED.amount,
			is_buy     = EXCLUDED.is_buy,
			status     = EXCLUDED.status,
			source     = EXCLUDED.source,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		o.MarketID, o.User.Hex(), o.Price, o.Amount, o.IsBuy,
		string(o.Status), string(o.Source), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put order %s: %w", o.Key(), err)
	}
	return nil
}

// Get returns the order under key.
func (s *OrderBook) Get(ctx context.Context, key domain.OrderKey) (domain.Order, error) {
	const query = `
		SELECT market_id, user_addr, price, amount, is_buy,
		       status, source, created_at, updated_at
		FROM orders
		WHERE market_id = $1 AND user_addr = $2`

	o, err := scanOrder(s.pool.QueryRow(ctx, query, key.MarketID, key.User.Hex()))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("%w: order %s", domain.ErrNotFound, key)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", key, err)
	}
	return o, nil
}

// ListActive returns all non-cancelled orders.
func (s *OrderBook) ListActive(ctx context.Context) ([]domain.Order, error) {
	const query = `
		SELECT market_id, user_addr, price, amount, is_buy,
		       status, source, created_at, updated_at
		FROM orders
		WHERE status = 'active'
		ORDER BY market_id, user_addr`

	return s.queryOrders(ctx, query)
}

// ListByMarket returns all non-cancelled orders for one market.
func (s *OrderBook) ListByMarket(ctx context.Context, marketID int64) ([]domain.Order, error) {
	const query = `
		SELECT market_id, user_addr, price, amount, is_buy,
		       status, source, created_at, updated_at
		FROM orders
		WHERE status = 'active' AND market_id = $1
		ORDER BY user_addr`

	return s.queryOrders(ctx, query, marketID)
}

// Cancel tombstones the order under key.
func (s *OrderBook) Cancel(ctx context.Context, key domain.OrderKey) error {
	const query = `
		UPDATE orders SET status = 'cancelled', updated_at = NOW()
		WHERE market_id = $1 AND user_addr = $2`

	tag, err := s.pool.Exec(ctx, query, key.MarketID, key.User.Hex())
	if err != nil {
		return fmt.Errorf("postgres: cancel order %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, key)
	}
	return nil
}

func (s *OrderBook) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate orders: %w", err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o              domain.Order
		user           string
		status, source string
	)
	err := row.Scan(
		&o.MarketID, &user, &o.Price, &o.Amount, &o.IsBuy,
		&status, &source, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.User = common.HexToAddress(user)
	o.Status = domain.OrderStatus(status)
	o.Source = domain.OrderSource(source)
	return o, nil
}

// Compile-time interface check.
var _ domain.OrderBook = (*OrderBook)(nil)
