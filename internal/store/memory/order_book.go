// Package memory provides in-memory store implementations used by
// single-process deployments and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/polycross/relaybot/internal/domain"
)

// OrderBook implements domain.OrderBook with a mutex-guarded map. Writes to
// a key are serialized by the lock, so concurrent placements for the same
// (marketID, user) key cannot interleave into a mixed state.
type OrderBook struct {
	mu     sync.RWMutex
	orders map[domain.OrderKey]domain.Order
}

// NewOrderBook creates an empty in-memory order book.
func NewOrderBook() *OrderBook {
	return &OrderBook{orders: make(map[domain.OrderKey]domain.Order)}
}

// Put overwrites the order under its key (last-write-wins).
func (b *OrderBook) Put(_ context.Context, order domain.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders[order.Key()] = order
	return nil
}

// Get returns the order under key or domain.ErrNotFound.
func (b *OrderBook) Get(_ context.Context, key domain.OrderKey) (domain.Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	order, ok := b.orders[key]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: order %s", domain.ErrNotFound, key)
	}
	return order, nil
}

// ListActive returns all non-cancelled orders sorted by key for stable output.
func (b *OrderBook) ListActive(_ context.Context) ([]domain.Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Order, 0, len(b.orders))
	for _, o := range b.orders {
		if o.Status == domain.OrderStatusActive {
			out = append(out, o)
		}
	}
	sortOrders(out)
	return out, nil
}

// ListByMarket returns all non-cancelled orders for one market.
func (b *OrderBook) ListByMarket(_ context.Context, marketID int64) ([]domain.Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.Order
	for _, o := range b.orders {
		if o.MarketID == marketID && o.Status == domain.OrderStatusActive {
			out = append(out, o)
		}
	}
	sortOrders(out)
	return out, nil
}

// Cancel tombstones the order under key. Cancelling an unknown key returns
// domain.ErrNotFound.
func (b *OrderBook) Cancel(_ context.Context, key domain.OrderKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.orders[key]
	if !ok {
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, key)
	}
	order.Status = domain.OrderStatusCancelled
	order.UpdatedAt = time.Now().UTC()
	b.orders[key] = order
	return nil
}

func sortOrders(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].MarketID != orders[j].MarketID {
			return orders[i].MarketID < orders[j].MarketID
		}
		return orders[i].User.Hex() < orders[j].User.Hex()
	})
}

// Compile-time interface check.
var _ domain.OrderBook = (*OrderBook)(nil)
