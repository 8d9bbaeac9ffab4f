package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/polycross/relaybot/internal/domain"
)

// Hub is the destination-domain component holding the canonical order book
// and settlement authority. Orders enter through direct placement or through
// mailbox delivery; both apply the same last-write-wins rule per
// (marketID, user) key, which makes duplicate delivery idempotent.
type Hub struct {
	book     domain.OrderBook
	resolver common.Address
	logger   *slog.Logger

	// trusted maps an origin domain to the one spoke address allowed to
	// relay orders from it.
	trusted map[domain.Domain]common.Address

	mu       sync.Mutex
	outcomes map[int64]int64
}

// NewHub creates a hub over the given order book. resolver is the only
// identity allowed to call ResolveMarket.
func NewHub(book domain.OrderBook, resolver common.Address, logger *slog.Logger) *Hub {
	return &Hub{
		book:     book,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "hub")),
		trusted:  make(map[domain.Domain]common.Address),
		outcomes: make(map[int64]int64),
	}
}

// TrustSpoke registers the spoke address trusted to relay from origin.
// Messages claiming any other (origin, sender) pairing are rejected.
func (h *Hub) TrustSpoke(origin domain.Domain, spoke common.Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trusted[origin] = spoke
}

// PlaceOrder applies a direct local placement attributed to user. A prior
// order under the same (marketID, user) key is overwritten.
func (h *Hub) PlaceOrder(ctx context.Context, user common.Address, marketID, price, amount int64, isBuy bool) error {
	order := domain.Order{
		MarketID: marketID,
		User:     user,
		Price:    price,
		Amount:   amount,
		IsBuy:    isBuy,
		Source:   domain.OrderSourceDirect,
	}
	return h.apply(ctx, order)
}

// HandleMessage is the mailbox delivery entry point. It verifies the sender
// is the trusted spoke for the origin domain, decodes the payload, and
// applies the order attributed to the relayed sender identity. Authorization
// or decode failure rejects the whole call with no state change.
func (h *Hub) HandleMessage(ctx context.Context, origin domain.Domain, sender common.Address, payload []byte) error {
	h.mu.Lock()
	expected, ok := h.trusted[origin]
	h.mu.Unlock()

	if !ok || expected != sender {
		return fmt.Errorf("%w: sender %s is not the trusted spoke for domain %d",
			domain.ErrUnauthorized, sender.Hex(), origin)
	}

	order, err := DecodeOrder(payload)
	if err != nil {
		return fmt.Errorf("relay: hub handle message: %w", err)
	}

	order.User = sender
	order.Source = domain.OrderSourceRelayed
	return h.apply(ctx, order)
}

func (h *Hub) apply(ctx context.Context, order domain.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	order.Status = domain.OrderStatusActive
	order.CreatedAt = now
	order.UpdatedAt = now

	// An overwrite keeps the original placement time; UpdatedAt carries the
	// rewrite.
	if prev, err := h.book.Get(ctx, order.Key()); err == nil {
		order.CreatedAt = prev.CreatedAt
	}

	if err := h.book.Put(ctx, order); err != nil {
		return fmt.Errorf("relay: hub store order %s: %w", order.Key(), err)
	}

	h.logger.InfoContext(ctx, "order applied",
		slog.Int64("market_id", order.MarketID),
		slog.String("user", order.User.Hex()),
		slog.Int64("price", order.Price),
		slog.Int64("amount", order.Amount),
		slog.Bool("is_buy", order.IsBuy),
		slog.String("source", string(order.Source)),
	)
	return nil
}

// CancelOrder tombstones the order under (marketID, user). Only the owning
// user may cancel.
func (h *Hub) CancelOrder(ctx context.Context, caller common.Address, marketID int64) error {
	key := domain.OrderKey{MarketID: marketID, User: caller}
	if err := h.book.Cancel(ctx, key); err != nil {
		return fmt.Errorf("relay: hub cancel order %s: %w", key, err)
	}
	h.logger.InfoContext(ctx, "order cancelled",
		slog.Int64("market_id", marketID),
		slog.String("user", caller.Hex()),
	)
	return nil
}

// ResolveMarket records the canonical outcome for a market exactly once.
// Only the configured resolver identity may call it; a second call for the
// same market fails with domain.ErrAlreadyResolved so an outcome can never
// flip after settlement.
func (h *Hub) ResolveMarket(ctx context.Context, caller common.Address, marketID int64, outcome int64) error {
	if caller != h.resolver {
		return fmt.Errorf("%w: %s is not the authorized resolver", domain.ErrUnauthorized, caller.Hex())
	}
	if outcome != domain.OutcomeYes && outcome != domain.OutcomeNo {
		return fmt.Errorf("%w: outcome %d", domain.ErrInvalidOutcome, outcome)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.outcomes[marketID]; ok {
		return fmt.Errorf("%w: market %d settled to %d", domain.ErrAlreadyResolved, marketID, prev)
	}
	h.outcomes[marketID] = outcome

	h.logger.InfoContext(ctx, "market resolved",
		slog.Int64("market_id", marketID),
		slog.Int64("outcome", outcome),
	)
	return nil
}

// MarketOutcome returns the settled outcome for a market, or
// domain.ErrNotFound if the market has not been resolved.
func (h *Hub) MarketOutcome(marketID int64) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	outcome, ok := h.outcomes[marketID]
	if !ok {
		return 0, fmt.Errorf("%w: market %d not resolved", domain.ErrNotFound, marketID)
	}
	return outcome, nil
}

// ActiveOrders returns all non-cancelled orders in the book.
func (h *Hub) ActiveOrders(ctx context.Context) ([]domain.Order, error) {
	return h.book.ListActive(ctx)
}
