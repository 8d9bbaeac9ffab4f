// Package service exposes the programmatic operations an outer API layer
// calls: order creation and cancellation, active-order queries, and
// settlement submission.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/polycross/relaybot/internal/domain"
	"github.com/polycross/relaybot/internal/relay"
)

// OrderService wraps the hub's order operations and fans placement events
// out to the signal bus.
type OrderService struct {
	hub    *relay.Hub
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewOrderService creates an OrderService. bus may be nil.
func NewOrderService(hub *relay.Hub, bus domain.SignalBus, logger *slog.Logger) *OrderService {
	return &OrderService{
		hub:    hub,
		bus:    bus,
		logger: logger.With(slog.String("component", "order_service")),
	}
}

// CreateOrder places a direct order attributed to user.
func (s *OrderService) CreateOrder(ctx context.Context, user common.Address, marketID, price, amount int64, isBuy bool) error {
	if err := s.hub.PlaceOrder(ctx, user, marketID, price, amount, isBuy); err != nil {
		return fmt.Errorf("service: create order: %w", err)
	}
	s.publish(ctx, "order_placed", map[string]any{
		"market_id": marketID,
		"user":      user.Hex(),
		"price":     price,
		"amount":    amount,
		"is_buy":    isBuy,
	})
	return nil
}

// CancelOrder tombstones the caller's order for marketID.
func (s *OrderService) CancelOrder(ctx context.Context, user common.Address, marketID int64) error {
	if err := s.hub.CancelOrder(ctx, user, marketID); err != nil {
		return fmt.Errorf("service: cancel order: %w", err)
	}
	s.publish(ctx, "order_cancelled", map[string]any{
		"market_id": marketID,
		"user":      user.Hex(),
	})
	return nil
}

// GetActiveOrders returns all active orders in the book.
func (s *OrderService) GetActiveOrders(ctx context.Context) ([]domain.Order, error) {
	return s.hub.ActiveOrders(ctx)
}

func (s *OrderService) publish(ctx context.Context, channel string, event map[string]any) {
	if s.bus == nil {
		return
	}
	payload, _ := json.Marshal(event)
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
