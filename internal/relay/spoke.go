package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/polycross/relaybot/internal/domain"
)

// Spoke is the origin-domain side of the relay. It holds no order-book state
// of its own; the hub on the destination domain is the single source of
// truth. PlaceOrder encodes the order and hands it to the mailbox.
type Spoke struct {
	mailbox   domain.Mailbox
	hubDomain domain.Domain
	hubAddr   common.Address
	logger    *slog.Logger
}

// NewSpoke creates a spoke that relays orders to the hub at hubAddr on
// hubDomain through the given mailbox.
func NewSpoke(mailbox domain.Mailbox, hubDomain domain.Domain, hubAddr common.Address, logger *slog.Logger) *Spoke {
	return &Spoke{
		mailbox:   mailbox,
		hubDomain: hubDomain,
		hubAddr:   hubAddr,
		logger:    logger.With(slog.String("component", "spoke")),
	}
}

// PlaceOrder validates the order fields, encodes them, and dispatches the
// payload toward the configured hub. It returns the mailbox message ID as
// the dispatch receipt. The user field is carried by the relay context, not
// the payload, so it is not required here.
func (s *Spoke) PlaceOrder(ctx context.Context, marketID, price, amount int64, isBuy bool) (uuid.UUID, error) {
	order := domain.Order{
		MarketID: marketID,
		Price:    price,
		Amount:   amount,
		IsBuy:    isBuy,
	}

	payload, err := EncodeOrder(order)
	if err != nil {
		return uuid.Nil, fmt.Errorf("relay: spoke place order: %w", err)
	}

	id, err := s.mailbox.Dispatch(ctx, s.hubDomain, s.hubAddr, payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("relay: spoke dispatch: %w", err)
	}

	s.logger.InfoContext(ctx, "order relayed",
		slog.String("message_id", id.String()),
		slog.Int64("market_id", marketID),
		slog.Int64("price", price),
		slog.Int64("amount", amount),
		slog.Bool("is_buy", isBuy),
	)
	return id, nil
}
