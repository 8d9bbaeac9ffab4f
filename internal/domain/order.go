package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OrderStatus tracks the order lifecycle within the hub's book.
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderSource records how an order reached the hub.
type OrderSource string

const (
	OrderSourceDirect  OrderSource = "direct"
	OrderSourceRelayed OrderSource = "relayed"
)

// OrderKey uniquely identifies an order within one domain's book. A later
// order for the same key overwrites the earlier one (last-write-wins).
type OrderKey struct {
	MarketID int64
	User     common.Address
}

func (k OrderKey) String() string {
	return fmt.Sprintf("%d/%s", k.MarketID, k.User.Hex())
}

// Order is a resting order in the hub's book. Price and Amount are
// fixed-point integers (value * 1e6), matching the on-chain representation.
type Order struct {
	MarketID  int64
	User      common.Address
	Price     int64
	Amount    int64
	IsBuy     bool
	Status    OrderStatus
	Source    OrderSource
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the (marketID, user) book key for the order.
func (o Order) Key() OrderKey {
	return OrderKey{MarketID: o.MarketID, User: o.User}
}

// Validate checks the numeric fields of an order before placement or relay.
func (o Order) Validate() error {
	if o.MarketID <= 0 {
		return fmt.Errorf("%w: market id must be positive, got %d", ErrInvalidOrder, o.MarketID)
	}
	if o.Price <= 0 {
		return fmt.Errorf("%w: price must be positive, got %d", ErrInvalidOrder, o.Price)
	}
	if o.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidOrder, o.Amount)
	}
	return nil
}
