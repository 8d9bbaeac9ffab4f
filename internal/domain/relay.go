package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Domain identifies a ledger for cross-domain routing.
type Domain uint32

// MessageHandler is invoked by a Mailbox when a message is delivered to a
// recipient. origin is the domain the message was dispatched from and sender
// is the dispatching identity on that domain.
type MessageHandler func(ctx context.Context, origin Domain, sender common.Address, payload []byte) error

// Mailbox is the cross-domain message transport. Delivery is at-least-once:
// a dispatched message is eventually delivered to the recipient on the
// destination domain, possibly more than once and in no particular order.
// Duplicate suppression is the recipient's responsibility.
type Mailbox interface {
	// Dispatch queues payload for delivery to recipient on dest. It returns
	// a message ID on success; a synchronous failure must be surfaced to the
	// caller.
	Dispatch(ctx context.Context, dest Domain, recipient common.Address, payload []byte) (uuid.UUID, error)
}
