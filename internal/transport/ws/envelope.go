// Package ws carries mailbox messages between the origin and destination
// domain processes over a websocket link: a dialing bridge on the spoke side
// implements the mailbox, and a listener on the hub side feeds delivered
// envelopes into the hub's message handler.
package ws

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/polycross/relaybot/internal/domain"
)

// Envelope is the wire frame for one relayed message. Payload is the opaque
// mailbox payload; JSON base64-encodes it.
type Envelope struct {
	MessageID uuid.UUID `json:"message_id"`
	Origin    uint32    `json:"origin"`
	Sender    string    `json:"sender"`
	Dest      uint32    `json:"dest"`
	Recipient string    `json:"recipient"`
	Payload   []byte    `json:"payload"`
}

// Validate checks the envelope's address fields.
func (e Envelope) Validate() error {
	if e.MessageID == uuid.Nil {
		return fmt.Errorf("%w: envelope missing message id", domain.ErrDecode)
	}
	if !common.IsHexAddress(e.Sender) {
		return fmt.Errorf("%w: envelope sender %q", domain.ErrDecode, e.Sender)
	}
	if !common.IsHexAddress(e.Recipient) {
		return fmt.Errorf("%w: envelope recipient %q", domain.ErrDecode, e.Recipient)
	}
	return nil
}
