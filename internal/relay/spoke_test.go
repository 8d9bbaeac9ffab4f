package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/polycross/relaybot/internal/domain"
)

// captureMailbox records the last dispatch without delivering anything.
type captureMailbox struct {
	dest      domain.Domain
	recipient common.Address
	payload   []byte
	calls     int
}

func (m *captureMailbox) Dispatch(_ context.Context, dest domain.Domain, recipient common.Address, payload []byte) (uuid.UUID, error) {
	m.dest = dest
	m.recipient = recipient
	m.payload = payload
	m.calls++
	return uuid.New(), nil
}

func TestSpokePlaceOrderDispatchesEncodedPayload(t *testing.T) {
	mb := &captureMailbox{}
	hubAddr := common.HexToAddress("0x4000000000000000000000000000000000000004")
	spoke := NewSpoke(mb, domain.Domain(1), hubAddr, testLogger())

	id, err := spoke.PlaceOrder(context.Background(), 12, 750000, 5_000_000, true)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if id == uuid.Nil {
		t.Error("no dispatch receipt returned")
	}
	if mb.dest != domain.Domain(1) || mb.recipient != hubAddr {
		t.Errorf("dispatched to (%d, %s), want (1, %s)", mb.dest, mb.recipient.Hex(), hubAddr.Hex())
	}

	order, err := DecodeOrder(mb.payload)
	if err != nil {
		t.Fatalf("decode dispatched payload: %v", err)
	}
	if order.MarketID != 12 || order.Price != 750000 || order.Amount != 5_000_000 || !order.IsBuy {
		t.Errorf("payload round trip mismatch: %+v", order)
	}
}

func TestSpokeRejectsInvalidOrderBeforeDispatch(t *testing.T) {
	mb := &captureMailbox{}
	spoke := NewSpoke(mb, domain.Domain(1), testUser, testLogger())

	_, err := spoke.PlaceOrder(context.Background(), 12, 0, 5_000_000, true)
	if !errors.Is(err, domain.ErrInvalidOrder) {
		t.Errorf("err = %v, want ErrInvalidOrder", err)
	}
	if mb.calls != 0 {
		t.Errorf("invalid order reached the mailbox (%d dispatches)", mb.calls)
	}
}
