package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/polycross/relaybot/internal/domain"
	"github.com/polycross/relaybot/internal/store/memory"
)

var (
	testResolver = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testSpoke    = common.HexToAddress("0x2000000000000000000000000000000000000002")
	testUser     = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

const spokeDomain = domain.Domain(5)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(t *testing.T) (*Hub, domain.OrderBook) {
	t.Helper()
	book := memory.NewOrderBook()
	hub := NewHub(book, testResolver, testLogger())
	hub.TrustSpoke(spokeDomain, testSpoke)
	return hub, book
}

func mustEncode(t *testing.T, o domain.Order) []byte {
	t.Helper()
	payload, err := EncodeOrder(o)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return payload
}

func TestHubDirectPlacement(t *testing.T) {
	hub, book := newTestHub(t)
	ctx := context.Background()

	if err := hub.PlaceOrder(ctx, testUser, 7, 500000, 2_000_000, true); err != nil {
		t.Fatalf("place: %v", err)
	}

	got, err := book.Get(ctx, domain.OrderKey{MarketID: 7, User: testUser})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Source != domain.OrderSourceDirect {
		t.Errorf("source = %q, want direct", got.Source)
	}
	if got.Status != domain.OrderStatusActive {
		t.Errorf("status = %q, want active", got.Status)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestHubRelayedOrderAttributedToSender(t *testing.T) {
	hub, book := newTestHub(t)
	ctx := context.Background()

	payload := mustEncode(t, domain.Order{MarketID: 3, Price: 400000, Amount: 1_500_000, IsBuy: false})
	if err := hub.HandleMessage(ctx, spokeDomain, testSpoke, payload); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, err := book.Get(ctx, domain.OrderKey{MarketID: 3, User: testSpoke})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.User != testSpoke {
		t.Errorf("user = %s, want sender %s", got.User.Hex(), testSpoke.Hex())
	}
	if got.Source != domain.OrderSourceRelayed {
		t.Errorf("source = %q, want relayed", got.Source)
	}
}

func TestHubRejectsUntrustedSender(t *testing.T) {
	hub, book := newTestHub(t)
	ctx := context.Background()
	payload := mustEncode(t, domain.Order{MarketID: 3, Price: 1, Amount: 1})

	// Wrong sender on a trusted domain.
	err := hub.HandleMessage(ctx, spokeDomain, testUser, payload)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("wrong sender: err = %v, want ErrUnauthorized", err)
	}

	// Right sender on an untrusted domain.
	err = hub.HandleMessage(ctx, domain.Domain(99), testSpoke, payload)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("wrong domain: err = %v, want ErrUnauthorized", err)
	}

	orders, err := book.ListActive(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("rejected messages mutated the book: %d orders", len(orders))
	}
}

func TestHubRejectsMalformedPayload(t *testing.T) {
	hub, book := newTestHub(t)
	ctx := context.Background()

	err := hub.HandleMessage(ctx, spokeDomain, testSpoke, []byte("not a valid payload"))
	if !errors.Is(err, domain.ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}

	orders, _ := book.ListActive(ctx)
	if len(orders) != 0 {
		t.Errorf("malformed payload mutated the book: %d orders", len(orders))
	}
}

func TestHubDuplicateDeliveryIdempotent(t *testing.T) {
	hub, book := newTestHub(t)
	ctx := context.Background()
	payload := mustEncode(t, domain.Order{MarketID: 3, Price: 400000, Amount: 1_500_000, IsBuy: true})

	for i := 0; i < 3; i++ {
		if err := hub.HandleMessage(ctx, spokeDomain, testSpoke, payload); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	orders, err := book.ListActive(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("got %d orders after duplicate delivery, want 1", len(orders))
	}
	if orders[0].Price != 400000 || orders[0].Amount != 1_500_000 {
		t.Errorf("order mutated by redelivery: %+v", orders[0])
	}
}

func TestHubLastWriteWins(t *testing.T) {
	hub, book := newTestHub(t)
	ctx := context.Background()

	if err := hub.PlaceOrder(ctx, testUser, 9, 100, 100, true); err != nil {
		t.Fatalf("first place: %v", err)
	}
	if err := hub.PlaceOrder(ctx, testUser, 9, 200, 300, false); err != nil {
		t.Fatalf("second place: %v", err)
	}

	got, err := book.Get(ctx, domain.OrderKey{MarketID: 9, User: testUser})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Price != 200 || got.Amount != 300 || got.IsBuy {
		t.Errorf("second write did not win: %+v", got)
	}

	orders, _ := book.ListActive(ctx)
	if len(orders) != 1 {
		t.Errorf("got %d orders, want 1", len(orders))
	}
}

func TestHubOverwriteKeepsPlacementTime(t *testing.T) {
	hub, book := newTestHub(t)
	ctx := context.Background()

	if err := hub.PlaceOrder(ctx, testUser, 9, 100, 100, true); err != nil {
		t.Fatalf("first place: %v", err)
	}
	first, err := book.Get(ctx, domain.OrderKey{MarketID: 9, User: testUser})
	if err != nil {
		t.Fatalf("get first: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if err := hub.PlaceOrder(ctx, testUser, 9, 200, 300, false); err != nil {
		t.Fatalf("second place: %v", err)
	}

	got, err := book.Get(ctx, domain.OrderKey{MarketID: 9, User: testUser})
	if err != nil {
		t.Fatalf("get second: %v", err)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt = %s, want original %s", got.CreatedAt, first.CreatedAt)
	}
	if !got.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("UpdatedAt = %s, want later than %s", got.UpdatedAt, first.UpdatedAt)
	}
}

func TestHubCancelOrder(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	if err := hub.PlaceOrder(ctx, testUser, 4, 100, 100, true); err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := hub.CancelOrder(ctx, testUser, 4); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	orders, _ := hub.ActiveOrders(ctx)
	if len(orders) != 0 {
		t.Errorf("cancelled order still active")
	}

	// Cancelling for a user with no order in the market is not found.
	if err := hub.CancelOrder(ctx, testSpoke, 4); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestHubResolveMarketOnce(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	if err := hub.ResolveMarket(ctx, testResolver, 11, domain.OutcomeYes); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	outcome, err := hub.MarketOutcome(11)
	if err != nil {
		t.Fatalf("outcome: %v", err)
	}
	if outcome != domain.OutcomeYes {
		t.Errorf("outcome = %d, want %d", outcome, domain.OutcomeYes)
	}

	// Second resolution attempt must fail, even with a different outcome.
	err = hub.ResolveMarket(ctx, testResolver, 11, domain.OutcomeNo)
	if !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Errorf("err = %v, want ErrAlreadyResolved", err)
	}
	if outcome, _ := hub.MarketOutcome(11); outcome != domain.OutcomeYes {
		t.Errorf("outcome flipped to %d after rejected re-resolution", outcome)
	}
}

func TestHubResolveMarketAuthorization(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	err := hub.ResolveMarket(ctx, testUser, 11, domain.OutcomeYes)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
	if _, err := hub.MarketOutcome(11); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unauthorized call recorded an outcome: %v", err)
	}
}

func TestHubResolveMarketRejectsBadOutcome(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	for _, outcome := range []int64{-1, 2, 100} {
		err := hub.ResolveMarket(ctx, testResolver, 11, outcome)
		if !errors.Is(err, domain.ErrInvalidOutcome) {
			t.Errorf("outcome %d: err = %v, want ErrInvalidOutcome", outcome, err)
		}
	}
}
