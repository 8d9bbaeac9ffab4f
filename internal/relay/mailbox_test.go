package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/polycross/relaybot/internal/domain"
	"github.com/polycross/relaybot/internal/store/memory"
)

// collector records deliveries for assertions.
type collector struct {
	mu       sync.Mutex
	payloads [][]byte
	senders  []common.Address
}

func (c *collector) handle(_ context.Context, _ domain.Domain, sender common.Address, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
	c.senders = append(c.senders, sender)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestInprocMailboxDelivers(t *testing.T) {
	m := NewInprocMailbox(spokeDomain, testSpoke, testLogger())
	var c collector
	m.Register(domain.Domain(1), testUser, c.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	id, err := m.Dispatch(ctx, domain.Domain(1), testUser, []byte("hello"))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if id == uuid.Nil {
		t.Error("dispatch returned nil message id")
	}

	waitFor(t, func() bool { return c.count() == 1 })
	if string(c.payloads[0]) != "hello" {
		t.Errorf("payload = %q", c.payloads[0])
	}
	if c.senders[0] != testSpoke {
		t.Errorf("sender = %s, want %s", c.senders[0].Hex(), testSpoke.Hex())
	}

	cancel()
	<-done
}

func TestInprocMailboxUnknownRecipientDropped(t *testing.T) {
	m := NewInprocMailbox(spokeDomain, testSpoke, testLogger())
	var c collector
	m.Register(domain.Domain(1), testUser, c.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	if _, err := m.Dispatch(ctx, domain.Domain(2), testUser, []byte("lost")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, err := m.Dispatch(ctx, domain.Domain(1), testUser, []byte("kept")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	waitFor(t, func() bool { return c.count() == 1 })
	if string(c.payloads[0]) != "kept" {
		t.Errorf("payload = %q, want %q", c.payloads[0], "kept")
	}

	cancel()
	<-done
}

func TestInprocMailboxDrainsOnShutdown(t *testing.T) {
	m := NewInprocMailbox(spokeDomain, testSpoke, testLogger())
	var c collector
	m.Register(domain.Domain(1), testUser, c.handle)

	// Queue messages before Run starts, then cancel immediately: the drain
	// pass must still deliver them.
	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 5; i++ {
		if _, err := m.Dispatch(ctx, domain.Domain(1), testUser, []byte{byte(i)}); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	cancel()

	if err := m.Run(ctx); err != context.Canceled {
		t.Errorf("run err = %v, want context.Canceled", err)
	}
	if c.count() != 5 {
		t.Errorf("delivered %d messages on drain, want 5", c.count())
	}
}

func TestInprocMailboxDuplicateDelivery(t *testing.T) {
	m := NewInprocMailbox(spokeDomain, testSpoke, testLogger())
	m.duplicates = true

	hub := NewHub(memory.NewOrderBook(), testResolver, testLogger())
	hub.TrustSpoke(spokeDomain, testSpoke)

	var c collector
	wrapped := func(ctx context.Context, origin domain.Domain, sender common.Address, payload []byte) error {
		_ = c.handle(ctx, origin, sender, payload)
		return hub.HandleMessage(ctx, origin, sender, payload)
	}
	m.Register(domain.Domain(1), testUser, wrapped)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	payload := mustEncode(t, domain.Order{MarketID: 3, Price: 400000, Amount: 1_500_000, IsBuy: true})
	if _, err := m.Dispatch(ctx, domain.Domain(1), testUser, payload); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	waitFor(t, func() bool { return c.count() == 2 })

	orders, err := hub.ActiveOrders(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 1 {
		t.Errorf("duplicate delivery produced %d orders, want 1", len(orders))
	}

	cancel()
	<-done
}
