package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/polycross/relaybot/internal/domain"
)

var (
	bridgeSender    = common.HexToAddress("0x2000000000000000000000000000000000000002")
	bridgeRecipient = common.HexToAddress("0x1000000000000000000000000000000000000001")
)

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBridge("ws://unused", domain.Domain(5), bridgeSender, logger)
}

// recordingLink accepts every write and hands the envelopes to the test.
type recordingLink struct {
	sent chan Envelope
}

func newRecordingLink() *recordingLink {
	return &recordingLink{sent: make(chan Envelope, 16)}
}

func (l *recordingLink) SetWriteDeadline(time.Time) error { return nil }

func (l *recordingLink) WriteJSON(v any) error {
	l.sent <- v.(Envelope)
	return nil
}

// brokenLink fails every write, as a dead peer would.
type brokenLink struct{}

func (brokenLink) SetWriteDeadline(time.Time) error { return nil }

func (brokenLink) WriteJSON(any) error { return errors.New("broken pipe") }

func TestBridgeDispatchDelivers(t *testing.T) {
	b := newTestBridge(t)

	id, err := b.Dispatch(context.Background(), domain.Domain(1), bridgeRecipient, []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn := newRecordingLink()
	done := make(chan error, 1)
	go func() { done <- b.sendLoop(ctx, conn) }()

	var env Envelope
	select {
	case env = <-conn.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("envelope never written")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("sendLoop err = %v, want context.Canceled", err)
	}

	if env.MessageID != id {
		t.Errorf("message id = %s, want %s", env.MessageID, id)
	}
	if env.Origin != 5 || env.Dest != 1 {
		t.Errorf("domains = %d/%d, want 5/1", env.Origin, env.Dest)
	}
	if env.Sender != bridgeSender.Hex() || env.Recipient != bridgeRecipient.Hex() {
		t.Errorf("addresses = %s/%s", env.Sender, env.Recipient)
	}
}

// A write failure must put the envelope back on the queue so the next
// connection retries it; the dispatcher already holds a receipt for it.
func TestBridgeRequeuesOnWriteFailure(t *testing.T) {
	b := newTestBridge(t)

	id, err := b.Dispatch(context.Background(), domain.Domain(1), bridgeRecipient, []byte{0xaa})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if err := b.sendLoop(context.Background(), brokenLink{}); err == nil {
		t.Fatal("sendLoop returned nil on a dead link")
	}

	select {
	case env := <-b.queue:
		if env.MessageID != id {
			t.Errorf("requeued message id = %s, want %s", env.MessageID, id)
		}
	default:
		t.Fatal("envelope dropped after failed write")
	}
}

// The requeued envelope is delivered on the next connection.
func TestBridgeRedeliversAfterWriteFailure(t *testing.T) {
	b := newTestBridge(t)

	id, err := b.Dispatch(context.Background(), domain.Domain(1), bridgeRecipient, []byte{0xbb})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if err := b.sendLoop(context.Background(), brokenLink{}); err == nil {
		t.Fatal("sendLoop returned nil on a dead link")
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn := newRecordingLink()
	done := make(chan error, 1)
	go func() { done <- b.sendLoop(ctx, conn) }()

	var env Envelope
	select {
	case env = <-conn.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("envelope never redelivered")
	}
	cancel()
	<-done

	if env.MessageID != id {
		t.Errorf("redelivered message id = %s, want %s", env.MessageID, id)
	}
}
