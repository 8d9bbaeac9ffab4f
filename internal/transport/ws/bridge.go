package ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/polycross/relaybot/internal/domain"
)

const (
	writeTimeout   = 10 * time.Second
	reconnectDelay = 2 * time.Second
	queueSize      = 256
)

// Bridge is the origin-side mailbox over a websocket link to the hub
// process. Dispatched envelopes go through an outbound queue that survives
// reconnects; an envelope is dropped from the queue only after a successful
// write, so a flaky link yields duplicate delivery rather than loss
// (at-least-once, matching the mailbox contract).
type Bridge struct {
	url    string
	origin domain.Domain
	sender common.Address
	logger *slog.Logger

	queue chan Envelope

	mu     sync.Mutex
	closed bool
}

// NewBridge creates a Bridge dialing the hub listener at url, dispatching
// from the given origin domain and sender identity. Call Run to connect.
func NewBridge(url string, origin domain.Domain, sender common.Address, logger *slog.Logger) *Bridge {
	return &Bridge{
		url:    url,
		origin: origin,
		sender: sender,
		logger: logger.With(slog.String("component", "ws_bridge")),
		queue:  make(chan Envelope, queueSize),
	}
}

// Dispatch queues the payload for delivery over the link. It fails
// synchronously when the outbound queue is full or the bridge is closed;
// delivery itself is asynchronous.
func (b *Bridge) Dispatch(ctx context.Context, dest domain.Domain, recipient common.Address, payload []byte) (uuid.UUID, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return uuid.Nil, fmt.Errorf("ws: bridge closed")
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)

	env := Envelope{
		MessageID: uuid.New(),
		Origin:    uint32(b.origin),
		Sender:    b.sender.Hex(),
		Dest:      uint32(dest),
		Recipient: recipient.Hex(),
		Payload:   buf,
	}

	select {
	case b.queue <- env:
		return env.MessageID, nil
	case <-ctx.Done():
		return uuid.Nil, fmt.Errorf("ws: dispatch: %w", ctx.Err())
	default:
		return uuid.Nil, fmt.Errorf("ws: dispatch: outbound queue full")
	}
}

// Run maintains the connection and drains the outbound queue until the
// context is cancelled. Reconnects with a fixed delay on disconnect.
func (b *Bridge) Run(ctx context.Context) error {
	defer func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := b.runConnection(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("bridge disconnected, reconnecting",
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (b *Bridge) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, b.url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("ws: dial %s: %w", b.url, err)
	}
	defer conn.Close()

	b.logger.Info("bridge connected", slog.String("url", b.url))

	return b.sendLoop(ctx, conn)
}

// link is the subset of *websocket.Conn the send loop needs.
type link interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v any) error
}

func (b *Bridge) sendLoop(ctx context.Context, conn link) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-b.queue:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(env); err != nil {
				// Requeue so the envelope goes out after reconnect. The
				// caller already holds a dispatch receipt, so block until a
				// slot frees rather than drop; this loop is returning to the
				// redial loop anyway.
				select {
				case b.queue <- env:
				case <-ctx.Done():
				}
				return fmt.Errorf("ws: write envelope: %w", err)
			}
			b.logger.Debug("envelope sent",
				slog.String("message_id", env.MessageID.String()),
				slog.Uint64("dest", uint64(env.Dest)),
			)
		}
	}
}

// Compile-time interface check.
var _ domain.Mailbox = (*Bridge)(nil)
