package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/polycross/relaybot/internal/domain"
)

// envelope is one queued delivery inside the in-process mailbox.
type envelope struct {
	id        uuid.UUID
	origin    domain.Domain
	sender    common.Address
	dest      domain.Domain
	recipient common.Address
	payload   []byte
}

// recipientKey routes deliveries to a registered handler.
type recipientKey struct {
	dom  domain.Domain
	addr common.Address
}

// InprocMailbox is an in-process Mailbox for single-binary deployments and
// tests. Delivery is asynchronous, at-least-once, and unordered with respect
// to other senders; handler errors are logged, not retried (the sender-side
// idempotency of the hub makes redelivery safe but unnecessary here).
type InprocMailbox struct {
	origin domain.Domain
	sender common.Address
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[recipientKey]domain.MessageHandler

	queue chan envelope
	done  chan struct{}

	// duplicates asks the mailbox to deliver every message twice. Exercised
	// by tests to verify recipient idempotency under at-least-once delivery.
	duplicates bool
}

// NewInprocMailbox creates an in-process mailbox dispatching from the given
// origin domain and sender identity. Call Run to start delivery.
func NewInprocMailbox(origin domain.Domain, sender common.Address, logger *slog.Logger) *InprocMailbox {
	return &InprocMailbox{
		origin:   origin,
		sender:   sender,
		logger:   logger.With(slog.String("component", "inproc_mailbox")),
		handlers: make(map[recipientKey]domain.MessageHandler),
		queue:    make(chan envelope, 256),
		done:     make(chan struct{}),
	}
}

// Register installs the delivery handler for a recipient address on a domain.
// A second registration for the same recipient replaces the first.
func (m *InprocMailbox) Register(dom domain.Domain, addr common.Address, h domain.MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[recipientKey{dom: dom, addr: addr}] = h
}

// Dispatch queues payload for delivery. It fails synchronously if the mailbox
// has been closed or the queue is full.
func (m *InprocMailbox) Dispatch(ctx context.Context, dest domain.Domain, recipient common.Address, payload []byte) (uuid.UUID, error) {
	id := uuid.New()
	buf := make([]byte, len(payload))
	copy(buf, payload)

	env := envelope{
		id:        id,
		origin:    m.origin,
		sender:    m.sender,
		dest:      dest,
		recipient: recipient,
		payload:   buf,
	}

	select {
	case <-m.done:
		return uuid.Nil, fmt.Errorf("relay: mailbox closed")
	case <-ctx.Done():
		return uuid.Nil, fmt.Errorf("relay: dispatch: %w", ctx.Err())
	case m.queue <- env:
	default:
		return uuid.Nil, fmt.Errorf("relay: dispatch: delivery queue full")
	}

	if m.duplicates {
		select {
		case m.queue <- env:
		default:
		}
	}

	return id, nil
}

// Run delivers queued messages until the context is cancelled. It drains the
// queue before returning so a dispatched message is not lost on shutdown.
func (m *InprocMailbox) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			close(m.done)
			m.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case env := <-m.queue:
			m.deliver(ctx, env)
		}
	}
}

func (m *InprocMailbox) drain(ctx context.Context) {
	for {
		select {
		case env := <-m.queue:
			m.deliver(ctx, env)
		default:
			return
		}
	}
}

func (m *InprocMailbox) deliver(ctx context.Context, env envelope) {
	m.mu.RLock()
	h, ok := m.handlers[recipientKey{dom: env.dest, addr: env.recipient}]
	m.mu.RUnlock()

	if !ok {
		m.logger.WarnContext(ctx, "no handler for recipient, message dropped",
			slog.String("message_id", env.id.String()),
			slog.Uint64("dest_domain", uint64(env.dest)),
			slog.String("recipient", env.recipient.Hex()),
		)
		return
	}

	if err := h(ctx, env.origin, env.sender, env.payload); err != nil {
		m.logger.ErrorContext(ctx, "delivery handler rejected message",
			slog.String("message_id", env.id.String()),
			slog.Uint64("origin_domain", uint64(env.origin)),
			slog.String("sender", env.sender.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

// Compile-time interface check.
var _ domain.Mailbox = (*InprocMailbox)(nil)
