package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/polycross/relaybot/internal/domain"
)

// Listener is the destination-side end of the link. It accepts bridge
// connections, reads envelopes, and hands each one to the registered
// handler for its recipient. Envelope-level failures (bad frame, unknown
// recipient, handler rejection) are logged and do not tear the
// connection down.
type Listener struct {
	addr     string
	localDom domain.Domain
	logger   *slog.Logger

	upgrader websocket.Upgrader
	handlers map[common.Address]domain.MessageHandler
}

// NewListener creates a Listener serving the local domain on addr.
// Handlers must be registered before Run.
func NewListener(addr string, localDom domain.Domain, logger *slog.Logger) *Listener {
	return &Listener{
		addr:     addr,
		localDom: localDom,
		logger:   logger.With(slog.String("component", "ws_listener")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		handlers: make(map[common.Address]domain.MessageHandler),
	}
}

// Register installs the delivery handler for a local recipient address.
func (l *Listener) Register(addr common.Address, h domain.MessageHandler) {
	l.handlers[addr] = h
}

// Run serves until the context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/relay", func(w http.ResponseWriter, r *http.Request) {
		l.handleConn(ctx, w, r)
	})

	srv := &http.Server{
		Addr:        l.addr,
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	l.logger.Info("listener serving", slog.String("addr", l.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ws: listener: %w", err)
	}
}

func (l *Listener) handleConn(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	l.logger.Info("bridge connection accepted", slog.String("remote", conn.RemoteAddr().String()))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.logger.Warn("bridge connection lost", slog.String("error", err.Error()))
			}
			return
		}
		l.deliver(ctx, env)
	}
}

func (l *Listener) deliver(ctx context.Context, env Envelope) {
	if err := env.Validate(); err != nil {
		l.logger.Error("invalid envelope dropped", slog.String("error", err.Error()))
		return
	}
	if domain.Domain(env.Dest) != l.localDom {
		l.logger.Error("envelope for foreign domain dropped",
			slog.String("message_id", env.MessageID.String()),
			slog.Uint64("dest", uint64(env.Dest)),
		)
		return
	}

	recipient := common.HexToAddress(env.Recipient)
	h, ok := l.handlers[recipient]
	if !ok {
		l.logger.Warn("no handler for recipient, envelope dropped",
			slog.String("message_id", env.MessageID.String()),
			slog.String("recipient", recipient.Hex()),
		)
		return
	}

	sender := common.HexToAddress(env.Sender)
	if err := h(ctx, domain.Domain(env.Origin), sender, env.Payload); err != nil {
		l.logger.Error("delivery handler rejected envelope",
			slog.String("message_id", env.MessageID.String()),
			slog.Uint64("origin", uint64(env.Origin)),
			slog.String("sender", sender.Hex()),
			slog.String("error", err.Error()),
		)
	}
}
