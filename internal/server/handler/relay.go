package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/polycross/relaybot/internal/domain"
)

// OrderRelay defines the spoke-side operation the relay handler requires.
type OrderRelay interface {
	PlaceOrder(ctx context.Context, marketID, price, amount int64, isBuy bool) (uuid.UUID, error)
}

// RelayHandler accepts orders on a spoke and forwards them to the hub.
type RelayHandler struct {
	relay  OrderRelay
	logger *slog.Logger
}

// NewRelayHandler creates a RelayHandler with the given spoke and logger.
func NewRelayHandler(relay OrderRelay, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		relay:  relay,
		logger: logHandler(logger, "relay"),
	}
}

// PlaceOrder dispatches a relay message carrying the order to the hub. The
// message ID in the response can be used to correlate delivery logs.
// POST /api/relay/orders
func (h *RelayHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MarketID int64 `json:"market_id"`
		Price    int64 `json:"price"`
		Amount   int64 `json:"amount"`
		IsBuy    bool  `json:"is_buy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, err := h.relay.PlaceOrder(r.Context(), req.MarketID, req.Price, req.Amount, req.IsBuy)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOrder) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "relay order failed",
			slog.Int64("market_id", req.MarketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to dispatch order")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":     "dispatched",
		"message_id": id.String(),
		"market_id":  req.MarketID,
	})
}
