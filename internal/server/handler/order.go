package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/polycross/relaybot/internal/domain"
)

// OrderService defines the methods that the order handler requires from the
// service layer.
type OrderService interface {
	CreateOrder(ctx context.Context, user common.Address, marketID, price, amount int64, isBuy bool) error
	CancelOrder(ctx context.Context, user common.Address, marketID int64) error
	GetActiveOrders(ctx context.Context) ([]domain.Order, error)
}

// OrderHandler serves order-related HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logHandler(logger, "orders"),
	}
}

// orderView is the JSON shape of an order in API responses.
type orderView struct {
	MarketID  int64     `json:"market_id"`
	User      string    `json:"user"`
	Price     int64     `json:"price"`
	Amount    int64     `json:"amount"`
	IsBuy     bool      `json:"is_buy"`
	Status    string    `json:"status"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toOrderView(o domain.Order) orderView {
	return orderView{
		MarketID:  o.MarketID,
		User:      o.User.Hex(),
		Price:     o.Price,
		Amount:    o.Amount,
		IsBuy:     o.IsBuy,
		Status:    string(o.Status),
		Source:    string(o.Source),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

// placeOrderRequest is the JSON body accepted by PlaceOrder.
type placeOrderRequest struct {
	User     string `json:"user"`
	MarketID int64  `json:"market_id"`
	Price    int64  `json:"price"`
	Amount   int64  `json:"amount"`
	IsBuy    bool   `json:"is_buy"`
}

// ListOrders returns every active order in the book.
// GET /api/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.GetActiveOrders(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, toOrderView(o))
	}
	writeJSON(w, http.StatusOK, map[string][]orderView{"orders": views})
}

// PlaceOrder places or replaces a direct order in the book.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !common.IsHexAddress(req.User) {
		writeError(w, http.StatusBadRequest, "user must be a hex address")
		return
	}

	err := h.orders.CreateOrder(
		r.Context(), common.HexToAddress(req.User),
		req.MarketID, req.Price, req.Amount, req.IsBuy,
	)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOrder) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "place order failed",
			slog.Int64("market_id", req.MarketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to place order")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":    "placed",
		"market_id": req.MarketID,
		"user":      common.HexToAddress(req.User).Hex(),
	})
}

// CancelOrder cancels the caller's order in the given market.
// DELETE /api/orders/{marketId}?user=0x...
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	marketID, err := pathID(r, "marketId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	user := r.URL.Query().Get("user")
	if !common.IsHexAddress(user) {
		writeError(w, http.StatusBadRequest, "user query parameter must be a hex address")
		return
	}

	if err := h.orders.CancelOrder(r.Context(), common.HexToAddress(user), marketID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		if errors.Is(err, domain.ErrUnauthorized) {
			writeError(w, http.StatusForbidden, "not the order owner")
			return
		}
		h.logger.ErrorContext(r.Context(), "cancel order failed",
			slog.Int64("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel order")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "cancelled",
		"market_id": marketID,
	})
}
