package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/polycross/relaybot/internal/domain"
)

type fakeOrderService struct {
	orders    []domain.Order
	created   []domain.Order
	cancelErr error
	createErr error
}

func (s *fakeOrderService) CreateOrder(_ context.Context, user common.Address, marketID, price, amount int64, isBuy bool) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, domain.Order{
		MarketID: marketID, User: user, Price: price, Amount: amount, IsBuy: isBuy,
	})
	return nil
}

func (s *fakeOrderService) CancelOrder(_ context.Context, _ common.Address, _ int64) error {
	return s.cancelErr
}

func (s *fakeOrderService) GetActiveOrders(_ context.Context) ([]domain.Order, error) {
	return s.orders, nil
}

type fakeResolutionService struct {
	outcomes   map[int64]int64
	resolveErr error
	resolved   map[int64]int64
}

func (s *fakeResolutionService) ResolveMarket(_ context.Context, marketID, outcome int64) error {
	if s.resolveErr != nil {
		return s.resolveErr
	}
	if s.resolved == nil {
		s.resolved = make(map[int64]int64)
	}
	s.resolved[marketID] = outcome
	return nil
}

func (s *fakeResolutionService) MarketOutcome(marketID int64) (int64, error) {
	outcome, ok := s.outcomes[marketID]
	if !ok {
		return 0, fmt.Errorf("%w: market %d", domain.ErrNotFound, marketID)
	}
	return outcome, nil
}

type fakeRelay struct {
	id  uuid.UUID
	err error
}

func (s *fakeRelay) PlaceOrder(context.Context, int64, int64, int64, bool) (uuid.UUID, error) {
	return s.id, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testMux registers the handlers under the same patterns the server uses.
func testMux(orders *fakeOrderService, resolutions *fakeResolutionService, relay *fakeRelay) *http.ServeMux {
	mux := http.NewServeMux()
	if orders != nil {
		h := NewOrderHandler(orders, quietLogger())
		mux.HandleFunc("GET /api/orders", h.ListOrders)
		mux.HandleFunc("POST /api/orders", h.PlaceOrder)
		mux.HandleFunc("DELETE /api/orders/{marketId}", h.CancelOrder)
	}
	if resolutions != nil {
		h := NewMarketHandler(resolutions, quietLogger())
		mux.HandleFunc("GET /api/markets/{marketId}/outcome", h.GetOutcome)
		mux.HandleFunc("POST /api/markets/{marketId}/resolve", h.ResolveMarket)
	}
	if relay != nil {
		h := NewRelayHandler(relay, quietLogger())
		mux.HandleFunc("POST /api/relay/orders", h.PlaceOrder)
	}
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestListOrders(t *testing.T) {
	orders := &fakeOrderService{orders: []domain.Order{
		{MarketID: 42, User: common.HexToAddress("0x1111000000000000000000000000000000000001"), Price: 650_000, Amount: 1, Status: domain.OrderStatusActive},
	}}
	rec := doRequest(t, testMux(orders, nil, nil), http.MethodGet, "/api/orders", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Orders []orderView `json:"orders"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].MarketID != 42 {
		t.Errorf("orders = %+v, want one order for market 42", resp.Orders)
	}
}

func TestPlaceOrder(t *testing.T) {
	orders := &fakeOrderService{}
	mux := testMux(orders, nil, nil)

	body := `{"user":"0x1111000000000000000000000000000000000001","market_id":42,"price":650000,"amount":1000000,"is_buy":true}`
	rec := doRequest(t, mux, http.MethodPost, "/api/orders", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if len(orders.created) != 1 || orders.created[0].MarketID != 42 {
		t.Errorf("created = %+v, want one order for market 42", orders.created)
	}

	rec = doRequest(t, mux, http.MethodPost, "/api/orders", `{"user":"not-an-address","market_id":42}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad address: status = %d, want 400", rec.Code)
	}

	orders.createErr = fmt.Errorf("%w: price must be positive", domain.ErrInvalidOrder)
	rec = doRequest(t, mux, http.MethodPost, "/api/orders", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid order: status = %d, want 400", rec.Code)
	}
}

func TestCancelOrder(t *testing.T) {
	orders := &fakeOrderService{}
	mux := testMux(orders, nil, nil)
	path := "/api/orders/42?user=0x1111000000000000000000000000000000000001"

	rec := doRequest(t, mux, http.MethodDelete, path, "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	orders.cancelErr = fmt.Errorf("%w: order 42", domain.ErrNotFound)
	rec = doRequest(t, mux, http.MethodDelete, path, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown order: status = %d, want 404", rec.Code)
	}

	orders.cancelErr = fmt.Errorf("%w: not the owner", domain.ErrUnauthorized)
	rec = doRequest(t, mux, http.MethodDelete, path, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("foreign order: status = %d, want 403", rec.Code)
	}

	rec = doRequest(t, mux, http.MethodDelete, "/api/orders/42", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing user: status = %d, want 400", rec.Code)
	}
}

func TestGetOutcome(t *testing.T) {
	resolutions := &fakeResolutionService{outcomes: map[int64]int64{42: 1}}
	mux := testMux(nil, resolutions, nil)

	rec := doRequest(t, mux, http.MethodGet, "/api/markets/42/outcome", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Outcome int64 `json:"outcome"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Outcome != 1 {
		t.Errorf("outcome = %d, want 1", resp.Outcome)
	}

	rec = doRequest(t, mux, http.MethodGet, "/api/markets/99/outcome", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unresolved market: status = %d, want 404", rec.Code)
	}
}

func TestResolveMarket(t *testing.T) {
	resolutions := &fakeResolutionService{}
	mux := testMux(nil, resolutions, nil)

	rec := doRequest(t, mux, http.MethodPost, "/api/markets/42/resolve", `{"outcome":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if resolutions.resolved[42] != 1 {
		t.Errorf("resolved = %v, want market 42 outcome 1", resolutions.resolved)
	}

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"already resolved", fmt.Errorf("%w: market 42", domain.ErrAlreadyResolved), http.StatusConflict},
		{"invalid outcome", fmt.Errorf("%w: got 7", domain.ErrInvalidOutcome), http.StatusBadRequest},
		{"unauthorized", fmt.Errorf("%w: wrong caller", domain.ErrUnauthorized), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resolutions.resolveErr = tc.err
			rec := doRequest(t, mux, http.MethodPost, "/api/markets/42/resolve", `{"outcome":1}`)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestRelayPlaceOrder(t *testing.T) {
	relay := &fakeRelay{id: uuid.New()}
	mux := testMux(nil, nil, relay)

	rec := doRequest(t, mux, http.MethodPost, "/api/relay/orders", `{"market_id":42,"price":650000,"amount":1000000,"is_buy":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.MessageID != relay.id.String() {
		t.Errorf("message_id = %q, want %q", resp.MessageID, relay.id)
	}

	relay.err = fmt.Errorf("%w: price must be positive", domain.ErrInvalidOrder)
	rec = doRequest(t, mux, http.MethodPost, "/api/relay/orders", `{"market_id":42}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid order: status = %d, want 400", rec.Code)
	}
}
