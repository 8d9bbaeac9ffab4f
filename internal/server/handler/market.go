package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/polycross/relaybot/internal/domain"
)

// ResolutionService defines the methods that the market handler requires
// from the service layer.
type ResolutionService interface {
	ResolveMarket(ctx context.Context, marketID int64, outcome int64) error
	MarketOutcome(marketID int64) (int64, error)
}

// MarketHandler serves market resolution endpoints.
type MarketHandler struct {
	resolutions ResolutionService
	logger      *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(resolutions ResolutionService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		resolutions: resolutions,
		logger:      logHandler(logger, "markets"),
	}
}

// GetOutcome returns the settled outcome of a market.
// GET /api/markets/{marketId}/outcome
func (h *MarketHandler) GetOutcome(w http.ResponseWriter, r *http.Request) {
	marketID, err := pathID(r, "marketId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	outcome, err := h.resolutions.MarketOutcome(marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not resolved")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read outcome")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": marketID,
		"outcome":   outcome,
	})
}

// ResolveMarket settles a market with a final outcome through the resolver
// identity carried by the service.
// POST /api/markets/{marketId}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	marketID, err := pathID(r, "marketId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req struct {
		Outcome int64 `json:"outcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.resolutions.ResolveMarket(r.Context(), marketID, req.Outcome); err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyResolved):
			writeError(w, http.StatusConflict, "market already resolved")
		case errors.Is(err, domain.ErrInvalidOutcome):
			writeError(w, http.StatusBadRequest, "outcome must be 0 or 1")
		case errors.Is(err, domain.ErrUnauthorized):
			writeError(w, http.StatusForbidden, "caller is not the authorized resolver")
		default:
			h.logger.ErrorContext(r.Context(), "resolve market failed",
				slog.Int64("market_id", marketID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to resolve market")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "resolved",
		"market_id": marketID,
		"outcome":   req.Outcome,
	})
}
