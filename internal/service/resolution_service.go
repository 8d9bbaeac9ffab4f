package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/polycross/relaybot/internal/relay"
)

// ResolutionService submits settlements to the hub under the configured
// resolver identity. It is the bot's settlement dependency.
type ResolutionService struct {
	hub      *relay.Hub
	resolver common.Address
	logger   *slog.Logger
}

// NewResolutionService creates a ResolutionService settling as resolver.
func NewResolutionService(hub *relay.Hub, resolver common.Address, logger *slog.Logger) *ResolutionService {
	return &ResolutionService{
		hub:      hub,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "resolution_service")),
	}
}

// ResolveMarket records outcome for marketID on the hub.
func (s *ResolutionService) ResolveMarket(ctx context.Context, marketID int64, outcome int64) error {
	if err := s.hub.ResolveMarket(ctx, s.resolver, marketID, outcome); err != nil {
		return fmt.Errorf("service: resolve market %d: %w", marketID, err)
	}
	return nil
}

// MarketOutcome returns the settled outcome for marketID.
func (s *ResolutionService) MarketOutcome(marketID int64) (int64, error) {
	return s.hub.MarketOutcome(marketID)
}
