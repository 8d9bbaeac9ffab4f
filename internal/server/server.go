// Package server provides the admin HTTP API for the relay. It exposes the
// order book, market resolution, and spoke-side order submission, depending
// on which handlers the operating mode wires in.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/polycross/relaybot/internal/domain"
	"github.com/polycross/relaybot/internal/server/handler"
	"github.com/polycross/relaybot/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Limiter, when non-nil, applies per-client request limiting.
	Limiter       domain.RateLimiter
	RequestLimit  int
	RequestWindow time.Duration
}

// Handlers aggregates the HTTP handlers that the server registers. Nil
// fields are skipped, so each operating mode wires only what it runs.
type Handlers struct {
	Health  *handler.HealthHandler
	Orders  *handler.OrderHandler
	Markets *handler.MarketHandler
	Relay   *handler.RelayHandler
}

// Server is the headless HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all available routes registered on the ServeMux
// and the middleware chain (auth, logging, CORS, rate limiting) applied.
func New(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}
	if handlers.Orders != nil {
		mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
		mux.HandleFunc("POST /api/orders", handlers.Orders.PlaceOrder)
		mux.HandleFunc("DELETE /api/orders/{marketId}", handlers.Orders.CancelOrder)
	}
	if handlers.Markets != nil {
		mux.HandleFunc("GET /api/markets/{marketId}/outcome", handlers.Markets.GetOutcome)
		mux.HandleFunc("POST /api/markets/{marketId}/resolve", handlers.Markets.ResolveMarket)
	}
	if handlers.Relay != nil {
		mux.HandleFunc("POST /api/relay/orders", handlers.Relay.PlaceOrder)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if cfg.Limiter != nil {
		limit := cfg.RequestLimit
		if limit <= 0 {
			limit = 100
		}
		window := cfg.RequestWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(cfg.Limiter, limit, window)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
