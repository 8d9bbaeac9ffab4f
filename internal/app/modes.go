package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/polycross/relaybot/internal/bot"
	"github.com/polycross/relaybot/internal/domain"
	"github.com/polycross/relaybot/internal/oracle"
	"github.com/polycross/relaybot/internal/ratelimit"
	"github.com/polycross/relaybot/internal/relay"
	"github.com/polycross/relaybot/internal/server"
	"github.com/polycross/relaybot/internal/server/handler"
	"github.com/polycross/relaybot/internal/service"
	tws "github.com/polycross/relaybot/internal/transport/ws"
)

// HubMode runs the destination side: the hub applies relayed and direct
// orders to the book, the websocket listener accepts spoke connections, and
// the admin API exposes the book and manual resolution.
func (a *App) HubMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting hub mode",
		slog.String("listen_addr", a.cfg.Relay.ListenAddr),
	)

	g, ctx := errgroup.WithContext(ctx)

	hub := relay.NewHub(deps.OrderBook, deps.ResolverAddress, a.logger)
	hub.TrustSpoke(
		domain.Domain(a.cfg.Relay.SpokeDomain),
		common.HexToAddress(a.cfg.Relay.SpokeAddress),
	)

	listener := tws.NewListener(
		a.cfg.Relay.ListenAddr,
		domain.Domain(a.cfg.Relay.LocalDomain),
		a.logger,
	)
	listener.Register(common.HexToAddress(a.cfg.Relay.HubAddress), hub.HandleMessage)
	g.Go(func() error {
		return listener.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		orderSvc := service.NewOrderService(hub, deps.Bus, a.logger)
		resolutionSvc := service.NewResolutionService(hub, deps.ResolverAddress, a.logger)
		a.startAPIServer(ctx, g, server.Handlers{
			Health:  handler.NewHealthHandler(a.cfg.Mode, a.logger),
			Orders:  handler.NewOrderHandler(orderSvc, a.logger),
			Markets: handler.NewMarketHandler(resolutionSvc, a.logger),
		})
	}

	a.startBookSnapshots(ctx, g, hub, deps)

	return g.Wait()
}

// SpokeMode runs the origin side: orders submitted through the admin API are
// encoded and dispatched over the websocket bridge to the hub.
func (a *App) SpokeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting spoke mode",
		slog.String("bridge_url", a.cfg.Relay.BridgeURL),
	)

	g, ctx := errgroup.WithContext(ctx)

	bridge := tws.NewBridge(
		a.cfg.Relay.BridgeURL,
		domain.Domain(a.cfg.Relay.LocalDomain),
		common.HexToAddress(a.cfg.Relay.SpokeAddress),
		a.logger,
	)
	g.Go(func() error {
		return bridge.Run(ctx)
	})

	spoke := relay.NewSpoke(
		bridge,
		domain.Domain(a.cfg.Relay.HubDomain),
		common.HexToAddress(a.cfg.Relay.HubAddress),
		a.logger,
	)

	if a.cfg.Server.Enabled {
		a.startAPIServer(ctx, g, server.Handlers{
			Health: handler.NewHealthHandler(a.cfg.Mode, a.logger),
			Relay:  handler.NewRelayHandler(spoke, a.logger),
		})
	} else {
		a.logger.WarnContext(ctx, "spoke mode without the admin API has no order source")
	}

	return g.Wait()
}

// ResolveMode runs the resolution bot against the shared book: outcomes are
// fetched from the oracles and settled through the hub's resolution path.
func (a *App) ResolveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting resolve mode",
		slog.Int("markets", len(a.cfg.Bot.Markets)),
	)

	g, ctx := errgroup.WithContext(ctx)

	hub := relay.NewHub(deps.OrderBook, deps.ResolverAddress, a.logger)
	resolutionSvc := service.NewResolutionService(hub, deps.ResolverAddress, a.logger)

	g.Go(func() error {
		return a.buildBot(deps, resolutionSvc).Run(ctx)
	})

	return g.Wait()
}

// FullMode runs everything in one process: spoke and hub joined by the
// in-process mailbox, the resolution bot, and the admin API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	hubDom := domain.Domain(a.cfg.Relay.HubDomain)
	hubAddr := common.HexToAddress(a.cfg.Relay.HubAddress)
	spokeDom := domain.Domain(a.cfg.Relay.SpokeDomain)
	spokeAddr := common.HexToAddress(a.cfg.Relay.SpokeAddress)

	hub := relay.NewHub(deps.OrderBook, deps.ResolverAddress, a.logger)
	hub.TrustSpoke(spokeDom, spokeAddr)

	mailbox := relay.NewInprocMailbox(spokeDom, spokeAddr, a.logger)
	mailbox.Register(hubDom, hubAddr, hub.HandleMessage)
	g.Go(func() error {
		return mailbox.Run(ctx)
	})

	spoke := relay.NewSpoke(mailbox, hubDom, hubAddr, a.logger)

	resolutionSvc := service.NewResolutionService(hub, deps.ResolverAddress, a.logger)
	g.Go(func() error {
		return a.buildBot(deps, resolutionSvc).Run(ctx)
	})

	if a.cfg.Server.Enabled {
		orderSvc := service.NewOrderService(hub, deps.Bus, a.logger)
		a.startAPIServer(ctx, g, server.Handlers{
			Health:  handler.NewHealthHandler(a.cfg.Mode, a.logger),
			Orders:  handler.NewOrderHandler(orderSvc, a.logger),
			Markets: handler.NewMarketHandler(resolutionSvc, a.logger),
			Relay:   handler.NewRelayHandler(spoke, a.logger),
		})
	}

	a.startBookSnapshots(ctx, g, hub, deps)

	return g.Wait()
}

// buildBot assembles the resolution bot: oracle chain, limiter, tracker, and
// the optional collaborators wired by configuration.
func (a *App) buildBot(deps *Dependencies, settle bot.Settlement) *bot.Bot {
	sources := []oracle.Source{oracle.NewPrimaryClient(a.cfg.Oracle.PrimaryHost)}
	if a.cfg.Oracle.SecondaryHost != "" {
		sources = append(sources, oracle.NewSecondaryClient(a.cfg.Oracle.SecondaryHost))
	}
	src := oracle.NewFallback(a.logger, sources...)

	return bot.New(
		a.cfg.Bot.Markets,
		deps.Tracker,
		deps.Limiter,
		src,
		settle,
		a.cfg.Bot.PollInterval.Duration,
		bot.Options{
			Bus:      deps.Bus,
			Notifier: deps.Notifier,
			Archiver: deps.Archiver,
			Locks:    deps.Locks,
		},
		a.logger,
	)
}

// bookArchiver is the optional snapshot capability of the wired archiver.
type bookArchiver interface {
	ArchiveOrderBook(ctx context.Context, orders []domain.Order) error
}

// startBookSnapshots periodically uploads an order-book snapshot when the
// archiver supports it and a snapshot interval is configured.
func (a *App) startBookSnapshots(ctx context.Context, g *errgroup.Group, hub *relay.Hub, deps *Dependencies) {
	ba, ok := deps.Archiver.(bookArchiver)
	if !ok {
		return
	}
	interval := a.cfg.S3.SnapshotInterval.Duration
	if interval <= 0 {
		return
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				orders, err := hub.ActiveOrders(ctx)
				if err != nil {
					a.logger.WarnContext(ctx, "book snapshot: list orders failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				if err := ba.ArchiveOrderBook(ctx, orders); err != nil {
					a.logger.WarnContext(ctx, "book snapshot: upload failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})
}

// startAPIServer adds the admin HTTP server and its graceful shutdown to the
// given errgroup. The API gets its own request limiter so operator traffic
// never competes with the oracle budget.
func (a *App) startAPIServer(ctx context.Context, g *errgroup.Group, handlers server.Handlers) {
	srv := server.New(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		APIKey:        a.cfg.Server.APIKey,
		Limiter:       ratelimit.New(100, time.Minute, time.Millisecond),
		RequestLimit:  100,
		RequestWindow: time.Minute,
	}, handlers, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
