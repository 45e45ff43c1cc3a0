package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/shareauction/internal/auction"
	"github.com/alanyoungcy/shareauction/internal/crypto"
	"github.com/alanyoungcy/shareauction/internal/domain"
	"github.com/alanyoungcy/shareauction/internal/indexer"
	"github.com/alanyoungcy/shareauction/internal/server"
	"github.com/alanyoungcy/shareauction/internal/server/handler"
	"github.com/alanyoungcy/shareauction/internal/server/ws"
	"github.com/alanyoungcy/shareauction/internal/service"
)

const shutdownTimeout = 10 * time.Second

// core is the in-process auction plus the service wrapped around it.
type core struct {
	relay *service.Relay
	svc   *service.AuctionService
}

// ServeMode runs the auction core behind the HTTP API, the journal relay and
// the websocket hub.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	c, err := a.buildCore(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startCore(ctx, g, deps, c)
	return g.Wait()
}

// IndexMode runs only the off-core indexer against a remote daemon. It
// returns once the investor list has been loaded.
func (a *App) IndexMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting index mode", slog.String("api_url", a.cfg.Indexer.APIURL))

	job, err := a.buildIndexer(deps, a.cfg.Indexer.APIURL)
	if err != nil {
		return err
	}
	return job.RunWhenReady(ctx)
}

// FullMode runs the core and, in the same process, the indexer pointed at
// the local API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	c, err := a.buildCore(ctx, deps)
	if err != nil {
		return err
	}

	apiURL := a.cfg.Indexer.APIURL
	if apiURL == "" {
		apiURL = fmt.Sprintf("http://127.0.0.1:%d", a.cfg.Server.Port)
	}
	job, err := a.buildIndexer(deps, apiURL)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startCore(ctx, g, deps, c)

	// The indexer finishing must not stop the API.
	g.Go(func() error {
		if err := job.RunWhenReady(ctx); err != nil && ctx.Err() == nil {
			a.logger.ErrorContext(ctx, "full mode: indexer stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	return g.Wait()
}

// buildCore creates the registry and auction, replays the persisted journal
// into them, and wraps them in the service layer.
func (a *App) buildCore(ctx context.Context, deps *Dependencies) (*core, error) {
	ac := a.cfg.Auction
	clock := auction.SystemClock{}
	journal := auction.NewJournal()
	if deps.EventStore != nil {
		journal = auction.NewDurableJournal(service.PersistTo(deps.EventStore))
	}
	reg := auction.NewRegistry(ac.AuditorAddress(), journal, clock)
	auc, err := auction.New(auction.Config{
		Owner:       ac.AdministratorAddress(),
		TotalSupply: ac.TotalSupply,
		Schedule: domain.Schedule{
			Start:   ac.StartTime.UTC(),
			Bidding: ac.Bidding.Duration,
			Reveal:  ac.Reveal.Duration,
			Claim:   ac.Claim.Duration,
		},
		EnforceInvestorOrder: ac.EnforceInvestorOrder,
	}, reg, journal, clock)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	relay := service.NewRelay(journal, deps.SignalBus, a.logger)
	if deps.EventStore != nil {
		last, err := service.RestoreFromStore(ctx, deps.EventStore, reg, auc)
		if err != nil {
			return nil, fmt.Errorf("app: restore journal: %w", err)
		}
		// The stream may lag the store, so restored events are streamed
		// again; the indexer drops duplicates by event id.
		relay.MarkRestored(last)
		a.logger.InfoContext(ctx, "journal restored",
			slog.Uint64("last_seq", last),
			slog.String("phase", auc.Phase().String()),
		)
	}

	svc := service.NewAuctionService(auc, reg, journal, relay, service.Options{
		Archiver: deps.Archiver,
		Reports:  deps.BlobReader,
		Audit:    deps.AuditStore,
	}, a.logger)

	return &core{relay: relay, svc: svc}, nil
}

// startCore adds the HTTP server, relay loop and websocket hub to g.
func (a *App) startCore(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Channel:        service.EventChannel,
			AllowedOrigins: a.cfg.Server.CORSOrigins,
			Status:         c.svc.Status,
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	g.Go(func() error {
		return c.relay.Run(ctx, a.cfg.Relay.FlushInterval.Duration)
	})

	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		MaxClockSkew: a.cfg.Server.MaxClockSkew.Duration,
		RateLimit:    a.cfg.Server.RateLimit,
		RateWindow:   a.cfg.Server.RateWindow.Duration,
	}, a.handlers(deps, c.svc), hub, server.Backends{
		Limiter: deps.RateLimiter,
		Nonces:  deps.NonceStore,
	}, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func (a *App) handlers(deps *Dependencies, svc *service.AuctionService) server.Handlers {
	return server.Handlers{
		Health:      handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status:      handler.NewStatusHandler(svc),
		Registry:    handler.NewRegistryHandler(svc, a.logger),
		Bids:        handler.NewBidHandler(svc, a.logger),
		Allocations: handler.NewAllocationHandler(svc, a.logger),
		Settlement:  handler.NewSettlementHandler(svc, a.logger),
		Journal:     handler.NewJournalHandler(svc, a.logger),
	}
}

// buildIndexer loads the administrator key and assembles the indexer job.
func (a *App) buildIndexer(deps *Dependencies, apiURL string) (*indexer.Job, error) {
	if deps.SignalBus == nil {
		return nil, errors.New("app: indexer needs redis")
	}
	ic := a.cfg.Indexer
	signer, err := crypto.LoadSigner(crypto.KeyConfig{
		RawPrivateKey:    ic.PrivateKey,
		EncryptedKeyPath: ic.EncryptedKeyPath,
		KeyPassword:      ic.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("app: indexer key: %w", err)
	}
	if a.cfg.Mode != "index" && signer.Address() != a.cfg.Auction.AdministratorAddress() {
		a.logger.Warn("indexer key is not the auction administrator; LoadInvestors will be rejected",
			slog.String("indexer", signer.Address().Hex()),
		)
	}

	collector := indexer.NewCollector(deps.SignalBus, service.EventStream, ic.BatchSize)
	loader := indexer.NewHTTPLoader(apiURL, signer)
	return indexer.NewJob(collector, loader, deps.LockManager, indexer.JobConfig{
		LockTTL:       ic.LockTTL.Duration,
		SettleDelay:   ic.SettleDelay.Duration,
		RetryInterval: ic.RetryInterval.Duration,
	}, a.logger), nil
}
