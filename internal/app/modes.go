package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/supafund/supafund-engine/internal/engine"
	"github.com/supafund/supafund-engine/internal/server"
	"github.com/supafund/supafund-engine/internal/server/handler"
	"github.com/supafund/supafund-engine/internal/server/ws"
	"github.com/supafund/supafund-engine/internal/service"
)

func (a *App) buildPortfolioService(deps *Dependencies) *service.PortfolioService {
	// A typed nil must not reach the interface field or the nil checks in
	// the service stop working.
	var verifier service.BalanceVerifier
	if deps.Verifier != nil {
		verifier = deps.Verifier
	}

	return service.NewPortfolioService(
		service.PortfolioConfig{
			Wallet:           a.cfg.Engine.Wallet,
			MarketCreator:    a.cfg.Engine.MarketCreator,
			OversellPolicy:   engine.OversellPolicy(a.cfg.Engine.OversellPolicy),
			PollInterval:     a.cfg.Engine.PollInterval.Duration,
			IdlePollInterval: a.cfg.Engine.IdlePollInterval.Duration,
			StakingServiceID: a.cfg.Staking.ServiceID,
		},
		deps.Omen,
		deps.Conditional,
		verifier,
		deps.SnapshotStore,
		deps.PortfolioCache,
		deps.RewardsCache,
		deps.SignalBus,
		a.logger,
	)
}

func (a *App) buildRewardsService(deps *Dependencies) *service.RewardsService {
	return service.NewRewardsService(
		service.RewardsConfig{
			ServiceID:     a.cfg.Staking.ServiceID,
			Contracts:     a.cfg.Staking.Contracts,
			SelfContracts: a.cfg.Staking.SelfCheckpointContracts,
			PollInterval:  a.cfg.Staking.PollInterval.Duration,
		},
		deps.Staking,
		deps.RewardsCache,
		deps.SignalBus,
		a.logger,
	)
}

// startEngine launches the refresh loops on the errgroup.
func (a *App) startEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	portfolioSvc := a.buildPortfolioService(deps)
	g.Go(func() error {
		return portfolioSvc.Run(ctx)
	})

	if deps.Staking != nil {
		rewardsSvc := a.buildRewardsService(deps)
		g.Go(func() error {
			return rewardsSvc.Run(ctx)
		})
	}

	if deps.BlobWriter != nil {
		retention := time.Duration(a.cfg.Engine.SnapshotRetentionDays) * 24 * time.Hour
		archiver := service.NewArchiver(deps.SnapshotStore, deps.BlobWriter, retention, a.logger)
		g.Go(func() error {
			return archiver.Run(ctx)
		})
	}
}

// startServer launches the WebSocket hub and HTTP server on the errgroup.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger, time.Now().UTC()),
		Portfolio: handler.NewPortfolioHandler(deps.PortfolioCache, deps.SnapshotStore, a.cfg.Engine.Wallet, a.logger),
		Rewards:   handler.NewRewardsHandler(deps.RewardsCache, a.cfg.Staking.ServiceID, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// EngineMode runs the refresh loops without the API server.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startEngine(ctx, g, deps)
	return g.Wait()
}

// ServerMode serves the cached views without running refresh cycles. It is
// meant to scale API replicas independently of the single engine instance.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the refresh loops and the API server in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startEngine(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps)
	}
	return g.Wait()
}

// OnceMode runs a single refresh cycle of each configured service and exits.
// Useful for cron-style deployments and smoke tests.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting once mode")

	now := time.Now().UTC()

	// Rewards first so the portfolio snapshot can stamp the fresh streak.
	if deps.Staking != nil {
		rewardsSvc := a.buildRewardsService(deps)
		view, err := rewardsSvc.RunCycle(ctx, now)
		if err != nil {
			return err
		}
		a.logger.InfoContext(ctx, "rewards cycle finished",
			slog.Int("streak", view.Streak),
		)
	}

	portfolioSvc := a.buildPortfolioService(deps)
	view, err := portfolioSvc.RunCycle(ctx, now)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "portfolio cycle finished",
		slog.Int("positions", len(view.Positions)),
		slog.Float64("total_pnl", view.Metrics.TotalProfitLoss),
	)

	if deps.BlobWriter != nil {
		retention := time.Duration(a.cfg.Engine.SnapshotRetentionDays) * 24 * time.Hour
		archiver := service.NewArchiver(deps.SnapshotStore, deps.BlobWriter, retention, a.logger)
		if err := archiver.RunOnce(ctx, now); err != nil {
			return err
		}
	}

	return nil
}
