package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/duelbet/settlement/internal/domain"
	"github.com/duelbet/settlement/internal/server"
	"github.com/duelbet/settlement/internal/server/handler"
	"github.com/duelbet/settlement/internal/server/ws"
	"github.com/duelbet/settlement/internal/service"
)

// finalizePollInterval is how often the finalizer sweeps proposed markets.
const finalizePollInterval = time.Minute

// services bundles the service layer built on top of wired dependencies.
type services struct {
	markets     *service.MarketService
	stakes      *service.StakeService
	resolutions *service.ResolutionService
	claims      *service.ClaimService
}

func (a *App) buildServices(deps *Dependencies) *services {
	return &services{
		markets: service.NewMarketService(
			deps.Registry, deps.MarketStore, deps.StakeStore, deps.EventStore,
			deps.MarketCache, a.logger,
		),
		stakes: service.NewStakeService(
			deps.Registry, deps.Token, deps.MarketStore, deps.StakeStore,
			deps.EventStore, deps.MarketCache, deps.SignalBus, a.logger,
		),
		resolutions: service.NewResolutionService(
			deps.Registry, deps.MarketStore, deps.EventStore, deps.MarketCache,
			deps.SignalBus, deps.Notifier, a.logger,
		),
		claims: service.NewClaimService(
			deps.Registry, deps.Token, deps.MarketStore, deps.StakeStore,
			deps.EventStore, deps.MarketCache, deps.SignalBus, deps.LockManager,
			deps.Platform, a.logger,
		),
	}
}

// restore replays the durable journal into the arena before serving.
func (a *App) restore(ctx context.Context, svcs *services) error {
	n, err := svcs.markets.Restore(ctx)
	if err != nil {
		return fmt.Errorf("app: restore arena: %w", err)
	}
	a.logger.InfoContext(ctx, "journal replayed", slog.Int("markets", n))
	return nil
}

// ServerMode runs the HTTP + WebSocket API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	svcs := a.buildServices(deps)
	if err := a.restore(ctx, svcs); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, svcs)
	return g.Wait()
}

// EngineMode runs the background finalizer without the API: it sweeps
// proposed markets and finalizes those whose dispute delay has elapsed.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	svcs := a.buildServices(deps)
	if err := a.restore(ctx, svcs); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startFinalizer(ctx, g, deps, svcs)
	return g.Wait()
}

// ArchiveMode runs periodic cold-storage sweeps of finalized markets only.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires archive.enabled and S3 configuration")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// FullMode runs every subsystem: the API, the finalizer, and (when enabled)
// the archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svcs := a.buildServices(deps)
	if err := a.restore(ctx, svcs); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startFinalizer(ctx, g, deps, svcs)
	if deps.Archiver != nil {
		a.startArchiver(ctx, g, deps)
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs)
	}
	return g.Wait()
}

// startHTTPServer adds the API server and WebSocket hub goroutines to the
// errgroup, with graceful shutdown on context cancellation.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("ws hub: %w", err)
		}
		return nil
	})

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		ClaimRateLimit:  a.cfg.Server.ClaimRateLimit,
		ClaimRateWindow: a.cfg.Server.ClaimRateWindow.Duration,
	}, server.Handlers{
		Health:      handler.NewHealthHandler(a.logger),
		Markets:     handler.NewMarketHandler(svcs.markets, a.logger),
		Stakes:      handler.NewStakeHandler(svcs.stakes, a.logger),
		Resolutions: handler.NewResolutionHandler(svcs.resolutions, a.logger),
		Claims:      handler.NewClaimHandler(svcs.claims, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startFinalizer adds the proposal finalizer goroutine: every poll interval
// it tries to finalize each proposed market, skipping those still inside the
// dispute delay.
func (a *App) startFinalizer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	g.Go(func() error {
		ticker := time.NewTicker(finalizePollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				for _, m := range deps.Registry.ListByState(domain.StateProposed) {
					_, err := svcs.resolutions.Finalize(ctx, m.ID)
					switch {
					case err == nil:
					case errors.Is(err, domain.ErrDelayNotElapsed),
						errors.Is(err, domain.ErrMarketNotProposed):
						// Not ready yet, or raced another finalizer.
					default:
						a.logger.ErrorContext(ctx, "finalize sweep failed",
							slog.String("market_id", m.ID),
							slog.String("error", err.Error()),
						)
					}
				}
			}
		}
	})
}

// startArchiver adds the cold-storage sweep goroutine: finalized markets
// older than the retention window get their journals exported to S3.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-retention)
				pruned, err := deps.Archiver.ArchiveFinalized(ctx, cutoff)
				if err != nil {
					a.logger.ErrorContext(ctx, "archive sweep failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				if pruned > 0 {
					a.logger.InfoContext(ctx, "archive sweep complete",
						slog.Int64("journal_rows_pruned", pruned),
						slog.Time("cutoff", cutoff),
					)
				}
			}
		}
	})
}
