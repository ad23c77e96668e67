// Package service wires the settlement engine to its persistence, cache,
// escrow, and messaging adapters. Each service owns one slice of the API
// surface: markets, stakes, resolutions, claims.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/duelbet/settlement/internal/domain"
	"github.com/duelbet/settlement/internal/engine"
)

// MarketService handles market creation and read access. Reads prefer the
// cache, fall back to the live arena, and finally to the durable store for
// markets no longer held in memory.
type MarketService struct {
	reg     *engine.Registry
	markets domain.MarketStore
	stakes  domain.StakeStore
	events  domain.EventStore
	cache   domain.MarketCache
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil.
func NewMarketService(
	reg *engine.Registry,
	markets domain.MarketStore,
	stakes domain.StakeStore,
	events domain.EventStore,
	cache domain.MarketCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		reg:     reg,
		markets: markets,
		stakes:  stakes,
		events:  events,
		cache:   cache,
		logger:  logger.With(slog.String("component", "market_service")),
	}
}

// Create validates the parameters, admits the market to the arena, and
// persists the initial snapshot.
func (s *MarketService) Create(ctx context.Context, params domain.MarketParams) (domain.Market, error) {
	mk, err := s.reg.CreateMarket(params, time.Now().UTC())
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create: %w", err)
	}
	m := mk.Snapshot()

	if err := s.markets.Insert(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: persist market %s: %w", m.ID, err)
	}
	s.cacheSet(ctx, m)

	s.logger.InfoContext(ctx, "market created",
		slog.String("market_id", m.ID),
		slog.String("creator", m.Creator.Hex()),
		slog.Time("end_time", m.EndTime),
	)
	return m, nil
}

// Get returns a market snapshot: cache first, then the live arena (with cache
// back-fill), then the durable store for archived markets.
func (s *MarketService) Get(ctx context.Context, id string) (domain.Market, error) {
	if s.cache != nil {
		m, err := s.cache.Get(ctx, id)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "cache read failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	mk, err := s.reg.Get(id)
	if err == nil {
		m := mk.Snapshot()
		s.cacheSet(ctx, m)
		return m, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Market{}, fmt.Errorf("market_service: get %s: %w", id, err)
	}

	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %s: %w", id, err)
	}
	return m, nil
}

// List returns persisted market snapshots, newest first, honoring pagination.
func (s *MarketService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// ListByState returns persisted market snapshots in the given state.
func (s *MarketService) ListByState(ctx context.Context, state domain.MarketState, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.ListByState(ctx, state, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list by state %s: %w", state, err)
	}
	return markets, nil
}

// Events returns the settlement event journal for one market, oldest first.
func (s *MarketService) Events(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	events, err := s.events.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: events for %s: %w", marketID, err)
	}
	return events, nil
}

// SetPaused toggles the market creation switch. Platform only.
func (s *MarketService) SetPaused(ctx context.Context, caller common.Address, paused bool) error {
	if err := s.reg.SetPaused(caller, paused); err != nil {
		return fmt.Errorf("market_service: set paused: %w", err)
	}
	s.logger.InfoContext(ctx, "creation pause toggled", slog.Bool("paused", paused))
	return nil
}

// Paused reports whether market creation is paused.
func (s *MarketService) Paused() bool {
	return s.reg.Paused()
}

// Restore replays the durable journal into the arena. Called once at startup
// before the API starts serving.
func (s *MarketService) Restore(ctx context.Context) (int, error) {
	restored := 0
	offset := 0
	const page = 200
	for {
		markets, err := s.markets.List(ctx, domain.ListOpts{Limit: page, Offset: offset})
		if err != nil {
			return restored, fmt.Errorf("market_service: restore list: %w", err)
		}
		for _, m := range markets {
			stakes, err := s.stakesFor(ctx, m.ID)
			if err != nil {
				return restored, err
			}
			s.reg.Restore(m, stakes)
			restored++
		}
		if len(markets) < page {
			break
		}
		offset += page
	}
	s.logger.InfoContext(ctx, "arena restored", slog.Int("markets", restored))
	return restored, nil
}

func (s *MarketService) stakesFor(ctx context.Context, marketID string) ([]domain.Stake, error) {
	stakes, err := s.stakes.ListByMarket(ctx, marketID, domain.ListOpts{})
	if err != nil {
		return nil, fmt.Errorf("market_service: restore stakes for %s: %w", marketID, err)
	}
	return stakes, nil
}

func (s *MarketService) cacheSet(ctx context.Context, m domain.Market) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "cache write failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}
