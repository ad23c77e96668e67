package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/duelbet/settlement/internal/domain"
	"github.com/duelbet/settlement/internal/engine"
)

// StakeService places stakes: it pulls escrow from the bettor, commits the
// stake to the live ledger, and persists the result.
type StakeService struct {
	reg     *engine.Registry
	token   domain.EscrowToken
	markets domain.MarketStore
	stakes  domain.StakeStore
	cache   domain.MarketCache
	sink    *eventSink
	logger  *slog.Logger
}

// NewStakeService creates a StakeService. cache and bus may be nil.
func NewStakeService(
	reg *engine.Registry,
	token domain.EscrowToken,
	markets domain.MarketStore,
	stakes domain.StakeStore,
	events domain.EventStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *StakeService {
	return &StakeService{
		reg:     reg,
		token:   token,
		markets: markets,
		stakes:  stakes,
		cache:   cache,
		sink:    newEventSink(events, bus, logger),
		logger:  logger.With(slog.String("component", "stake_service")),
	}
}

// Place escrows gross units from the bettor and records the stake. The
// escrow pull runs inside the market's transaction: a failed transfer leaves
// the ledger untouched, and all preconditions are checked before any value
// moves.
func (s *StakeService) Place(ctx context.Context, marketID string, bettor common.Address, outcomeIndex int, gross int64) (domain.Stake, error) {
	mk, err := s.reg.Get(marketID)
	if err != nil {
		return domain.Stake{}, fmt.Errorf("stake_service: place on %s: %w", marketID, err)
	}

	stake, ev, err := mk.PlaceStake(bettor, outcomeIndex, gross, time.Now().UTC(), func() error {
		return s.token.TransferFrom(ctx, bettor, gross)
	})
	if err != nil {
		return domain.Stake{}, fmt.Errorf("stake_service: place on %s: %w", marketID, err)
	}

	if err := s.stakes.Insert(ctx, stake); err != nil {
		return domain.Stake{}, fmt.Errorf("stake_service: persist stake %s: %w", stake.ID, err)
	}
	m := mk.Snapshot()
	if err := s.markets.Update(ctx, m); err != nil {
		return domain.Stake{}, fmt.Errorf("stake_service: persist market %s: %w", marketID, err)
	}
	s.invalidate(ctx, marketID)
	if err := s.sink.record(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "event record failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "stake placed",
		slog.String("market_id", marketID),
		slog.String("bettor", bettor.Hex()),
		slog.Int("outcome_index", outcomeIndex),
		slog.Int64("gross_amount", gross),
		slog.Int64("net_amount", stake.NetAmount),
	)
	return stake, nil
}

// ListByMarket returns a market's persisted stakes in placement order.
func (s *StakeService) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Stake, error) {
	stakes, err := s.stakes.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("stake_service: list for %s: %w", marketID, err)
	}
	return stakes, nil
}

// ListByBettor returns one bettor's persisted stakes in a market.
func (s *StakeService) ListByBettor(ctx context.Context, marketID string, bettor common.Address) ([]domain.Stake, error) {
	stakes, err := s.stakes.ListByBettor(ctx, marketID, bettor)
	if err != nil {
		return nil, fmt.Errorf("stake_service: list for %s bettor %s: %w", marketID, bettor.Hex(), err)
	}
	return stakes, nil
}

func (s *StakeService) invalidate(ctx context.Context, marketID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "cache invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}
