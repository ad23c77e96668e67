package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/duelbet/settlement/internal/domain"
	"github.com/duelbet/settlement/internal/engine"
	"github.com/duelbet/settlement/internal/notify"
)

// ResolutionService drives the market state machine: propose, finalize,
// reverse. Terminal transitions raise operator notifications.
type ResolutionService struct {
	reg      *engine.Registry
	markets  domain.MarketStore
	cache    domain.MarketCache
	sink     *eventSink
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewResolutionService creates a ResolutionService. cache, bus, and notifier
// may be nil.
func NewResolutionService(
	reg *engine.Registry,
	markets domain.MarketStore,
	events domain.EventStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *ResolutionService {
	return &ResolutionService{
		reg:      reg,
		markets:  markets,
		cache:    cache,
		sink:     newEventSink(events, bus, logger),
		notifier: notifier,
		logger:   logger.With(slog.String("component", "resolution_service")),
	}
}

// Propose records the resolver's asserted outcome and starts the dispute
// delay.
func (s *ResolutionService) Propose(ctx context.Context, marketID string, caller common.Address, outcomeIndex int) (domain.Market, error) {
	mk, err := s.reg.Get(marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("resolution_service: propose on %s: %w", marketID, err)
	}

	ev, err := mk.ProposeResolution(caller, outcomeIndex, time.Now().UTC())
	if err != nil {
		return domain.Market{}, fmt.Errorf("resolution_service: propose on %s: %w", marketID, err)
	}

	m := s.persist(ctx, mk, ev)
	s.logger.InfoContext(ctx, "resolution proposed",
		slog.String("market_id", marketID),
		slog.Int("outcome_index", outcomeIndex),
	)
	return m, nil
}

// Finalize commits the proposed outcome once the dispute delay has elapsed,
// or moves an under-volume market into refunding.
func (s *ResolutionService) Finalize(ctx context.Context, marketID string) (domain.Market, error) {
	mk, err := s.reg.Get(marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("resolution_service: finalize %s: %w", marketID, err)
	}

	ev, err := mk.FinalizeResolution(time.Now().UTC())
	if err != nil {
		return domain.Market{}, fmt.Errorf("resolution_service: finalize %s: %w", marketID, err)
	}

	m := s.persist(ctx, mk, ev)
	s.logger.InfoContext(ctx, "resolution finalized",
		slog.String("market_id", marketID),
		slog.String("state", m.State.String()),
	)

	if m.State == domain.StateRefunding {
		s.notify(ctx, string(domain.EventMarketRefunding), "Market refunding",
			fmt.Sprintf("Market %s did not reach minimum volume (%d) and is refunding.", marketID, m.TotalVolume))
	} else {
		s.notify(ctx, string(domain.EventMarketResolved), "Market resolved",
			fmt.Sprintf("Market %s resolved to outcome %q.", marketID, m.OutcomeLabels[m.CorrectOutcome]))
	}
	return m, nil
}

// Reverse corrects a finalized outcome, bounded by the reversal cap.
func (s *ResolutionService) Reverse(ctx context.Context, marketID string, caller common.Address, newOutcomeIndex int) (domain.Market, error) {
	mk, err := s.reg.Get(marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("resolution_service: reverse %s: %w", marketID, err)
	}

	ev, err := mk.ReverseResolution(caller, newOutcomeIndex, time.Now().UTC())
	if err != nil {
		return domain.Market{}, fmt.Errorf("resolution_service: reverse %s: %w", marketID, err)
	}

	m := s.persist(ctx, mk, ev)
	s.logger.WarnContext(ctx, "resolution reversed",
		slog.String("market_id", marketID),
		slog.Int("new_outcome", newOutcomeIndex),
		slog.Int("reversal_count", m.ReversalCount),
	)
	s.notify(ctx, string(domain.EventResolutionReversed), "Resolution reversed",
		fmt.Sprintf("Market %s outcome corrected to %q (reversal %d).",
			marketID, m.OutcomeLabels[newOutcomeIndex], m.ReversalCount))
	return m, nil
}

// persist writes the post-transition snapshot, drops the cached copy, and
// journals the event. Persistence failures are logged, not returned: the
// transition has already committed in the arena and will re-persist on the
// next mutation.
func (s *ResolutionService) persist(ctx context.Context, mk *engine.Market, ev domain.MarketEvent) domain.Market {
	m := mk.Snapshot()
	if err := s.markets.Update(ctx, m); err != nil {
		s.logger.ErrorContext(ctx, "market persist failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, m.ID); err != nil {
			s.logger.WarnContext(ctx, "cache invalidate failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.sink.record(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "event record failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
	return m
}

func (s *ResolutionService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
