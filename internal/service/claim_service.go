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

// claimLockTTL bounds how long a claim may hold its distributed lock. Long
// enough for an on-chain escrow transfer, short enough that a crashed
// instance frees the slot quickly.
const claimLockTTL = 30 * time.Second

// ClaimService executes pull payments: winnings, refunds, and the two fee
// withdrawals. Each claim runs under a distributed (market, claimant) lock so
// concurrent API instances cannot race the same payout, and the engine's
// mark-then-pay transaction makes retries safe even without the lock.
type ClaimService struct {
	reg      *engine.Registry
	token    domain.EscrowToken
	markets  domain.MarketStore
	stakes   domain.StakeStore
	cache    domain.MarketCache
	locks    domain.LockManager
	sink     *eventSink
	platform common.Address
	logger   *slog.Logger
}

// NewClaimService creates a ClaimService. cache, bus, and locks may be nil;
// without a lock manager claims rely on the engine's per-market transaction
// alone.
func NewClaimService(
	reg *engine.Registry,
	token domain.EscrowToken,
	markets domain.MarketStore,
	stakes domain.StakeStore,
	events domain.EventStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	locks domain.LockManager,
	platform common.Address,
	logger *slog.Logger,
) *ClaimService {
	return &ClaimService{
		reg:      reg,
		token:    token,
		markets:  markets,
		stakes:   stakes,
		cache:    cache,
		locks:    locks,
		sink:     newEventSink(events, bus, logger),
		platform: platform,
		logger:   logger.With(slog.String("component", "claim_service")),
	}
}

// Claimable is the read-only view of everything one caller could withdraw
// from a market right now.
type Claimable struct {
	Winnings     int64 `json:"winnings"`
	Refund       int64 `json:"refund"`
	CreatorFees  int64 `json:"creator_fees"`
	PlatformFees int64 `json:"platform_fees"`
}

// ClaimWinnings pays the caller their pool share for every unclaimed winning
// stake.
func (s *ClaimService) ClaimWinnings(ctx context.Context, marketID string, caller common.Address) (engine.ClaimResult, error) {
	return s.claim(ctx, marketID, caller, "winnings",
		func(mk *engine.Market, now time.Time, pay func(int64) error) (engine.ClaimResult, domain.MarketEvent, error) {
			return mk.ClaimWinnings(caller, now, pay)
		},
		func(amount int64) error {
			return s.token.Transfer(ctx, caller, amount)
		})
}

// ClaimRefund returns the caller's net stakes from a refunding market.
func (s *ClaimService) ClaimRefund(ctx context.Context, marketID string, caller common.Address) (engine.ClaimResult, error) {
	return s.claim(ctx, marketID, caller, "refund",
		func(mk *engine.Market, now time.Time, pay func(int64) error) (engine.ClaimResult, domain.MarketEvent, error) {
			return mk.ClaimRefund(caller, now, pay)
		},
		func(amount int64) error {
			return s.token.Transfer(ctx, caller, amount)
		})
}

// ClaimCreatorFees pays accrued creator fees to the market creator.
func (s *ClaimService) ClaimCreatorFees(ctx context.Context, marketID string, caller common.Address) (engine.ClaimResult, error) {
	return s.claim(ctx, marketID, caller, "creator_fees",
		func(mk *engine.Market, now time.Time, pay func(int64) error) (engine.ClaimResult, domain.MarketEvent, error) {
			return mk.ClaimCreatorFees(caller, now, pay)
		},
		func(amount int64) error {
			return s.token.Transfer(ctx, caller, amount)
		})
}

// ClaimPlatformFees pays accrued platform fees to the market's treasury
// address. Only the platform may trigger it; the payout destination is the
// treasury regardless of caller.
func (s *ClaimService) ClaimPlatformFees(ctx context.Context, marketID string, caller common.Address) (engine.ClaimResult, error) {
	mk, err := s.reg.Get(marketID)
	if err != nil {
		return engine.ClaimResult{}, fmt.Errorf("claim_service: platform_fees on %s: %w", marketID, err)
	}
	treasury := mk.Snapshot().Treasury

	return s.claim(ctx, marketID, caller, "platform_fees",
		func(mk *engine.Market, now time.Time, pay func(int64) error) (engine.ClaimResult, domain.MarketEvent, error) {
			return mk.ClaimPlatformFees(caller, now, pay)
		},
		func(amount int64) error {
			return s.token.Transfer(ctx, treasury, amount)
		})
}

// Claimable reports what the caller could withdraw from the market right now.
func (s *ClaimService) Claimable(ctx context.Context, marketID string, caller common.Address) (Claimable, error) {
	mk, err := s.reg.Get(marketID)
	if err != nil {
		return Claimable{}, fmt.Errorf("claim_service: claimable on %s: %w", marketID, err)
	}
	m := mk.Snapshot()

	c := Claimable{
		Winnings: mk.PendingWinnings(caller),
		Refund:   mk.PendingRefund(caller),
	}
	finalized := m.State == domain.StateResolved || m.State == domain.StateRefunding
	if finalized && caller == m.Creator {
		c.CreatorFees = m.ClaimableCreatorFees
	}
	if finalized && caller == s.platform {
		c.PlatformFees = m.ClaimablePlatformFees
	}
	return c, nil
}

// claim runs one claim operation under the distributed lock, then persists
// the consumed stakes and the post-claim snapshot.
func (s *ClaimService) claim(
	ctx context.Context,
	marketID string,
	caller common.Address,
	kind string,
	op func(mk *engine.Market, now time.Time, pay func(int64) error) (engine.ClaimResult, domain.MarketEvent, error),
	pay func(amount int64) error,
) (engine.ClaimResult, error) {
	unlock, err := s.lock(ctx, marketID, caller)
	if err != nil {
		return engine.ClaimResult{}, fmt.Errorf("claim_service: %s on %s: %w", kind, marketID, err)
	}
	defer unlock()

	mk, err := s.reg.Get(marketID)
	if err != nil {
		return engine.ClaimResult{}, fmt.Errorf("claim_service: %s on %s: %w", kind, marketID, err)
	}

	res, ev, err := op(mk, time.Now().UTC(), pay)
	if err != nil {
		return engine.ClaimResult{}, fmt.Errorf("claim_service: %s on %s: %w", kind, marketID, err)
	}

	if len(res.StakeIDs) > 0 {
		if err := s.stakes.MarkClaimed(ctx, res.StakeIDs); err != nil {
			s.logger.ErrorContext(ctx, "stake claim persist failed",
				slog.String("market_id", marketID),
				slog.Int("stakes", len(res.StakeIDs)),
				slog.String("error", err.Error()),
			)
		}
	}
	m := mk.Snapshot()
	if err := s.markets.Update(ctx, m); err != nil {
		s.logger.ErrorContext(ctx, "market persist failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, marketID); err != nil {
			s.logger.WarnContext(ctx, "cache invalidate failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.sink.record(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "event record failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "claim paid",
		slog.String("market_id", marketID),
		slog.String("claimant", caller.Hex()),
		slog.String("kind", kind),
		slog.Int64("amount", res.Amount),
	)
	return res, nil
}

func (s *ClaimService) lock(ctx context.Context, marketID string, caller common.Address) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	key := fmt.Sprintf("claim:%s:%s", marketID, caller.Hex())
	return s.locks.Acquire(ctx, key, claimLockTTL)
}
