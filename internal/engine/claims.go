package engine

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/duelbet/settlement/internal/domain"
)

// ClaimResult reports the outcome of a successful claim: the amount paid and
// the stakes consumed by it. Fee claims carry no stake IDs.
type ClaimResult struct {
	Amount   int64
	StakeIDs []string
}

// ClaimWinnings pays a bettor their share of the pool for every unclaimed
// stake they hold on the correct outcome. Each winning stake pays
// floor(net * pool / winnerTotal) computed per stake, so payouts are
// insensitive to claim order and the flooring dust stays in escrow.
//
// Stakes are marked claimed before the pay callback runs; if the transfer
// fails the marks are rolled back under the same lock, so a retry sees the
// original state and double-payment is impossible.
func (mk *Market) ClaimWinnings(caller common.Address, now time.Time, pay func(amount int64) error) (ClaimResult, domain.MarketEvent, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()

	if mk.m.State != domain.StateResolved {
		return ClaimResult{}, domain.MarketEvent{}, domain.ErrMarketNotResolved
	}

	winnerTotal := mk.m.OutcomeTotals[mk.m.CorrectOutcome]
	pool := mk.m.Pool()

	var (
		total   int64
		indexes []int
		ids     []string
		held    bool
	)
	for i := range mk.stakes {
		s := &mk.stakes[i]
		if s.Bettor != caller || s.OutcomeIndex != mk.m.CorrectOutcome {
			continue
		}
		held = true
		if s.Claimed {
			continue
		}
		total += mulDivFloor(s.NetAmount, pool, winnerTotal)
		indexes = append(indexes, i)
		ids = append(ids, s.ID)
	}
	if len(indexes) == 0 {
		// A caller whose winning stakes were all consumed already is a
		// re-claim, distinct from one who never held a winning stake.
		if held {
			return ClaimResult{}, domain.MarketEvent{}, domain.ErrAlreadyClaimed
		}
		return ClaimResult{}, domain.MarketEvent{}, domain.ErrNothingToClaim
	}

	for _, i := range indexes {
		mk.stakes[i].Claimed = true
	}
	if pay != nil {
		if err := pay(total); err != nil {
			for _, i := range indexes {
				mk.stakes[i].Claimed = false
			}
			return ClaimResult{}, domain.MarketEvent{}, err
		}
	}
	mk.m.UpdatedAt = now

	ev := mk.newEvent(domain.EventWinningsClaimed, now, map[string]any{
		"bettor": caller.Hex(),
		"amount": total,
		"stakes": len(indexes),
	})
	return ClaimResult{Amount: total, StakeIDs: ids}, ev, nil
}

// ClaimRefund returns a bettor's net stakes on both outcomes once the market
// entered refunding. Fees already collected are not returned; they remain
// claimable by the creator and platform, which keeps escrow exactly balanced.
func (mk *Market) ClaimRefund(caller common.Address, now time.Time, pay func(amount int64) error) (ClaimResult, domain.MarketEvent, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()

	if mk.m.State != domain.StateRefunding {
		return ClaimResult{}, domain.MarketEvent{}, domain.ErrMarketNotRefunding
	}

	var (
		total   int64
		indexes []int
		ids     []string
		held    bool
	)
	for i := range mk.stakes {
		s := &mk.stakes[i]
		if s.Bettor != caller {
			continue
		}
		held = true
		if s.Claimed {
			continue
		}
		total += s.NetAmount
		indexes = append(indexes, i)
		ids = append(ids, s.ID)
	}
	if len(indexes) == 0 {
		if held {
			return ClaimResult{}, domain.MarketEvent{}, domain.ErrAlreadyClaimed
		}
		return ClaimResult{}, domain.MarketEvent{}, domain.ErrNothingToClaim
	}

	for _, i := range indexes {
		mk.stakes[i].Claimed = true
	}
	if pay != nil {
		if err := pay(total); err != nil {
			for _, i := range indexes {
				mk.stakes[i].Claimed = false
			}
			return ClaimResult{}, domain.MarketEvent{}, err
		}
	}
	mk.m.UpdatedAt = now

	ev := mk.newEvent(domain.EventRefundClaimed, now, map[string]any{
		"bettor": caller.Hex(),
		"amount": total,
		"stakes": len(indexes),
	})
	return ClaimResult{Amount: total, StakeIDs: ids}, ev, nil
}

// ClaimCreatorFees pays the accrued creator fee balance to the market creator.
// Available once the market has finalized either way.
func (mk *Market) ClaimCreatorFees(caller common.Address, now time.Time, pay func(amount int64) error) (ClaimResult, domain.MarketEvent, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()

	if caller != mk.m.Creator {
		return ClaimResult{}, domain.MarketEvent{}, domain.ErrNotCreator
	}
	if mk.m.State != domain.StateResolved && mk.m.State != domain.StateRefunding {
		return ClaimResult{}, domain.MarketEvent{}, domain.ErrMarketNotResolved
	}
	amount := mk.m.ClaimableCreatorFees
	if amount == 0 {
		return ClaimResult{}, domain.MarketEvent{}, domain.ErrNothingToClaim
	}

	mk.m.ClaimableCreatorFees = 0
	if pay != nil {
		if err := pay(amount); err != nil {
			mk.m.ClaimableCreatorFees = amount
			return ClaimResult{}, domain.MarketEvent{}, err
		}
	}
	mk.m.UpdatedAt = now

	ev := mk.newEvent(domain.EventCreatorFeesClaimed, now, map[string]any{
		"creator": caller.Hex(),
		"amount":  amount,
	})
	return ClaimResult{Amount: amount}, ev, nil
}

// ClaimPlatformFees pays the accrued platform fee balance to the treasury.
// Only the registered platform address may trigger it.
func (mk *Market) ClaimPlatformFees(caller common.Address, now time.Time, pay func(amount int64) error) (ClaimResult, domain.MarketEvent, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()

	if caller != mk.platform {
		return ClaimResult{}, domain.MarketEvent{}, domain.ErrNotPlatform
	}
	if mk.m.State != domain.StateResolved && mk.m.State != domain.StateRefunding {
		return ClaimResult{}, domain.MarketEvent{}, domain.ErrMarketNotResolved
	}
	amount := mk.m.ClaimablePlatformFees
	if amount == 0 {
		return ClaimResult{}, domain.MarketEvent{}, domain.ErrNothingToClaim
	}

	mk.m.ClaimablePlatformFees = 0
	if pay != nil {
		if err := pay(amount); err != nil {
			mk.m.ClaimablePlatformFees = amount
			return ClaimResult{}, domain.MarketEvent{}, err
		}
	}
	mk.m.UpdatedAt = now

	ev := mk.newEvent(domain.EventPlatformFeesClaimed, now, map[string]any{
		"treasury": mk.m.Treasury.Hex(),
		"amount":   amount,
	})
	return ClaimResult{Amount: amount}, ev, nil
}

// PendingWinnings is the view form of ClaimWinnings: the amount a claim would
// pay right now, with no mutation. Returns zero unless the market is resolved.
func (mk *Market) PendingWinnings(bettor common.Address) int64 {
	mk.mu.Lock()
	defer mk.mu.Unlock()

	if mk.m.State != domain.StateResolved {
		return 0
	}
	winnerTotal := mk.m.OutcomeTotals[mk.m.CorrectOutcome]
	pool := mk.m.Pool()

	var total int64
	for _, s := range mk.stakes {
		if s.Bettor == bettor && s.OutcomeIndex == mk.m.CorrectOutcome && !s.Claimed {
			total += mulDivFloor(s.NetAmount, pool, winnerTotal)
		}
	}
	return total
}

// PendingRefund is the view form of ClaimRefund.
func (mk *Market) PendingRefund(bettor common.Address) int64 {
	mk.mu.Lock()
	defer mk.mu.Unlock()

	if mk.m.State != domain.StateRefunding {
		return 0
	}
	var total int64
	for _, s := range mk.stakes {
		if s.Bettor == bettor && !s.Claimed {
			total += s.NetAmount
		}
	}
	return total
}
