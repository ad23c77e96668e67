package engine

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/duelbet/settlement/internal/domain"
)

// Config holds the engine-wide timing and threshold parameters shared by
// every market in the arena.
type Config struct {
	// GracePeriod is how long after the nominal end time stakes are still
	// accepted, so in-flight stakes can settle.
	GracePeriod time.Duration

	// ProposalDelay is the mandatory dispute window between a proposed
	// resolution and its finalization.
	ProposalDelay time.Duration

	// MinimumVolume is the gross volume a market must attract to resolve;
	// below it the market refunds instead. The boundary is inclusive on the
	// resolve side.
	MinimumVolume int64

	// MaxReversals bounds how many times the resolver may correct a
	// finalized outcome.
	MaxReversals int
}

// DefaultConfig returns the standard engine parameters.
func DefaultConfig() Config {
	return Config{
		GracePeriod:   5 * time.Minute,
		ProposalDelay: 48 * time.Hour,
		MinimumVolume: 10_000,
		MaxReversals:  2,
	}
}

// Market is the live ledger for one question. It owns its two outcome totals
// and its stake collection exclusively; nothing is shared across markets, so
// markets may be processed in any relative order.
//
// Every state-mutating call runs under the market mutex from precondition
// check to commit, giving the single-writer transaction model: a call either
// commits in full or leaves no trace. Operations that move escrow value take
// a transfer callback which is invoked only after the engine's own
// bookkeeping is complete; if the transfer fails the bookkeeping is unwound
// before the lock is released, so no external callee can ever observe or keep
// half-updated state.
type Market struct {
	mu       sync.Mutex
	cfg      Config
	platform common.Address // registered platform caller for fee withdrawal

	m      domain.Market
	stakes []domain.Stake
}

func newMarket(cfg Config, platform common.Address, m domain.Market) *Market {
	return &Market{cfg: cfg, platform: platform, m: m}
}

// Snapshot returns a copy of the market's current ledger state.
func (mk *Market) Snapshot() domain.Market {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	return mk.m
}

// Stakes returns a copy of the market's full stake history.
func (mk *Market) Stakes() []domain.Stake {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	out := make([]domain.Stake, len(mk.stakes))
	copy(out, mk.stakes)
	return out
}

// StakesOf returns a copy of one bettor's stakes in placement order.
func (mk *Market) StakesOf(bettor common.Address) []domain.Stake {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	var out []domain.Stake
	for _, s := range mk.stakes {
		if s.Bettor == bettor {
			out = append(out, s)
		}
	}
	return out
}

// GraceOpen reports whether the betting window (end time plus grace period)
// is still open at the given instant. It does not consider market state.
func (mk *Market) GraceOpen(now time.Time) bool {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	return !now.After(mk.m.EndTime.Add(mk.cfg.GracePeriod))
}

// PlaceStake validates, escrows, and records a stake of gross units on the
// given outcome. The pull callback performs the escrow TransferFrom and runs
// after every precondition has passed but before any ledger mutation, so a
// failed pull aborts the call with no state change.
//
// The net (post-fee) amount is credited to the chosen outcome; the gross
// amount is added to total volume so the volume-based fee and the minimum
// liquidity check reflect real inflow rather than post-fee residue.
func (mk *Market) PlaceStake(bettor common.Address, outcomeIndex int, gross int64, now time.Time, pull func() error) (domain.Stake, domain.MarketEvent, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()

	if mk.m.State != domain.StateActive {
		return domain.Stake{}, domain.MarketEvent{}, domain.ErrMarketNotActive
	}
	// Blocks stakes the instant a resolution exists, even inside the grace
	// window (front-running defense). Unreachable while state is Active under
	// the current transition rules, but cheap to keep explicit.
	if !mk.m.ProposedAt.IsZero() {
		return domain.Stake{}, domain.MarketEvent{}, domain.ErrResolutionPending
	}
	if now.After(mk.m.EndTime.Add(mk.cfg.GracePeriod)) {
		return domain.Stake{}, domain.MarketEvent{}, domain.ErrBettingClosed
	}
	if bettor == mk.m.Creator {
		return domain.Stake{}, domain.MarketEvent{}, domain.ErrCreatorStake
	}
	if gross <= 0 {
		return domain.Stake{}, domain.MarketEvent{}, domain.ErrInvalidAmount
	}
	if outcomeIndex != 0 && outcomeIndex != 1 {
		return domain.Stake{}, domain.MarketEvent{}, domain.ErrInvalidOutcome
	}

	if pull != nil {
		if err := pull(); err != nil {
			return domain.Stake{}, domain.MarketEvent{}, err
		}
	}

	fb := ComputeFee(mk.m.Fees, mk.m.TotalVolume, gross)

	stake := domain.Stake{
		ID:           uuid.NewString(),
		MarketID:     mk.m.ID,
		Bettor:       bettor,
		OutcomeIndex: outcomeIndex,
		GrossAmount:  gross,
		FeeAmount:    fb.Fee,
		NetAmount:    fb.Net,
		PlacedAt:     now,
	}

	mk.stakes = append(mk.stakes, stake)
	mk.m.OutcomeTotals[outcomeIndex] += fb.Net
	mk.m.TotalVolume += gross
	mk.m.ClaimableCreatorFees += fb.CreatorFee
	mk.m.ClaimablePlatformFees += fb.PlatformFee
	mk.m.UpdatedAt = now

	ev := mk.newEvent(domain.EventStakePlaced, now, map[string]any{
		"bettor":        bettor.Hex(),
		"outcome_index": outcomeIndex,
		"gross_amount":  gross,
		"net_amount":    fb.Net,
		"fee_amount":    fb.Fee,
	})
	return stake, ev, nil
}

// ProposeResolution records the resolver's asserted outcome and starts the
// dispute delay. A market accepts exactly one proposal.
func (mk *Market) ProposeResolution(caller common.Address, outcomeIndex int, now time.Time) (domain.MarketEvent, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()

	if caller != mk.m.Resolver {
		return domain.MarketEvent{}, domain.ErrNotResolver
	}
	if mk.m.State != domain.StateActive {
		return domain.MarketEvent{}, domain.ErrMarketNotActive
	}
	if !mk.m.ProposedAt.IsZero() {
		return domain.MarketEvent{}, domain.ErrResolutionPending
	}
	if now.Before(mk.m.ResolutionTime) {
		return domain.MarketEvent{}, domain.ErrResolutionEarly
	}
	if outcomeIndex != 0 && outcomeIndex != 1 {
		return domain.MarketEvent{}, domain.ErrInvalidOutcome
	}

	mk.m.State = domain.StateProposed
	mk.m.ProposedOutcome = outcomeIndex
	mk.m.ProposedAt = now
	mk.m.UpdatedAt = now

	ev := mk.newEvent(domain.EventResolutionProposed, now, map[string]any{
		"outcome_index": outcomeIndex,
		"proposed_at":   now.Unix(),
	})
	return ev, nil
}

// FinalizeResolution commits the proposed outcome once the dispute delay has
// elapsed. Anyone may call it; the delay itself is the safeguard. A market
// that never reached the minimum volume enters refunding instead of
// resolving, since settling a low-participation coin-flip would be
// economically meaningless.
func (mk *Market) FinalizeResolution(now time.Time) (domain.MarketEvent, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()

	if mk.m.State != domain.StateProposed {
		return domain.MarketEvent{}, domain.ErrMarketNotProposed
	}
	if now.Before(mk.m.ProposedAt.Add(mk.cfg.ProposalDelay)) {
		return domain.MarketEvent{}, domain.ErrDelayNotElapsed
	}

	if mk.m.TotalVolume >= mk.cfg.MinimumVolume {
		mk.m.State = domain.StateResolved
		mk.m.CorrectOutcome = mk.m.ProposedOutcome
		mk.m.UpdatedAt = now
		ev := mk.newEvent(domain.EventMarketResolved, now, map[string]any{
			"outcome_index": mk.m.CorrectOutcome,
			"total_volume":  mk.m.TotalVolume,
		})
		return ev, nil
	}

	mk.m.State = domain.StateRefunding
	mk.m.UpdatedAt = now
	ev := mk.newEvent(domain.EventMarketRefunding, now, map[string]any{
		"reason":         "minimum volume not reached",
		"total_volume":   mk.m.TotalVolume,
		"minimum_volume": mk.cfg.MinimumVolume,
	})
	return ev, nil
}

// ReverseResolution lets the resolver correct a finalized outcome, up to the
// reversal cap. State stays Resolved; only the correct outcome and the
// reversal count change, which rewires future claim eligibility. No time
// window applies beyond the cap: the resolver is correcting its own error
// without re-running the dispute delay.
func (mk *Market) ReverseResolution(caller common.Address, newOutcomeIndex int, now time.Time) (domain.MarketEvent, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()

	if caller != mk.m.Resolver {
		return domain.MarketEvent{}, domain.ErrNotResolver
	}
	if mk.m.State != domain.StateResolved {
		return domain.MarketEvent{}, domain.ErrMarketNotResolved
	}
	if mk.m.ReversalCount >= mk.cfg.MaxReversals {
		return domain.MarketEvent{}, domain.ErrReversalLimit
	}
	if newOutcomeIndex != 0 && newOutcomeIndex != 1 {
		return domain.MarketEvent{}, domain.ErrInvalidOutcome
	}
	if newOutcomeIndex == mk.m.CorrectOutcome {
		return domain.MarketEvent{}, domain.ErrSameOutcome
	}

	old := mk.m.CorrectOutcome
	mk.m.CorrectOutcome = newOutcomeIndex
	mk.m.ReversalCount++
	mk.m.UpdatedAt = now

	ev := mk.newEvent(domain.EventResolutionReversed, now, map[string]any{
		"old_outcome":    old,
		"new_outcome":    newOutcomeIndex,
		"reversal_count": mk.m.ReversalCount,
	})
	return ev, nil
}

// newEvent builds a journal entry for a transition. Callers hold the lock.
func (mk *Market) newEvent(t domain.EventType, now time.Time, payload map[string]any) domain.MarketEvent {
	return domain.MarketEvent{
		ID:         uuid.NewString(),
		MarketID:   mk.m.ID,
		Type:       t,
		Payload:    payload,
		OccurredAt: now,
	}
}
