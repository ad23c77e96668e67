package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelbet/settlement/internal/domain"
)

func TestClaimWinningsPaysPoolShare(t *testing.T) {
	mk := resolvedMarket(t, 0)
	m := mk.Snapshot()
	pool := m.Pool()
	now := testBase.Add(200 * time.Hour)

	var paid int64
	res, ev, err := mk.ClaimWinnings(alice, now, func(amount int64) error {
		paid = amount
		return nil
	})
	require.NoError(t, err)

	// Alice is the only winner, so she takes the whole pool.
	assert.Equal(t, pool, res.Amount)
	assert.Equal(t, pool, paid)
	assert.Len(t, res.StakeIDs, 1)
	assert.Equal(t, domain.EventWinningsClaimed, ev.Type)
}

func TestClaimWinningsRepeatIsAlreadyClaimed(t *testing.T) {
	mk := resolvedMarket(t, 0)
	now := testBase.Add(200 * time.Hour)

	_, _, err := mk.ClaimWinnings(alice, now, nil)
	require.NoError(t, err)

	// A re-claim on consumed stakes is rejected differently from a caller
	// who never held a winning stake.
	_, _, err = mk.ClaimWinnings(alice, now, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	assert.Zero(t, mk.PendingWinnings(alice))
}

func TestClaimWinningsLoserGetsNothing(t *testing.T) {
	mk := resolvedMarket(t, 0)
	_, _, err := mk.ClaimWinnings(bob, testBase.Add(200*time.Hour), nil)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)
	assert.NotErrorIs(t, err, domain.ErrAlreadyClaimed)
	assert.Equal(t, int64(0), mk.PendingWinnings(bob))
}

func TestClaimWinningsRequiresResolvedState(t *testing.T) {
	mk := newTestMarket(t)
	mustStake(t, mk, alice, 0, 20_000)
	_, _, err := mk.ClaimWinnings(alice, testBase.Add(time.Hour), nil)
	assert.ErrorIs(t, err, domain.ErrMarketNotResolved)
}

func TestClaimWinningsPayFailureRollsBack(t *testing.T) {
	mk := resolvedMarket(t, 0)
	now := testBase.Add(200 * time.Hour)
	pending := mk.PendingWinnings(alice)
	require.Positive(t, pending)

	payErr := errors.New("escrow transfer reverted")
	_, _, err := mk.ClaimWinnings(alice, now, func(int64) error { return payErr })
	assert.ErrorIs(t, err, payErr)

	// Rolled back: the claim is still fully available.
	assert.Equal(t, pending, mk.PendingWinnings(alice))
	res, _, err := mk.ClaimWinnings(alice, now, nil)
	require.NoError(t, err)
	assert.Equal(t, pending, res.Amount)
}

func TestClaimWinningsSplitConservation(t *testing.T) {
	mk := resolvedMarket(t, 0, func(mk *Market) {
		mustStake(t, mk, alice, 0, 7_000)
		mustStake(t, mk, carol, 0, 3_333)
		mustStake(t, mk, bob, 1, 5_000)
	})
	m := mk.Snapshot()
	pool := m.Pool()
	now := testBase.Add(200 * time.Hour)

	resA, _, err := mk.ClaimWinnings(alice, now, nil)
	require.NoError(t, err)
	resC, _, err := mk.ClaimWinnings(carol, now, nil)
	require.NoError(t, err)

	total := resA.Amount + resC.Amount
	assert.LessOrEqual(t, total, pool)
	// Flooring dust is bounded by the number of winning stakes.
	assert.GreaterOrEqual(t, total, pool-2)
	assert.Greater(t, resA.Amount, resC.Amount)
}

func TestClaimWinningsPerStakeFlooring(t *testing.T) {
	// Same bettor, two stakes: payout is the sum of per-stake floors, so the
	// result never depends on how many claims it took to collect.
	mk := resolvedMarket(t, 0, func(mk *Market) {
		mustStake(t, mk, alice, 0, 4_001)
		mustStake(t, mk, alice, 0, 2_999)
		mustStake(t, mk, bob, 1, 6_000)
	})
	m := mk.Snapshot()
	winnerTotal := m.OutcomeTotals[0]
	pool := m.Pool()

	var want int64
	for _, s := range mk.Stakes() {
		if s.OutcomeIndex == 0 {
			want += mulDivFloor(s.NetAmount, pool, winnerTotal)
		}
	}

	assert.Equal(t, want, mk.PendingWinnings(alice))
	res, _, err := mk.ClaimWinnings(alice, testBase.Add(200*time.Hour), nil)
	require.NoError(t, err)
	assert.Equal(t, want, res.Amount)
	assert.Len(t, res.StakeIDs, 2)
}

func TestReversalRewiresClaims(t *testing.T) {
	mk := resolvedMarket(t, 0)
	now := testBase.Add(200 * time.Hour)

	require.Positive(t, mk.PendingWinnings(alice))
	require.Zero(t, mk.PendingWinnings(bob))

	_, err := mk.ReverseResolution(resolver, 1, now)
	require.NoError(t, err)

	assert.Zero(t, mk.PendingWinnings(alice))
	assert.Positive(t, mk.PendingWinnings(bob))

	res, _, err := mk.ClaimWinnings(bob, now, nil)
	require.NoError(t, err)
	assert.Equal(t, mk.Snapshot().Pool(), res.Amount)
}

func refundingMarket(t *testing.T) *Market {
	t.Helper()
	mk := newTestMarket(t)
	mustStake(t, mk, alice, 0, 5_000)
	mustStake(t, mk, bob, 1, 3_000)
	_, err := mk.ProposeResolution(resolver, 0, testBase.Add(25*time.Hour))
	require.NoError(t, err)
	_, err = mk.FinalizeResolution(testBase.Add(73 * time.Hour))
	require.NoError(t, err)
	require.Equal(t, domain.StateRefunding, mk.Snapshot().State)
	return mk
}

func TestClaimRefundReturnsNetStakes(t *testing.T) {
	mk := refundingMarket(t)
	now := testBase.Add(200 * time.Hour)

	var aliceNet int64
	for _, s := range mk.Stakes() {
		if s.Bettor == alice {
			aliceNet += s.NetAmount
		}
	}
	require.Positive(t, aliceNet)
	assert.Equal(t, aliceNet, mk.PendingRefund(alice))

	var paid int64
	res, ev, err := mk.ClaimRefund(alice, now, func(amount int64) error {
		paid = amount
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, aliceNet, res.Amount)
	assert.Equal(t, aliceNet, paid)
	assert.Equal(t, domain.EventRefundClaimed, ev.Type)

	_, _, err = mk.ClaimRefund(alice, now, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestClaimRefundStrangerGetsNothing(t *testing.T) {
	mk := refundingMarket(t)
	_, _, err := mk.ClaimRefund(carol, testBase.Add(200*time.Hour), nil)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)
	assert.NotErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestClaimRefundRequiresRefundingState(t *testing.T) {
	mk := resolvedMarket(t, 0)
	_, _, err := mk.ClaimRefund(alice, testBase.Add(200*time.Hour), nil)
	assert.ErrorIs(t, err, domain.ErrMarketNotRefunding)
}

func TestClaimRefundPayFailureRollsBack(t *testing.T) {
	mk := refundingMarket(t)
	now := testBase.Add(200 * time.Hour)
	pending := mk.PendingRefund(bob)
	require.Positive(t, pending)

	payErr := errors.New("escrow transfer reverted")
	_, _, err := mk.ClaimRefund(bob, now, func(int64) error { return payErr })
	assert.ErrorIs(t, err, payErr)
	assert.Equal(t, pending, mk.PendingRefund(bob))
}

func TestClaimCreatorFees(t *testing.T) {
	mk := resolvedMarket(t, 0)
	now := testBase.Add(200 * time.Hour)
	accrued := mk.Snapshot().ClaimableCreatorFees
	require.Positive(t, accrued)

	_, _, err := mk.ClaimCreatorFees(alice, now, nil)
	assert.ErrorIs(t, err, domain.ErrNotCreator)

	var paid int64
	res, ev, err := mk.ClaimCreatorFees(creator, now, func(amount int64) error {
		paid = amount
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, accrued, res.Amount)
	assert.Equal(t, accrued, paid)
	assert.Equal(t, domain.EventCreatorFeesClaimed, ev.Type)
	assert.Zero(t, mk.Snapshot().ClaimableCreatorFees)

	_, _, err = mk.ClaimCreatorFees(creator, now, nil)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestClaimCreatorFeesBlockedWhileActive(t *testing.T) {
	mk := newTestMarket(t)
	mustStake(t, mk, alice, 0, 20_000)
	_, _, err := mk.ClaimCreatorFees(creator, testBase.Add(time.Hour), nil)
	assert.ErrorIs(t, err, domain.ErrMarketNotResolved)
}

func TestClaimPlatformFees(t *testing.T) {
	mk := resolvedMarket(t, 0)
	now := testBase.Add(200 * time.Hour)
	accrued := mk.Snapshot().ClaimablePlatformFees
	require.Positive(t, accrued)

	_, _, err := mk.ClaimPlatformFees(alice, now, nil)
	assert.ErrorIs(t, err, domain.ErrNotPlatform)

	res, _, err := mk.ClaimPlatformFees(platform, now, nil)
	require.NoError(t, err)
	assert.Equal(t, accrued, res.Amount)
	assert.Zero(t, mk.Snapshot().ClaimablePlatformFees)

	_, _, err = mk.ClaimPlatformFees(platform, now, nil)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestFeesClaimableAfterRefund(t *testing.T) {
	// Refunds return net stakes only; collected fees still pay out, so escrow
	// drains to exactly zero across all claim types.
	mk := refundingMarket(t)
	now := testBase.Add(200 * time.Hour)
	m := mk.Snapshot()

	var total int64
	resA, _, err := mk.ClaimRefund(alice, now, nil)
	require.NoError(t, err)
	total += resA.Amount
	resB, _, err := mk.ClaimRefund(bob, now, nil)
	require.NoError(t, err)
	total += resB.Amount
	resC, _, err := mk.ClaimCreatorFees(creator, now, nil)
	require.NoError(t, err)
	total += resC.Amount
	resP, _, err := mk.ClaimPlatformFees(platform, now, nil)
	require.NoError(t, err)
	total += resP.Amount

	assert.Equal(t, m.TotalVolume, total)
}
