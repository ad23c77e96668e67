// Package engine implements the settlement core: the fee engine, the
// per-market state machine, the claims ledger, and the market arena. All
// amounts are int64 units of the escrow token's smallest denomination.
package engine

import (
	"math/big"

	"github.com/duelbet/settlement/internal/domain"
)

const (
	// bpsDenominator converts basis points to a fraction.
	bpsDenominator = 10_000

	// unitsPerAdditionalBp adds one basis point of fee per this many units of
	// cumulative gross volume.
	unitsPerAdditionalBp = 1_000

	// FeeCapBps bounds the combined fee schedule a market may be created
	// with: base + platform + creator + maxAdditional.
	FeeCapBps = 700
)

// FeeBreakdown is the result of running the fee engine against one gross
// stake amount.
type FeeBreakdown struct {
	TotalBps    int64 // effective total fee rate applied
	Fee         int64 // total fee deducted from the gross amount
	CreatorFee  int64 // portion accruing to the market creator
	PlatformFee int64 // base + platform + additional portion (fee remainder)
	Net         int64 // gross minus fee; credited to the chosen outcome
}

// AdditionalFeeBps returns the volume-based fee component: one basis point per
// 1,000 units of cumulative gross volume, capped at maxBps. It is a
// non-decreasing step function of volume.
func AdditionalFeeBps(totalVolume, maxBps int64) int64 {
	bps := totalVolume / unitsPerAdditionalBp
	if bps > maxBps {
		return maxBps
	}
	return bps
}

// ComputeFee splits a gross stake into fee components given the market's fee
// schedule and the cumulative gross volume before this stake. Pure function;
// callable as a view.
//
// The creator portion is floored independently and the integer remainder of
// the total fee is assigned to the platform portion, so
// CreatorFee + PlatformFee == Fee holds exactly and no fee dust is ever
// under-collected.
func ComputeFee(fees domain.FeeParams, totalVolume, gross int64) FeeBreakdown {
	totalBps := fees.BaseFeeBps + fees.PlatformFeeBps + fees.CreatorFeeBps +
		AdditionalFeeBps(totalVolume, fees.MaxAdditionalFeeBps)

	// Multiply before dividing: flooring the rate first would zero out fees
	// on small stakes.
	fee := mulDivFloor(gross, totalBps, bpsDenominator)
	creatorFee := mulDivFloor(gross, fees.CreatorFeeBps, bpsDenominator)

	return FeeBreakdown{
		TotalBps:    totalBps,
		Fee:         fee,
		CreatorFee:  creatorFee,
		PlatformFee: fee - creatorFee,
		Net:         gross - fee,
	}
}

// mulDivFloor returns floor(a*b/den) with the intermediate product computed
// in arbitrary precision so it cannot overflow int64.
func mulDivFloor(a, b, den int64) int64 {
	p := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	p.Quo(p, big.NewInt(den))
	return p.Int64()
}
