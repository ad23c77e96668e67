package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketState is the lifecycle state of a settlement market.
type MarketState int

const (
	// StateActive accepts stakes until the end time plus grace period.
	StateActive MarketState = iota
	// StateProposed has a pending resolution waiting out the dispute delay.
	StateProposed
	// StateResolved pays winners; the outcome may still be reversed a bounded
	// number of times.
	StateResolved
	// StateRefunding returns all net stakes because the market never reached
	// the minimum volume.
	StateRefunding
)

// String returns the lowercase state name used in storage and API payloads.
func (s MarketState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateProposed:
		return "proposed"
	case StateResolved:
		return "resolved"
	case StateRefunding:
		return "refunding"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ParseMarketState converts a stored state name back to a MarketState.
func ParseMarketState(s string) (MarketState, error) {
	switch s {
	case "active":
		return StateActive, nil
	case "proposed":
		return StateProposed, nil
	case "resolved":
		return StateResolved, nil
	case "refunding":
		return StateRefunding, nil
	default:
		return 0, fmt.Errorf("domain: unknown market state %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler so JSON payloads carry the
// state name rather than its numeric value.
func (s MarketState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *MarketState) UnmarshalText(text []byte) error {
	parsed, err := ParseMarketState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// FeeParams holds the immutable per-market fee schedule in basis points.
type FeeParams struct {
	BaseFeeBps          int64 `json:"base_fee_bps"`
	PlatformFeeBps      int64 `json:"platform_fee_bps"`
	CreatorFeeBps       int64 `json:"creator_fee_bps"`
	MaxAdditionalFeeBps int64 `json:"max_additional_fee_bps"`
}

// TotalCapBps is the worst-case total fee rate: every fixed component plus
// the additional fee at its cap.
func (f FeeParams) TotalCapBps() int64 {
	return f.BaseFeeBps + f.PlatformFeeBps + f.CreatorFeeBps + f.MaxAdditionalFeeBps
}

// MarketParams carries the immutable construction parameters supplied by the
// factory when a market is created.
type MarketParams struct {
	Question       string         `json:"question"`
	OutcomeLabels  [2]string      `json:"outcome_labels"`
	Creator        common.Address `json:"creator"`
	Resolver       common.Address `json:"resolver"`
	Treasury       common.Address `json:"treasury"`
	EndTime        time.Time      `json:"end_time"`
	ResolutionTime time.Time      `json:"resolution_time"`
	Fees           FeeParams      `json:"fees"`
}

// Market is the persisted snapshot of a settlement market. The authoritative
// ledger lives in the engine arena; this struct is what stores, caches, and
// API responses exchange.
type Market struct {
	ID             string         `json:"id"`
	Question       string         `json:"question"`
	OutcomeLabels  [2]string      `json:"outcome_labels"`
	Creator        common.Address `json:"creator"`
	Resolver       common.Address `json:"resolver"`
	Treasury       common.Address `json:"treasury"`
	EndTime        time.Time      `json:"end_time"`
	ResolutionTime time.Time      `json:"resolution_time"`
	Fees           FeeParams      `json:"fees"`

	State         MarketState `json:"state"`
	TotalVolume   int64       `json:"total_volume"`
	OutcomeTotals [2]int64    `json:"outcome_totals"` // net (post-fee) stake per outcome

	ProposedOutcome int       `json:"proposed_outcome"`
	ProposedAt      time.Time `json:"proposed_at"` // zero until a proposal exists
	CorrectOutcome  int       `json:"correct_outcome"`
	ReversalCount   int       `json:"reversal_count"`

	ClaimableCreatorFees  int64 `json:"claimable_creator_fees"`
	ClaimablePlatformFees int64 `json:"claimable_platform_fees"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pool returns the total net stake across both outcomes: the pot that winners
// (or refund claimants) share.
func (m Market) Pool() int64 {
	return m.OutcomeTotals[0] + m.OutcomeTotals[1]
}
