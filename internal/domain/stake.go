package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Stake is a single position taken on one outcome of a market. GrossAmount is
// what the bettor paid; NetAmount is what entered the outcome pool after the
// fee; the two differ by FeeAmount exactly.
type Stake struct {
	ID           string         `json:"id"`
	MarketID     string         `json:"market_id"`
	Bettor       common.Address `json:"bettor"`
	OutcomeIndex int            `json:"outcome_index"`
	GrossAmount  int64          `json:"gross_amount"`
	FeeAmount    int64          `json:"fee_amount"`
	NetAmount    int64          `json:"net_amount"`
	PlacedAt     time.Time      `json:"placed_at"`
	Claimed      bool           `json:"claimed"`
}
