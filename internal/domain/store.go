package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market snapshots. The engine arena is authoritative at
// runtime; the store is the durable journal replayed on startup.
type MarketStore interface {
	Insert(ctx context.Context, market Market) error
	Update(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	ListByState(ctx context.Context, state MarketState, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// StakeStore persists stakes.
type StakeStore interface {
	Insert(ctx context.Context, stake Stake) error
	MarkClaimed(ctx context.Context, ids []string) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Stake, error)
	ListByBettor(ctx context.Context, marketID string, bettor common.Address) ([]Stake, error)
}

// EventStore persists the append-only settlement event journal.
type EventStore interface {
	Append(ctx context.Context, event MarketEvent) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]MarketEvent, error)
	DeleteByMarket(ctx context.Context, marketID string) (int64, error)
}
