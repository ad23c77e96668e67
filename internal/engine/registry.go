package engine

import (
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/duelbet/settlement/internal/domain"
)

// Registry is the market arena: the authoritative in-memory collection of
// live markets plus the factory that validates and admits new ones. Persistence
// happens outside the registry; on startup Restore rebuilds the arena from the
// durable journal.
type Registry struct {
	cfg      Config
	platform common.Address

	mu      sync.RWMutex
	markets map[string]*Market
	order   []string // creation order for stable listing
	paused  bool
}

// NewRegistry builds an empty arena. The platform address is the only caller
// allowed to withdraw platform fees and to pause creation.
func NewRegistry(cfg Config, platform common.Address) *Registry {
	return &Registry{
		cfg:      cfg,
		platform: platform,
		markets:  make(map[string]*Market),
	}
}

// Config returns the engine parameters the arena was built with.
func (r *Registry) Config() Config { return r.cfg }

// CreateMarket validates the construction parameters and admits a new market
// in the Active state. The fee cap is checked against the worst case: every
// fixed component plus the additional fee at its configured maximum.
func (r *Registry) CreateMarket(params domain.MarketParams, now time.Time) (*Market, error) {
	if strings.TrimSpace(params.Question) == "" {
		return nil, domain.ErrEmptyQuestion
	}
	if params.ResolutionTime.Before(params.EndTime) {
		return nil, domain.ErrInvalidSchedule
	}
	zero := common.Address{}
	if params.Creator == zero || params.Resolver == zero || params.Treasury == zero {
		return nil, domain.ErrZeroAddress
	}
	f := params.Fees
	if f.BaseFeeBps < 0 || f.PlatformFeeBps < 0 || f.CreatorFeeBps < 0 || f.MaxAdditionalFeeBps < 0 {
		return nil, domain.ErrFeeCapExceeded
	}
	if f.TotalCapBps() > FeeCapBps {
		return nil, domain.ErrFeeCapExceeded
	}

	m := domain.Market{
		ID:             uuid.NewString(),
		Question:       params.Question,
		OutcomeLabels:  params.OutcomeLabels,
		Creator:        params.Creator,
		Resolver:       params.Resolver,
		Treasury:       params.Treasury,
		EndTime:        params.EndTime,
		ResolutionTime: params.ResolutionTime,
		Fees:           params.Fees,
		State:          domain.StateActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused {
		return nil, domain.ErrCreationPaused
	}
	mk := newMarket(r.cfg, r.platform, m)
	r.markets[m.ID] = mk
	r.order = append(r.order, m.ID)
	return mk, nil
}

// Restore re-admits a market snapshot and its stakes, used when replaying the
// durable journal at startup. It performs no validation: the snapshot already
// passed CreateMarket once.
func (r *Registry) Restore(m domain.Market, stakes []domain.Stake) *Market {
	mk := newMarket(r.cfg, r.platform, m)
	mk.stakes = append(mk.stakes, stakes...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markets[m.ID]; !ok {
		r.order = append(r.order, m.ID)
	}
	r.markets[m.ID] = mk
	return mk
}

// Get returns the live market with the given ID.
func (r *Registry) Get(id string) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mk, ok := r.markets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return mk, nil
}

// List returns snapshots of every market in creation order.
func (r *Registry) List() []domain.Market {
	r.mu.RLock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	markets := make([]*Market, 0, len(ids))
	for _, id := range ids {
		markets = append(markets, r.markets[id])
	}
	r.mu.RUnlock()

	out := make([]domain.Market, 0, len(markets))
	for _, mk := range markets {
		out = append(out, mk.Snapshot())
	}
	return out
}

// ListByState returns snapshots of markets currently in the given state,
// ordered by creation time.
func (r *Registry) ListByState(state domain.MarketState) []domain.Market {
	all := r.List()
	out := all[:0]
	for _, m := range all {
		if m.State == state {
			out = append(out, m)
		}
	}
	return out
}

// Len reports how many markets the arena holds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}

// SetPaused toggles the creation switch. Existing markets are unaffected;
// stakes, resolutions, and claims all keep working while paused.
func (r *Registry) SetPaused(caller common.Address, paused bool) error {
	if caller != r.platform {
		return domain.ErrNotPlatform
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = paused
	return nil
}

// Paused reports whether market creation is currently paused.
func (r *Registry) Paused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}
