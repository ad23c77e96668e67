package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelbet/settlement/internal/domain"
	"github.com/duelbet/settlement/internal/engine"
	"github.com/duelbet/settlement/internal/escrow"
)

var (
	svcCreator  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	svcResolver = common.HexToAddress("0x1000000000000000000000000000000000000002")
	svcTreasury = common.HexToAddress("0x1000000000000000000000000000000000000003")
	svcPlatform = common.HexToAddress("0x1000000000000000000000000000000000000004")
	svcAlice    = common.HexToAddress("0x1000000000000000000000000000000000000005")
	svcBob      = common.HexToAddress("0x1000000000000000000000000000000000000006")
)

// fakeMarketStore is an in-memory domain.MarketStore.
type fakeMarketStore struct {
	markets map[string]domain.Market
	order   []string
}

func newFakeMarketStore() *fakeMarketStore {
	return &fakeMarketStore{markets: make(map[string]domain.Market)}
}

func (s *fakeMarketStore) Insert(_ context.Context, m domain.Market) error {
	s.markets[m.ID] = m
	s.order = append(s.order, m.ID)
	return nil
}

func (s *fakeMarketStore) Update(_ context.Context, m domain.Market) error {
	if _, ok := s.markets[m.ID]; !ok {
		return domain.ErrNotFound
	}
	s.markets[m.ID] = m
	return nil
}

func (s *fakeMarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *fakeMarketStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	var out []domain.Market
	for i := opts.Offset; i < len(s.order); i++ {
		out = append(out, s.markets[s.order[i]])
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

func (s *fakeMarketStore) ListByState(_ context.Context, state domain.MarketState, _ domain.ListOpts) ([]domain.Market, error) {
	var out []domain.Market
	for _, id := range s.order {
		if m := s.markets[id]; m.State == state {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeMarketStore) Count(_ context.Context) (int64, error) {
	return int64(len(s.markets)), nil
}

// fakeStakeStore is an in-memory domain.StakeStore.
type fakeStakeStore struct {
	stakes []domain.Stake
}

func (s *fakeStakeStore) Insert(_ context.Context, st domain.Stake) error {
	s.stakes = append(s.stakes, st)
	return nil
}

func (s *fakeStakeStore) MarkClaimed(_ context.Context, ids []string) error {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for i := range s.stakes {
		if set[s.stakes[i].ID] {
			s.stakes[i].Claimed = true
		}
	}
	return nil
}

func (s *fakeStakeStore) ListByMarket(_ context.Context, marketID string, _ domain.ListOpts) ([]domain.Stake, error) {
	var out []domain.Stake
	for _, st := range s.stakes {
		if st.MarketID == marketID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *fakeStakeStore) ListByBettor(_ context.Context, marketID string, bettor common.Address) ([]domain.Stake, error) {
	var out []domain.Stake
	for _, st := range s.stakes {
		if st.MarketID == marketID && st.Bettor == bettor {
			out = append(out, st)
		}
	}
	return out, nil
}

// fakeEventStore is an in-memory domain.EventStore.
type fakeEventStore struct {
	events []domain.MarketEvent
}

func (s *fakeEventStore) Append(_ context.Context, ev domain.MarketEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeEventStore) ListByMarket(_ context.Context, marketID string, _ domain.ListOpts) ([]domain.MarketEvent, error) {
	var out []domain.MarketEvent
	for _, ev := range s.events {
		if ev.MarketID == marketID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeEventStore) DeleteByMarket(_ context.Context, marketID string) (int64, error) {
	var kept []domain.MarketEvent
	var deleted int64
	for _, ev := range s.events {
		if ev.MarketID == marketID {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return deleted, nil
}

type testEnv struct {
	reg    *engine.Registry
	token  *escrow.MemoryToken
	mstore *fakeMarketStore
	sstore *fakeStakeStore
	estore *fakeEventStore

	markets     *MarketService
	stakes      *StakeService
	resolutions *ResolutionService
	claims      *ClaimService
}

// newTestEnv builds the service layer on fakes with a nanosecond dispute
// delay so propose and finalize can run back to back against the real clock.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := engine.Config{
		GracePeriod:   5 * time.Minute,
		ProposalDelay: time.Nanosecond,
		MinimumVolume: 100,
		MaxReversals:  2,
	}

	env := &testEnv{
		reg:    engine.NewRegistry(cfg, svcPlatform),
		token:  escrow.NewMemoryToken(svcPlatform),
		mstore: newFakeMarketStore(),
		sstore: &fakeStakeStore{},
		estore: &fakeEventStore{},
	}
	env.markets = NewMarketService(env.reg, env.mstore, env.sstore, env.estore, nil, logger)
	env.stakes = NewStakeService(env.reg, env.token, env.mstore, env.sstore, env.estore, nil, nil, logger)
	env.resolutions = NewResolutionService(env.reg, env.mstore, env.estore, nil, nil, nil, logger)
	env.claims = NewClaimService(env.reg, env.token, env.mstore, env.sstore, env.estore, nil, nil, nil, svcPlatform, logger)
	return env
}

// createSettleable creates a market whose betting window is still open inside
// the grace period while its resolution time has already passed.
func (env *testEnv) createSettleable(t *testing.T) domain.Market {
	t.Helper()
	past := time.Now().UTC().Add(-time.Minute)
	m, err := env.markets.Create(context.Background(), domain.MarketParams{
		Question:       "Will the incumbent win?",
		OutcomeLabels:  [2]string{"Yes", "No"},
		Creator:        svcCreator,
		Resolver:       svcResolver,
		Treasury:       svcTreasury,
		EndTime:        past,
		ResolutionTime: past,
		Fees: domain.FeeParams{
			BaseFeeBps:     100,
			PlatformFeeBps: 100,
			CreatorFeeBps:  100,
		},
	})
	require.NoError(t, err)
	return m
}

func TestFullSettlementFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createSettleable(t)

	env.token.Mint(svcAlice, 1_000)
	env.token.Mint(svcBob, 1_000)

	// 300 bps flat fee: 600 gross -> 18 fee, 582 net.
	s1, err := env.stakes.Place(ctx, m.ID, svcAlice, 0, 600)
	require.NoError(t, err)
	assert.Equal(t, int64(18), s1.FeeAmount)
	assert.Equal(t, int64(582), s1.NetAmount)

	_, err = env.stakes.Place(ctx, m.ID, svcBob, 1, 600)
	require.NoError(t, err)

	// Escrow pulled both gross amounts.
	bal, err := env.token.BalanceOf(ctx, svcPlatform)
	require.NoError(t, err)
	assert.Equal(t, int64(1_200), bal)

	_, err = env.resolutions.Propose(ctx, m.ID, svcResolver, 0)
	require.NoError(t, err)

	got, err := env.resolutions.Finalize(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateResolved, got.State)
	assert.Equal(t, 0, got.CorrectOutcome)

	// Winner takes the whole pool: 582 + 582.
	res, err := env.claims.ClaimWinnings(ctx, m.ID, svcAlice)
	require.NoError(t, err)
	assert.Equal(t, int64(1_164), res.Amount)
	require.Len(t, res.StakeIDs, 1)

	aliceBal, err := env.token.BalanceOf(ctx, svcAlice)
	require.NoError(t, err)
	assert.Equal(t, int64(400+1_164), aliceBal)

	// Stake marked claimed in the durable store.
	stakes, err := env.stakes.ListByBettor(ctx, m.ID, svcAlice)
	require.NoError(t, err)
	require.Len(t, stakes, 1)
	assert.True(t, stakes[0].Claimed)

	// Fee withdrawals drain the rest.
	creatorRes, err := env.claims.ClaimCreatorFees(ctx, m.ID, svcCreator)
	require.NoError(t, err)
	assert.Equal(t, int64(12), creatorRes.Amount)

	platformRes, err := env.claims.ClaimPlatformFees(ctx, m.ID, svcPlatform)
	require.NoError(t, err)
	assert.Equal(t, int64(24), platformRes.Amount)

	treasuryBal, err := env.token.BalanceOf(ctx, svcTreasury)
	require.NoError(t, err)
	assert.Equal(t, int64(24), treasuryBal)

	// Journal recorded every transition.
	events, err := env.markets.Events(ctx, m.ID, domain.ListOpts{})
	require.NoError(t, err)
	types := make([]domain.EventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventStakePlaced,
		domain.EventStakePlaced,
		domain.EventResolutionProposed,
		domain.EventMarketResolved,
		domain.EventWinningsClaimed,
		domain.EventCreatorFeesClaimed,
		domain.EventPlatformFeesClaimed,
	}, types)
}

func TestRefundFlowReturnsNetStakes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createSettleable(t)

	// 50 gross is below the minimum volume of 100.
	env.token.Mint(svcAlice, 100)
	s, err := env.stakes.Place(ctx, m.ID, svcAlice, 1, 50)
	require.NoError(t, err)

	_, err = env.resolutions.Propose(ctx, m.ID, svcResolver, 1)
	require.NoError(t, err)
	got, err := env.resolutions.Finalize(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateRefunding, got.State)

	res, err := env.claims.ClaimRefund(ctx, m.ID, svcAlice)
	require.NoError(t, err)
	assert.Equal(t, s.NetAmount, res.Amount)

	// A second refund attempt is a re-claim.
	_, err = env.claims.ClaimRefund(ctx, m.ID, svcAlice)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestClaimWinningsWrongStateAndLoser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createSettleable(t)

	env.token.Mint(svcAlice, 1_000)
	env.token.Mint(svcBob, 1_000)
	_, err := env.stakes.Place(ctx, m.ID, svcAlice, 0, 600)
	require.NoError(t, err)
	_, err = env.stakes.Place(ctx, m.ID, svcBob, 1, 600)
	require.NoError(t, err)

	// Market still active.
	_, err = env.claims.ClaimWinnings(ctx, m.ID, svcAlice)
	assert.ErrorIs(t, err, domain.ErrMarketNotResolved)

	_, err = env.resolutions.Propose(ctx, m.ID, svcResolver, 0)
	require.NoError(t, err)
	_, err = env.resolutions.Finalize(ctx, m.ID)
	require.NoError(t, err)

	// Losing side has nothing.
	_, err = env.claims.ClaimWinnings(ctx, m.ID, svcBob)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestClaimableView(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createSettleable(t)

	env.token.Mint(svcAlice, 1_000)
	env.token.Mint(svcBob, 1_000)
	_, err := env.stakes.Place(ctx, m.ID, svcAlice, 0, 600)
	require.NoError(t, err)
	_, err = env.stakes.Place(ctx, m.ID, svcBob, 1, 600)
	require.NoError(t, err)
	_, err = env.resolutions.Propose(ctx, m.ID, svcResolver, 0)
	require.NoError(t, err)
	_, err = env.resolutions.Finalize(ctx, m.ID)
	require.NoError(t, err)

	c, err := env.claims.Claimable(ctx, m.ID, svcAlice)
	require.NoError(t, err)
	assert.Equal(t, int64(1_164), c.Winnings)
	assert.Zero(t, c.CreatorFees)
	assert.Zero(t, c.PlatformFees)

	c, err = env.claims.Claimable(ctx, m.ID, svcCreator)
	require.NoError(t, err)
	assert.Zero(t, c.Winnings)
	assert.Equal(t, int64(12), c.CreatorFees)

	c, err = env.claims.Claimable(ctx, m.ID, svcPlatform)
	require.NoError(t, err)
	assert.Equal(t, int64(24), c.PlatformFees)
}

func TestReverseRewiresClaims(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createSettleable(t)

	env.token.Mint(svcAlice, 1_000)
	env.token.Mint(svcBob, 1_000)
	_, err := env.stakes.Place(ctx, m.ID, svcAlice, 0, 600)
	require.NoError(t, err)
	_, err = env.stakes.Place(ctx, m.ID, svcBob, 1, 600)
	require.NoError(t, err)
	_, err = env.resolutions.Propose(ctx, m.ID, svcResolver, 0)
	require.NoError(t, err)
	_, err = env.resolutions.Finalize(ctx, m.ID)
	require.NoError(t, err)

	got, err := env.resolutions.Reverse(ctx, m.ID, svcResolver, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CorrectOutcome)
	assert.Equal(t, 1, got.ReversalCount)

	// The win moved to the other side.
	_, err = env.claims.ClaimWinnings(ctx, m.ID, svcAlice)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)
	res, err := env.claims.ClaimWinnings(ctx, m.ID, svcBob)
	require.NoError(t, err)
	assert.Equal(t, int64(1_164), res.Amount)
}

func TestStakeFailsWithoutFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createSettleable(t)

	_, err := env.stakes.Place(ctx, m.ID, svcAlice, 0, 600)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Nothing persisted for the failed stake.
	stakes, err := env.stakes.ListByMarket(ctx, m.ID, domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, stakes)
	events, err := env.markets.Events(ctx, m.ID, domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRestoreReplaysJournal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createSettleable(t)

	env.token.Mint(svcAlice, 1_000)
	placed, err := env.stakes.Place(ctx, m.ID, svcAlice, 0, 600)
	require.NoError(t, err)

	// Fresh arena backed by the same stores, as after a restart.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg2 := engine.NewRegistry(env.reg.Config(), svcPlatform)
	markets2 := NewMarketService(reg2, env.mstore, env.sstore, env.estore, nil, logger)

	n, err := markets2.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := markets2.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), got.TotalVolume)
	assert.Equal(t, placed.NetAmount, got.OutcomeTotals[0])
}

func TestGetFallsBackToStoreForArchivedMarket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Present only in the durable store, not the arena.
	m := domain.Market{ID: "archived-1", Question: "q", State: domain.StateResolved}
	require.NoError(t, env.mstore.Insert(ctx, m))

	got, err := env.markets.Get(ctx, "archived-1")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	_, err = env.markets.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
