package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelbet/settlement/internal/domain"
)

func TestCreateMarketValidation(t *testing.T) {
	reg := NewRegistry(DefaultConfig(), platform)

	t.Run("empty question", func(t *testing.T) {
		p := testParams()
		p.Question = "   "
		_, err := reg.CreateMarket(p, testBase)
		assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
	})

	t.Run("resolution before end", func(t *testing.T) {
		p := testParams()
		p.ResolutionTime = p.EndTime.Add(-time.Minute)
		_, err := reg.CreateMarket(p, testBase)
		assert.ErrorIs(t, err, domain.ErrInvalidSchedule)
	})

	t.Run("resolution equal to end is allowed", func(t *testing.T) {
		p := testParams()
		p.ResolutionTime = p.EndTime
		_, err := reg.CreateMarket(p, testBase)
		assert.NoError(t, err)
	})

	t.Run("zero addresses", func(t *testing.T) {
		for _, mutate := range []func(*domain.MarketParams){
			func(p *domain.MarketParams) { p.Creator = [20]byte{} },
			func(p *domain.MarketParams) { p.Resolver = [20]byte{} },
			func(p *domain.MarketParams) { p.Treasury = [20]byte{} },
		} {
			p := testParams()
			mutate(&p)
			_, err := reg.CreateMarket(p, testBase)
			assert.ErrorIs(t, err, domain.ErrZeroAddress)
		}
	})

	t.Run("fee cap", func(t *testing.T) {
		p := testParams()
		p.Fees = domain.FeeParams{BaseFeeBps: 300, PlatformFeeBps: 200, CreatorFeeBps: 100, MaxAdditionalFeeBps: 101}
		_, err := reg.CreateMarket(p, testBase)
		assert.ErrorIs(t, err, domain.ErrFeeCapExceeded)

		p.Fees.MaxAdditionalFeeBps = 100 // exactly at cap
		_, err = reg.CreateMarket(p, testBase)
		assert.NoError(t, err)
	})

	t.Run("negative fee component", func(t *testing.T) {
		p := testParams()
		p.Fees.CreatorFeeBps = -1
		_, err := reg.CreateMarket(p, testBase)
		assert.ErrorIs(t, err, domain.ErrFeeCapExceeded)
	})
}

func TestCreateMarketAdmitsActive(t *testing.T) {
	reg := NewRegistry(DefaultConfig(), platform)
	mk, err := reg.CreateMarket(testParams(), testBase)
	require.NoError(t, err)

	m := mk.Snapshot()
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, domain.StateActive, m.State)
	assert.Zero(t, m.TotalVolume)
	assert.True(t, m.ProposedAt.IsZero())

	got, err := reg.Get(m.ID)
	require.NoError(t, err)
	assert.Same(t, mk, got)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryGetUnknown(t *testing.T) {
	reg := NewRegistry(DefaultConfig(), platform)
	_, err := reg.Get("no-such-market")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistryListOrderAndFilter(t *testing.T) {
	reg := NewRegistry(DefaultConfig(), platform)

	first, err := reg.CreateMarket(testParams(), testBase)
	require.NoError(t, err)
	second, err := reg.CreateMarket(testParams(), testBase.Add(time.Minute))
	require.NoError(t, err)

	_, err = first.ProposeResolution(resolver, 0, testBase.Add(25*time.Hour))
	require.NoError(t, err)

	all := reg.List()
	require.Len(t, all, 2)
	assert.Equal(t, first.Snapshot().ID, all[0].ID)
	assert.Equal(t, second.Snapshot().ID, all[1].ID)

	active := reg.ListByState(domain.StateActive)
	require.Len(t, active, 1)
	assert.Equal(t, second.Snapshot().ID, active[0].ID)

	proposed := reg.ListByState(domain.StateProposed)
	require.Len(t, proposed, 1)
	assert.Equal(t, first.Snapshot().ID, proposed[0].ID)
}

func TestRegistryPause(t *testing.T) {
	reg := NewRegistry(DefaultConfig(), platform)
	mk, err := reg.CreateMarket(testParams(), testBase)
	require.NoError(t, err)

	err = reg.SetPaused(alice, true)
	assert.ErrorIs(t, err, domain.ErrNotPlatform)

	require.NoError(t, reg.SetPaused(platform, true))
	assert.True(t, reg.Paused())

	_, err = reg.CreateMarket(testParams(), testBase.Add(time.Minute))
	assert.ErrorIs(t, err, domain.ErrCreationPaused)

	// Existing markets keep operating while creation is paused.
	_, _, err = mk.PlaceStake(alice, 0, 1_000, testBase.Add(time.Hour), nil)
	assert.NoError(t, err)

	require.NoError(t, reg.SetPaused(platform, false))
	_, err = reg.CreateMarket(testParams(), testBase.Add(2*time.Minute))
	assert.NoError(t, err)
}

func TestRegistryRestoreRebuildsLedger(t *testing.T) {
	reg := NewRegistry(DefaultConfig(), platform)
	mk, err := reg.CreateMarket(testParams(), testBase)
	require.NoError(t, err)
	mustStake(t, mk, alice, 0, 8_000)
	mustStake(t, mk, bob, 1, 4_000)
	_, err = mk.ProposeResolution(resolver, 0, testBase.Add(25*time.Hour))
	require.NoError(t, err)

	snapshot := mk.Snapshot()
	stakes := mk.Stakes()

	fresh := NewRegistry(DefaultConfig(), platform)
	restored := fresh.Restore(snapshot, stakes)

	assert.Equal(t, snapshot, restored.Snapshot())
	assert.Equal(t, stakes, restored.Stakes())
	assert.Equal(t, 1, fresh.Len())

	// The restored market continues its lifecycle where it left off.
	_, err = restored.FinalizeResolution(testBase.Add(25 * time.Hour).Add(48 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.StateResolved, restored.Snapshot().State)
}
