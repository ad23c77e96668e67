package escrow

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelbet/settlement/internal/domain"
)

var (
	pot  = common.HexToAddress("0x00000000000000000000000000000000000000e5")
	user = common.HexToAddress("0x0000000000000000000000000000000000000042")
)

func TestMemoryTokenPullAndPush(t *testing.T) {
	ctx := context.Background()
	tok := NewMemoryToken(pot)
	tok.Mint(user, 1_000)

	require.NoError(t, tok.TransferFrom(ctx, user, 400))

	bal, err := tok.BalanceOf(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(600), bal)
	bal, err = tok.BalanceOf(ctx, pot)
	require.NoError(t, err)
	assert.Equal(t, int64(400), bal)

	require.NoError(t, tok.Transfer(ctx, user, 150))
	bal, _ = tok.BalanceOf(ctx, user)
	assert.Equal(t, int64(750), bal)
	bal, _ = tok.BalanceOf(ctx, pot)
	assert.Equal(t, int64(250), bal)
}

func TestMemoryTokenInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	tok := NewMemoryToken(pot)
	tok.Mint(user, 100)

	err := tok.TransferFrom(ctx, user, 101)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	err = tok.Transfer(ctx, user, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestMemoryTokenRejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	tok := NewMemoryToken(pot)

	assert.ErrorIs(t, tok.TransferFrom(ctx, user, 0), domain.ErrInvalidAmount)
	assert.ErrorIs(t, tok.Transfer(ctx, user, -1), domain.ErrInvalidAmount)
}
