// Package escrow provides implementations of the domain escrow token: an
// in-memory ledger for development and tests, and an ERC-20 adapter for
// production deployments that settle on-chain.
package escrow

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/duelbet/settlement/internal/domain"
)

// MemoryToken is an in-memory escrow ledger. Pulls move funds from the
// account's balance into the escrow account; pushes move them back out.
// Useful for tests and single-node deployments that do not settle on-chain.
type MemoryToken struct {
	mu       sync.Mutex
	escrow   common.Address
	balances map[common.Address]int64
}

// NewMemoryToken creates a ledger whose escrow pot lives at the given address.
func NewMemoryToken(escrowAccount common.Address) *MemoryToken {
	return &MemoryToken{
		escrow:   escrowAccount,
		balances: make(map[common.Address]int64),
	}
}

var _ domain.EscrowToken = (*MemoryToken)(nil)

// Mint credits an account, for seeding test and development balances.
func (t *MemoryToken) Mint(account common.Address, amount int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[account] += amount
}

// TransferFrom pulls amount from the given account into escrow.
func (t *MemoryToken) TransferFrom(_ context.Context, from common.Address, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.balances[from] < amount {
		return domain.ErrInsufficientFunds
	}
	t.balances[from] -= amount
	t.balances[t.escrow] += amount
	return nil
}

// Transfer pushes amount from escrow to the given account.
func (t *MemoryToken) Transfer(_ context.Context, to common.Address, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.balances[t.escrow] < amount {
		return domain.ErrInsufficientFunds
	}
	t.balances[t.escrow] -= amount
	t.balances[to] += amount
	return nil
}

// BalanceOf reports the balance of an account.
func (t *MemoryToken) BalanceOf(_ context.Context, account common.Address) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[account], nil
}
