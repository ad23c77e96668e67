package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// EscrowToken is the fungible ledger asset the engine escrows stakes in. The
// engine pulls the gross amount from the bettor on stake placement and pushes
// payouts on claims; it never mints, burns, or holds the asset beyond escrow.
type EscrowToken interface {
	// TransferFrom pulls amount from the given account into the engine's
	// escrow account. The account must have approved the pull beforehand.
	TransferFrom(ctx context.Context, from common.Address, amount int64) error

	// Transfer pushes amount from the engine's escrow account to the given
	// account.
	Transfer(ctx context.Context, to common.Address, amount int64) error

	// BalanceOf reports the token balance of an account.
	BalanceOf(ctx context.Context, account common.Address) (int64, error)
}
