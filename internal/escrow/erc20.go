package escrow

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/duelbet/settlement/internal/domain"
)

// Function selectors: first four bytes of keccak256 of the canonical
// signatures.
var (
	selTransfer     = ethcrypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	selTransferFrom = ethcrypto.Keccak256([]byte("transferFrom(address,address,uint256)"))[:4]
	selBalanceOf    = ethcrypto.Keccak256([]byte("balanceOf(address)"))[:4]
)

// ERC20Config configures the on-chain escrow adapter.
type ERC20Config struct {
	// RPCURL is the JSON-RPC endpoint of the chain node.
	RPCURL string
	// TokenAddress is the ERC-20 contract the engine escrows stakes in.
	TokenAddress common.Address
	// OperatorKeyHex is the hex-encoded private key of the escrow operator
	// account that holds pulled stakes and signs payout transactions.
	OperatorKeyHex string
	// ChainID of the target network.
	ChainID int64
	// GasLimit per transfer transaction. Defaults to 100,000.
	GasLimit uint64
}

// ERC20Token implements domain.EscrowToken against an ERC-20 contract via
// go-ethereum. The operator account is the escrow pot: TransferFrom pulls
// bettor funds into it (the bettor must have approved the operator), and
// Transfer signs payouts out of it.
type ERC20Token struct {
	client   *ethclient.Client
	token    common.Address
	operator common.Address
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	gasLimit uint64
}

// NewERC20Token dials the RPC endpoint and derives the operator address from
// the configured key.
func NewERC20Token(ctx context.Context, cfg ERC20Config) (*ERC20Token, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("escrow: dial %s: %w", cfg.RPCURL, err)
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("escrow: invalid operator key: %w", err)
	}

	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 100_000
	}

	return &ERC20Token{
		client:   client,
		token:    cfg.TokenAddress,
		operator: ethcrypto.PubkeyToAddress(key.PublicKey),
		key:      key,
		chainID:  big.NewInt(cfg.ChainID),
		gasLimit: gasLimit,
	}, nil
}

var _ domain.EscrowToken = (*ERC20Token)(nil)

// Operator returns the escrow operator address.
func (t *ERC20Token) Operator() common.Address {
	return t.operator
}

// Close releases the RPC connection.
func (t *ERC20Token) Close() {
	t.client.Close()
}

// TransferFrom pulls amount from the given account into the operator account.
func (t *ERC20Token) TransferFrom(ctx context.Context, from common.Address, amount int64) error {
	data := make([]byte, 0, 4+3*32)
	data = append(data, selTransferFrom...)
	data = append(data, common.LeftPadBytes(from.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(t.operator.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(amount).Bytes(), 32)...)

	if err := t.sendAndWait(ctx, data); err != nil {
		return fmt.Errorf("escrow: transferFrom %s: %w", from.Hex(), err)
	}
	return nil
}

// Transfer pushes amount from the operator account to the given account.
func (t *ERC20Token) Transfer(ctx context.Context, to common.Address, amount int64) error {
	data := make([]byte, 0, 4+2*32)
	data = append(data, selTransfer...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(amount).Bytes(), 32)...)

	if err := t.sendAndWait(ctx, data); err != nil {
		return fmt.Errorf("escrow: transfer to %s: %w", to.Hex(), err)
	}
	return nil
}

// BalanceOf reports the token balance of an account via eth_call.
func (t *ERC20Token) BalanceOf(ctx context.Context, account common.Address) (int64, error) {
	data := make([]byte, 0, 4+32)
	data = append(data, selBalanceOf...)
	data = append(data, common.LeftPadBytes(account.Bytes(), 32)...)

	out, err := t.client.CallContract(ctx, ethereum.CallMsg{
		To:   &t.token,
		Data: data,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("escrow: balanceOf %s: %w", account.Hex(), err)
	}
	if len(out) < 32 {
		return 0, fmt.Errorf("escrow: balanceOf %s: short return data", account.Hex())
	}
	return new(big.Int).SetBytes(out).Int64(), nil
}

// sendAndWait signs a contract call from the operator account, submits it,
// and blocks until the transaction is mined. A reverted receipt is an error:
// the engine must never treat an unmined or failed transfer as settled.
func (t *ERC20Token) sendAndWait(ctx context.Context, data []byte) error {
	nonce, err := t.client.PendingNonceAt(ctx, t.operator)
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &t.token,
		Gas:      t.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(t.chainID), t.key)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	if err := t.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	receipt, err := waitMined(ctx, t.client, signed.Hash())
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return domain.ErrEscrowTransfer
	}
	return nil
}

func waitMined(ctx context.Context, client *ethclient.Client, hash common.Hash) (*types.Receipt, error) {
	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if err != ethereum.NotFound {
			return nil, fmt.Errorf("receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
