package book

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainReader is the read-only view of the settlement chain the book
// components need. All methods are idempotent and safe to retry; the
// concrete client is expected to bound each call with a timeout.
type ChainReader interface {
	// BalanceOf returns the account's token balance.
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)

	// Allowance returns how much of the account's balance the spender
	// may move.
	Allowance(ctx context.Context, token, account, spender common.Address) (*big.Int, error)

	// DeriveOrderID computes the canonical order id for the six
	// order-defining fields, exactly as the settlement contract does.
	DeriveOrderID(ctx context.Context, bookToken, execToken common.Address, bookAmount, execAmount *big.Int, maker common.Address, salt *big.Int) (common.Hash, error)

	// RecoverSigner recovers the address that signed the given hash.
	RecoverSigner(ctx context.Context, hash common.Hash, signature []byte) (common.Address, error)

	// ExecutedBookAmount returns the book-side amount the chain has
	// already settled for the order id.
	ExecutedBookAmount(ctx context.Context, orderID common.Hash) (*big.Int, error)
}
