// Package chain talks to the settlement contract and the token
// contracts: reads (balances, allowances, executed amounts, order-id
// derivation) and writes (approve, settle, cancel). Reads are
// idempotent and retried with backoff; writes are not, and callers must
// follow them with an explicit reconcile rather than assume success.
package chain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/signbook/signbook/pkg/book"
)

// ErrUnavailable wraps transient collaborator failures. Reads carrying
// it are safe to retry with backoff.
var ErrUnavailable = errors.New("chain unavailable")

// Gas schedule of the settlement contract's entry points.
const (
	executeGasPerOrder = 150_000
	executeGasBase     = 50_000
	cancelGasPerOrder  = 75_000
	cancelGasBase      = 25_000
	approveGas         = 75_000
)

// SendOptions tune a chain write.
type SendOptions struct {
	GasLimit uint64 // 0 derives the limit from the gas schedule
}

// Chain is the full collaborator surface: the book's read-only view
// plus preflight checks and transaction submission.
type Chain interface {
	book.ChainReader

	// SettlementAddress is the contract funds are approved to and
	// settled through.
	SettlementAddress() common.Address

	// CheckOrderExecution previews settling a single order for
	// requiredBookAmount, returning the exec-side amount the taker
	// would owe (zero or negative means the preparation is invalid).
	CheckOrderExecution(ctx context.Context, o *book.Order, requiredBookAmount *big.Int) (*big.Int, error)

	// CheckOrdersExecution previews settling a whole plan.
	CheckOrdersExecution(ctx context.Context, plan *book.PreparedExecution) (*big.Int, error)

	// Approve lets the settlement contract spend amount of the caller's
	// token.
	Approve(ctx context.Context, token common.Address, amount *big.Int, opts *SendOptions) (common.Hash, error)

	// Settle submits an execution plan, attaching value of the native
	// asset when the exec side requires it.
	Settle(ctx context.Context, plan *book.PreparedExecution, value *big.Int, opts *SendOptions) (common.Hash, error)

	// Cancel revokes a resting order on-chain.
	Cancel(ctx context.Context, o *book.Order, opts *SendOptions) (common.Hash, error)
}

// withRetries runs an idempotent call up to attempts times, each under
// its own timeout, backing off between failures.
func withRetries(ctx context.Context, attempts int, timeout time.Duration, call func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	backoff := 100 * time.Millisecond
	var err error
	for i := 0; i < attempts; i++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err = call(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i < attempts-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return err
}
