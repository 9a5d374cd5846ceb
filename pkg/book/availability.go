package book

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Availability combines live balance, live allowance, and
// ledger-committed amounts into a maker's spendable quantity.
type Availability struct {
	chain      ChainReader
	ledger     *Ledger
	settlement common.Address // allowance spender
}

func NewAvailability(chain ChainReader, ledger *Ledger, settlement common.Address) *Availability {
	return &Availability{chain: chain, ledger: ledger, settlement: settlement}
}

// Available returns min(balance, allowance) minus the maker's committed
// amount for bookToken, or -1 when the maker is over-committed.
func (a *Availability) Available(ctx context.Context, bookToken, maker common.Address) (*big.Int, error) {
	if bookToken == NativeAsset {
		return nil, fmt.Errorf("%w: native asset has no book-side availability", ErrInvalidToken)
	}

	balance, err := a.chain.BalanceOf(ctx, bookToken, maker)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	approved, err := a.chain.Allowance(ctx, bookToken, maker, a.settlement)
	if err != nil {
		return nil, fmt.Errorf("failed to read allowance: %w", err)
	}

	free := balance
	if approved.Cmp(balance) < 0 {
		free = approved
	}

	used := a.ledger.SumCommitted(bookToken, maker)
	if free.Cmp(used) < 0 {
		// over-committed sentinel; callers treat any negative result as
		// "unavailable", not as a literal deficit
		return big.NewInt(-1), nil
	}
	return new(big.Int).Sub(free, used), nil
}
