package book

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"go.uber.org/zap"

	"github.com/signbook/signbook/pkg/salt"
	"github.com/signbook/signbook/pkg/util"
)

// Validator gates admission into the ledger. Every externally supplied
// order is re-verified against the chain before it is trusted: id
// derivation, signature recovery, and the executed amount are never
// taken from the caller, since a stale or forged order would let a
// maker claim liquidity they cannot honor.
type Validator struct {
	chain  ChainReader
	ledger *Ledger
	clock  util.Clock
	log    *zap.SugaredLogger
}

func NewValidator(chain ChainReader, ledger *Ledger, clock util.Clock, log *zap.SugaredLogger) *Validator {
	return &Validator{chain: chain, ledger: ledger, clock: clock, log: log}
}

// Admit verifies the order and inserts it into the ledger with
// FreeBookAmount, Price, Time, and the validity window populated,
// returning the inserted order.
func (v *Validator) Admit(ctx context.Context, o *Order) (*Order, error) {
	if o.BookToken == NativeAsset {
		return nil, fmt.Errorf("%w: book token must not be the native asset", ErrInvalidToken)
	}
	if o.BookAmount == nil || o.BookAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: book amount %s", ErrInvalidAmount, o.BookAmount)
	}
	if o.ExecAmount == nil || o.ExecAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: exec amount %s", ErrInvalidAmount, o.ExecAmount)
	}
	// the contract computes bookAmount*execAmount; it must not overflow
	product := new(big.Int).Mul(o.BookAmount, o.ExecAmount)
	if product.Cmp(math.MaxBig256) > 0 {
		return nil, fmt.Errorf("%w: amount product overflows 256 bits", ErrInvalidAmount)
	}
	if o.Salt == nil || o.Salt.Sign() < 0 || o.Salt.Cmp(math.MaxBig256) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSalt, o.Salt)
	}

	derived, err := v.chain.DeriveOrderID(ctx, o.BookToken, o.ExecToken, o.BookAmount, o.ExecAmount, o.Maker, o.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive order id: %w", err)
	}
	if derived != o.OrderID {
		return nil, fmt.Errorf("%w: got %s, derived %s", ErrOrderIDMismatch, o.OrderID, derived)
	}

	signer, err := v.chain.RecoverSigner(ctx, o.OrderID, o.Signature)
	if err != nil {
		return nil, fmt.Errorf("failed to recover signer: %w", err)
	}
	if signer != o.Maker {
		return nil, fmt.Errorf("%w: signed by %s, maker %s", ErrSignerMismatch, signer.Hex(), o.Maker.Hex())
	}

	executed, err := v.chain.ExecutedBookAmount(ctx, o.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to read executed amount: %w", err)
	}
	if executed.Cmp(o.BookAmount) >= 0 {
		return nil, fmt.Errorf("%w: %s fully executed or cancelled", ErrInactiveOrder, o.OrderID)
	}

	startTime, endTime, _, err := salt.Decode(o.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSalt, err)
	}

	admitted := o.clone()
	admitted.Signature = bytes.Clone(o.Signature)
	admitted.FreeBookAmount = new(big.Int).Sub(o.BookAmount, executed)
	admitted.Price = new(big.Int).Div(new(big.Int).Mul(o.ExecAmount, PricePrecision), o.BookAmount)
	admitted.Time = util.NowMs(v.clock)
	admitted.StartTime = startTime
	admitted.EndTime = endTime

	if err := v.ledger.Insert(admitted); err != nil {
		return nil, err
	}

	v.log.Infow("order_admitted",
		"order_id", admitted.OrderID.Hex(),
		"maker", admitted.Maker.Hex(),
		"price", admitted.Price.String(),
		"free_book_amount", admitted.FreeBookAmount.String(),
	)
	return admitted, nil
}
