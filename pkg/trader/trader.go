// Package trader implements the maker and taker workflows on top of
// the book: enabling order creation, signing and admitting limit
// orders, cancelling them, and settling prepared executions on-chain.
package trader

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"go.uber.org/zap"

	"github.com/signbook/signbook/pkg/book"
	"github.com/signbook/signbook/pkg/chain"
	"github.com/signbook/signbook/pkg/crypto"
	"github.com/signbook/signbook/pkg/salt"
	"github.com/signbook/signbook/pkg/util"
)

var (
	// ErrInsufficientBalance rejects a limit order the maker's available
	// balance does not cover.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrPreparationInvalidated signals that a prepared execution no
	// longer settles for a positive amount (raced by fills or cancels).
	ErrPreparationInvalidated = errors.New("preparation invalidated")

	// ErrNotMaker rejects cancelling an order signed by someone else.
	ErrNotMaker = errors.New("not the order's maker")
)

// Trader binds a signing key to the book and the chain.
type Trader struct {
	signer    *crypto.Signer
	chain     chain.Chain
	ledger    *book.Ledger
	validator *book.Validator
	avail     *book.Availability
	recon     *book.Reconciler
	clock     util.Clock
	log       *zap.SugaredLogger
}

func New(signer *crypto.Signer, ch chain.Chain, ledger *book.Ledger, validator *book.Validator, avail *book.Availability, recon *book.Reconciler, clock util.Clock, log *zap.SugaredLogger) *Trader {
	return &Trader{
		signer:    signer,
		chain:     ch,
		ledger:    ledger,
		validator: validator,
		avail:     avail,
		recon:     recon,
		clock:     clock,
		log:       log,
	}
}

// Address returns the trader's signing address.
func (t *Trader) Address() common.Address {
	return t.signer.Address()
}

// EnableOrderCreation approves the settlement contract to spend the
// maker's whole bookToken balance, once, ahead of any number of orders.
func (t *Trader) EnableOrderCreation(ctx context.Context, bookToken common.Address) (common.Hash, error) {
	if bookToken == book.NativeAsset {
		return common.Hash{}, fmt.Errorf("%w: cannot approve the native asset", book.ErrInvalidToken)
	}
	return t.chain.Approve(ctx, bookToken, math.MaxBig256, nil)
}

// CreateLimitBuyOrder signs and admits an order buying amount of
// baseToken at price (quote per base, 18 fixed-point digits): the maker
// books quoteToken and requires baseToken.
func (t *Trader) CreateLimitBuyOrder(ctx context.Context, baseToken, quoteToken common.Address, amount, price *big.Int, duration time.Duration) (*book.Order, error) {
	bookAmount := new(big.Int).Div(new(big.Int).Mul(amount, price), book.PricePrecision)
	return t.createLimitOrder(ctx, quoteToken, baseToken, bookAmount, amount, price, duration)
}

// CreateLimitSellOrder signs and admits an order selling amount of
// baseToken at price: the maker books baseToken and requires quoteToken.
func (t *Trader) CreateLimitSellOrder(ctx context.Context, baseToken, quoteToken common.Address, amount, price *big.Int, duration time.Duration) (*book.Order, error) {
	execAmount := new(big.Int).Div(new(big.Int).Mul(amount, price), book.PricePrecision)
	return t.createLimitOrder(ctx, baseToken, quoteToken, amount, execAmount, price, duration)
}

func (t *Trader) createLimitOrder(ctx context.Context, bookToken, execToken common.Address, bookAmount, execAmount, price *big.Int, duration time.Duration) (*book.Order, error) {
	if bookAmount == nil || bookAmount.Sign() <= 0 || execAmount == nil || execAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: book %s, exec %s", book.ErrInvalidAmount, bookAmount, execAmount)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price %s", book.ErrInvalidAmount, price)
	}
	if bookToken == book.NativeAsset {
		return nil, fmt.Errorf("%w: book token must not be the native asset", book.ErrInvalidToken)
	}
	if duration <= 0 {
		duration = salt.DefaultDuration
	}

	maker := t.signer.Address()
	orderSalt, err := salt.Generate(util.NowMs(t.clock), duration)
	if err != nil {
		return nil, err
	}
	orderID, err := t.chain.DeriveOrderID(ctx, bookToken, execToken, bookAmount, execAmount, maker, orderSalt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive order id: %w", err)
	}
	signature, err := t.signer.SignOrderID(orderID)
	if err != nil {
		return nil, err
	}

	available, err := t.avail.Available(ctx, bookToken, maker)
	if err != nil {
		return nil, err
	}
	if available.Cmp(bookAmount) < 0 {
		return nil, fmt.Errorf("%w: available %s, need %s", ErrInsufficientBalance, available, bookAmount)
	}

	order := &book.Order{
		OrderID:    orderID,
		BookToken:  bookToken,
		ExecToken:  execToken,
		BookAmount: bookAmount,
		ExecAmount: execAmount,
		Maker:      maker,
		Salt:       orderSalt,
		Signature:  signature,
	}
	return t.validator.Admit(ctx, order)
}

// CancelLimitOrder withdraws one of the trader's orders. An order that
// was partially executed (or forceOnChain) and is still inside its
// validity window has been exposed publicly and must be cancelled
// on-chain before it is dropped from the ledger.
func (t *Trader) CancelLimitOrder(ctx context.Context, orderID common.Hash, forceOnChain bool) error {
	order := t.ledger.ByID(orderID)
	if order == nil {
		return fmt.Errorf("%w: %s", book.ErrUnknownOrder, orderID)
	}
	if order.Maker != t.signer.Address() {
		return fmt.Errorf("%w: %s", ErrNotMaker, orderID)
	}

	executed, err := t.chain.ExecutedBookAmount(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to read executed amount: %w", err)
	}
	if (executed.Sign() > 0 || forceOnChain) && order.ActiveAt(util.NowMs(t.clock)) {
		txID, err := t.chain.Cancel(ctx, order, nil)
		if err != nil {
			return fmt.Errorf("failed to cancel on-chain: %w", err)
		}
		t.log.Infow("order_cancelled_onchain", "order_id", orderID.Hex(), "tx", txID.Hex())
	}
	return t.ledger.Remove(orderID)
}

// ExecuteMarketOrder settles a prepared execution: preflight the plan
// against the chain, attach native value when the exec side is the
// native asset, submit, then reconcile the touched orders.
func (t *Trader) ExecuteMarketOrder(ctx context.Context, plan *book.PreparedExecution) (common.Hash, error) {
	if plan == nil || len(plan.OrderIDs) == 0 {
		return common.Hash{}, fmt.Errorf("%w: empty plan", book.ErrInvalidAmount)
	}

	var (
		requiredExecAmount *big.Int
		err                error
	)
	if len(plan.OrderIDs) == 1 {
		single := &book.Order{
			BookToken:  plan.BookToken,
			ExecToken:  plan.ExecToken,
			BookAmount: plan.BookAmounts[0],
			ExecAmount: plan.ExecAmounts[0],
			Maker:      plan.Makers[0],
			Salt:       plan.Salts[0],
		}
		requiredExecAmount, err = t.chain.CheckOrderExecution(ctx, single, plan.LastRequiredBookAmount)
	} else {
		requiredExecAmount, err = t.chain.CheckOrdersExecution(ctx, plan)
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to preflight execution: %w", err)
	}
	if requiredExecAmount.Sign() <= 0 {
		return common.Hash{}, ErrPreparationInvalidated
	}

	value := new(big.Int)
	if plan.ExecToken == book.NativeAsset {
		value = requiredExecAmount
	}

	txID, err := t.chain.Settle(ctx, plan, value, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to settle: %w", err)
	}
	t.log.Infow("market_order_settled", "tx", txID.Hex(), "orders", len(plan.OrderIDs))

	if err := t.recon.Reconcile(ctx, plan.OrderIDs, util.NowMs(t.clock)); err != nil {
		return txID, fmt.Errorf("settled but failed to reconcile: %w", err)
	}
	return txID, nil
}
