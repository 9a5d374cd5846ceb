package book

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Reconciler syncs the ledger against on-chain settlement and expiry
// outcomes after an execution or cancellation has been broadcast.
type Reconciler struct {
	ledger *Ledger
	chain  ChainReader
	log    *zap.SugaredLogger
}

func NewReconciler(ledger *Ledger, chain ChainReader, log *zap.SugaredLogger) *Reconciler {
	return &Reconciler{ledger: ledger, chain: chain, log: log}
}

// Reconcile re-reads the executed amount for each id and either shrinks
// the order's free amount or removes it (fully filled or expired as of
// asOf, unix ms). Callers must only pass ids obtained from a prior
// ledger read; an unknown id fails with ErrUnknownOrder.
func (r *Reconciler) Reconcile(ctx context.Context, orderIDs []common.Hash, asOf int64) error {
	for _, id := range orderIDs {
		o := r.ledger.ByID(id)
		if o == nil {
			return fmt.Errorf("%w: %s", ErrUnknownOrder, id)
		}

		executed, err := r.chain.ExecutedBookAmount(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to read executed amount for %s: %w", id, err)
		}

		if executed.Cmp(o.BookAmount) >= 0 || asOf >= o.EndTime {
			if err := r.ledger.Remove(id); err != nil {
				return err
			}
			r.log.Infow("order_reconciled_removed",
				"order_id", id.Hex(),
				"executed", executed.String(),
				"expired", asOf >= o.EndTime,
			)
			continue
		}

		free := new(big.Int).Sub(o.BookAmount, executed)
		if err := r.ledger.UpdateFreeAmount(id, free); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate forces FreeBookAmount to zero for each id without
// consulting the chain. Used when an order is known to be cancelled
// on-chain but not yet swept: it is immediately excluded from matching
// and availability sums.
func (r *Reconciler) Invalidate(orderIDs []common.Hash) error {
	for _, id := range orderIDs {
		if err := r.ledger.UpdateFreeAmount(id, new(big.Int)); err != nil {
			return err
		}
		r.log.Infow("order_invalidated", "order_id", id.Hex())
	}
	return nil
}

// SweepExpiredOrUnsettled reconciles exactly the pair's active-window
// orders whose free amount is zero (invalidated or fully drawn). This
// bounds consistency work to orders that are actually suspect instead
// of re-checking the whole book.
func (r *Reconciler) SweepExpiredOrUnsettled(ctx context.Context, bookToken, execToken common.Address, asOf int64) error {
	var suspects []common.Hash
	for _, o := range r.ledger.Active(bookToken, execToken, asOf) {
		if o.FreeBookAmount.Sign() == 0 {
			suspects = append(suspects, o.OrderID)
		}
	}
	if len(suspects) == 0 {
		return nil
	}
	r.log.Infow("sweeping_suspect_orders", "count", len(suspects))
	return r.Reconcile(ctx, suspects, asOf)
}
