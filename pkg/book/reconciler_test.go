package book_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/signbook/signbook/pkg/book"
)

// A fully settled order leaves the ledger on reconcile.
func TestReconcileRemovesFilled(t *testing.T) {
	f := newFixture(t)
	m := newMaker(t)
	ctx := context.Background()

	o := f.admitOrder(t, m, baseToken, quoteToken, eth(5), eth(10))
	f.sim.SetExecuted(o.OrderID, eth(5))

	if err := f.recon.Reconcile(ctx, []common.Hash{o.OrderID}, nowMs); err != nil {
		t.Fatalf("Reconcile error = %v", err)
	}
	if f.ledger.ByID(o.OrderID) != nil {
		t.Error("filled order still in ledger")
	}
}

func TestReconcileShrinksPartialFill(t *testing.T) {
	f := newFixture(t)
	m := newMaker(t)
	ctx := context.Background()

	o := f.admitOrder(t, m, baseToken, quoteToken, eth(5), eth(10))
	f.sim.SetExecuted(o.OrderID, eth(2))

	if err := f.recon.Reconcile(ctx, []common.Hash{o.OrderID}, nowMs); err != nil {
		t.Fatalf("Reconcile error = %v", err)
	}
	got := f.ledger.ByID(o.OrderID)
	if got == nil {
		t.Fatal("partially filled order removed")
	}
	if got.FreeBookAmount.Cmp(eth(3)) != 0 {
		t.Errorf("FreeBookAmount = %s, want %s", got.FreeBookAmount, eth(3))
	}
}

func TestReconcileRemovesExpired(t *testing.T) {
	f := newFixture(t)
	m := newMaker(t)
	ctx := context.Background()

	o := f.admitOrder(t, m, baseToken, quoteToken, eth(5), eth(10))

	past := o.EndTime + time.Minute.Milliseconds()
	if err := f.recon.Reconcile(ctx, []common.Hash{o.OrderID}, past); err != nil {
		t.Fatalf("Reconcile error = %v", err)
	}
	if f.ledger.ByID(o.OrderID) != nil {
		t.Error("expired order still in ledger")
	}
}

func TestReconcileUnknownOrder(t *testing.T) {
	f := newFixture(t)

	err := f.recon.Reconcile(context.Background(), []common.Hash{{0xde, 0xad}}, nowMs)
	if !errors.Is(err, book.ErrUnknownOrder) {
		t.Errorf("Reconcile error = %v, want ErrUnknownOrder", err)
	}
}

// Invalidate zeroes the free amount without touching the chain; a later
// sweep restores it from the chain's executed amount.
func TestInvalidateThenSweep(t *testing.T) {
	f := newFixture(t)
	m := newMaker(t)
	ctx := context.Background()

	o := f.admitOrder(t, m, baseToken, quoteToken, eth(5), eth(10))
	if err := f.recon.Invalidate([]common.Hash{o.OrderID}); err != nil {
		t.Fatalf("Invalidate error = %v", err)
	}
	if got := f.ledger.ByID(o.OrderID).FreeBookAmount; got.Sign() != 0 {
		t.Fatalf("FreeBookAmount = %s after Invalidate, want 0", got)
	}

	// chain says only 2 of 5 settled, so the sweep revives the rest
	f.sim.SetExecuted(o.OrderID, eth(2))
	if err := f.recon.SweepExpiredOrUnsettled(ctx, baseToken, quoteToken, nowMs); err != nil {
		t.Fatalf("Sweep error = %v", err)
	}
	if got := f.ledger.ByID(o.OrderID).FreeBookAmount; got.Cmp(eth(3)) != 0 {
		t.Errorf("FreeBookAmount = %s after sweep, want %s", got, eth(3))
	}
}

// The sweep removes invalidated orders the chain confirms are dead and
// leaves healthy orders alone.
func TestSweepRemovesConfirmedCancellation(t *testing.T) {
	f := newFixture(t)
	cancelled := newMaker(t)
	healthy := newMaker(t)
	ctx := context.Background()

	dead := f.admitOrder(t, cancelled, baseToken, quoteToken, eth(5), eth(10))
	live := f.admitOrder(t, healthy, baseToken, quoteToken, eth(5), eth(10))

	if _, err := f.sim.Cancel(ctx, dead, nil); err != nil {
		t.Fatalf("Cancel error = %v", err)
	}
	if err := f.recon.Invalidate([]common.Hash{dead.OrderID}); err != nil {
		t.Fatalf("Invalidate error = %v", err)
	}

	if err := f.recon.SweepExpiredOrUnsettled(ctx, baseToken, quoteToken, nowMs); err != nil {
		t.Fatalf("Sweep error = %v", err)
	}
	if f.ledger.ByID(dead.OrderID) != nil {
		t.Error("cancelled order survived the sweep")
	}
	if got := f.ledger.ByID(live.OrderID); got == nil || got.FreeBookAmount.Cmp(eth(5)) != 0 {
		t.Error("healthy order disturbed by the sweep")
	}
}
