package book

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// memStore keeps orders in a map; failPuts/failDeletes simulate a
// persistence outage.
type memStore struct {
	orders      map[common.Hash]*Order
	failPuts    bool
	failDeletes bool
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[common.Hash]*Order)}
}

func (s *memStore) PutOrder(o *Order) error {
	if s.failPuts {
		return errors.New("store down")
	}
	c := *o
	s.orders[o.OrderID] = &c
	return nil
}

func (s *memStore) DeleteOrder(id common.Hash) error {
	if s.failDeletes {
		return errors.New("store down")
	}
	delete(s.orders, id)
	return nil
}

func (s *memStore) LoadOrders() ([]*Order, error) {
	out := make([]*Order, 0, len(s.orders))
	for _, o := range s.orders {
		c := *o
		out = append(out, &c)
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

var (
	tokenX = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenY = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenZ = common.HexToAddress("0x3333333333333333333333333333333333333333")
	alice  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob    = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func testOrder(id byte, bookToken, execToken, maker common.Address, bookAmount, execAmount int64, time, startTime, endTime int64) *Order {
	ba, ea := big.NewInt(bookAmount), big.NewInt(execAmount)
	return &Order{
		OrderID:        common.Hash{id},
		BookToken:      bookToken,
		ExecToken:      execToken,
		BookAmount:     ba,
		ExecAmount:     ea,
		Maker:          maker,
		Salt:           big.NewInt(int64(id)),
		Signature:      []byte{id},
		FreeBookAmount: new(big.Int).Set(ba),
		Price:          new(big.Int).Div(new(big.Int).Mul(ea, PricePrecision), ba),
		Time:           time,
		StartTime:      startTime,
		EndTime:        endTime,
	}
}

func newTestLedger(t *testing.T) (*Ledger, *memStore) {
	t.Helper()
	store := newMemStore()
	ledger, err := NewLedger(store, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewLedger error = %v", err)
	}
	return ledger, store
}

func TestInsertDuplicate(t *testing.T) {
	ledger, _ := newTestLedger(t)

	o := testOrder(1, tokenX, tokenY, alice, 10, 10, 100, 0, 1000)
	if err := ledger.Insert(o); err != nil {
		t.Fatalf("Insert error = %v", err)
	}
	if err := ledger.Insert(o); !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("second Insert error = %v, want ErrDuplicateOrder", err)
	}
	if got := len(ledger.PairOrders(tokenX, tokenY)); got != 1 {
		t.Errorf("pair order count = %d, want 1", got)
	}
}

func TestRemove(t *testing.T) {
	ledger, store := newTestLedger(t)

	o := testOrder(1, tokenX, tokenY, alice, 10, 10, 100, 0, 1000)
	if err := ledger.Insert(o); err != nil {
		t.Fatalf("Insert error = %v", err)
	}
	if err := ledger.Remove(o.OrderID); err != nil {
		t.Fatalf("Remove error = %v", err)
	}
	if ledger.ByID(o.OrderID) != nil {
		t.Error("order still visible after Remove")
	}
	if _, ok := store.orders[o.OrderID]; ok {
		t.Error("order still persisted after Remove")
	}
	if err := ledger.Remove(o.OrderID); !errors.Is(err, ErrUnknownOrder) {
		t.Errorf("second Remove error = %v, want ErrUnknownOrder", err)
	}
}

func TestUpdateFreeAmount(t *testing.T) {
	ledger, store := newTestLedger(t)

	o := testOrder(1, tokenX, tokenY, alice, 10, 10, 100, 0, 1000)
	if err := ledger.Insert(o); err != nil {
		t.Fatalf("Insert error = %v", err)
	}
	if err := ledger.UpdateFreeAmount(o.OrderID, big.NewInt(4)); err != nil {
		t.Fatalf("UpdateFreeAmount error = %v", err)
	}
	if got := ledger.ByID(o.OrderID).FreeBookAmount; got.Int64() != 4 {
		t.Errorf("FreeBookAmount = %s, want 4", got)
	}
	if got := store.orders[o.OrderID].FreeBookAmount; got.Int64() != 4 {
		t.Errorf("persisted FreeBookAmount = %s, want 4", got)
	}
	if err := ledger.UpdateFreeAmount(common.Hash{9}, big.NewInt(1)); !errors.Is(err, ErrUnknownOrder) {
		t.Errorf("UpdateFreeAmount(unknown) error = %v, want ErrUnknownOrder", err)
	}
}

func TestActivePriceTimeOrdering(t *testing.T) {
	ledger, _ := newTestLedger(t)

	// inserted out of price order; ids 3 and 4 share a price with
	// different arrival times
	orders := []*Order{
		testOrder(1, tokenX, tokenY, alice, 10, 30, 100, 0, 1000), // price 3
		testOrder(2, tokenX, tokenY, alice, 10, 10, 101, 0, 1000), // price 1
		testOrder(3, tokenX, tokenY, bob, 10, 20, 102, 0, 1000),   // price 2, earlier
		testOrder(4, tokenX, tokenY, alice, 10, 20, 103, 0, 1000), // price 2, later
	}
	for _, o := range orders {
		if err := ledger.Insert(o); err != nil {
			t.Fatalf("Insert error = %v", err)
		}
	}

	got := ledger.Active(tokenX, tokenY, 500)
	want := []byte{2, 3, 4, 1}
	if len(got) != len(want) {
		t.Fatalf("Active returned %d orders, want %d", len(got), len(want))
	}
	for i, o := range got {
		if o.OrderID != (common.Hash{want[i]}) {
			t.Errorf("Active[%d] = %s, want id %d", i, o.OrderID, want[i])
		}
	}
}

// An order outside its validity window is excluded from Active but
// still present in the ledger until swept.
func TestActiveWindow(t *testing.T) {
	ledger, _ := newTestLedger(t)

	live := testOrder(1, tokenX, tokenY, alice, 10, 10, 100, 0, 1000)
	expired := testOrder(2, tokenX, tokenY, alice, 10, 10, 100, 0, 200)
	notYet := testOrder(3, tokenX, tokenY, alice, 10, 10, 100, 900, 1000)
	for _, o := range []*Order{live, expired, notYet} {
		if err := ledger.Insert(o); err != nil {
			t.Fatalf("Insert error = %v", err)
		}
	}

	got := ledger.Active(tokenX, tokenY, 500)
	if len(got) != 1 || got[0].OrderID != live.OrderID {
		t.Fatalf("Active = %d orders, want only the live one", len(got))
	}
	if ledger.ByID(expired.OrderID) == nil {
		t.Error("expired order no longer in ledger; should remain until swept")
	}
}

func TestSumCommitted(t *testing.T) {
	ledger, _ := newTestLedger(t)

	// alice commits tokenX on two pairs plus unrelated tokenZ; bob's
	// orders must not count
	inserts := []*Order{
		testOrder(1, tokenX, tokenY, alice, 10, 10, 100, 0, 1000),
		testOrder(2, tokenX, tokenZ, alice, 7, 10, 100, 0, 1000),
		testOrder(3, tokenX, tokenY, bob, 100, 10, 100, 0, 1000),
		testOrder(4, tokenZ, tokenY, alice, 50, 10, 100, 0, 1000),
	}
	for _, o := range inserts {
		if err := ledger.Insert(o); err != nil {
			t.Fatalf("Insert error = %v", err)
		}
	}

	if got := ledger.SumCommitted(tokenX, alice); got.Int64() != 17 {
		t.Errorf("SumCommitted(X, alice) = %s, want 17", got)
	}
	if got := ledger.SumCommitted(tokenX, bob); got.Int64() != 100 {
		t.Errorf("SumCommitted(X, bob) = %s, want 100", got)
	}
	if got := ledger.SumCommitted(tokenY, alice); got.Sign() != 0 {
		t.Errorf("SumCommitted(Y, alice) = %s, want 0", got)
	}
}

// A process restart recovers the last persisted state.
func TestReload(t *testing.T) {
	ledger, store := newTestLedger(t)

	o1 := testOrder(1, tokenX, tokenY, alice, 10, 20, 100, 0, 1000)
	o2 := testOrder(2, tokenX, tokenY, alice, 10, 10, 200, 0, 1000)
	for _, o := range []*Order{o1, o2} {
		if err := ledger.Insert(o); err != nil {
			t.Fatalf("Insert error = %v", err)
		}
	}
	if err := ledger.UpdateFreeAmount(o1.OrderID, big.NewInt(3)); err != nil {
		t.Fatalf("UpdateFreeAmount error = %v", err)
	}

	reloaded, err := NewLedger(store, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewLedger(reload) error = %v", err)
	}
	if got := reloaded.ByID(o1.OrderID); got == nil || got.FreeBookAmount.Int64() != 3 {
		t.Errorf("reloaded o1 free = %v, want 3", got)
	}
	got := reloaded.Active(tokenX, tokenY, 500)
	if len(got) != 2 || got[0].OrderID != o2.OrderID {
		t.Errorf("reloaded Active ordering broken")
	}
}

// Same-price orders inserted in the same millisecond must keep their
// arrival order across a restart; neither Time nor the store's key
// order can break the tie.
func TestReloadKeepsArrivalOrderOnPriceTie(t *testing.T) {
	ledger, store := newTestLedger(t)

	// id 2 arrives before id 1: both id order and key order disagree
	// with arrival order
	first := testOrder(2, tokenX, tokenY, alice, 10, 10, 100, 0, 1000)
	second := testOrder(1, tokenX, tokenY, bob, 10, 10, 100, 0, 1000)
	for _, o := range []*Order{first, second} {
		if err := ledger.Insert(o); err != nil {
			t.Fatalf("Insert error = %v", err)
		}
	}

	reloaded, err := NewLedger(store, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewLedger(reload) error = %v", err)
	}
	got := reloaded.Active(tokenX, tokenY, 500)
	if len(got) != 2 {
		t.Fatalf("Active returned %d orders, want 2", len(got))
	}
	if got[0].OrderID != first.OrderID || got[1].OrderID != second.OrderID {
		t.Errorf("Active after reload = [%s, %s], want arrival order [%s, %s]",
			got[0].OrderID, got[1].OrderID, first.OrderID, second.OrderID)
	}

	// a post-reload insert continues the sequence
	third := testOrder(3, tokenX, tokenY, alice, 10, 10, 100, 0, 1000)
	if err := reloaded.Insert(third); err != nil {
		t.Fatalf("Insert error = %v", err)
	}
	got = reloaded.Active(tokenX, tokenY, 500)
	if len(got) != 3 || got[2].OrderID != third.OrderID {
		t.Error("order inserted after reload lost its place in the arrival order")
	}
}

// A failed durable write must leave the in-memory index untouched.
func TestInsertStoreFailureRollsBack(t *testing.T) {
	ledger, store := newTestLedger(t)
	store.failPuts = true

	o := testOrder(1, tokenX, tokenY, alice, 10, 10, 100, 0, 1000)
	if err := ledger.Insert(o); err == nil {
		t.Fatal("Insert succeeded despite store failure")
	}
	if ledger.ByID(o.OrderID) != nil {
		t.Error("order visible after failed persist")
	}

	store.failPuts = false
	if err := ledger.Insert(o); err != nil {
		t.Errorf("Insert after store recovery error = %v", err)
	}
}

func TestRemoveStoreFailureKeepsOrder(t *testing.T) {
	ledger, store := newTestLedger(t)

	o := testOrder(1, tokenX, tokenY, alice, 10, 10, 100, 0, 1000)
	if err := ledger.Insert(o); err != nil {
		t.Fatalf("Insert error = %v", err)
	}

	store.failDeletes = true
	if err := ledger.Remove(o.OrderID); err == nil {
		t.Fatal("Remove succeeded despite store failure")
	}
	if ledger.ByID(o.OrderID) == nil {
		t.Error("order dropped from memory despite failed durable delete")
	}
}
