package book

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Store is the persistence collaborator behind the ledger. Every
// implementation must make Put/Delete durable before returning.
type Store interface {
	PutOrder(o *Order) error
	DeleteOrder(id common.Hash) error
	LoadOrders() ([]*Order, error)
	Close() error
}

// Ledger is the persisted index of unsettled orders, keyed by order id
// and by (bookToken, execToken) pair.
//
// Mutations are serialized under a single write lock and persist to the
// store before the in-memory index changes, so a failed durable write
// never leaves the ledger reporting success. Reads copy under a read
// lock and therefore observe consistent snapshots.
type Ledger struct {
	mu      sync.RWMutex
	books   map[Pair][]*Order
	index   map[common.Hash]Pair
	nextSeq uint64

	store Store
	log   *zap.SugaredLogger
}

// NewLedger opens a ledger over the given store, recovering the last
// persisted snapshot.
func NewLedger(store Store, log *zap.SugaredLogger) (*Ledger, error) {
	l := &Ledger{
		books: make(map[Pair][]*Order),
		index: make(map[common.Hash]Pair),
		store: store,
		log:   log,
	}

	orders, err := store.LoadOrders()
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger snapshot: %w", err)
	}
	// rebuild pair collections in arrival order; the store iterates in
	// key order, which says nothing about when an order arrived
	sort.Slice(orders, func(i, j int) bool { return orders[i].Seq < orders[j].Seq })
	for _, o := range orders {
		pair := o.Pair()
		l.books[pair] = append(l.books[pair], o)
		l.index[o.OrderID] = pair
		if o.Seq >= l.nextSeq {
			l.nextSeq = o.Seq + 1
		}
	}

	l.log.Infow("ledger_opened", "orders", len(orders), "pairs", len(l.books))
	return l, nil
}

// Close flushes and releases the backing store.
func (l *Ledger) Close() error {
	return l.store.Close()
}

// Insert appends an order to its pair's collection and indexes it by id.
// Fails with ErrDuplicateOrder if the id is already indexed.
func (l *Ledger) Insert(o *Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.index[o.OrderID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, o.OrderID)
	}

	o = o.clone()
	o.Seq = l.nextSeq
	if err := l.store.PutOrder(o); err != nil {
		return fmt.Errorf("failed to persist order %s: %w", o.OrderID, err)
	}
	l.nextSeq++

	pair := o.Pair()
	l.books[pair] = append(l.books[pair], o)
	l.index[o.OrderID] = pair

	l.log.Infow("order_inserted",
		"order_id", o.OrderID.Hex(),
		"book_token", o.BookToken.Hex(),
		"exec_token", o.ExecToken.Hex(),
		"book_amount", o.BookAmount.String(),
		"exec_amount", o.ExecAmount.String(),
		"maker", o.Maker.Hex(),
	)
	return nil
}

// Remove deletes an order from both structures. Fails with
// ErrUnknownOrder if the id is not indexed.
func (l *Ledger) Remove(orderID common.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pair, ok := l.index[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}

	if err := l.store.DeleteOrder(orderID); err != nil {
		return fmt.Errorf("failed to delete order %s: %w", orderID, err)
	}

	orders := l.books[pair]
	for i, o := range orders {
		if o.OrderID == orderID {
			l.books[pair] = append(orders[:i], orders[i+1:]...)
			break
		}
	}
	if len(l.books[pair]) == 0 {
		delete(l.books, pair)
	}
	delete(l.index, orderID)

	l.log.Infow("order_removed", "order_id", orderID.Hex())
	return nil
}

// UpdateFreeAmount overwrites an order's unsettled remainder. It does
// not validate monotonicity; that is the reconciler's concern.
func (l *Ledger) UpdateFreeAmount(orderID common.Hash, freeBookAmount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pair, ok := l.index[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}

	for i, o := range l.books[pair] {
		if o.OrderID != orderID {
			continue
		}
		updated := o.clone()
		updated.FreeBookAmount = new(big.Int).Set(freeBookAmount)
		if err := l.store.PutOrder(updated); err != nil {
			return fmt.Errorf("failed to persist order %s: %w", orderID, err)
		}
		l.books[pair][i] = updated

		l.log.Infow("order_updated",
			"order_id", orderID.Hex(),
			"free_book_amount", freeBookAmount.String(),
		)
		return nil
	}

	// index and collection disagree; should be unreachable
	return fmt.Errorf("%w: %s (index without entry)", ErrUnknownOrder, orderID)
}

// ByID returns a copy of the order, or nil if absent.
func (l *Ledger) ByID(orderID common.Hash) *Order {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pair, ok := l.index[orderID]
	if !ok {
		return nil
	}
	for _, o := range l.books[pair] {
		if o.OrderID == orderID {
			return o.clone()
		}
	}
	return nil
}

// Active returns the pair's orders whose validity window contains asOf
// (unix ms), ordered by ascending price, ties broken by arrival. This
// ordering is the contract the matcher depends on.
func (l *Ledger) Active(bookToken, execToken common.Address, asOf int64) []*Order {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Order
	for _, o := range l.books[Pair{BookToken: bookToken, ExecToken: execToken}] {
		if o.ActiveAt(asOf) {
			out = append(out, o.clone())
		}
	}
	// the collection is kept in arrival order, so a stable sort on
	// price alone yields price-time priority
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Price.Cmp(out[j].Price) < 0
	})
	return out
}

// SumCommitted sums FreeBookAmount over the maker's orders across every
// pair keyed by bookToken.
func (l *Ledger) SumCommitted(bookToken common.Address, maker common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sum := new(big.Int)
	for pair, orders := range l.books {
		if pair.BookToken != bookToken {
			continue
		}
		for _, o := range orders {
			if o.Maker == maker {
				sum.Add(sum, o.FreeBookAmount)
			}
		}
	}
	return sum
}

// Orders returns copies of every order belonging to maker, across all
// pairs, in no particular order.
func (l *Ledger) Orders(maker common.Address) []*Order {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Order
	for _, orders := range l.books {
		for _, o := range orders {
			if o.Maker == maker {
				out = append(out, o.clone())
			}
		}
	}
	return out
}

// PairOrders returns copies of every order resting on the pair, in
// arrival order, regardless of validity window.
func (l *Ledger) PairOrders(bookToken, execToken common.Address) []*Order {
	l.mu.RLock()
	defer l.mu.RUnlock()

	orders := l.books[Pair{BookToken: bookToken, ExecToken: execToken}]
	out := make([]*Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.clone())
	}
	return out
}
