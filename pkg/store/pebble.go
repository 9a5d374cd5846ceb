// Package store persists the order ledger in a Pebble database. Every
// write goes through pebble.Sync, so a mutation that returned success
// survives a process restart.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/signbook/signbook/pkg/book"
)

// keys: o:<32-byte order id>
var orderPrefix = []byte("o:")

func orderKey(id common.Hash) []byte { return append([]byte("o:"), id[:]...) }

// Pebble implements book.Store.
type Pebble struct {
	db *pebble.DB
}

// Open opens (or creates) a Pebble database at the given path.
func Open(path string) (*Pebble, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &Pebble{db: db}, nil
}

func (s *Pebble) Close() error { return s.db.Close() }

// PutOrder durably writes an order, inserting or overwriting.
func (s *Pebble) PutOrder(o *book.Order) error {
	data, err := json.Marshal(encodeOrder(o))
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	if err := s.db.Set(orderKey(o.OrderID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// DeleteOrder durably removes an order. Deleting an absent key is not
// an error; the ledger owns existence checks.
func (s *Pebble) DeleteOrder(id common.Hash) error {
	if err := s.db.Delete(orderKey(id), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	return nil
}

// LoadOrders returns every persisted order.
func (s *Pebble) LoadOrders() ([]*book.Order, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: orderPrefix,
		UpperBound: keyUpperBound(orderPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var orders []*book.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var rec orderRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order %x: %w", iter.Key(), err)
		}
		o, err := rec.decode()
		if err != nil {
			return nil, fmt.Errorf("failed to decode order %x: %w", iter.Key(), err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

var _ book.Store = (*Pebble)(nil)

func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
