package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"golang.org/x/crypto/sha3"

	"github.com/signbook/signbook/pkg/book"
	"github.com/signbook/signbook/pkg/crypto"
)

// Sim is an in-memory settlement chain for tests and dev mode. It keeps
// balances, allowances, and executed amounts, derives order ids with
// the contract's hashing scheme, and applies settle/cancel effects
// synchronously.
type Sim struct {
	mu         sync.RWMutex
	settlement common.Address
	caller     common.Address // account writes are attributed to

	balances   map[common.Address]map[common.Address]*big.Int                    // token -> account -> balance
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int // token -> account -> spender
	executed   map[common.Hash]*big.Int

	txCounter uint64
}

func NewSim(settlement common.Address) *Sim {
	return &Sim{
		settlement: settlement,
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
		executed:   make(map[common.Hash]*big.Int),
	}
}

// SetCaller attributes subsequent writes (approve, settle) to account.
func (s *Sim) SetCaller(account common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caller = account
}

// Fund credits an account's token balance.
func (s *Sim) Fund(token, account common.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credit(token, account, amount)
}

// SetExecuted overrides the executed amount recorded for an order id.
func (s *Sim) SetExecuted(orderID common.Hash, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed[orderID] = new(big.Int).Set(amount)
}

func (s *Sim) SettlementAddress() common.Address { return s.settlement }

func (s *Sim) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.balance(token, account)), nil
}

func (s *Sim) Allowance(ctx context.Context, token, account, spender common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.allowance(token, account, spender)), nil
}

// DeriveOrderID hashes the six signed fields the way the settlement
// contract does: keccak256 of the packed encoding.
func (s *Sim) DeriveOrderID(ctx context.Context, bookToken, execToken common.Address, bookAmount, execAmount *big.Int, maker common.Address, salt *big.Int) (common.Hash, error) {
	h := sha3.NewLegacyKeccak256()
	h.Write(bookToken.Bytes())
	h.Write(execToken.Bytes())
	h.Write(math.PaddedBigBytes(math.U256(new(big.Int).Set(bookAmount)), 32))
	h.Write(math.PaddedBigBytes(math.U256(new(big.Int).Set(execAmount)), 32))
	h.Write(maker.Bytes())
	h.Write(math.PaddedBigBytes(math.U256(new(big.Int).Set(salt)), 32))
	return common.BytesToHash(h.Sum(nil)), nil
}

func (s *Sim) RecoverSigner(ctx context.Context, hash common.Hash, signature []byte) (common.Address, error) {
	return crypto.RecoverOrderSigner(hash, signature)
}

func (s *Sim) ExecutedBookAmount(ctx context.Context, orderID common.Hash) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.executed[orderID]; ok {
		return new(big.Int).Set(e), nil
	}
	return new(big.Int), nil
}

func (s *Sim) CheckOrderExecution(ctx context.Context, o *book.Order, requiredBookAmount *big.Int) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, err := s.DeriveOrderID(ctx, o.BookToken, o.ExecToken, o.BookAmount, o.ExecAmount, o.Maker, o.Salt)
	if err != nil {
		return nil, err
	}
	return s.checkExecution(id, o.BookAmount, o.ExecAmount, requiredBookAmount), nil
}

func (s *Sim) CheckOrdersExecution(ctx context.Context, plan *book.PreparedExecution) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := new(big.Int)
	last := len(plan.OrderIDs) - 1
	for i, id := range plan.OrderIDs {
		required := s.remaining(id, plan.BookAmounts[i])
		if i == last {
			required = plan.LastRequiredBookAmount
		}
		exec := s.checkExecution(id, plan.BookAmounts[i], plan.ExecAmounts[i], required)
		if exec.Sign() <= 0 {
			return new(big.Int), nil
		}
		total.Add(total, exec)
	}
	return total, nil
}

func (s *Sim) Approve(ctx context.Context, token common.Address, amount *big.Int, opts *SendOptions) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setAllowance(token, s.caller, s.settlement, amount)
	return s.nextTxID(), nil
}

// Settle applies the plan: each order's remaining amount is drawn in
// full except the last, which is drawn up to LastRequiredBookAmount.
// The maker's book-side funds move out and the exec-side proceeds move
// in; the caller pays the exec side.
func (s *Sim) Settle(ctx context.Context, plan *book.PreparedExecution, value *big.Int, opts *SendOptions) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := len(plan.OrderIDs) - 1
	for i, id := range plan.OrderIDs {
		required := s.remaining(id, plan.BookAmounts[i])
		if i == last {
			required = new(big.Int).Set(plan.LastRequiredBookAmount)
		}
		if required.Sign() <= 0 {
			continue
		}
		if required.Cmp(s.remaining(id, plan.BookAmounts[i])) > 0 {
			return common.Hash{}, fmt.Errorf("%w: order %s over-drawn", ErrUnavailable, id)
		}

		// exec owed for the drawn portion, rounded in the maker's favor
		execOwed := new(big.Int).Mul(required, plan.ExecAmounts[i])
		execOwed.Add(execOwed, new(big.Int).Sub(plan.BookAmounts[i], common.Big1))
		execOwed.Div(execOwed, plan.BookAmounts[i])

		maker := plan.Makers[i]
		s.debit(plan.BookToken, maker, required)
		s.debitAllowance(plan.BookToken, maker, s.settlement, required)
		s.credit(plan.BookToken, s.caller, required)
		if plan.ExecToken != book.NativeAsset {
			s.debit(plan.ExecToken, s.caller, execOwed)
		}
		s.credit(plan.ExecToken, maker, execOwed)

		prev := s.executed[id]
		if prev == nil {
			prev = new(big.Int)
		}
		s.executed[id] = new(big.Int).Add(prev, required)
	}
	return s.nextTxID(), nil
}

// Cancel marks the order fully executed so it can never settle.
func (s *Sim) Cancel(ctx context.Context, o *book.Order, opts *SendOptions) (common.Hash, error) {
	id, err := s.DeriveOrderID(ctx, o.BookToken, o.ExecToken, o.BookAmount, o.ExecAmount, o.Maker, o.Salt)
	if err != nil {
		return common.Hash{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed[id] = new(big.Int).Set(o.BookAmount)
	return s.nextTxID(), nil
}

var _ Chain = (*Sim)(nil)

// ---- internals (callers hold s.mu) ----

func (s *Sim) checkExecution(id common.Hash, bookAmount, execAmount, required *big.Int) *big.Int {
	if required == nil || required.Sign() <= 0 || required.Cmp(s.remaining(id, bookAmount)) > 0 {
		return new(big.Int)
	}
	exec := new(big.Int).Mul(required, execAmount)
	exec.Add(exec, new(big.Int).Sub(bookAmount, common.Big1))
	return exec.Div(exec, bookAmount)
}

func (s *Sim) remaining(id common.Hash, bookAmount *big.Int) *big.Int {
	executed := s.executed[id]
	if executed == nil {
		executed = new(big.Int)
	}
	out := new(big.Int).Sub(bookAmount, executed)
	if out.Sign() < 0 {
		return new(big.Int)
	}
	return out
}

func (s *Sim) balance(token, account common.Address) *big.Int {
	if b := s.balances[token][account]; b != nil {
		return b
	}
	return new(big.Int)
}

func (s *Sim) allowance(token, account, spender common.Address) *big.Int {
	if a := s.allowances[token][account][spender]; a != nil {
		return a
	}
	return new(big.Int)
}

func (s *Sim) credit(token, account common.Address, amount *big.Int) {
	if s.balances[token] == nil {
		s.balances[token] = make(map[common.Address]*big.Int)
	}
	s.balances[token][account] = new(big.Int).Add(s.balance(token, account), amount)
}

func (s *Sim) debit(token, account common.Address, amount *big.Int) {
	s.credit(token, account, new(big.Int).Neg(amount))
}

func (s *Sim) setAllowance(token, account, spender common.Address, amount *big.Int) {
	if s.allowances[token] == nil {
		s.allowances[token] = make(map[common.Address]map[common.Address]*big.Int)
	}
	if s.allowances[token][account] == nil {
		s.allowances[token][account] = make(map[common.Address]*big.Int)
	}
	s.allowances[token][account][spender] = new(big.Int).Set(amount)
}

func (s *Sim) debitAllowance(token, account, spender common.Address, amount *big.Int) {
	s.setAllowance(token, account, spender, new(big.Int).Sub(s.allowance(token, account, spender), amount))
}

func (s *Sim) nextTxID() common.Hash {
	s.txCounter++
	return common.BigToHash(new(big.Int).SetUint64(s.txCounter))
}
