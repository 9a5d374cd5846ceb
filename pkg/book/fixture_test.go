package book_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/signbook/signbook/pkg/book"
	"github.com/signbook/signbook/pkg/chain"
	"github.com/signbook/signbook/pkg/crypto"
	"github.com/signbook/signbook/pkg/salt"
)

var (
	settlement = common.HexToAddress("0x9e2873c1c89696987F671861901A06Ad7Cb97f8C")
	baseToken  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	quoteToken = common.HexToAddress("0x2000000000000000000000000000000000000002")

	// fixed wall clock for deterministic windows
	nowMs = int64(1_700_000_000_000)
)

type fakeClock struct{ ms int64 }

func (c *fakeClock) Now() time.Time                         { return time.UnixMilli(c.ms) }
func (c *fakeClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type mapStore struct{ orders map[common.Hash]*book.Order }

func newMapStore() *mapStore { return &mapStore{orders: make(map[common.Hash]*book.Order)} }

func (s *mapStore) PutOrder(o *book.Order) error {
	c := *o
	s.orders[o.OrderID] = &c
	return nil
}

func (s *mapStore) DeleteOrder(id common.Hash) error {
	delete(s.orders, id)
	return nil
}

func (s *mapStore) LoadOrders() ([]*book.Order, error) {
	out := make([]*book.Order, 0, len(s.orders))
	for _, o := range s.orders {
		c := *o
		out = append(out, &c)
	}
	return out, nil
}

func (s *mapStore) Close() error { return nil }

// fixture wires a simulated chain behind the full admission and
// matching pipeline.
type fixture struct {
	sim       *chain.Sim
	ledger    *book.Ledger
	validator *book.Validator
	avail     *book.Availability
	matcher   *book.Matcher
	recon     *book.Reconciler
	clock     *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	sim := chain.NewSim(settlement)
	clock := &fakeClock{ms: nowMs}

	ledger, err := book.NewLedger(newMapStore(), log)
	if err != nil {
		t.Fatalf("NewLedger error = %v", err)
	}
	avail := book.NewAvailability(sim, ledger, settlement)
	return &fixture{
		sim:       sim,
		ledger:    ledger,
		validator: book.NewValidator(sim, ledger, clock, log),
		avail:     avail,
		matcher:   book.NewMatcher(ledger, avail, clock, log),
		recon:     book.NewReconciler(ledger, sim, log),
		clock:     clock,
	}
}

type maker struct {
	signer *crypto.Signer
	nonce  int64
}

func newMaker(t *testing.T) *maker {
	t.Helper()
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey error = %v", err)
	}
	return &maker{signer: signer, nonce: 1}
}

func (m *maker) address() common.Address { return m.signer.Address() }

// fundAndApprove gives the maker token balance and a matching
// settlement allowance.
func (f *fixture) fundAndApprove(t *testing.T, m *maker, token common.Address, amount *big.Int) {
	t.Helper()
	f.sim.Fund(token, m.address(), amount)
	f.sim.SetCaller(m.address())
	if _, err := f.sim.Approve(context.Background(), token, amount, nil); err != nil {
		t.Fatalf("Approve error = %v", err)
	}
}

// signedOrder builds a fully signed order with a chain-derived id and a
// validity window of [0, nowMs+1h].
func (f *fixture) signedOrder(t *testing.T, m *maker, bookToken, execToken common.Address, bookAmount, execAmount *big.Int) *book.Order {
	t.Helper()
	s, err := salt.Encode(0, nowMs+time.Hour.Milliseconds(), m.nonce)
	if err != nil {
		t.Fatalf("salt.Encode error = %v", err)
	}
	m.nonce++

	id, err := f.sim.DeriveOrderID(context.Background(), bookToken, execToken, bookAmount, execAmount, m.address(), s)
	if err != nil {
		t.Fatalf("DeriveOrderID error = %v", err)
	}
	sig, err := m.signer.SignOrderID(id)
	if err != nil {
		t.Fatalf("SignOrderID error = %v", err)
	}
	return &book.Order{
		OrderID:    id,
		BookToken:  bookToken,
		ExecToken:  execToken,
		BookAmount: bookAmount,
		ExecAmount: execAmount,
		Maker:      m.address(),
		Salt:       s,
		Signature:  sig,
	}
}

// admitOrder funds, approves, signs, and admits in one step.
func (f *fixture) admitOrder(t *testing.T, m *maker, bookToken, execToken common.Address, bookAmount, execAmount *big.Int) *book.Order {
	t.Helper()
	f.fundAndApprove(t, m, bookToken, bookAmount)
	o := f.signedOrder(t, m, bookToken, execToken, bookAmount, execAmount)
	admitted, err := f.validator.Admit(context.Background(), o)
	if err != nil {
		t.Fatalf("Admit error = %v", err)
	}
	return admitted
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}
