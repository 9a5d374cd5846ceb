// Package book keeps the off-chain side of a signature-based exchange:
// a durable ledger of unsettled signed limit orders, admission checks,
// maker availability accounting, price-time matching, and reconciliation
// against on-chain settlement outcomes.
package book

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAsset is the reserved all-zero address denoting the chain's
// native asset. Only the exec side of an order may use it.
var NativeAsset = common.Address{}

// PricePrecision scales prices to fixed point with 18 fractional digits.
var PricePrecision = big.NewInt(1e18)

// Pair identifies one side of a market: orders offering BookToken
// against ExecToken.
type Pair struct {
	BookToken common.Address
	ExecToken common.Address
}

// Order is a maker's signed intent to give up to BookAmount units of
// BookToken in exchange for a proportional share of ExecAmount units of
// ExecToken. Amounts are 256-bit base units and are treated as
// immutable once set: updates assign fresh big.Ints rather than mutate.
type Order struct {
	OrderID    common.Hash    // deterministic hash of the six signed fields, chain-derived
	BookToken  common.Address // asset the maker gives; never the native asset
	ExecToken  common.Address // asset the maker requires; may be the native asset
	BookAmount *big.Int
	ExecAmount *big.Int
	Maker      common.Address
	Salt       *big.Int // packs the validity window and a nonce
	Signature  []byte   // 65-byte ECDSA signature over OrderID by Maker

	FreeBookAmount *big.Int // unsettled remainder, 0 <= free <= BookAmount
	Price          *big.Int // ExecAmount * 1e18 / BookAmount
	Seq            uint64   // arrival sequence, assigned by the ledger on insert
	Time           int64    // local insertion timestamp, unix ms
	StartTime      int64    // validity window start, unix ms (from Salt)
	EndTime        int64    // validity window end, unix ms (from Salt)
}

// Pair returns the market side this order rests on.
func (o *Order) Pair() Pair {
	return Pair{BookToken: o.BookToken, ExecToken: o.ExecToken}
}

// ActiveAt reports whether asOf (unix ms) falls inside the order's
// validity window.
func (o *Order) ActiveAt(asOf int64) bool {
	return o.StartTime <= asOf && asOf < o.EndTime
}

// clone copies the struct; big.Int fields are shared since they are
// never mutated in place.
func (o *Order) clone() *Order {
	c := *o
	return &c
}

// PreparedExecution is an immutable execution plan produced by the
// Matcher: one entry per matched order in match order, plus the
// book-side amount to draw from the last entry (the partial fill).
// It is consumed exactly once by a settlement call.
type PreparedExecution struct {
	BookToken common.Address
	ExecToken common.Address

	OrderIDs    []common.Hash
	BookAmounts []*big.Int
	ExecAmounts []*big.Int
	Makers      []common.Address
	Salts       []*big.Int
	Signatures  [][]byte

	LastRequiredBookAmount *big.Int
}
