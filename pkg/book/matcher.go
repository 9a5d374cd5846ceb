package book

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/signbook/signbook/pkg/util"
)

// Matcher walks a pair's resting orders in price-time priority and
// builds execution plans. It never offers liquidity a maker cannot
// back: makers whose availability has gone negative are skipped, and
// all rounding favors the maker.
type Matcher struct {
	ledger *Ledger
	avail  *Availability
	clock  util.Clock
	log    *zap.SugaredLogger
}

func NewMatcher(ledger *Ledger, avail *Availability, clock util.Clock, log *zap.SugaredLogger) *Matcher {
	return &Matcher{ledger: ledger, avail: avail, clock: clock, log: log}
}

// Prepare builds a plan drawing liquidity from the pair's active orders
// until either the book-side or the exec-side requirement is met,
// partially filling the last order touched. A nil plan with nil error
// means insufficient liquidity; that is an expected outcome, not a
// fault.
func (m *Matcher) Prepare(ctx context.Context, bookToken, execToken common.Address, requiredBookAmount, requiredExecAmount *big.Int) (*PreparedExecution, error) {
	if requiredBookAmount == nil || requiredBookAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: required book amount %s", ErrInvalidAmount, requiredBookAmount)
	}
	if requiredExecAmount == nil || requiredExecAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: required exec amount %s", ErrInvalidAmount, requiredExecAmount)
	}

	orders := m.ledger.Active(bookToken, execToken, util.NowMs(m.clock))

	plan := &PreparedExecution{BookToken: bookToken, ExecToken: execToken}
	remainingBook := new(big.Int).Set(requiredBookAmount)
	remainingExec := new(big.Int).Set(requiredExecAmount)

	// at most one availability read per distinct maker per call
	availability := make(map[common.Address]*big.Int)

	for _, o := range orders {
		if o.FreeBookAmount.Sign() <= 0 {
			// invalidated or fully drawn; excluded until swept
			continue
		}

		avail, ok := availability[o.Maker]
		if !ok {
			var err error
			avail, err = m.avail.Available(ctx, bookToken, o.Maker)
			if err != nil {
				return nil, err
			}
			availability[o.Maker] = avail
		}
		if avail.Sign() < 0 {
			// resting order not backed by real balance right now
			continue
		}

		freeBook := o.FreeBookAmount
		// ceil(freeBook * execAmount / bookAmount): the taker never gets
		// a better ratio than the maker signed
		freeExec := ceilDiv(new(big.Int).Mul(freeBook, o.ExecAmount), o.BookAmount)

		plan.OrderIDs = append(plan.OrderIDs, o.OrderID)
		plan.BookAmounts = append(plan.BookAmounts, o.BookAmount)
		plan.ExecAmounts = append(plan.ExecAmounts, o.ExecAmount)
		plan.Makers = append(plan.Makers, o.Maker)
		plan.Salts = append(plan.Salts, o.Salt)
		plan.Signatures = append(plan.Signatures, o.Signature)

		remainingBook.Sub(remainingBook, freeBook)
		remainingExec.Sub(remainingExec, freeExec)

		if remainingBook.Sign() <= 0 {
			// book side crossed: only the shortfall of the last order is drawn
			plan.LastRequiredBookAmount = new(big.Int).Add(freeBook, remainingBook)
			m.logPlan(plan)
			return plan, nil
		}
		if remainingExec.Sign() <= 0 {
			// exec side crossed: convert back to book units, floored
			lastExec := new(big.Int).Add(freeExec, remainingExec)
			plan.LastRequiredBookAmount = new(big.Int).Div(new(big.Int).Mul(lastExec, o.BookAmount), o.ExecAmount)
			m.logPlan(plan)
			return plan, nil
		}
	}

	m.log.Infow("insufficient_liquidity",
		"book_token", bookToken.Hex(),
		"exec_token", execToken.Hex(),
		"required_book_amount", requiredBookAmount.String(),
		"required_exec_amount", requiredExecAmount.String(),
	)
	return nil, nil
}

func (m *Matcher) logPlan(plan *PreparedExecution) {
	m.log.Infow("execution_prepared",
		"book_token", plan.BookToken.Hex(),
		"exec_token", plan.ExecToken.Hex(),
		"orders", len(plan.OrderIDs),
		"last_required_book_amount", plan.LastRequiredBookAmount.String(),
	)
}

// ceilDiv returns ceil(num/den) for positive den.
func ceilDiv(num, den *big.Int) *big.Int {
	out := new(big.Int).Add(num, new(big.Int).Sub(den, big.NewInt(1)))
	return out.Div(out, den)
}
