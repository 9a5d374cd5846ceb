package store

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/signbook/signbook/pkg/book"
)

// orderRecord is the persisted shape of an order. 256-bit amounts are
// decimal strings; JSON numbers cannot represent them losslessly.
type orderRecord struct {
	OrderID    common.Hash    `json:"orderId"`
	BookToken  common.Address `json:"bookToken"`
	ExecToken  common.Address `json:"execToken"`
	BookAmount string         `json:"bookAmount"`
	ExecAmount string         `json:"execAmount"`
	Maker      common.Address `json:"maker"`
	Salt       string         `json:"salt"`
	Signature  hexutil.Bytes  `json:"signature"`

	FreeBookAmount string `json:"freeBookAmount"`
	Price          string `json:"price"`
	Seq            uint64 `json:"seq"`
	Time           int64  `json:"time"`
	StartTime      int64  `json:"startTime"`
	EndTime        int64  `json:"endTime"`
}

func encodeOrder(o *book.Order) orderRecord {
	return orderRecord{
		OrderID:        o.OrderID,
		BookToken:      o.BookToken,
		ExecToken:      o.ExecToken,
		BookAmount:     o.BookAmount.String(),
		ExecAmount:     o.ExecAmount.String(),
		Maker:          o.Maker,
		Salt:           o.Salt.String(),
		Signature:      o.Signature,
		FreeBookAmount: o.FreeBookAmount.String(),
		Price:          o.Price.String(),
		Seq:            o.Seq,
		Time:           o.Time,
		StartTime:      o.StartTime,
		EndTime:        o.EndTime,
	}
}

func (rec orderRecord) decode() (*book.Order, error) {
	bookAmount, err := parseBig(rec.BookAmount)
	if err != nil {
		return nil, err
	}
	execAmount, err := parseBig(rec.ExecAmount)
	if err != nil {
		return nil, err
	}
	saltValue, err := parseBig(rec.Salt)
	if err != nil {
		return nil, err
	}
	freeBookAmount, err := parseBig(rec.FreeBookAmount)
	if err != nil {
		return nil, err
	}
	price, err := parseBig(rec.Price)
	if err != nil {
		return nil, err
	}

	return &book.Order{
		OrderID:        rec.OrderID,
		BookToken:      rec.BookToken,
		ExecToken:      rec.ExecToken,
		BookAmount:     bookAmount,
		ExecAmount:     execAmount,
		Maker:          rec.Maker,
		Salt:           saltValue,
		Signature:      rec.Signature,
		FreeBookAmount: freeBookAmount,
		Price:          price,
		Seq:            rec.Seq,
		Time:           rec.Time,
		StartTime:      rec.StartTime,
		EndTime:        rec.EndTime,
	}, nil
}

func parseBig(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid big integer %q", s)
	}
	return n, nil
}
