package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one execution in the stream. Quantity is in shares, already lot-converted.
type Trade struct {
	Timestamp time.Time
	Side      Side
	Price     decimal.Decimal
	Quantity  int64
}

func NewTrade(timestamp time.Time, side Side, price decimal.Decimal, quantity int64) Trade {
	return Trade{
		Timestamp: timestamp,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
	}
}

// SignedQuantity is +Quantity for buys and -Quantity for sells.
func (t Trade) SignedQuantity() int64 {
	return t.Side.Sign() * t.Quantity
}

func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}
