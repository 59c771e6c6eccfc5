package types

import (
	"github.com/shopspring/decimal"
)

// PositionState is the running state of a single-instrument account.
// AvgCost is zero whenever Quantity is zero.
type PositionState struct {
	Quantity   int64
	AvgCost    decimal.Decimal
	RealizedPL decimal.Decimal
}

func NewPositionState(quantity int64, avgCost decimal.Decimal) PositionState {
	if quantity == 0 {
		avgCost = decimal.Zero
	}
	return PositionState{Quantity: quantity, AvgCost: avgCost, RealizedPL: decimal.Zero}
}

func (p PositionState) IsFlat() bool {
	return p.Quantity == 0
}

func (p PositionState) Direction() Direction {
	return DirectionOf(p.Quantity)
}

// UnrealizedPL is the floating P/L of the open position marked at mark.
func (p PositionState) UnrealizedPL(mark decimal.Decimal) decimal.Decimal {
	if p.Quantity == 0 {
		return decimal.Zero
	}
	return mark.Sub(p.AvgCost).Mul(decimal.NewFromInt(p.Quantity))
}

// TradeOutcome is the immutable journal record for one applied trade.
type TradeOutcome struct {
	Seq                  int
	Trade                Trade
	PositionBefore       int64
	AvgCostBefore        decimal.Decimal
	RealizedPL           decimal.Decimal
	PositionAfter        int64
	AvgCostAfter         decimal.Decimal
	CumulativeRealizedPL decimal.Decimal
	Fee                  decimal.Decimal
}

// ClosedShares is the number of shares of the prior position this trade closed.
func (o TradeOutcome) ClosedShares() int64 {
	if o.PositionBefore == 0 || sameSign(o.PositionBefore, o.Trade.SignedQuantity()) {
		return 0
	}
	return min(abs(o.PositionBefore), o.Trade.Quantity)
}

// OpenedShares is the number of shares this trade added in its own direction.
func (o TradeOutcome) OpenedShares() int64 {
	return o.Trade.Quantity - o.ClosedShares()
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// WithRealized returns p carrying the given cumulative realized P/L.
func (p PositionState) WithRealized(realized decimal.Decimal) PositionState {
	p.RealizedPL = realized
	return p
}
