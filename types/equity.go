package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type PricePoint struct {
	Timestamp time.Time
	Price     decimal.Decimal
}

// EquityPoint is one row of the reconstructed account curve.
// DrawdownPct is zero or negative.
type EquityPoint struct {
	Timestamp     time.Time
	Cash          decimal.Decimal
	MarkPrice     decimal.Decimal
	HasMark       bool
	Quantity      int64
	PositionValue decimal.Decimal
	Equity        decimal.Decimal
	PeakEquity    decimal.Decimal
	DrawdownPct   decimal.Decimal
}

// ClosedTrade pairs an opening lot (or part of it) with the execution that closed it.
type ClosedTrade struct {
	Direction  Direction
	Size       int64
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	PnL        decimal.Decimal
	// ReturnPct is the price move from entry to exit as a percent of the entry price.
	// The sign is flipped for shorts, so a profitable trade is positive either way.
	ReturnPct  decimal.Decimal
	EntryTime  time.Time
	ExitTime   time.Time
	Duration   time.Duration
}
