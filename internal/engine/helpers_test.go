package engine

import (
	"time"

	"pnlreplay/types"

	"github.com/shopspring/decimal"
)

var baseTime = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return baseTime.Add(time.Duration(minutes) * time.Minute)
}

func day(n int) time.Time {
	return baseTime.AddDate(0, 0, n)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func buy(ts time.Time, price string, qty int64) types.Trade {
	return types.NewTrade(ts, types.SideTypeBuy, d(price), qty)
}

func sell(ts time.Time, price string, qty int64) types.Trade {
	return types.NewTrade(ts, types.SideTypeSell, d(price), qty)
}

func price(ts time.Time, p string) types.PricePoint {
	return types.PricePoint{Timestamp: ts, Price: d(p)}
}

func state(qty int64, avg, realized string) types.PositionState {
	return types.NewPositionState(qty, d(avg)).WithRealized(d(realized))
}
