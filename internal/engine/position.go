package engine

import (
	"errors"
	"fmt"

	"pnlreplay/types"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTrade            = errors.New("invalid trade")
	ErrInvalidPriceSeries      = errors.New("invalid price series")
	ErrEmptyPositionStatistics = errors.New("no closed trades, trade statistics not available")
	ErrUnknownSide             = errors.New("unknown trade side")
	ErrShortSellNotAllowed     = errors.New("short sell not allowed, trade leaves a negative position")
	ErrInsufficientBalance     = errors.New("insufficient cash to fund trade")
	ErrInvalidConfig           = errors.New("invalid portfolio config")
)

// ApplyTrade is the pure position transition for one execution. On error the
// given state is returned unchanged.
func ApplyTrade(state types.PositionState, trade types.Trade) (types.PositionState, types.TradeOutcome, error) {
	if err := validateTrade(trade); err != nil {
		return state, types.TradeOutcome{}, err
	}

	prevQty := state.Quantity
	prevAvg := state.AvgCost
	delta := trade.SignedQuantity()
	realized := decimal.Zero
	next := state

	switch {
	case prevQty == 0:
		next.Quantity = delta
		next.AvgCost = trade.Price

	case sameSide(prevQty, delta):
		next.AvgCost = weightedAvg(prevAvg, abs(prevQty), trade.Price, abs(delta))
		next.Quantity = prevQty + delta

	default:
		closed := min(abs(delta), abs(prevQty))
		realized = closedPnL(prevQty, prevAvg, trade.Price, closed)
		next.Quantity = prevQty + delta

		switch {
		case next.Quantity == 0:
			next.AvgCost = decimal.Zero
		case sameSide(prevQty, next.Quantity):
			// partial close, the surviving shares keep their cost
		default:
			// reversal, the surplus opens at the trade price
			next.AvgCost = trade.Price
		}
	}
	next.RealizedPL = state.RealizedPL.Add(realized)

	outcome := types.TradeOutcome{
		Trade:                trade,
		PositionBefore:       prevQty,
		AvgCostBefore:        prevAvg,
		RealizedPL:           realized,
		PositionAfter:        next.Quantity,
		AvgCostAfter:         next.AvgCost,
		CumulativeRealizedPL: next.RealizedPL,
		Fee:                  decimal.Zero,
	}
	return next, outcome, nil
}

// UnrealizedPL is the floating P/L of state marked at mark.
func UnrealizedPL(state types.PositionState, mark decimal.Decimal) decimal.Decimal {
	return state.UnrealizedPL(mark)
}

func validateTrade(trade types.Trade) error {
	if !trade.Side.Valid() {
		return fmt.Errorf("%w: %w %q", ErrInvalidTrade, ErrUnknownSide, trade.Side)
	}
	if !trade.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive, got %s", ErrInvalidTrade, trade.Price)
	}
	if trade.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be a positive integer, got %d", ErrInvalidTrade, trade.Quantity)
	}
	return nil
}

// closedPnL is the realized P/L of closing shares of a position of size prevQty.
func closedPnL(prevQty int64, avgCost, price decimal.Decimal, shares int64) decimal.Decimal {
	n := decimal.NewFromInt(shares)
	if prevQty > 0 {
		return price.Sub(avgCost).Mul(n)
	}
	return avgCost.Sub(price).Mul(n)
}

func sameSide(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func weightedAvg(existingAvgPrice decimal.Decimal, existingQty int64, newPrice decimal.Decimal, newQty int64) decimal.Decimal {
	if existingQty == 0 {
		return newPrice
	}
	oldQ := decimal.NewFromInt(existingQty)
	newQ := decimal.NewFromInt(newQty)
	return existingAvgPrice.Mul(oldQ).
		Add(newPrice.Mul(newQ)).
		Div(oldQ.Add(newQ))
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
