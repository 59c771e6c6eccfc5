package engine

import (
	"errors"
	"fmt"
	"time"

	"pnlreplay/types"

	"github.com/shopspring/decimal"
)

// Replay is the full reconstruction of one run. Callers must treat it as read-only.
type Replay struct {
	Points       []types.EquityPoint
	Journal      []types.TradeOutcome
	ClosedTrades []types.ClosedTrade
	Start        types.PositionState
	Final        types.PositionState
	InitialCash  decimal.Decimal
	TotalFees    decimal.Decimal
}

// LastMark is the most recent mark price of the run, if any.
func (r *Replay) LastMark() (decimal.Decimal, bool) {
	for i := len(r.Points) - 1; i >= 0; i-- {
		if r.Points[i].HasMark {
			return r.Points[i].MarkPrice, true
		}
	}
	return decimal.Zero, false
}

// Reconstruct replays trades against the mark-price series and returns the
// per-timestamp equity curve, the trade journal and the FIFO closed trades.
// Trades must be ordered by timestamp; prices strictly increasing.
func Reconstruct(trades []types.Trade, prices []types.PricePoint, cfg *PortfolioConfig) (*Replay, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := validatePriceSeries(prices, len(trades)); err != nil {
		return nil, err
	}
	if err := validateTradeOrder(trades); err != nil {
		return nil, err
	}

	axis := mergeTimeAxis(trades, prices)
	var startTime time.Time
	if len(axis) > 0 {
		startTime = axis[0]
	}

	tracker := NewTracker(cfg.startPosition, cfg.allowShortSelling)
	matcher := newLotMatcher(cfg.startPosition, startTime)

	cash := cfg.initialCash
	totalFees := decimal.Zero
	lastMark := decimal.Zero
	hasMark := false
	ti, pi := 0, 0
	points := make([]types.EquityPoint, 0, len(axis))

	for _, ts := range axis {
		if pi < len(prices) && prices[pi].Timestamp.Equal(ts) {
			lastMark = prices[pi].Price
			hasMark = true
			pi++
		}

		for ti < len(trades) && trades[ti].Timestamp.Equal(ts) {
			trade := trades[ti]
			if err := validateTrade(trade); err != nil {
				return nil, fmt.Errorf("trade %d at %s: %w", ti, ts.Format(time.RFC3339), err)
			}
			fee := cfg.fee(trade)
			nextCash := cash.Sub(trade.Notional().Mul(decimal.NewFromInt(trade.Side.Sign()))).Sub(fee)
			if cfg.requireFunding && trade.Side == types.SideTypeBuy && nextCash.IsNegative() {
				return nil, fmt.Errorf("trade %d at %s: %w", ti, ts.Format(time.RFC3339), ErrInsufficientBalance)
			}

			outcome, err := tracker.apply(trade, fee)
			if err != nil {
				return nil, fmt.Errorf("trade %d at %s: %w", ti, ts.Format(time.RFC3339), err)
			}
			matcher.observe(outcome)
			cash = nextCash
			totalFees = totalFees.Add(fee)
			ti++
		}

		qty := tracker.State().Quantity
		positionValue := decimal.Zero
		if hasMark {
			positionValue = lastMark.Mul(decimal.NewFromInt(qty))
		}
		points = append(points, types.EquityPoint{
			Timestamp:     ts,
			Cash:          cash,
			MarkPrice:     lastMark,
			HasMark:       hasMark,
			Quantity:      qty,
			PositionValue: positionValue,
			Equity:        cash.Add(positionValue),
		})
	}

	applyDrawdown(points)

	return &Replay{
		Points:       points,
		Journal:      tracker.Journal(),
		ClosedTrades: matcher.closedTrades(),
		Start:        tracker.Start(),
		Final:        tracker.State(),
		InitialCash:  cfg.initialCash,
		TotalFees:    totalFees,
	}, nil
}

// applyDrawdown is the second pass: running peak and percentage drawdown.
// Drawdown is measured against |peak| so it stays <= 0 for negative equity too.
func applyDrawdown(points []types.EquityPoint) {
	for i := range points {
		peak := points[i].Equity
		if i > 0 && points[i-1].PeakEquity.GreaterThan(peak) {
			peak = points[i-1].PeakEquity
		}
		points[i].PeakEquity = peak
		points[i].DrawdownPct = decimal.Zero
		if !peak.IsZero() {
			points[i].DrawdownPct = points[i].Equity.Sub(peak).Div(peak.Abs()).Mul(hundred)
		}
	}
}

func validatePriceSeries(prices []types.PricePoint, tradeCount int) error {
	if len(prices) == 0 {
		if tradeCount > 0 {
			return fmt.Errorf("%w: empty price series for %d trades", ErrInvalidPriceSeries, tradeCount)
		}
		return nil
	}
	for i, p := range prices {
		if !p.Price.IsPositive() {
			return fmt.Errorf("%w: non-positive price %s at %s", ErrInvalidPriceSeries, p.Price, p.Timestamp.Format(time.RFC3339))
		}
		if i > 0 && !p.Timestamp.After(prices[i-1].Timestamp) {
			return fmt.Errorf("%w: timestamp %s is not after %s", ErrInvalidPriceSeries,
				p.Timestamp.Format(time.RFC3339), prices[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

var errTradesOutOfOrder = errors.New("trades out of timestamp order")

func validateTradeOrder(trades []types.Trade) error {
	for i := 1; i < len(trades); i++ {
		if trades[i].Timestamp.Before(trades[i-1].Timestamp) {
			return fmt.Errorf("%w: trade %d: %w", ErrInvalidTrade, i, errTradesOutOfOrder)
		}
	}
	return nil
}

// mergeTimeAxis is the sorted, deduplicated union of trade and price timestamps.
func mergeTimeAxis(trades []types.Trade, prices []types.PricePoint) []time.Time {
	axis := make([]time.Time, 0, len(trades)+len(prices))
	push := func(ts time.Time) {
		if n := len(axis); n > 0 && axis[n-1].Equal(ts) {
			return
		}
		axis = append(axis, ts)
	}

	ti, pi := 0, 0
	for ti < len(trades) || pi < len(prices) {
		switch {
		case pi >= len(prices):
			push(trades[ti].Timestamp)
			ti++
		case ti >= len(trades):
			push(prices[pi].Timestamp)
			pi++
		case trades[ti].Timestamp.Before(prices[pi].Timestamp):
			push(trades[ti].Timestamp)
			ti++
		default:
			push(prices[pi].Timestamp)
			pi++
		}
	}
	return axis
}
