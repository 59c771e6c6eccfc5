package engine

import (
	"time"

	"pnlreplay/types"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// lot is an open slice of the position, in shares, at its entry price.
type lot struct {
	time  time.Time
	price decimal.Decimal
	qty   int64
}

// lotMatcher pairs opening lots with closing executions first-in first-out,
// following the tracker's own open/close/reverse classification of each outcome.
type lotMatcher struct {
	lots   []lot
	closed []types.ClosedTrade
}

// newLotMatcher seeds one lot for a non-flat starting position.
func newLotMatcher(start types.PositionState, startTime time.Time) *lotMatcher {
	m := &lotMatcher{}
	if start.Quantity != 0 {
		m.lots = append(m.lots, lot{time: startTime, price: start.AvgCost, qty: abs(start.Quantity)})
	}
	return m
}

func (m *lotMatcher) observe(o types.TradeOutcome) {
	direction := types.DirectionOf(o.PositionBefore)
	closing := o.ClosedShares()

	for closing > 0 && len(m.lots) > 0 {
		head := &m.lots[0]
		n := min(head.qty, closing)
		m.closed = append(m.closed, newClosedTrade(direction, *head, n, o.Trade))
		head.qty -= n
		closing -= n
		if head.qty == 0 {
			m.lots = m.lots[1:]
		}
	}
	if o.PositionAfter == 0 {
		m.lots = nil
	}
	if opened := o.OpenedShares(); opened > 0 {
		m.lots = append(m.lots, lot{time: o.Trade.Timestamp, price: o.Trade.Price, qty: opened})
	}
}

func (m *lotMatcher) closedTrades() []types.ClosedTrade {
	return append([]types.ClosedTrade(nil), m.closed...)
}

func (m *lotMatcher) openShares() int64 {
	var n int64
	for _, l := range m.lots {
		n += l.qty
	}
	return n
}

func newClosedTrade(direction types.Direction, entry lot, size int64, exit types.Trade) types.ClosedTrade {
	move := exit.Price.Sub(entry.price)
	if direction == types.DirectionShort {
		move = move.Neg()
	}
	return types.ClosedTrade{
		Direction:  direction,
		Size:       size,
		EntryPrice: entry.price,
		ExitPrice:  exit.Price,
		PnL:        move.Mul(decimal.NewFromInt(size)),
		ReturnPct:  move.Div(entry.price).Mul(hundred),
		EntryTime:  entry.time,
		ExitTime:   exit.Timestamp,
		Duration:   exit.Timestamp.Sub(entry.time),
	}
}

// ClosedTrades derives the FIFO closed-trade list from a trade journal.
// startTime dates the lot of a non-flat starting position.
func ClosedTrades(journal []types.TradeOutcome, start types.PositionState, startTime time.Time) []types.ClosedTrade {
	m := newLotMatcher(start, startTime)
	for _, o := range journal {
		m.observe(o)
	}
	return m.closedTrades()
}
