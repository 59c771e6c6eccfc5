package engine

import (
	"fmt"

	"pnlreplay/types"

	"github.com/shopspring/decimal"
)

// Tracker owns one PositionState and its append-only journal. It is not safe
// for concurrent use; independent runs each own a Tracker.
type Tracker struct {
	start             types.PositionState
	state             types.PositionState
	journal           []types.TradeOutcome
	allowShortSelling bool
}

func NewTracker(start types.PositionState, allowShortSelling bool) *Tracker {
	start = types.NewPositionState(start.Quantity, start.AvgCost).WithRealized(start.RealizedPL)
	return &Tracker{
		start:             start,
		state:             start,
		allowShortSelling: allowShortSelling,
	}
}

// Apply applies one trade. A rejected trade leaves state and journal untouched.
func (t *Tracker) Apply(trade types.Trade) (types.TradeOutcome, error) {
	return t.apply(trade, decimal.Zero)
}

func (t *Tracker) apply(trade types.Trade, fee decimal.Decimal) (types.TradeOutcome, error) {
	next, outcome, err := ApplyTrade(t.state, trade)
	if err != nil {
		return types.TradeOutcome{}, err
	}
	if !t.allowShortSelling && next.Quantity < 0 {
		return types.TradeOutcome{}, fmt.Errorf("%w: position would be %d", ErrShortSellNotAllowed, next.Quantity)
	}
	outcome.Seq = len(t.journal)
	outcome.Fee = fee
	t.journal = append(t.journal, outcome)
	t.state = next
	return outcome, nil
}

func (t *Tracker) State() types.PositionState {
	return t.state
}

func (t *Tracker) Start() types.PositionState {
	return t.start
}

// Journal returns a copy of the applied outcomes in arrival order.
func (t *Tracker) Journal() []types.TradeOutcome {
	return append([]types.TradeOutcome(nil), t.journal...)
}

func (t *Tracker) Len() int {
	return len(t.journal)
}

// Reset drops the journal and returns to the starting state.
func (t *Tracker) Reset() {
	t.state = t.start
	t.journal = nil
}
