package calculator

import (
	"strconv"
	"time"

	"pnlreplay/types"

	"github.com/shopspring/decimal"
)

// Row is one journal line formatted for display. Prices and average costs
// show 4 decimals, P/L values 2.
type Row struct {
	Seq            int
	Time           string
	Side           string
	Price          string
	Lot            string
	Shares         string
	PositionBefore string
	AvgBefore      string
	Realized       string
	PositionAfter  string
	AvgAfter       string
	Floating       string
	CumRealized    string
}

// Header matches the field order of Row.Values.
var Header = []string{
	"#", "TIME", "SIDE", "PRICE", "LOT", "QTY (SHARES)", "POSITION BEFORE", "AVG PRICE BEFORE",
	"REALIZED P/L", "POSITION AFTER", "AVG PRICE AFTER", "FLOATING P/L", "CUM REALIZED P/L",
}

func (r Row) Values() []string {
	return []string{
		strconv.Itoa(r.Seq), r.Time, r.Side, r.Price, r.Lot, r.Shares, r.PositionBefore, r.AvgBefore,
		r.Realized, r.PositionAfter, r.AvgAfter, r.Floating, r.CumRealized,
	}
}

// Rows renders the journal. Floating P/L after each entry is marked at mark
// when given, otherwise at the entry's own trade price.
func (s *Session) Rows(mark *decimal.Decimal) []Row {
	journal := s.Journal()
	rows := make([]Row, 0, len(journal))
	lotSize := decimal.NewFromInt(s.lotSize)

	for _, o := range journal {
		m := o.Trade.Price
		if mark != nil {
			m = *mark
		}
		after := types.NewPositionState(o.PositionAfter, o.AvgCostAfter)
		rows = append(rows, Row{
			Seq:            o.Seq + 1,
			Time:           o.Trade.Timestamp.Local().Format(time.DateTime),
			Side:           string(o.Trade.Side),
			Price:          o.Trade.Price.StringFixed(4),
			Lot:            decimal.NewFromInt(o.Trade.Quantity).Div(lotSize).String(),
			Shares:         strconv.FormatInt(o.Trade.SignedQuantity(), 10),
			PositionBefore: strconv.FormatInt(o.PositionBefore, 10),
			AvgBefore:      o.AvgCostBefore.StringFixed(4),
			Realized:       o.RealizedPL.StringFixed(2),
			PositionAfter:  strconv.FormatInt(o.PositionAfter, 10),
			AvgAfter:       o.AvgCostAfter.StringFixed(4),
			Floating:       after.UnrealizedPL(m).StringFixed(2),
			CumRealized:    o.CumulativeRealizedPL.StringFixed(2),
		})
	}
	return rows
}

// Summary is the position box shown above the journal.
type Summary struct {
	Position    int64
	Lots        decimal.Decimal
	AvgPrice    decimal.Decimal
	Floating    decimal.NullDecimal
	CumRealized decimal.Decimal
}

// Summarize reports floating P/L only when a mark is given.
func (s *Session) Summarize(mark *decimal.Decimal) Summary {
	st := s.State()
	sum := Summary{
		Position:    st.Quantity,
		Lots:        s.Lots(),
		AvgPrice:    st.AvgCost,
		CumRealized: st.RealizedPL,
	}
	if mark != nil {
		sum.Floating = decimal.NewNullDecimal(s.Floating(*mark))
	}
	return sum
}
