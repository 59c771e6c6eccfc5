package engine

import (
	"bytes"
	"errors"
	"testing"

	"pnlreplay/types"
)

func TestReconstruct(t *testing.T) {
	prices := []types.PricePoint{
		price(at(0), "10"),
		price(at(2), "12"),
		price(at(3), "9"),
		price(at(4), "11"),
	}
	trades := []types.Trade{
		buy(at(1), "10", 100),
		sell(at(3), "9", 100),
	}

	replay, err := Reconstruct(trades, prices, NewPortfolioConfig(d("10000"), true))
	if err != nil {
		t.Fatalf("Reconstruct() unexpected error: %v", err)
	}

	want := []struct {
		cash, mark, equity, peak, dd string
		qty                          int64
	}{
		{"10000", "10", "10000", "10000", "0", 0},
		{"9000", "10", "10000", "10000", "0", 100},
		{"9000", "12", "10200", "10200", "0", 100},
		{"9900", "9", "9900", "10200", "-2.9412", 0},
		{"9900", "11", "9900", "10200", "-2.9412", 0},
	}
	if len(replay.Points) != len(want) {
		t.Fatalf("Points len got = %d, want %d", len(replay.Points), len(want))
	}
	for i, w := range want {
		p := replay.Points[i]
		if !p.Timestamp.Equal(at(i)) {
			t.Errorf("[%d] timestamp got = %s, want %s", i, p.Timestamp, at(i))
		}
		if !p.Cash.Equal(d(w.cash)) || !p.MarkPrice.Equal(d(w.mark)) || p.Quantity != w.qty {
			t.Errorf("[%d] got cash %s mark %s qty %d, want cash %s mark %s qty %d",
				i, p.Cash, p.MarkPrice, p.Quantity, w.cash, w.mark, w.qty)
		}
		if !p.Equity.Equal(d(w.equity)) || !p.PeakEquity.Equal(d(w.peak)) {
			t.Errorf("[%d] got equity %s peak %s, want %s %s", i, p.Equity, p.PeakEquity, w.equity, w.peak)
		}
		if !p.DrawdownPct.Round(4).Equal(d(w.dd)) {
			t.Errorf("[%d] drawdown got = %s, want %s", i, p.DrawdownPct.Round(4), w.dd)
		}
	}

	if len(replay.Journal) != 2 || len(replay.ClosedTrades) != 1 {
		t.Fatalf("journal/closed got = %d/%d, want 2/1", len(replay.Journal), len(replay.ClosedTrades))
	}
	if !replay.Final.RealizedPL.Equal(d("-100")) {
		t.Errorf("Final realized got = %s, want -100", replay.Final.RealizedPL)
	}
	if mark, ok := replay.LastMark(); !ok || !mark.Equal(d("11")) {
		t.Errorf("LastMark() got = %s %v, want 11 true", mark, ok)
	}
}

func TestReconstructTradeBeforeFirstPrice(t *testing.T) {
	replay, err := Reconstruct(
		[]types.Trade{buy(at(0), "5", 10)},
		[]types.PricePoint{price(at(1), "6")},
		NewPortfolioConfig(d("10000"), true),
	)
	if err != nil {
		t.Fatalf("Reconstruct() unexpected error: %v", err)
	}
	first := replay.Points[0]
	if first.HasMark || !first.PositionValue.IsZero() || !first.Equity.Equal(d("9950")) {
		t.Errorf("first point got = %+v, want no mark, zero position value, equity 9950", first)
	}
	if second := replay.Points[1]; !second.Equity.Equal(d("10010")) {
		t.Errorf("second point equity got = %s, want 10010", second.Equity)
	}
}

func TestReconstructSameTimestampTrades(t *testing.T) {
	replay, err := Reconstruct(
		[]types.Trade{buy(at(1), "10", 100), sell(at(1), "11", 100)},
		[]types.PricePoint{price(at(0), "10"), price(at(1), "11")},
		NewPortfolioConfig(d("10000"), true),
	)
	if err != nil {
		t.Fatalf("Reconstruct() unexpected error: %v", err)
	}
	if len(replay.Points) != 2 {
		t.Fatalf("Points len got = %d, want 2", len(replay.Points))
	}
	if p := replay.Points[1]; p.Quantity != 0 || !p.Cash.Equal(d("10100")) {
		t.Errorf("point got qty %d cash %s, want 0 10100", p.Quantity, p.Cash)
	}
}

func TestReconstructOptions(t *testing.T) {
	prices := []types.PricePoint{price(at(0), "10"), price(at(1), "12")}

	t.Run("commission", func(t *testing.T) {
		cfg := NewPortfolioConfig(d("10000"), true).WithCommission(d("0.001"))
		replay, err := Reconstruct([]types.Trade{buy(at(0), "10", 100)}, prices, cfg)
		if err != nil {
			t.Fatalf("Reconstruct() unexpected error: %v", err)
		}
		if !replay.Points[0].Cash.Equal(d("8999")) || !replay.TotalFees.Equal(d("1")) {
			t.Errorf("got cash %s fees %s, want 8999 1", replay.Points[0].Cash, replay.TotalFees)
		}
		if !replay.Journal[0].Fee.Equal(d("1")) {
			t.Errorf("journal fee got = %s, want 1", replay.Journal[0].Fee)
		}
	})

	t.Run("start position", func(t *testing.T) {
		cfg := NewPortfolioConfig(d("1000"), true).WithStartPosition(100, d("8"))
		replay, err := Reconstruct(nil, prices, cfg)
		if err != nil {
			t.Fatalf("Reconstruct() unexpected error: %v", err)
		}
		if !replay.Points[0].Equity.Equal(d("2000")) || !replay.Points[1].Equity.Equal(d("2200")) {
			t.Errorf("equity got = %s, %s, want 2000, 2200", replay.Points[0].Equity, replay.Points[1].Equity)
		}
	})

	t.Run("funding check", func(t *testing.T) {
		cfg := NewPortfolioConfig(d("500"), true).WithFundingCheck(true)
		_, err := Reconstruct([]types.Trade{buy(at(0), "10", 100)}, prices, cfg)
		if !errors.Is(err, ErrInsufficientBalance) {
			t.Errorf("Reconstruct() error got = %v, want %v", err, ErrInsufficientBalance)
		}
	})

	t.Run("short selling disabled", func(t *testing.T) {
		_, err := Reconstruct([]types.Trade{sell(at(0), "10", 1)}, prices, NewPortfolioConfig(d("500"), false))
		if !errors.Is(err, ErrShortSellNotAllowed) {
			t.Errorf("Reconstruct() error got = %v, want %v", err, ErrShortSellNotAllowed)
		}
	})
}

func TestReconstructErrors(t *testing.T) {
	cfg := NewPortfolioConfig(d("10000"), true)
	prices := []types.PricePoint{price(at(0), "10"), price(at(1), "11")}

	tests := []struct {
		name    string
		trades  []types.Trade
		prices  []types.PricePoint
		cfg     *PortfolioConfig
		wantErr error
	}{
		{"nil config", nil, prices, nil, ErrInvalidConfig},
		{"zero cash", nil, prices, NewPortfolioConfig(d("0"), true), ErrInvalidConfig},
		{"empty prices with trades", []types.Trade{buy(at(0), "10", 1)}, nil, cfg, ErrInvalidPriceSeries},
		{"duplicate price timestamp", nil, []types.PricePoint{price(at(0), "10"), price(at(0), "11")}, cfg, ErrInvalidPriceSeries},
		{"decreasing price timestamp", nil, []types.PricePoint{price(at(1), "10"), price(at(0), "11")}, cfg, ErrInvalidPriceSeries},
		{"non-positive price", nil, []types.PricePoint{price(at(0), "0")}, cfg, ErrInvalidPriceSeries},
		{"trades out of order", []types.Trade{buy(at(1), "10", 1), sell(at(0), "10", 1)}, prices, cfg, ErrInvalidTrade},
		{"zero quantity", []types.Trade{buy(at(0), "10", 1), sell(at(1), "10", 0)}, prices, cfg, ErrInvalidTrade},
		{"zero trade price", []types.Trade{buy(at(0), "0", 1)}, prices, cfg, ErrInvalidTrade},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replay, err := Reconstruct(tt.trades, tt.prices, tt.cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Reconstruct() error got = %v, want %v", err, tt.wantErr)
			}
			if replay != nil {
				t.Errorf("Reconstruct() returned a replay with an error")
			}
		})
	}
}

func TestReconstructEmpty(t *testing.T) {
	replay, err := Reconstruct(nil, nil, NewPortfolioConfig(d("100"), true))
	if err != nil {
		t.Fatalf("Reconstruct() unexpected error: %v", err)
	}
	if len(replay.Points) != 0 || len(replay.Journal) != 0 {
		t.Errorf("got %d points %d outcomes, want none", len(replay.Points), len(replay.Journal))
	}
}

func TestEquityCurveInvariants(t *testing.T) {
	var prices []types.PricePoint
	marks := []string{"10", "11", "9", "8", "12", "15", "7", "7.5", "14", "13"}
	for i, m := range marks {
		prices = append(prices, price(at(i*2), m))
	}
	trades := []types.Trade{
		buy(at(1), "10.5", 300),
		sell(at(5), "8.5", 500),
		buy(at(9), "13", 400),
		sell(at(13), "7.2", 50),
		sell(at(17), "13.5", 150),
	}

	replay, err := Reconstruct(trades, prices, NewPortfolioConfig(d("5000"), true))
	if err != nil {
		t.Fatalf("Reconstruct() unexpected error: %v", err)
	}
	for i, p := range replay.Points {
		if p.DrawdownPct.IsPositive() {
			t.Errorf("[%d] drawdown got = %s, want <= 0", i, p.DrawdownPct)
		}
		if i > 0 && p.PeakEquity.LessThan(replay.Points[i-1].PeakEquity) {
			t.Errorf("[%d] peak decreased from %s to %s", i, replay.Points[i-1].PeakEquity, p.PeakEquity)
		}
		if p.Equity.GreaterThan(p.PeakEquity) {
			t.Errorf("[%d] equity %s above peak %s", i, p.Equity, p.PeakEquity)
		}
		if p.Equity.Equal(p.PeakEquity) && !p.DrawdownPct.IsZero() {
			t.Errorf("[%d] drawdown at a peak got = %s, want 0", i, p.DrawdownPct)
		}
	}
}

func TestReconstructIsDeterministic(t *testing.T) {
	prices := []types.PricePoint{price(at(0), "10"), price(at(2), "10.37"), price(at(4), "9.91")}
	trades := []types.Trade{buy(at(1), "10.01", 33), buy(at(2), "10.4", 17), sell(at(3), "10.2", 70)}
	cfg := NewPortfolioConfig(d("1000"), true).WithCommission(d("0.0005"))

	render := func() []byte {
		replay, err := Reconstruct(trades, prices, cfg)
		if err != nil {
			t.Fatalf("Reconstruct() unexpected error: %v", err)
		}
		var buf bytes.Buffer
		if err := WriteEquityCSV(&buf, replay.Points); err != nil {
			t.Fatalf("WriteEquityCSV() unexpected error: %v", err)
		}
		if err := WriteJournalCSV(&buf, replay.Journal); err != nil {
			t.Fatalf("WriteJournalCSV() unexpected error: %v", err)
		}
		return buf.Bytes()
	}

	if first, second := render(), render(); !bytes.Equal(first, second) {
		t.Errorf("replays differ:\n%s\n---\n%s", first, second)
	}
}

func TestApplyDrawdownNegativeEquity(t *testing.T) {
	points := []types.EquityPoint{
		{Equity: d("0")},
		{Equity: d("-100")},
		{Equity: d("-50")},
	}
	applyDrawdown(points)

	wantPeak := []string{"0", "0", "0"}
	for i, p := range points {
		if !p.PeakEquity.Equal(d(wantPeak[i])) {
			t.Errorf("[%d] peak got = %s, want %s", i, p.PeakEquity, wantPeak[i])
		}
		if !p.DrawdownPct.IsZero() {
			t.Errorf("[%d] drawdown with zero peak got = %s, want 0", i, p.DrawdownPct)
		}
	}

	points = []types.EquityPoint{{Equity: d("-100")}, {Equity: d("-50")}, {Equity: d("-200")}}
	applyDrawdown(points)
	if !points[1].DrawdownPct.IsZero() {
		t.Errorf("drawdown at new peak got = %s, want 0", points[1].DrawdownPct)
	}
	if !points[2].DrawdownPct.Equal(d("-300")) {
		t.Errorf("drawdown below negative peak got = %s, want -300", points[2].DrawdownPct)
	}
}
