package engine

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"pnlreplay/types"

	"github.com/shopspring/decimal"
)

func closedTrade(pnl, ret string, duration time.Duration) types.ClosedTrade {
	return types.ClosedTrade{PnL: d(pnl), ReturnPct: d(ret), Duration: duration}
}

func TestCalcTradeStatistics(t *testing.T) {
	tests := []struct {
		name             string
		closed           []types.ClosedTrade
		wantErr          error
		wantWinRate      string
		wantProfitFactor string
		wantExpectancy   string
		wantBest         string
		wantWorst        string
		wantAvg          string
		wantMaxLosses    int
	}{
		{
			name:             "no closed trades -> not available",
			closed:           nil,
			wantErr:          ErrEmptyPositionStatistics,
			wantWinRate:      "n/a",
			wantProfitFactor: "n/a",
			wantExpectancy:   "n/a",
			wantBest:         "n/a",
			wantWorst:        "n/a",
			wantAvg:          "n/a",
		},
		{
			name: "only winners -> infinite profit factor",
			closed: []types.ClosedTrade{
				closedTrade("100", "10", time.Hour),
				closedTrade("50", "5", time.Hour),
			},
			wantWinRate:      "100",
			wantProfitFactor: "inf",
			wantExpectancy:   "75",
			wantBest:         "10",
			wantWorst:        "5",
			wantAvg:          "7.5",
		},
		{
			name: "mixed winners and losers",
			closed: []types.ClosedTrade{
				closedTrade("100", "10", time.Hour),
				closedTrade("-50", "-5", 2*time.Hour),
				closedTrade("30", "3", 3*time.Hour),
				closedTrade("-20", "-2", 4*time.Hour),
			},
			wantWinRate:      "50",
			wantProfitFactor: "1.85714",
			wantExpectancy:   "15",
			wantBest:         "10",
			wantWorst:        "-5",
			wantAvg:          "1.5",
			wantMaxLosses:    1,
		},
		{
			name: "only losers -> zero profit factor",
			closed: []types.ClosedTrade{
				closedTrade("-10", "-1", time.Hour),
				closedTrade("-30", "-3", time.Hour),
			},
			wantWinRate:      "0",
			wantProfitFactor: "0",
			wantExpectancy:   "-20",
			wantBest:         "-1",
			wantWorst:        "-3",
			wantAvg:          "-2",
			wantMaxLosses:    2,
		},
		{
			name: "break-even only -> profit factor not available",
			closed: []types.ClosedTrade{
				closedTrade("0", "0", time.Hour),
			},
			wantWinRate:      "0",
			wantProfitFactor: "n/a",
			wantExpectancy:   "0",
			wantBest:         "0",
			wantWorst:        "0",
			wantAvg:          "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalcTradeStatistics(tt.closed)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CalcTradeStatistics() error got = %v, want %v", err, tt.wantErr)
			}
			if got.Available != (tt.wantErr == nil) {
				t.Errorf("Available got = %v", got.Available)
			}
			checks := []struct {
				field string
				got   Metric
				want  string
			}{
				{"win rate", got.WinRatePct, tt.wantWinRate},
				{"profit factor", got.ProfitFactor, tt.wantProfitFactor},
				{"expectancy", got.Expectancy, tt.wantExpectancy},
				{"best", got.BestReturnPct, tt.wantBest},
				{"worst", got.WorstReturnPct, tt.wantWorst},
				{"avg", got.AvgReturnPct, tt.wantAvg},
			}
			for _, c := range checks {
				if c.got.String() != c.want {
					t.Errorf("%s got = %s, want %s", c.field, c.got, c.want)
				}
			}
			if got.MaxConsecutiveLosses != tt.wantMaxLosses {
				t.Errorf("max consecutive losses got = %d, want %d", got.MaxConsecutiveLosses, tt.wantMaxLosses)
			}
		})
	}
}

func TestCalcTradeStatisticsDurationsAndStreaks(t *testing.T) {
	closed := []types.ClosedTrade{
		closedTrade("-1", "-1", time.Hour),
		closedTrade("-1", "-1", time.Hour),
		closedTrade("5", "5", 4*time.Hour),
		closedTrade("-1", "-1", time.Hour),
		closedTrade("-1", "-1", time.Hour),
		closedTrade("-1", "-1", 4*time.Hour),
	}
	got, err := CalcTradeStatistics(closed)
	if err != nil {
		t.Fatalf("CalcTradeStatistics() unexpected error: %v", err)
	}
	if got.MaxConsecutiveLosses != 3 {
		t.Errorf("max consecutive losses got = %d, want 3", got.MaxConsecutiveLosses)
	}
	if got.MaxDuration != 4*time.Hour || got.AvgDuration != 2*time.Hour {
		t.Errorf("durations got = %s / %s, want 4h / 2h", got.MaxDuration, got.AvgDuration)
	}
	if !got.NetPnL.Equal(d("0")) {
		t.Errorf("net pnl got = %s, want 0", got.NetPnL)
	}
	if !got.SQN.OK {
		t.Errorf("SQN not available for %d trades", len(closed))
	}
}

func TestMetric(t *testing.T) {
	tests := []struct {
		name   string
		metric Metric
		want   string
		wantF  float64
		wantOK bool
	}{
		{"not available", Metric{}, "n/a", 0, false},
		{"infinite", infMetric(), "inf", math.Inf(1), true},
		{"value", metricOf(d("1.234567")), "1.23457", 1.234567, true},
		{"nan", metricOfFloat(math.NaN()), "n/a", 0, false},
		{"float inf", metricOfFloat(math.Inf(1)), "inf", math.Inf(1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.metric.String(); got != tt.want {
				t.Errorf("String() got = %s, want %s", got, tt.want)
			}
			f, ok := tt.metric.Float64()
			if ok != tt.wantOK || f != tt.wantF {
				t.Errorf("Float64() got = %v %v, want %v %v", f, ok, tt.wantF, tt.wantOK)
			}
		})
	}
}

func equityPoints(start time.Time, equities ...string) []types.EquityPoint {
	points := make([]types.EquityPoint, 0, len(equities))
	for i, e := range equities {
		points = append(points, types.EquityPoint{Timestamp: start.AddDate(0, 0, i), Equity: d(e)})
	}
	applyDrawdown(points)
	return points
}

func TestCalcDrawdownMetrics(t *testing.T) {
	tests := []struct {
		name        string
		points      []types.EquityPoint
		wantMax     string
		wantAvg     string
		wantMaxBars int
		wantMaxDur  time.Duration
		wantAvgDur  time.Duration
	}{
		{
			name:    "no points",
			wantMax: "0",
			wantAvg: "0",
		},
		{
			name:    "monotonic up",
			points:  equityPoints(day(0), "1000", "1200", "1500"),
			wantMax: "0",
			wantAvg: "0",
		},
		{
			// peaks 1000 1200 1200 1300 1300; episodes at day 2 (recovered day 3) and day 4 (open)
			name:        "two episodes",
			points:      equityPoints(day(0), "1000", "1200", "900", "1300", "1040"),
			wantMax:     "25",
			wantAvg:     "22.5",
			wantMaxBars: 1,
			wantMaxDur:  48 * time.Hour,
			wantAvgDur:  36 * time.Hour,
		},
		{
			name:        "flat then drop with no recovery",
			points:      equityPoints(day(0), "1000", "1000", "800", "700"),
			// measured from the last bar at the peak, day 1
			wantMax:     "30",
			wantAvg:     "30",
			wantMaxBars: 2,
			wantMaxDur:  48 * time.Hour,
			wantAvgDur:  48 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)
			report := &Report{}
			calcDrawdownMetrics(tt.points, report, &wg)

			if !report.MaxDrawdownPct.Equal(d(tt.wantMax)) {
				t.Errorf("max drawdown got = %s, want %s", report.MaxDrawdownPct, tt.wantMax)
			}
			if !report.AvgDrawdownPct.Equal(d(tt.wantAvg)) {
				t.Errorf("avg drawdown got = %s, want %s", report.AvgDrawdownPct, tt.wantAvg)
			}
			if report.MaxDrawdownBars != tt.wantMaxBars {
				t.Errorf("max drawdown bars got = %d, want %d", report.MaxDrawdownBars, tt.wantMaxBars)
			}
			if report.MaxDrawdownDuration != tt.wantMaxDur || report.AvgDrawdownDuration != tt.wantAvgDur {
				t.Errorf("durations got = %s / %s, want %s / %s",
					report.MaxDrawdownDuration, report.AvgDrawdownDuration, tt.wantMaxDur, tt.wantAvgDur)
			}
		})
	}
}

func TestCalcReturns(t *testing.T) {
	year := time.Duration(365.25 * 24 * float64(time.Hour))

	tests := []struct {
		name       string
		start, end string
		duration   time.Duration
		wantTotal  string
		wantAnnual string
	}{
		{"one year", "1000", "1100", year, "10", "10"},
		{"two years", "1000", "1210", 2 * year, "21", "10"},
		{"no duration", "1000", "900", 0, "-10", "n/a"},
		{"zero start", "0", "100", year, "n/a", "n/a"},
		{"wiped out", "1000", "-50", year, "-105", "n/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)
			total, annual := calcReturns(d(tt.start), d(tt.end), tt.duration, &wg)
			if total.String() != tt.wantTotal {
				t.Errorf("total got = %s, want %s", total, tt.wantTotal)
			}
			got := annual.String()
			if annual.OK {
				got = annual.Value.Round(4).String()
			}
			if got != tt.wantAnnual {
				t.Errorf("annual got = %s, want %s", got, tt.wantAnnual)
			}
		})
	}
}

func TestCalcRiskRatios(t *testing.T) {
	t.Run("too few points", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)
		vol, sharpe, sortino := calcRiskRatios(equityPoints(day(0), "1000", "1010"), d("0"), 365, &wg)
		if vol.OK || sharpe.OK || sortino.OK {
			t.Errorf("got %s %s %s, want all n/a", vol, sharpe, sortino)
		}
	})

	t.Run("constant growth has no deviation", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)
		points := equityPoints(day(0), "1000", "1050", "1102.5", "1157.625")
		vol, sharpe, sortino := calcRiskRatios(points, d("0"), 365, &wg)
		if vol.String() != "0" {
			t.Errorf("volatility got = %s, want 0", vol)
		}
		if sharpe.OK {
			t.Errorf("sharpe got = %s, want n/a", sharpe)
		}
		if !sortino.Inf {
			t.Errorf("sortino got = %s, want inf", sortino)
		}
	})

	t.Run("alternating returns", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)
		// returns +10%, -10%, +10%, -10%: mean 0
		points := equityPoints(day(0), "1000", "1100", "990", "1089", "980.1")
		vol, sharpe, sortino := calcRiskRatios(points, d("0"), 365, &wg)
		if !vol.OK || vol.Value.Round(2).String() != "11.55" {
			t.Errorf("volatility got = %s, want 11.55", vol)
		}
		if !sharpe.OK || !sharpe.Value.Round(6).IsZero() {
			t.Errorf("sharpe got = %s, want 0", sharpe)
		}
		if !sortino.OK || !sortino.Value.Round(6).IsZero() {
			t.Errorf("sortino got = %s, want 0", sortino)
		}
	})
}

func TestCalcCalmar(t *testing.T) {
	if got := calcCalmar(metricOf(d("20")), d("10")); got.String() != "2" {
		t.Errorf("calmar got = %s, want 2", got)
	}
	if got := calcCalmar(metricOf(d("20")), d("0")); !got.Inf {
		t.Errorf("calmar without drawdown got = %s, want inf", got)
	}
	if got := calcCalmar(Metric{}, d("5")); got.OK {
		t.Errorf("calmar without annual return got = %s, want n/a", got)
	}
}

func tableValue(t *testing.T, table []Stat, key string) string {
	t.Helper()
	for _, s := range table {
		if s.Key == key {
			return s.Value
		}
	}
	t.Fatalf("key %q missing from table", key)
	return ""
}

func TestGenerateReport(t *testing.T) {
	prices := []types.PricePoint{
		price(day(0), "10"),
		price(day(2), "12"),
		price(day(3), "9"),
		price(day(4), "11"),
	}
	trades := []types.Trade{
		buy(day(1), "10", 100),
		sell(day(3), "9", 100),
	}
	replay, err := Reconstruct(trades, prices, NewPortfolioConfig(d("10000"), true))
	if err != nil {
		t.Fatalf("Reconstruct() unexpected error: %v", err)
	}

	report, err := GenerateReport(replay, DefaultReportingConfig())
	if err != nil {
		t.Fatalf("GenerateReport() unexpected error: %v", err)
	}
	table := report.Table()

	wantKeys := []string{
		"START", "END", "DURATION", "EXPOSURE TIME [%]", "EQUITY START", "EQUITY FINAL", "EQUITY PEAK",
		"RETURN [%]", "BUY & HOLD RETURN [%]", "RETURN (ANN.) [%]", "RETURN VOLATILITY [%]",
		"SHARPE RATIO", "SORTINO RATIO", "CALMAR RATIO", "MAX. DRAWDOWN [%]", "AVG. DRAWDOWN [%]",
		"MAX. DRAWDOWN DURATION", "AVG. DRAWDOWN DURATION", "TOTAL TRADES", "CLOSED TRADES",
		"WIN RATE [%]", "BEST TRADE RETURN [%]", "WORST TRADE RETURN [%]", "AVG. TRADE RETURN [%]",
		"MAX. TRADE DURATION", "AVG. TRADE DURATION", "PROFIT FACTOR", "EXPECTANCY", "SQN",
		"MAX. CONSECUTIVE LOSSES", "REALIZED P/L", "UNREALIZED P/L", "TOTAL FEES",
	}
	if len(table) != len(wantKeys) {
		t.Fatalf("Table() len got = %d, want %d", len(table), len(wantKeys))
	}
	for i, k := range wantKeys {
		if table[i].Key != k {
			t.Errorf("Table()[%d] key got = %s, want %s", i, table[i].Key, k)
		}
	}

	want := map[string]string{
		"START":                  day(0).Format(time.RFC3339),
		"DURATION":               "4 days 00:00:00",
		"EXPOSURE TIME [%]":      "40",
		"EQUITY START":           "10000.00",
		"EQUITY FINAL":           "9900.00",
		"EQUITY PEAK":            "10200.00",
		"RETURN [%]":             "-1",
		"BUY & HOLD RETURN [%]":  "10",
		"TOTAL TRADES":           "2",
		"CLOSED TRADES":          "1",
		"WIN RATE [%]":           "0",
		"WORST TRADE RETURN [%]": "-10",
		"PROFIT FACTOR":          "0",
		"EXPECTANCY":             "-100",
		"SQN":                    "n/a",
		"MAX. DRAWDOWN [%]":      "2.94118",
		"MAX. DRAWDOWN DURATION": "2 days 00:00:00",
		"MAX. TRADE DURATION":    "2 days 00:00:00",
		"REALIZED P/L":           "-100.00",
		"UNREALIZED P/L":         "0.00",
		"TOTAL FEES":             "0.00",
	}
	for k, v := range want {
		if got := tableValue(t, table, k); got != v {
			t.Errorf("%s got = %s, want %s", k, got, v)
		}
	}
}

func TestGenerateReportWithoutClosedTrades(t *testing.T) {
	prices := []types.PricePoint{price(day(0), "10"), price(day(1), "12")}
	replay, err := Reconstruct([]types.Trade{buy(day(0), "10", 10)}, prices, NewPortfolioConfig(d("1000"), true))
	if err != nil {
		t.Fatalf("Reconstruct() unexpected error: %v", err)
	}

	report, err := GenerateReport(replay, nil)
	if err != nil {
		t.Fatalf("GenerateReport() error = %v, want nil for a run without closed trades", err)
	}
	if report.Trades.Available {
		t.Errorf("trade statistics available with no closed trades")
	}
	table := report.Table()
	for _, k := range []string{"WIN RATE [%]", "PROFIT FACTOR", "EXPECTANCY", "AVG. TRADE RETURN [%]", "MAX. TRADE DURATION"} {
		if got := tableValue(t, table, k); got != "n/a" {
			t.Errorf("%s got = %s, want n/a", k, got)
		}
	}
	if got := tableValue(t, table, "UNREALIZED P/L"); got != "20.00" {
		t.Errorf("UNREALIZED P/L got = %s, want 20.00", got)
	}
}

func TestPrintReport(t *testing.T) {
	replay, err := Reconstruct(nil, []types.PricePoint{price(day(0), "10")}, NewPortfolioConfig(d("1000"), true))
	if err != nil {
		t.Fatalf("Reconstruct() unexpected error: %v", err)
	}
	report, err := GenerateReport(replay, nil)
	if err != nil {
		t.Fatalf("GenerateReport() unexpected error: %v", err)
	}
	var buf bytes.Buffer
	PrintReport(&buf, report)

	out := buf.String()
	if !strings.Contains(out, "EQUITY FINAL:") || !strings.Contains(out, "1000.00") {
		t.Errorf("PrintReport() output missing equity line:\n%s", out)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0 days 00:00:00"},
		{49*time.Hour + time.Minute + 5*time.Second, "2 days 01:01:05"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%s) got = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestStartingEquityIncludesStartPosition(t *testing.T) {
	cfg := NewPortfolioConfig(d("1000"), true).WithStartPosition(10, d("9"))
	replay, err := Reconstruct(nil, []types.PricePoint{price(day(0), "10"), price(day(1), "11")}, cfg)
	if err != nil {
		t.Fatalf("Reconstruct() unexpected error: %v", err)
	}
	if got := startingEquity(replay); !got.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("startingEquity() got = %s, want 1100", got)
	}
}
