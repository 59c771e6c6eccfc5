package engine

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"pnlreplay/types"

	"github.com/shopspring/decimal"
)

type Report struct {
	// Meta / period info
	Start       time.Time
	End         time.Time
	Duration    time.Duration
	Bars        int
	ExposurePct Metric

	// Absolute performance
	EquityStart     decimal.Decimal
	EquityFinal     decimal.Decimal
	EquityPeak      decimal.Decimal
	ReturnPct       Metric
	BuyAndHoldPct   Metric
	AnnualReturnPct Metric
	VolatilityPct   Metric
	RealizedPL      decimal.Decimal
	UnrealizedPL    decimal.Decimal

	// Risk-adjusted metrics
	SharpeRatio  Metric
	SortinoRatio Metric
	CalmarRatio  Metric

	// Drawdown metrics, as positive magnitudes
	MaxDrawdownPct      decimal.Decimal
	AvgDrawdownPct      decimal.Decimal
	MaxDrawdownBars     int
	MaxDrawdownDuration time.Duration
	AvgDrawdownDuration time.Duration

	// Trade-level metrics; Trades.Available is false with zero closed trades
	TotalTrades int
	Trades      TradeStatistics

	// Costs
	TotalFees decimal.Decimal
}

// TradeStatistics summarises the ClosedTrade list.
type TradeStatistics struct {
	Available            bool
	Closed               int
	Wins                 int
	Losses               int
	WinRatePct           Metric
	AvgWin               Metric
	AvgLoss              Metric
	Expectancy           Metric
	ProfitFactor         Metric
	BestReturnPct        Metric
	WorstReturnPct       Metric
	AvgReturnPct         Metric
	MaxDuration          time.Duration
	AvgDuration          time.Duration
	SQN                  Metric
	MaxConsecutiveLosses int
	NetPnL               decimal.Decimal
}

// GenerateReport derives the summary statistics of a finished replay. Zero
// closed trades is not an error; the trade statistics are then unavailable.
func GenerateReport(replay *Replay, cfg *ReportingConfig) (*Report, error) {
	if cfg == nil {
		cfg = DefaultReportingConfig()
	}
	points := replay.Points

	report := &Report{
		Bars:        len(points),
		TotalTrades: len(replay.Journal),
		RealizedPL:  replay.Final.RealizedPL,
		TotalFees:   replay.TotalFees,
		EquityStart: startingEquity(replay),
	}
	if len(points) > 0 {
		report.Start = points[0].Timestamp
		report.End = points[len(points)-1].Timestamp
		report.Duration = report.End.Sub(report.Start)
		report.EquityFinal = points[len(points)-1].Equity
		report.EquityPeak = points[len(points)-1].PeakEquity
	} else {
		report.EquityFinal = report.EquityStart
		report.EquityPeak = report.EquityStart
	}
	if mark, ok := replay.LastMark(); ok {
		report.UnrealizedPL = replay.Final.UnrealizedPL(mark)
	}

	var (
		wg       sync.WaitGroup
		statsErr error
	)
	wg.Add(6)
	go func() {
		report.ExposurePct = calcExposure(points, &wg)
	}()
	go func() {
		report.ReturnPct, report.AnnualReturnPct = calcReturns(report.EquityStart, report.EquityFinal, report.Duration, &wg)
	}()
	go func() {
		report.BuyAndHoldPct = calcBuyAndHold(points, &wg)
	}()
	go func() {
		report.VolatilityPct, report.SharpeRatio, report.SortinoRatio = calcRiskRatios(points, cfg.riskFreeRate, cfg.periodsPerYear, &wg)
	}()
	go func() {
		calcDrawdownMetrics(points, report, &wg)
	}()
	go func() {
		defer wg.Done()
		report.Trades, statsErr = CalcTradeStatistics(replay.ClosedTrades)
	}()
	wg.Wait()

	if statsErr != nil && !errors.Is(statsErr, ErrEmptyPositionStatistics) {
		return nil, fmt.Errorf("trade statistics: %w", statsErr)
	}
	report.CalmarRatio = calcCalmar(report.AnnualReturnPct, report.MaxDrawdownPct)
	return report, nil
}

// startingEquity is the initial cash plus the starting position at the first mark.
func startingEquity(replay *Replay) decimal.Decimal {
	equity := replay.InitialCash
	if replay.Start.Quantity == 0 {
		return equity
	}
	for _, p := range replay.Points {
		if p.HasMark {
			return equity.Add(p.MarkPrice.Mul(decimal.NewFromInt(replay.Start.Quantity)))
		}
	}
	return equity
}

// CalcTradeStatistics returns ErrEmptyPositionStatistics for an empty list;
// the returned statistics then report every metric as not available.
func CalcTradeStatistics(closed []types.ClosedTrade) (TradeStatistics, error) {
	stats := TradeStatistics{Closed: len(closed), NetPnL: decimal.Zero}
	if len(closed) == 0 {
		return stats, ErrEmptyPositionStatistics
	}
	stats.Available = true

	sumWins := decimal.Zero
	sumLosses := decimal.Zero // absolute loss amounts
	sumReturns := decimal.Zero
	best := closed[0].ReturnPct
	worst := closed[0].ReturnPct
	var totalDuration time.Duration
	currentStreak := 0
	pnls := make([]float64, 0, len(closed))

	for _, tr := range closed {
		stats.NetPnL = stats.NetPnL.Add(tr.PnL)
		sumReturns = sumReturns.Add(tr.ReturnPct)
		pnls = append(pnls, tr.PnL.InexactFloat64())

		switch {
		case tr.PnL.IsPositive():
			sumWins = sumWins.Add(tr.PnL)
			stats.Wins++
		case tr.PnL.IsNegative():
			sumLosses = sumLosses.Add(tr.PnL.Abs())
			stats.Losses++
		}

		if tr.PnL.IsNegative() {
			currentStreak++
			stats.MaxConsecutiveLosses = max(stats.MaxConsecutiveLosses, currentStreak)
		} else {
			currentStreak = 0
		}

		if tr.ReturnPct.GreaterThan(best) {
			best = tr.ReturnPct
		}
		if tr.ReturnPct.LessThan(worst) {
			worst = tr.ReturnPct
		}
		totalDuration += tr.Duration
		stats.MaxDuration = max(stats.MaxDuration, tr.Duration)
	}

	n := decimal.NewFromInt(int64(len(closed)))
	winRate := decimal.NewFromInt(int64(stats.Wins)).Div(n)
	avgWin := decimal.Zero
	avgLoss := decimal.Zero
	if stats.Wins > 0 {
		avgWin = sumWins.Div(decimal.NewFromInt(int64(stats.Wins)))
	}
	if stats.Losses > 0 {
		avgLoss = sumLosses.Div(decimal.NewFromInt(int64(stats.Losses)))
	}

	stats.WinRatePct = metricOf(winRate.Mul(hundred))
	stats.AvgWin = metricOf(avgWin)
	stats.AvgLoss = metricOf(avgLoss)
	stats.Expectancy = metricOf(winRate.Mul(avgWin).Sub(decimal.NewFromInt(1).Sub(winRate).Mul(avgLoss)))

	switch {
	case !sumLosses.IsZero():
		stats.ProfitFactor = metricOf(sumWins.Div(sumLosses))
	case sumWins.IsPositive():
		stats.ProfitFactor = infMetric()
	default:
		// only break-even trades, 0/0
		stats.ProfitFactor = Metric{}
	}

	stats.BestReturnPct = metricOf(best)
	stats.WorstReturnPct = metricOf(worst)
	stats.AvgReturnPct = metricOf(sumReturns.Div(n))
	stats.AvgDuration = totalDuration / time.Duration(len(closed))
	stats.SQN = calcSQN(pnls)

	return stats, nil
}

// calcSQN is sqrt(N) * mean(pnl) / stddev(pnl).
func calcSQN(pnls []float64) Metric {
	if len(pnls) < 2 {
		return Metric{}
	}
	mean, std := meanStd(pnls)
	if std == 0 {
		return Metric{}
	}
	return metricOfFloat(math.Sqrt(float64(len(pnls))) * mean / std)
}

func calcExposure(points []types.EquityPoint, wg *sync.WaitGroup) Metric {
	defer wg.Done()
	if len(points) == 0 {
		return Metric{}
	}
	exposed := 0
	for _, p := range points {
		if p.Quantity != 0 {
			exposed++
		}
	}
	return metricOf(decimal.NewFromInt(int64(exposed)).Mul(hundred).Div(decimal.NewFromInt(int64(len(points)))))
}

func calcReturns(start, end decimal.Decimal, duration time.Duration, wg *sync.WaitGroup) (Metric, Metric) {
	defer wg.Done()

	// If starting value is <= 0, returns are not well-defined
	if !start.IsPositive() {
		return Metric{}, Metric{}
	}
	total := metricOf(end.Sub(start).Div(start).Mul(hundred))

	// time difference in years (using 365.25 days to account for leap years)
	years := duration.Hours() / (24.0 * 365.25)
	ratio := end.Div(start)
	if years <= 0 || !ratio.IsPositive() {
		return total, Metric{}
	}
	cagr := math.Pow(ratio.InexactFloat64(), 1.0/years) - 1.0
	return total, metricOfFloat(cagr * 100)
}

func calcBuyAndHold(points []types.EquityPoint, wg *sync.WaitGroup) Metric {
	defer wg.Done()

	var first, last decimal.Decimal
	found := false
	for _, p := range points {
		if !p.HasMark {
			continue
		}
		if !found {
			first = p.MarkPrice
			found = true
		}
		last = p.MarkPrice
	}
	if !found || !first.IsPositive() {
		return Metric{}
	}
	return metricOf(last.Sub(first).Div(first).Mul(hundred))
}

// calcRiskRatios works on per-bar equity returns. The annual risk-free rate is
// converted per bar: rf_bar = (1 + rf_annual)^(1/periods) - 1.
func calcRiskRatios(points []types.EquityPoint, annualRiskFree decimal.Decimal, periodsPerYear float64, wg *sync.WaitGroup) (Metric, Metric, Metric) {
	defer wg.Done()

	returns := barReturns(points)
	if len(returns) < 2 {
		// Need at least 2 returns to compute stddev
		return Metric{}, Metric{}, Metric{}
	}

	_, std := meanStd(returns)
	volatility := metricOfFloat(std * 100)

	rfBar := math.Pow(1.0+annualRiskFree.InexactFloat64(), 1.0/periodsPerYear) - 1.0
	excess := make([]float64, 0, len(returns))
	for _, r := range returns {
		excess = append(excess, r-rfBar)
	}
	meanExcess, stdExcess := meanStd(excess)
	annualise := math.Sqrt(periodsPerYear)

	sharpe := Metric{}
	if stdExcess > 0 {
		sharpe = metricOfFloat(meanExcess / stdExcess * annualise)
	}

	var downside float64
	for _, x := range excess {
		if x < 0 {
			downside += x * x
		}
	}
	downsideDev := math.Sqrt(downside / float64(len(excess)))

	sortino := Metric{}
	switch {
	case downsideDev > 0:
		sortino = metricOfFloat(meanExcess / downsideDev * annualise)
	case meanExcess > 0:
		sortino = infMetric()
	}
	return volatility, sharpe, sortino
}

func barReturns(points []types.EquityPoint) []float64 {
	if len(points) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev := points[i-1].Equity
		if !prev.IsPositive() {
			continue
		}
		returns = append(returns, points[i].Equity.Div(prev).Sub(decimal.NewFromInt(1)).InexactFloat64())
	}
	return returns
}

// stdEpsilon is float noise; a deviation below it is reported as zero.
const stdEpsilon = 1e-12

// meanStd returns the mean and sample standard deviation.
func meanStd(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var varianceSum float64
	for _, x := range xs {
		diff := x - mean
		varianceSum += diff * diff
	}
	std := math.Sqrt(varianceSum / float64(len(xs)-1))
	if std < stdEpsilon {
		std = 0
	}
	return mean, std
}

// calcDrawdownMetrics splits the curve into drawdown episodes: each starts at
// the first bar below the running peak and ends at the bar that regains it.
func calcDrawdownMetrics(points []types.EquityPoint, report *Report, wg *sync.WaitGroup) {
	defer wg.Done()

	report.MaxDrawdownPct = decimal.Zero
	report.AvgDrawdownPct = decimal.Zero
	if len(points) == 0 {
		return
	}

	type episode struct {
		depth    decimal.Decimal
		bars     int
		duration time.Duration
	}
	var episodes []episode
	var cur *episode
	peakTime := points[0].Timestamp

	for _, p := range points {
		if p.DrawdownPct.IsNegative() {
			if cur == nil {
				cur = &episode{depth: decimal.Zero}
			}
			cur.bars++
			cur.duration = p.Timestamp.Sub(peakTime)
			if depth := p.DrawdownPct.Abs(); depth.GreaterThan(cur.depth) {
				cur.depth = depth
			}
			continue
		}
		if cur != nil {
			cur.duration = p.Timestamp.Sub(peakTime)
			episodes = append(episodes, *cur)
			cur = nil
		}
		peakTime = p.Timestamp
	}
	if cur != nil {
		episodes = append(episodes, *cur)
	}
	if len(episodes) == 0 {
		return
	}

	sumDepth := decimal.Zero
	var sumDuration time.Duration
	for _, e := range episodes {
		sumDepth = sumDepth.Add(e.depth)
		sumDuration += e.duration
		if e.depth.GreaterThan(report.MaxDrawdownPct) {
			report.MaxDrawdownPct = e.depth
		}
		report.MaxDrawdownBars = max(report.MaxDrawdownBars, e.bars)
		report.MaxDrawdownDuration = max(report.MaxDrawdownDuration, e.duration)
	}
	report.AvgDrawdownPct = sumDepth.Div(decimal.NewFromInt(int64(len(episodes))))
	report.AvgDrawdownDuration = sumDuration / time.Duration(len(episodes))
}

// calcCalmar is the annual return over max drawdown, +Inf without a drawdown.
func calcCalmar(annualReturnPct Metric, maxDrawdownPct decimal.Decimal) Metric {
	if !annualReturnPct.OK || annualReturnPct.Inf {
		return Metric{}
	}
	if maxDrawdownPct.IsZero() {
		return infMetric()
	}
	return metricOf(annualReturnPct.Value.Div(maxDrawdownPct))
}

// Stat is one row of the flat summary table.
type Stat struct {
	Key   string
	Value string
}

// Table is the ordered key/value view of the report.
func (r *Report) Table() []Stat {
	t := r.Trades
	return []Stat{
		{"START", formatTime(r.Start)},
		{"END", formatTime(r.End)},
		{"DURATION", formatDuration(r.Duration)},
		{"EXPOSURE TIME [%]", r.ExposurePct.String()},
		{"EQUITY START", r.EquityStart.StringFixed(2)},
		{"EQUITY FINAL", r.EquityFinal.StringFixed(2)},
		{"EQUITY PEAK", r.EquityPeak.StringFixed(2)},
		{"RETURN [%]", r.ReturnPct.String()},
		{"BUY & HOLD RETURN [%]", r.BuyAndHoldPct.String()},
		{"RETURN (ANN.) [%]", r.AnnualReturnPct.String()},
		{"RETURN VOLATILITY [%]", r.VolatilityPct.String()},
		{"SHARPE RATIO", r.SharpeRatio.String()},
		{"SORTINO RATIO", r.SortinoRatio.String()},
		{"CALMAR RATIO", r.CalmarRatio.String()},
		{"MAX. DRAWDOWN [%]", r.MaxDrawdownPct.Round(5).String()},
		{"AVG. DRAWDOWN [%]", r.AvgDrawdownPct.Round(5).String()},
		{"MAX. DRAWDOWN DURATION", formatDuration(r.MaxDrawdownDuration)},
		{"AVG. DRAWDOWN DURATION", formatDuration(r.AvgDrawdownDuration)},
		{"TOTAL TRADES", fmt.Sprintf("%d", r.TotalTrades)},
		{"CLOSED TRADES", fmt.Sprintf("%d", t.Closed)},
		{"WIN RATE [%]", t.WinRatePct.String()},
		{"BEST TRADE RETURN [%]", t.BestReturnPct.String()},
		{"WORST TRADE RETURN [%]", t.WorstReturnPct.String()},
		{"AVG. TRADE RETURN [%]", t.AvgReturnPct.String()},
		{"MAX. TRADE DURATION", tradeDuration(t, t.MaxDuration)},
		{"AVG. TRADE DURATION", tradeDuration(t, t.AvgDuration)},
		{"PROFIT FACTOR", t.ProfitFactor.String()},
		{"EXPECTANCY", t.Expectancy.String()},
		{"SQN", t.SQN.String()},
		{"MAX. CONSECUTIVE LOSSES", fmt.Sprintf("%d", t.MaxConsecutiveLosses)},
		{"REALIZED P/L", r.RealizedPL.StringFixed(2)},
		{"UNREALIZED P/L", r.UnrealizedPL.StringFixed(2)},
		{"TOTAL FEES", r.TotalFees.StringFixed(2)},
	}
}

// PrintReport writes the table with aligned values.
func PrintReport(w io.Writer, report *Report) {
	fmt.Fprintln(w, "===== Trading Report =====")
	for _, s := range report.Table() {
		fmt.Fprintf(w, "%-26s %s\n", s.Key+":", s.Value)
	}
	fmt.Fprintln(w, "==========================")
}

func tradeDuration(t TradeStatistics, d time.Duration) string {
	if !t.Available {
		return "n/a"
	}
	return formatDuration(d)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.Format(time.RFC3339)
}

// formatDuration renders "N days HH:MM:SS".
func formatDuration(d time.Duration) string {
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%d days %02d:%02d:%02d", days, h, m, s)
}
