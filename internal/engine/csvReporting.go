package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"pnlreplay/types"
)

// WriteReportFiles writes journal, equity, closed trades and summary CSVs
// into dir, each file prefixed with name.
func WriteReportFiles(dir, name string, result *Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if name == "" {
		name = result.RunId
	}

	writers := []struct {
		suffix string
		write  func(io.Writer) error
	}{
		{"journal", func(w io.Writer) error { return WriteJournalCSV(w, result.Replay.Journal) }},
		{"equity", func(w io.Writer) error { return WriteEquityCSV(w, result.Replay.Points) }},
		{"trades", func(w io.Writer) error { return WriteClosedTradesCSV(w, result.Replay.ClosedTrades) }},
		{"report", func(w io.Writer) error { return WriteReportCSV(w, result.Report) }},
	}
	for _, wr := range writers {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", name, wr.suffix))
		if err := writeCSVFile(path, wr.write); err != nil {
			return err
		}
	}
	return nil
}

func writeCSVFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	return write(f)
}

// WriteJournalCSV writes one row per applied trade, in journal order.
func WriteJournalCSV(w io.Writer, journal []types.TradeOutcome) error {
	header := []string{
		"seq",
		"time", // RFC3339
		"side",
		"price",
		"quantity",
		"position_before",
		"avg_cost_before",
		"realized_pl",
		"position_after",
		"avg_cost_after",
		"cumulative_realized_pl",
		"fee",
	}
	rows := make([][]string, 0, len(journal))
	for _, o := range journal {
		rows = append(rows, []string{
			strconv.Itoa(o.Seq),
			o.Trade.Timestamp.Format(time.RFC3339),
			string(o.Trade.Side),
			o.Trade.Price.String(),
			strconv.FormatInt(o.Trade.Quantity, 10),
			strconv.FormatInt(o.PositionBefore, 10),
			o.AvgCostBefore.String(),
			o.RealizedPL.String(),
			strconv.FormatInt(o.PositionAfter, 10),
			o.AvgCostAfter.String(),
			o.CumulativeRealizedPL.String(),
			o.Fee.String(),
		})
	}
	return writeCSV(w, header, rows)
}

// WriteEquityCSV writes the equity curve. The mark column is empty before the first price.
func WriteEquityCSV(w io.Writer, points []types.EquityPoint) error {
	header := []string{"time", "cash", "mark_price", "quantity", "position_value", "equity", "peak_equity", "drawdown_pct"}
	rows := make([][]string, 0, len(points))
	for _, p := range points {
		mark := ""
		if p.HasMark {
			mark = p.MarkPrice.String()
		}
		rows = append(rows, []string{
			p.Timestamp.Format(time.RFC3339),
			p.Cash.String(),
			mark,
			strconv.FormatInt(p.Quantity, 10),
			p.PositionValue.String(),
			p.Equity.String(),
			p.PeakEquity.String(),
			p.DrawdownPct.StringFixed(4),
		})
	}
	return writeCSV(w, header, rows)
}

func WriteClosedTradesCSV(w io.Writer, closed []types.ClosedTrade) error {
	header := []string{"direction", "size", "entry_price", "exit_price", "pnl", "return_pct", "entry_time", "exit_time", "duration"}
	rows := make([][]string, 0, len(closed))
	for _, c := range closed {
		rows = append(rows, []string{
			string(c.Direction),
			strconv.FormatInt(c.Size, 10),
			c.EntryPrice.String(),
			c.ExitPrice.String(),
			c.PnL.String(),
			c.ReturnPct.StringFixed(4),
			c.EntryTime.Format(time.RFC3339),
			c.ExitTime.Format(time.RFC3339),
			c.Duration.String(),
		})
	}
	return writeCSV(w, header, rows)
}

// WriteReportCSV writes the summary table as key,value rows.
func WriteReportCSV(w io.Writer, report *Report) error {
	table := report.Table()
	rows := make([][]string, 0, len(table))
	for _, s := range table {
		rows = append(rows, []string{s.Key, s.Value})
	}
	return writeCSV(w, []string{"key", "value"}, rows)
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()

	// Check for any error from the csv.Writer
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
