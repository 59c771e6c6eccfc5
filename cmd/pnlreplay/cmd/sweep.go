package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"pnlreplay/internal/engine"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	sweepPricesPath string
	sweepWorkers    int
	sweepQuiet      bool
	sweepNoRecord   bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep <trades.csv>...",
	Short: "Replay many trade streams against one price series in parallel",
	Long: `Replay every trades file against the same price series and rank the runs
by total return. A run that fails is listed with its error and never stops
the others.

Examples:
  pnlreplay sweep --prices prices.csv runs/*.csv
  pnlreplay sweep --prices prices.csv --workers 8 a.csv b.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	f := sweepCmd.Flags()
	f.StringVar(&sweepPricesPath, "prices", "", "prices CSV shared by every run")
	f.IntVarP(&sweepWorkers, "workers", "w", 0, "parallel runs, defaults to sweep.workers")
	f.BoolVarP(&sweepQuiet, "quiet", "q", false, "hide the progress bar")
	f.BoolVar(&sweepNoRecord, "no-record", false, "do not record the runs in the local journal")
	_ = sweepCmd.MarkFlagRequired("prices")
}

func runSweep(cmd *cobra.Command, args []string) error {
	prices, err := loadPrices(sweepPricesPath)
	if err != nil {
		return err
	}

	inputs := make([]engine.RunInput, 0, len(args))
	for _, path := range args {
		// an unreadable file fails its own run only
		trades, err := loadTrades(path)
		inputs = append(inputs, engine.RunInput{Name: runName(path), Trades: trades, Prices: prices, LoadErr: err})
	}

	eng, closeJournal, err := newEngine(nil, !sweepNoRecord)
	if err != nil {
		return err
	}
	defer closeJournal()

	opts := engine.SweepOptions{Workers: cfg.Sweep.Workers}
	if sweepWorkers > 0 {
		opts.Workers = sweepWorkers
	}
	if !sweepQuiet {
		opts.Progress = cmd.ErrOrStderr()
	}

	results := eng.Sweep(cmd.Context(), inputs, opts)
	printSweep(cmd.OutOrStdout(), results)
	return nil
}

func printSweep(w io.Writer, results []*engine.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tSTATUS\tRETURN [%]\tMAX DD [%]\tTRADES\tWIN RATE [%]\tEQUITY FINAL\tERROR")
	for i, r := range results {
		s := r.Summary()
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			i+1, s.Name, s.Status,
			nullPct(s.ReturnPct), s.MaxDrawdownPct.StringFixed(2),
			s.ClosedTrades, nullPct(s.WinRatePct), s.EquityFinal.StringFixed(2), s.Error,
		)
	}
	_ = tw.Flush()
}

func nullPct(d decimal.NullDecimal) string {
	if !d.Valid {
		return "n/a"
	}
	return d.Decimal.StringFixed(2)
}
