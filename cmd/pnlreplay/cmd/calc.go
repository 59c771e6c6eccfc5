package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"pnlreplay/internal/calculator"
	"pnlreplay/internal/journal"
	"pnlreplay/types"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	calcSession string
	calcMark    string
)

var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Manual trade journal with floating P/L",
	Long: `Enter trades by hand and follow the position, average price and P/L.
Quantities are in lots of calculator.lot_size shares. Each named session keeps
its journal in the local SQLite file.

Subcommands:
  add    - Apply one BUY or SELL
  show   - Print the journal and the position summary
  reset  - Clear the journal of the session

Examples:
  pnlreplay calc add BUY 101.25 2
  pnlreplay calc add SELL 103 3 --session scalps
  pnlreplay calc show --mark 102.5
  pnlreplay calc reset`,
}

var calcAddCmd = &cobra.Command{
	Use:   "add <BUY|SELL> <price> <lot>",
	Short: "Apply one trade",
	Args:  cobra.ExactArgs(3),
	RunE:  runCalcAdd,
}

var calcShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the journal and position summary",
	Args:  cobra.NoArgs,
	RunE:  runCalcShow,
}

var calcResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the journal of the session",
	Args:  cobra.NoArgs,
	RunE:  runCalcReset,
}

func init() {
	rootCmd.AddCommand(calcCmd)
	calcCmd.AddCommand(calcAddCmd)
	calcCmd.AddCommand(calcShowCmd)
	calcCmd.AddCommand(calcResetCmd)

	calcCmd.PersistentFlags().StringVarP(&calcSession, "session", "s", "default", "session name")
	calcShowCmd.Flags().StringVarP(&calcMark, "mark", "m", "", "current market price for floating P/L")
}

// openCalc opens the named session, creating it on first use.
func openCalc(ctx context.Context) (*calculator.Session, func(), error) {
	j, err := journal.NewSQLite(cfg.Calculator.JournalPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}
	closeJournal := func() { _ = j.Close() }

	sess, err := j.SessionByName(ctx, calcSession)
	if errors.Is(err, journal.ErrSessionNotFound) {
		sess, err = j.CreateSession(ctx, calcSession, cfg.Calculator.LotSize)
	}
	if err != nil {
		closeJournal()
		return nil, nil, err
	}

	s, err := calculator.OpenSession(ctx, j, sess.Id, sess.LotSize)
	if err != nil {
		closeJournal()
		return nil, nil, err
	}
	return s, closeJournal, nil
}

func runCalcAdd(cmd *cobra.Command, args []string) error {
	side, err := types.ParseSide(args[0])
	if err != nil {
		return err
	}
	price, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Errorf("bad price %q: %w", args[1], err)
	}
	lot, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", calculator.ErrInvalidLot, args[2])
	}

	s, closeJournal, err := openCalc(cmd.Context())
	if err != nil {
		return err
	}
	defer closeJournal()

	if _, err := s.AddTrade(cmd.Context(), side, price, lot); err != nil {
		return err
	}
	printCalc(cmd.OutOrStdout(), s, nil)
	return nil
}

func runCalcShow(cmd *cobra.Command, args []string) error {
	var mark *decimal.Decimal
	if calcMark != "" {
		m, err := decimal.NewFromString(calcMark)
		if err != nil {
			return fmt.Errorf("bad --mark %q: %w", calcMark, err)
		}
		mark = &m
	}

	s, closeJournal, err := openCalc(cmd.Context())
	if err != nil {
		return err
	}
	defer closeJournal()

	printCalc(cmd.OutOrStdout(), s, mark)
	return nil
}

func runCalcReset(cmd *cobra.Command, args []string) error {
	s, closeJournal, err := openCalc(cmd.Context())
	if err != nil {
		return err
	}
	defer closeJournal()

	if err := s.Reset(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "session %s cleared\n", calcSession)
	return nil
}

func printCalc(w io.Writer, s *calculator.Session, mark *decimal.Decimal) {
	sum := s.Summarize(mark)
	floating := "n/a"
	if sum.Floating.Valid {
		floating = sum.Floating.Decimal.StringFixed(2)
	}
	fmt.Fprintf(w, "Session %s (lot = %d shares)\n", calcSession, s.LotSize())
	fmt.Fprintf(w, "Position: %d shares  Available lot: %s  Average price: %s  Floating P/L: %s  Realized P/L: %s\n\n",
		sum.Position, sum.Lots.String(), sum.AvgPrice.StringFixed(4), floating, sum.CumRealized.StringFixed(2))

	rows := s.Rows(mark)
	if len(rows) == 0 {
		fmt.Fprintln(w, "No trades yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, strings.Join(calculator.Header, "\t")+"\t")
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r.Values(), "\t")+"\t")
	}
	_ = tw.Flush()
}
