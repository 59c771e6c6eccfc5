package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"pnlreplay/internal/journal"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := journal.NewSQLite(cfg.Calculator.JournalPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()

		runs, err := j.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN ID\tNAME\tSTATUS\tSTARTED\tRETURN [%]\tMAX DD [%]\tTRADES\tERROR")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				r.RunId, r.Name, r.Status, r.StartedAt.Local().Format(time.DateTime),
				nullPct(r.ReturnPct), r.MaxDrawdownPct.StringFixed(2), r.ClosedTrades, r.Error,
			)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs to show, 0 for all")
}
