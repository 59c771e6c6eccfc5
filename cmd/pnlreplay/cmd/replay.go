package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pnlreplay/internal/engine"
	"pnlreplay/internal/journal"
	"pnlreplay/internal/logger"
	"pnlreplay/internal/repository"
	"pnlreplay/types"

	"github.com/spf13/cobra"
)

var (
	replayTradesPath string
	replayPricesPath string
	replayName       string
	replayOutDir     string
	replayNoRecord   bool

	replayTicker   string
	replayInterval string
	replayFrom     string
	replayTo       string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay one trade stream against a price series",
	Long: `Replay one trade stream and print its report.

Inputs come either from CSV files (--trades, --prices) or from Postgres
(--ticker, --from, --to) using DATABASE_URL or database.url.

Examples:
  pnlreplay replay --trades trades.csv --prices prices.csv
  pnlreplay replay --trades trades.csv --prices prices.csv --out ./reports
  pnlreplay replay --ticker AAPL --interval D --from 2024-01-01 --to 2024-06-30`,
	Args: cobra.NoArgs,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	f := replayCmd.Flags()
	f.StringVar(&replayTradesPath, "trades", "", "trades CSV (timestamp,side,price,quantity)")
	f.StringVar(&replayPricesPath, "prices", "", "prices CSV (timestamp,price)")
	f.StringVar(&replayName, "name", "", "run name, defaults to the trades file name or ticker")
	f.StringVarP(&replayOutDir, "out", "o", "", "write journal, equity, closed trade and report CSVs here")
	f.BoolVar(&replayNoRecord, "no-record", false, "do not record the run in the local journal")
	f.StringVar(&replayTicker, "ticker", "", "load trades and marks for this ticker from Postgres")
	f.StringVar(&replayInterval, "interval", string(types.Day), "candle interval for Postgres marks (1,5,15,60,D,W,M...)")
	f.StringVar(&replayFrom, "from", "", "start date, YYYY-MM-DD or RFC3339")
	f.StringVar(&replayTo, "to", "", "end date, YYYY-MM-DD or RFC3339")
	replayCmd.MarkFlagsRequiredTogether("trades", "prices")
	replayCmd.MarkFlagsMutuallyExclusive("trades", "ticker")
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if replayOutDir != "" {
		cfg.Reporting.WriteCSV = true
		cfg.Reporting.OutDir = replayOutDir
	}

	var (
		in   engine.RunInput
		feed *engine.DataFeedConfig
		db   *repository.Database
		err  error
	)
	switch {
	case replayTicker != "":
		if feed, err = feedFromFlags(); err != nil {
			return err
		}
		if db, err = openDatabase(cmd); err != nil {
			return err
		}
		defer db.Close()
	case replayTradesPath != "":
		if in, err = loadCSVInput(replayTradesPath, replayPricesPath); err != nil {
			return err
		}
	default:
		return errors.New("either --trades/--prices or --ticker is required")
	}

	eng, closeJournal, err := newEngine(db, !replayNoRecord)
	if err != nil {
		return err
	}
	defer closeJournal()

	if feed != nil {
		if in, err = eng.Load(ctx, feed); err != nil {
			return err
		}
	}
	if replayName != "" {
		in.Name = replayName
	}

	result, err := eng.Run(ctx, in)
	if err != nil {
		return err
	}
	engine.PrintReport(cmd.OutOrStdout(), result.Report)
	if cfg.Reporting.WriteCSV {
		fmt.Fprintf(cmd.ErrOrStderr(), "report files written to %s\n", cfg.Reporting.OutDir)
	}
	return nil
}

// newEngine builds an engine from the loaded config. The returned func closes
// the run journal when one was opened.
func newEngine(db *repository.Database, record bool) (*engine.Engine, func(), error) {
	var store engine.DataStore
	if db != nil {
		store = db
	}
	eng := engine.NewEngine(cfg.PortfolioConfig(), cfg.ReportingConfig(), store, logger.L())
	if db != nil {
		eng.WithRecorder(db)
	}
	if !record {
		return eng, func() {}, nil
	}
	j, err := journal.NewSQLite(cfg.Calculator.JournalPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}
	eng.WithRecorder(j)
	return eng, func() { _ = j.Close() }, nil
}

func openDatabase(cmd *cobra.Command) (*repository.Database, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("database url not set, use DATABASE_URL or database.url")
	}
	db, err := repository.NewDatabase(cmd.Context(), cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(cmd.Context()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func feedFromFlags() (*engine.DataFeedConfig, error) {
	interval, ok := types.ConvertInterval[replayInterval]
	if !ok {
		return nil, fmt.Errorf("unknown interval %q", replayInterval)
	}
	from, err := parseDate(replayFrom)
	if err != nil {
		return nil, fmt.Errorf("bad --from: %w", err)
	}
	to, err := parseDate(replayTo)
	if err != nil {
		return nil, fmt.Errorf("bad --to: %w", err)
	}
	if !from.Before(to) {
		return nil, errors.New("--from must be before --to")
	}
	if cfg.Reporting.PeriodsPerYear == 0 {
		cfg.Reporting.PeriodsPerYear = interval.PeriodsPerYear()
	}
	return engine.NewDataFeedConfig(strings.ToUpper(replayTicker), interval, from, to), nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("date required")
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func loadCSVInput(tradesPath, pricesPath string) (engine.RunInput, error) {
	trades, err := loadTrades(tradesPath)
	if err != nil {
		return engine.RunInput{}, err
	}
	prices, err := loadPrices(pricesPath)
	if err != nil {
		return engine.RunInput{}, err
	}
	return engine.RunInput{
		Name:   runName(tradesPath),
		Trades: trades,
		Prices: prices,
	}, nil
}

func loadTrades(path string) ([]types.Trade, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	trades, err := repository.LoadTradesCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return trades, nil
}

func loadPrices(path string) ([]types.PricePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	prices, err := repository.LoadPricesCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prices, nil
}

func runName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
