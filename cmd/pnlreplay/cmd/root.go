package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pnlreplay/internal/config"
	"pnlreplay/internal/logger"
	"pnlreplay/internal/trace"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pnlreplay",
	Short: "Replay trade executions into positions, equity curves and drawdowns",
	Long: `pnlreplay tracks a single-instrument position through a stream of executions
and rebuilds the account equity curve, drawdown and trade statistics from it.

It provides tools for:
  - Replaying one trade stream against a price series (CSV or Postgres)
  - Sweeping many trade streams in parallel and ranking them
  - Keeping a manual trade journal with floating P/L
  - Listing past runs`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(cfgFile); err != nil {
			return err
		}
		if err := logger.InitWithConfig(cfg.LoggerConfig()); err != nil {
			return err
		}
		return trace.Init(cmd.Context(), cfg.Tracing.Enabled, os.Stderr)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		logger.Sync()
		return trace.Shutdown(context.WithoutCancel(cmd.Context()))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logger.L().Error("command failed", zap.Error(err))
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file, YAML or JSON")
}
