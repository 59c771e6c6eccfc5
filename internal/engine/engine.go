package engine

import (
	"context"
	"time"

	"pnlreplay/internal/id"
	"pnlreplay/internal/trace"
	"pnlreplay/types"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type Engine struct {
	portfolioConfig *PortfolioConfig
	reportingConfig *ReportingConfig
	db              DataStore
	recorders       []RunRecorder
	logger          *zap.Logger
}

// NewEngine wires an engine. db may be nil when inputs come from files; a nil
// logger discards logs.
func NewEngine(portfolioConfig *PortfolioConfig, reportingConfig *ReportingConfig, db DataStore, logger *zap.Logger) *Engine {
	if reportingConfig == nil {
		reportingConfig = DefaultReportingConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		portfolioConfig: portfolioConfig,
		reportingConfig: reportingConfig,
		db:              db,
		logger:          logger,
	}
}

// WithRecorder adds a sink that receives the summary of every finished run.
func (e *Engine) WithRecorder(r RunRecorder) *Engine {
	e.recorders = append(e.recorders, r)
	return e
}

// RunInput is one trade stream with its price series. Portfolio overrides the
// engine's portfolio config when set. A non-nil LoadErr marks an input that
// could not be read; its run fails with that error.
type RunInput struct {
	Name      string
	Trades    []types.Trade
	Prices    []types.PricePoint
	Portfolio *PortfolioConfig
	LoadErr   error
}

type Result struct {
	RunId     string
	Name      string
	Status    types.RunStatus
	Replay    *Replay
	Report    *Report
	Err       error
	StartedAt time.Time
	Elapsed   time.Duration
}

// Summary flattens the result into its persisted form.
func (r *Result) Summary() types.RunSummary {
	s := types.RunSummary{
		RunId:     r.RunId,
		Name:      r.Name,
		Status:    r.Status,
		StartedAt: r.StartedAt,
		Elapsed:   r.Elapsed,
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	if r.Replay != nil {
		s.Trades = len(r.Replay.Journal)
		s.ClosedTrades = len(r.Replay.ClosedTrades)
	}
	if rep := r.Report; rep != nil {
		s.EquityStart = rep.EquityStart
		s.EquityFinal = rep.EquityFinal
		s.MaxDrawdownPct = rep.MaxDrawdownPct
		if rep.ReturnPct.OK && !rep.ReturnPct.Inf {
			s.ReturnPct.Decimal, s.ReturnPct.Valid = rep.ReturnPct.Value, true
		}
		if rep.Trades.WinRatePct.OK {
			s.WinRatePct.Decimal, s.WinRatePct.Valid = rep.Trades.WinRatePct.Value, true
		}
	}
	return s
}

// Run reconstructs one trade stream and derives its report. A replay error is
// returned and also carried in the FAILED result.
func (e *Engine) Run(ctx context.Context, in RunInput) (*Result, error) {
	result := &Result{
		RunId:     id.New(),
		Name:      in.Name,
		StartedAt: time.Now(),
	}
	ctx, span := trace.StartSpan(ctx, "engine.Run",
		attribute.String("run_id", result.RunId),
		attribute.String("name", in.Name),
		attribute.Int("trades", len(in.Trades)),
		attribute.Int("prices", len(in.Prices)),
	)
	log := e.logger.With(zap.String("run_id", result.RunId), zap.String("name", in.Name))
	log.Info("run started", zap.Int("trades", len(in.Trades)), zap.Int("prices", len(in.Prices)))

	err := e.run(ctx, in, result)
	result.Elapsed = time.Since(result.StartedAt)
	trace.EndSpan(span, err)

	if err != nil {
		result.Status = types.RunStatusFailed
		result.Err = err
		log.Error("run failed", zap.Error(err), zap.Duration("elapsed", result.Elapsed))
	} else {
		log.Info("run finished",
			zap.String("status", string(result.Status)),
			zap.Int("closed_trades", len(result.Replay.ClosedTrades)),
			zap.Stringer("equity_final", result.Report.EquityFinal),
			zap.Duration("elapsed", result.Elapsed),
		)
		if e.reportingConfig.writeCSV {
			if werr := WriteReportFiles(e.reportingConfig.filePath, e.reportingConfig.filePrefix(result), result); werr != nil {
				log.Warn("write report files", zap.Error(werr))
			}
		}
	}

	e.record(ctx, result, log)
	return result, err
}

func (e *Engine) run(ctx context.Context, in RunInput, result *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if in.LoadErr != nil {
		return in.LoadErr
	}
	cfg := in.Portfolio
	if cfg == nil {
		cfg = e.portfolioConfig
	}
	replay, err := Reconstruct(in.Trades, in.Prices, cfg)
	if err != nil {
		return err
	}
	result.Replay = replay
	if result.Report, err = GenerateReport(replay, e.reportingConfig); err != nil {
		return err
	}
	result.Status = types.RunStatusOK
	if len(replay.ClosedTrades) == 0 {
		result.Status = types.RunStatusNoTrades
	}
	return nil
}

// record hands the summary to every recorder. Recorder failures are logged and
// never change the run result.
func (e *Engine) record(ctx context.Context, result *Result, log *zap.Logger) {
	if len(e.recorders) == 0 {
		return
	}
	// a cancelled run still gets recorded
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	summary := result.Summary()
	for _, r := range e.recorders {
		if err := r.RecordRun(ctx, summary); err != nil {
			log.Warn("record run", zap.Error(err))
		}
	}
}
