package engine

import (
	"context"
	"io"
	"sort"

	"pnlreplay/internal/trace"
	"pnlreplay/types"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SweepOptions bounds a sweep. Progress receives the progress bar; nil hides it.
type SweepOptions struct {
	Workers  int
	Progress io.Writer
}

// Sweep runs independent inputs in parallel. Every run owns its tracker and
// journal; a failed run is reported in its own Result and never stops the
// others. Results are sorted by total return, best first, with runs that have
// no return last.
func (e *Engine) Sweep(ctx context.Context, inputs []RunInput, opts SweepOptions) []*Result {
	ctx, span := trace.StartSpan(ctx, "engine.Sweep",
		attribute.Int("runs", len(inputs)),
		attribute.Int("workers", opts.Workers),
	)
	defer trace.EndSpan(span, nil)

	bar := initProgressBar(len(inputs), opts.Progress)
	results := make([]*Result, len(inputs))

	var g errgroup.Group
	if opts.Workers > 0 {
		g.SetLimit(opts.Workers)
	}
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			// the error is already carried in the FAILED result
			results[i], _ = e.Run(ctx, in)
			_ = bar.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	_ = bar.Finish()

	sortResults(results)

	counts := make(map[types.RunStatus]int)
	for _, r := range results {
		counts[r.Status]++
	}
	e.logger.Info("sweep finished",
		zap.Int("runs", len(results)),
		zap.Int("ok", counts[types.RunStatusOK]),
		zap.Int("no_trades", counts[types.RunStatusNoTrades]),
		zap.Int("failed", counts[types.RunStatusFailed]),
	)
	return results
}

func sortResults(results []*Result) {
	sort.SliceStable(results, func(i, j int) bool {
		ri, iok := totalReturn(results[i])
		rj, jok := totalReturn(results[j])
		if iok != jok {
			return iok
		}
		if !iok {
			return false
		}
		return ri.GreaterThan(rj)
	})
}

func totalReturn(r *Result) (value decimal.Decimal, ok bool) {
	if r.Report == nil || !r.Report.ReturnPct.OK || r.Report.ReturnPct.Inf {
		return decimal.Decimal{}, false
	}
	return r.Report.ReturnPct.Value, true
}

func initProgressBar(maxTicks int, w io.Writer) *progressbar.ProgressBar {
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("Replaying runs..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
