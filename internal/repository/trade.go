package repository

import (
	"context"
	"fmt"
	"time"

	"pnlreplay/types"
)

// GetTrades returns the recorded executions of assetId over [start, end) in
// execution order. A range without executions is an empty slice, which
// replays as a run with no trades. Price and quantity are validated by the engine.
func (db *Database) GetTrades(ctx context.Context, assetId int, start, end time.Time) ([]types.Trade, error) {
	rows, err := db.executions.GetExecutions(ctx, GetExecutionsParams{
		AssetID:   int32(assetId),
		Starttime: start,
		Endtime:   end,
	})
	if err != nil {
		return nil, err
	}

	trades := make([]types.Trade, 0, len(rows))
	for i, row := range rows {
		side, err := types.ParseSide(row.Side)
		if err != nil {
			return nil, fmt.Errorf("execution %d: %w", i, err)
		}
		trades = append(trades, types.NewTrade(row.ExecutedAt, side, row.Price, row.Quantity))
	}
	return trades, nil
}

// RecordRun stores one run summary. Recording the same run twice is a no-op.
func (db *Database) RecordRun(ctx context.Context, summary types.RunSummary) error {
	err := db.runs.InsertRun(ctx, InsertRunParams{
		RunID:          summary.RunId,
		Name:           summary.Name,
		Status:         string(summary.Status),
		Trades:         int32(summary.Trades),
		ClosedTrades:   int32(summary.ClosedTrades),
		EquityStart:    summary.EquityStart,
		EquityFinal:    summary.EquityFinal,
		ReturnPct:      summary.ReturnPct,
		MaxDrawdownPct: summary.MaxDrawdownPct,
		WinRatePct:     summary.WinRatePct,
		Error:          summary.Error,
		StartedAt:      summary.StartedAt,
		ElapsedMs:      summary.Elapsed.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("record run %s: %w", summary.RunId, err)
	}
	return nil
}
