package engine

import (
	"context"
	"time"

	"pnlreplay/types"
)

// DataStore is the source of assets, mark candles and recorded trades.
type DataStore interface {
	GetAssetByTicker(ctx context.Context, ticker string) (*types.Asset, error)
	GetAggregates(ctx context.Context, assetId int, interval types.Interval, start, end time.Time) ([]types.Candle, error)
	GetTrades(ctx context.Context, assetId int, start, end time.Time) ([]types.Trade, error)
}

// RunRecorder receives the summary of every finished run.
type RunRecorder interface {
	RecordRun(ctx context.Context, summary types.RunSummary) error
}
