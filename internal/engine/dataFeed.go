package engine

import (
	"context"
	"errors"
	"fmt"

	"pnlreplay/internal/trace"
	"pnlreplay/types"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var errNoDataStore = errors.New("engine has no data store")

// Load pulls the mark prices and recorded trades of one feed from the data store.
func (e *Engine) Load(ctx context.Context, feed *DataFeedConfig) (in RunInput, err error) {
	ctx, span := trace.StartSpan(ctx, "engine.Load",
		attribute.String("ticker", feed.ticker),
		attribute.String("interval", string(feed.interval)),
	)
	defer func() { trace.EndSpan(span, err) }()

	if e.db == nil {
		return RunInput{}, errNoDataStore
	}
	asset, err := e.db.GetAssetByTicker(ctx, feed.ticker)
	if err != nil {
		return RunInput{}, fmt.Errorf("load %s: %w", feed.ticker, err)
	}
	candles, err := e.db.GetAggregates(ctx, asset.Id, feed.interval, feed.start, feed.end)
	if err != nil {
		return RunInput{}, fmt.Errorf("load %s prices: %w", feed.ticker, err)
	}
	trades, err := e.db.GetTrades(ctx, asset.Id, feed.start, feed.end)
	if err != nil {
		return RunInput{}, fmt.Errorf("load %s trades: %w", feed.ticker, err)
	}

	e.logger.Debug("loaded feed",
		zap.String("ticker", feed.ticker),
		zap.Int("candles", len(candles)),
		zap.Int("trades", len(trades)),
	)
	return RunInput{
		Name:   feed.ticker,
		Trades: trades,
		Prices: types.MarkPrices(candles),
	}, nil
}
