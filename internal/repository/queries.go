package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// schema holds the tables this module owns. assets and candles are populated
// by the ingestion side.
const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id          BIGSERIAL PRIMARY KEY,
	asset_id    INTEGER     NOT NULL REFERENCES assets (id),
	executed_at TIMESTAMPTZ NOT NULL,
	side        TEXT        NOT NULL,
	price       NUMERIC     NOT NULL,
	quantity    BIGINT      NOT NULL
);
CREATE INDEX IF NOT EXISTS executions_asset_time_idx ON executions (asset_id, executed_at, id);

CREATE TABLE IF NOT EXISTS backtest_runs (
	run_id           TEXT PRIMARY KEY,
	name             TEXT        NOT NULL,
	status           TEXT        NOT NULL,
	trades           INTEGER     NOT NULL,
	closed_trades    INTEGER     NOT NULL,
	equity_start     NUMERIC     NOT NULL,
	equity_final     NUMERIC     NOT NULL,
	return_pct       NUMERIC,
	max_drawdown_pct NUMERIC     NOT NULL,
	win_rate_pct     NUMERIC,
	error            TEXT        NOT NULL DEFAULT '',
	started_at       TIMESTAMPTZ NOT NULL,
	elapsed_ms       BIGINT      NOT NULL
);`

func (q *Queries) Migrate(ctx context.Context) error {
	_, err := q.db.Exec(ctx, schema)
	return err
}

type Asset struct {
	ID         int32
	Ticker     string
	Name       string
	Type       string
	CreatedAt  *time.Time
	ModifiedAt *time.Time
}

const getAssetByTicker = `
SELECT id, ticker, name, type, created_at, modified_at
FROM assets
WHERE ticker = $1
LIMIT 1`

func (q *Queries) GetAssetByTicker(ctx context.Context, ticker string) (Asset, error) {
	var a Asset
	err := q.db.QueryRow(ctx, getAssetByTicker, ticker).Scan(
		&a.ID, &a.Ticker, &a.Name, &a.Type, &a.CreatedAt, &a.ModifiedAt,
	)
	return a, err
}

type GetAggregatesParams struct {
	TimeBucket string
	AssetID    int32
	Starttime  *time.Time
	Endtime    *time.Time
}

type GetAggregatesRow struct {
	Bucket  *time.Time
	AssetID int32
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
	Volume  decimal.Decimal
}

const getAggregates = `
SELECT time_bucket($1::interval, timestamp) AS bucket,
       asset_id,
       first(open, timestamp) AS open,
       max(high)              AS high,
       min(low)               AS low,
       last(close, timestamp) AS close,
       sum(volume)            AS volume
FROM candles
WHERE asset_id = $2 AND timestamp >= $3 AND timestamp < $4
GROUP BY bucket, asset_id
ORDER BY bucket`

func (q *Queries) GetAggregates(ctx context.Context, arg GetAggregatesParams) ([]GetAggregatesRow, error) {
	rows, err := q.db.Query(ctx, getAggregates, arg.TimeBucket, arg.AssetID, arg.Starttime, arg.Endtime)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (GetAggregatesRow, error) {
		var r GetAggregatesRow
		err := row.Scan(&r.Bucket, &r.AssetID, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume)
		return r, err
	})
}

type GetExecutionsParams struct {
	AssetID   int32
	Starttime time.Time
	Endtime   time.Time
}

type Execution struct {
	ExecutedAt time.Time
	Side       string
	Price      decimal.Decimal
	Quantity   int64
}

// Ties on executed_at keep insertion order.
const getExecutions = `
SELECT executed_at, side, price, quantity
FROM executions
WHERE asset_id = $1 AND executed_at >= $2 AND executed_at < $3
ORDER BY executed_at, id`

func (q *Queries) GetExecutions(ctx context.Context, arg GetExecutionsParams) ([]Execution, error) {
	rows, err := q.db.Query(ctx, getExecutions, arg.AssetID, arg.Starttime, arg.Endtime)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Execution, error) {
		var e Execution
		err := row.Scan(&e.ExecutedAt, &e.Side, &e.Price, &e.Quantity)
		return e, err
	})
}

type InsertRunParams struct {
	RunID          string
	Name           string
	Status         string
	Trades         int32
	ClosedTrades   int32
	EquityStart    decimal.Decimal
	EquityFinal    decimal.Decimal
	ReturnPct      decimal.NullDecimal
	MaxDrawdownPct decimal.Decimal
	WinRatePct     decimal.NullDecimal
	Error          string
	StartedAt      time.Time
	ElapsedMs      int64
}

const insertRun = `
INSERT INTO backtest_runs (
	run_id, name, status, trades, closed_trades, equity_start, equity_final,
	return_pct, max_drawdown_pct, win_rate_pct, error, started_at, elapsed_ms
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (run_id) DO NOTHING`

func (q *Queries) InsertRun(ctx context.Context, arg InsertRunParams) error {
	_, err := q.db.Exec(ctx, insertRun,
		arg.RunID, arg.Name, arg.Status, arg.Trades, arg.ClosedTrades, arg.EquityStart, arg.EquityFinal,
		arg.ReturnPct, arg.MaxDrawdownPct, arg.WinRatePct, arg.Error, arg.StartedAt, arg.ElapsedMs,
	)
	return err
}
