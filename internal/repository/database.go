package repository

import (
	"context"
	"errors"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Global error declarations.
var (
	ErrIntervalNotSupported = errors.New("timeframe not supported")
	ErrAssetNotFound        = errors.New("not found in datasource")
	ErrNoCandles            = errors.New("no candles found in datasource")
)

type assetsRepository interface {
	GetAssetByTicker(ctx context.Context, ticker string) (Asset, error)
}
type candlesRepository interface {
	GetAggregates(ctx context.Context, arg GetAggregatesParams) ([]GetAggregatesRow, error)
}
type executionsRepository interface {
	GetExecutions(ctx context.Context, arg GetExecutionsParams) ([]Execution, error)
}
type runsRepository interface {
	InsertRun(ctx context.Context, arg InsertRunParams) error
}

// Database struct that holds the database connection and queries.
type Database struct {
	assets     assetsRepository
	candles    candlesRepository
	executions executionsRepository
	runs       runsRepository
	queries    *Queries
	conn       *pgxpool.Pool
}

// NewDatabase creates a new Database instance and verifies connectivity.
// maxConns <= 0 keeps the pgxpool default.
func NewDatabase(ctx context.Context, dbURL string, maxConns int32) (*Database, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	// Register shopspring decimal
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	conn, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	// Ensure the connection is established.
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	queries := NewQueries(conn)
	return &Database{
		assets:     queries,
		candles:    queries,
		executions: queries,
		runs:       queries,
		queries:    queries,
		conn:       conn,
	}, nil
}

// Migrate creates the executions and backtest_runs tables if missing.
func (db *Database) Migrate(ctx context.Context) error {
	if err := db.queries.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (db *Database) Close() {
	if db.conn != nil {
		db.conn.Close()
	}
}
