package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pnlreplay/internal/id"
	"pnlreplay/types"

	_ "github.com/mattn/go-sqlite3"
)

var ErrSessionNotFound = errors.New("calculator session not found")

const timeLayout = time.RFC3339Nano

// SQLite persists calculator sessions and run summaries in one file.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// one writer keeps appends ordered across goroutines
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Session is a named calculator journal.
type Session struct {
	Id        string
	Name      string
	LotSize   int64
	CreatedAt time.Time
}

// CreateSession starts an empty session under name.
func (j *SQLite) CreateSession(ctx context.Context, name string, lotSize int64) (Session, error) {
	s := Session{Id: id.New(), Name: name, LotSize: lotSize, CreatedAt: time.Now().UTC()}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO calc_sessions (session_id, name, lot_size, created_at) VALUES (?, ?, ?, ?)`,
		s.Id, s.Name, s.LotSize, s.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Session{}, fmt.Errorf("create session %s: %w", name, err)
	}
	return s, nil
}

// SessionByName returns ErrSessionNotFound when no session carries name.
func (j *SQLite) SessionByName(ctx context.Context, name string) (Session, error) {
	var (
		s       Session
		created string
	)
	err := j.db.QueryRowContext(ctx,
		`SELECT session_id, name, lot_size, created_at FROM calc_sessions WHERE name = ?`, name,
	).Scan(&s.Id, &s.Name, &s.LotSize, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	if err != nil {
		return Session{}, err
	}
	if s.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return Session{}, fmt.Errorf("session %s created_at: %w", name, err)
	}
	return s, nil
}

// AppendEntry stores one outcome. Entries are keyed by Seq so a replayed
// append of the same outcome fails instead of duplicating it.
func (j *SQLite) AppendEntry(ctx context.Context, sessionId string, o types.TradeOutcome) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO calc_entries
		(session_id, seq, time, side, price, quantity, position_before, avg_cost_before,
		 realized_pl, position_after, avg_cost_after, cumulative_realized_pl, fee)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionId, o.Seq, o.Trade.Timestamp.UTC().Format(timeLayout), string(o.Trade.Side),
		o.Trade.Price, o.Trade.Quantity, o.PositionBefore, o.AvgCostBefore,
		o.RealizedPL, o.PositionAfter, o.AvgCostAfter, o.CumulativeRealizedPL, o.Fee,
	)
	if err != nil {
		return fmt.Errorf("append entry %d: %w", o.Seq, err)
	}
	return nil
}

// ListEntries returns the outcomes of a session in append order.
func (j *SQLite) ListEntries(ctx context.Context, sessionId string) ([]types.TradeOutcome, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, time, side, price, quantity, position_before, avg_cost_before,
		       realized_pl, position_after, avg_cost_after, cumulative_realized_pl, fee
		FROM calc_entries
		WHERE session_id = ?
		ORDER BY seq`, sessionId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.TradeOutcome
	for rows.Next() {
		var (
			o    types.TradeOutcome
			ts   string
			side string
		)
		if err := rows.Scan(
			&o.Seq, &ts, &side, &o.Trade.Price, &o.Trade.Quantity, &o.PositionBefore, &o.AvgCostBefore,
			&o.RealizedPL, &o.PositionAfter, &o.AvgCostAfter, &o.CumulativeRealizedPL, &o.Fee,
		); err != nil {
			return nil, err
		}
		if o.Trade.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("entry %d time: %w", o.Seq, err)
		}
		o.Trade.Side = types.Side(side)
		out = append(out, o)
	}
	return out, rows.Err()
}

// ResetSession clears the entries of a session; the session itself stays.
func (j *SQLite) ResetSession(ctx context.Context, sessionId string) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM calc_sessions WHERE session_id = ?`, sessionId).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionId)
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM calc_entries WHERE session_id = ?`, sessionId); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordRun stores a run summary; the same run id is stored once.
func (j *SQLite) RecordRun(ctx context.Context, s types.RunSummary) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO runs
		(run_id, name, status, trades, closed_trades, equity_start, equity_final,
		 return_pct, max_drawdown_pct, win_rate_pct, error, started_at, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunId, s.Name, string(s.Status), s.Trades, s.ClosedTrades, s.EquityStart, s.EquityFinal,
		s.ReturnPct, s.MaxDrawdownPct, s.WinRatePct, s.Error,
		s.StartedAt.UTC().Format(timeLayout), s.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", s.RunId, err)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (j *SQLite) ListRuns(ctx context.Context, limit int) ([]types.RunSummary, error) {
	query := `
		SELECT run_id, name, status, trades, closed_trades, equity_start, equity_final,
		       return_pct, max_drawdown_pct, win_rate_pct, error, started_at, elapsed_ms
		FROM runs
		ORDER BY run_id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.RunSummary
	for rows.Next() {
		var (
			s         types.RunSummary
			status    string
			startedAt string
			elapsedMs int64
		)
		if err := rows.Scan(
			&s.RunId, &s.Name, &status, &s.Trades, &s.ClosedTrades, &s.EquityStart, &s.EquityFinal,
			&s.ReturnPct, &s.MaxDrawdownPct, &s.WinRatePct, &s.Error, &startedAt, &elapsedMs,
		); err != nil {
			return nil, err
		}
		s.Status = types.RunStatus(status)
		s.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		if s.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("run %s started_at: %w", s.RunId, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
