package journal

const Schema = `
CREATE TABLE IF NOT EXISTS calc_sessions (
	session_id TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	lot_size   INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS calc_entries (
	session_id             TEXT    NOT NULL REFERENCES calc_sessions (session_id),
	seq                    INTEGER NOT NULL,
	time                   TEXT    NOT NULL,
	side                   TEXT    NOT NULL,
	price                  TEXT    NOT NULL,
	quantity               INTEGER NOT NULL,
	position_before        INTEGER NOT NULL,
	avg_cost_before        TEXT    NOT NULL,
	realized_pl            TEXT    NOT NULL,
	position_after         INTEGER NOT NULL,
	avg_cost_after         TEXT    NOT NULL,
	cumulative_realized_pl TEXT    NOT NULL,
	fee                    TEXT    NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS runs (
	run_id           TEXT PRIMARY KEY,
	name             TEXT    NOT NULL,
	status           TEXT    NOT NULL,
	trades           INTEGER NOT NULL,
	closed_trades    INTEGER NOT NULL,
	equity_start     TEXT    NOT NULL,
	equity_final     TEXT    NOT NULL,
	return_pct       TEXT,
	max_drawdown_pct TEXT    NOT NULL,
	win_rate_pct     TEXT,
	error            TEXT    NOT NULL DEFAULT '',
	started_at       TEXT    NOT NULL,
	elapsed_ms       INTEGER NOT NULL
);
`
