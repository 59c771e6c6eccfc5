package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type RunStatus string

const (
	RunStatusOK       RunStatus = "OK"
	RunStatusNoTrades RunStatus = "NO_TRADES"
	RunStatusFailed   RunStatus = "FAILED"
)

// RunSummary is the persisted one-row outcome of a replay run.
// Null fields were not available for the run.
type RunSummary struct {
	RunId          string
	Name           string
	Status         RunStatus
	Trades         int
	ClosedTrades   int
	EquityStart    decimal.Decimal
	EquityFinal    decimal.Decimal
	ReturnPct      decimal.NullDecimal
	MaxDrawdownPct decimal.Decimal
	WinRatePct     decimal.NullDecimal
	Error          string
	StartedAt      time.Time
	Elapsed        time.Duration
}
