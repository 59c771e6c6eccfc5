package engine

import (
	"fmt"
	"strings"
	"time"

	"pnlreplay/types"

	"github.com/shopspring/decimal"
)

type DataFeedConfig struct {
	ticker   string
	interval types.Interval
	start    time.Time
	end      time.Time
}

func NewDataFeedConfig(ticker string, interval types.Interval, start, end time.Time) *DataFeedConfig {
	return &DataFeedConfig{
		ticker:   ticker,
		interval: interval,
		start:    start,
		end:      end,
	}
}

func (c *DataFeedConfig) Ticker() string {
	return c.ticker
}

type PortfolioConfig struct {
	initialCash       decimal.Decimal
	startPosition     types.PositionState
	commissionRate    decimal.Decimal
	allowShortSelling bool
	requireFunding    bool
}

func NewPortfolioConfig(initialCash decimal.Decimal, allowShortSelling bool) *PortfolioConfig {
	return &PortfolioConfig{
		initialCash:       initialCash,
		allowShortSelling: allowShortSelling,
	}
}

// WithStartPosition replays from a non-flat position instead of flat.
func (c *PortfolioConfig) WithStartPosition(quantity int64, avgCost decimal.Decimal) *PortfolioConfig {
	c.startPosition = types.NewPositionState(quantity, avgCost)
	return c
}

// WithCommission charges rate * notional on every trade, deducted from cash.
func (c *PortfolioConfig) WithCommission(rate decimal.Decimal) *PortfolioConfig {
	c.commissionRate = rate
	return c
}

// WithFundingCheck rejects buys that would take cash below zero.
func (c *PortfolioConfig) WithFundingCheck(require bool) *PortfolioConfig {
	c.requireFunding = require
	return c
}

func (c *PortfolioConfig) InitialCash() decimal.Decimal {
	return c.initialCash
}

func (c *PortfolioConfig) validate() error {
	if !c.initialCash.IsPositive() {
		return fmt.Errorf("%w: initial cash must be positive, got %s", ErrInvalidConfig, c.initialCash)
	}
	if c.commissionRate.IsNegative() {
		return fmt.Errorf("%w: commission rate must not be negative", ErrInvalidConfig)
	}
	if c.startPosition.Quantity != 0 && !c.startPosition.AvgCost.IsPositive() {
		return fmt.Errorf("%w: start position needs a positive average cost", ErrInvalidConfig)
	}
	if !c.allowShortSelling && c.startPosition.Quantity < 0 {
		return fmt.Errorf("%w: short start position with short selling disabled", ErrInvalidConfig)
	}
	return nil
}

func (c *PortfolioConfig) fee(trade types.Trade) decimal.Decimal {
	if c.commissionRate.IsZero() {
		return decimal.Zero
	}
	return trade.Notional().Mul(c.commissionRate)
}

type ReportingConfig struct {
	riskFreeRate   decimal.Decimal
	periodsPerYear float64
	writeCSV       bool
	reportName     string
	filePath       string
}

const (
	DefaultRiskFreeRate   = "0.01"
	DefaultPeriodsPerYear = 365
)

func NewReportingConfig(riskFreeRate decimal.Decimal, periodsPerYear float64, writeCSV bool, reportName string, filePath string) *ReportingConfig {
	if periodsPerYear <= 0 {
		periodsPerYear = DefaultPeriodsPerYear
	}
	return &ReportingConfig{
		riskFreeRate:   riskFreeRate,
		periodsPerYear: periodsPerYear,
		writeCSV:       writeCSV,
		reportName:     reportName,
		filePath:       filePath,
	}
}

// WriteCSV reports whether every run writes its CSV files under OutDir.
func (c *ReportingConfig) WriteCSV() bool {
	return c.writeCSV
}

func (c *ReportingConfig) PeriodsPerYear() float64 {
	return c.periodsPerYear
}

func (c *ReportingConfig) OutDir() string {
	return c.filePath
}

// filePrefix names the CSV files of one run.
func (c *ReportingConfig) filePrefix(result *Result) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.reportName, result.Name, result.RunId} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "_")
}

func DefaultReportingConfig() *ReportingConfig {
	return NewReportingConfig(decimal.RequireFromString(DefaultRiskFreeRate), DefaultPeriodsPerYear, false, "", "")
}
