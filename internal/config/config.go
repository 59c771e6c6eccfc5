package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"pnlreplay/internal/engine"
	"pnlreplay/internal/logger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete runtime configuration. Money fields are decimal strings.
type Config struct {
	Portfolio  PortfolioConfig  `json:"portfolio" yaml:"portfolio"`
	Reporting  ReportingConfig  `json:"reporting" yaml:"reporting"`
	Calculator CalculatorConfig `json:"calculator" yaml:"calculator"`
	Database   DatabaseConfig   `json:"database" yaml:"database"`
	Sweep      SweepConfig      `json:"sweep" yaml:"sweep"`
	Log        LogConfig        `json:"log" yaml:"log"`
	Tracing    TracingConfig    `json:"tracing" yaml:"tracing"`
}

type PortfolioConfig struct {
	InitialCash       string              `json:"initial_cash" yaml:"initial_cash"`
	StartPosition     StartPositionConfig `json:"start_position" yaml:"start_position"`
	CommissionRate    string              `json:"commission_rate,omitempty" yaml:"commission_rate,omitempty"`
	AllowShortSelling bool                `json:"allow_short_selling" yaml:"allow_short_selling"`
	RequireFunding    bool                `json:"require_funding" yaml:"require_funding"`
}

type StartPositionConfig struct {
	Quantity    int64  `json:"quantity" yaml:"quantity"`
	AverageCost string `json:"average_cost,omitempty" yaml:"average_cost,omitempty"`
}

// ReportingConfig leaves PeriodsPerYear at 0 to derive it from the candle
// interval of a database replay, or 365 for file inputs.
type ReportingConfig struct {
	RiskFreeRate   string  `json:"risk_free_rate" yaml:"risk_free_rate"`
	PeriodsPerYear float64 `json:"periods_per_year" yaml:"periods_per_year"`
	ReportName     string  `json:"report_name,omitempty" yaml:"report_name,omitempty"`
	OutDir         string  `json:"out_dir,omitempty" yaml:"out_dir,omitempty"`
	WriteCSV       bool    `json:"write_csv" yaml:"write_csv"`
}

type CalculatorConfig struct {
	LotSize     int64  `json:"lot_size" yaml:"lot_size"`
	JournalPath string `json:"journal_path" yaml:"journal_path"`
}

type DatabaseConfig struct {
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	MaxConns int32  `json:"max_conns" yaml:"max_conns"`
}

type SweepConfig struct {
	Workers int `json:"workers" yaml:"workers"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

type TracingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Portfolio: PortfolioConfig{
			InitialCash:       "100000",
			AllowShortSelling: true,
		},
		Reporting: ReportingConfig{
			RiskFreeRate: engine.DefaultRiskFreeRate,
			OutDir:       "./reports",
		},
		Calculator: CalculatorConfig{
			LotSize:     100,
			JournalPath: "./pnlreplay.db",
		},
		Database: DatabaseConfig{
			MaxConns: 10,
		},
		Sweep: SweepConfig{
			Workers: 4,
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "console",
		},
	}
}

// LoadFromFile reads a YAML file, falling back to JSON, on top of Default.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", errors.Join(err, jerr))
		}
	}
	return cfg, nil
}

// Load builds the configuration from an optional file, a .env file in the
// working directory and the process environment, then validates it.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("JOURNAL_PATH"); v != "" {
		c.Calculator.JournalPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("SWEEP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: SWEEP_WORKERS: %w", ErrInvalidConfig, err)
		}
		c.Sweep.Workers = n
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	cash, err := decimal.NewFromString(c.Portfolio.InitialCash)
	if err != nil {
		return fmt.Errorf("%w: portfolio.initial_cash %q", ErrInvalidConfig, c.Portfolio.InitialCash)
	}
	if !cash.IsPositive() {
		return fmt.Errorf("%w: portfolio.initial_cash must be positive", ErrInvalidConfig)
	}
	if _, err := optionalDecimal(c.Portfolio.CommissionRate); err != nil {
		return fmt.Errorf("%w: portfolio.commission_rate %q", ErrInvalidConfig, c.Portfolio.CommissionRate)
	}
	avg, err := optionalDecimal(c.Portfolio.StartPosition.AverageCost)
	if err != nil {
		return fmt.Errorf("%w: portfolio.start_position.average_cost %q", ErrInvalidConfig, c.Portfolio.StartPosition.AverageCost)
	}
	if c.Portfolio.StartPosition.Quantity != 0 && !avg.IsPositive() {
		return fmt.Errorf("%w: portfolio.start_position.average_cost must be positive for an open position", ErrInvalidConfig)
	}
	if _, err := decimal.NewFromString(c.Reporting.RiskFreeRate); err != nil {
		return fmt.Errorf("%w: reporting.risk_free_rate %q", ErrInvalidConfig, c.Reporting.RiskFreeRate)
	}
	if c.Reporting.PeriodsPerYear < 0 {
		return fmt.Errorf("%w: reporting.periods_per_year must not be negative", ErrInvalidConfig)
	}
	if c.Reporting.WriteCSV && c.Reporting.OutDir == "" {
		return fmt.Errorf("%w: reporting.out_dir required when write_csv is set", ErrInvalidConfig)
	}
	if c.Calculator.LotSize <= 0 {
		return fmt.Errorf("%w: calculator.lot_size must be positive", ErrInvalidConfig)
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("%w: database.max_conns must be positive", ErrInvalidConfig)
	}
	if c.Sweep.Workers <= 0 {
		return fmt.Errorf("%w: sweep.workers must be positive", ErrInvalidConfig)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log.format must be 'json' or 'console'", ErrInvalidConfig)
	}
	return nil
}

func optionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// PortfolioConfig builds the engine portfolio settings. Call after Validate.
func (c *Config) PortfolioConfig() *engine.PortfolioConfig {
	p := c.Portfolio
	avg, _ := optionalDecimal(p.StartPosition.AverageCost)
	rate, _ := optionalDecimal(p.CommissionRate)

	return engine.NewPortfolioConfig(decimal.RequireFromString(p.InitialCash), p.AllowShortSelling).
		WithStartPosition(p.StartPosition.Quantity, avg).
		WithCommission(rate).
		WithFundingCheck(p.RequireFunding)
}

// ReportingConfig builds the engine reporting settings. Call after Validate.
func (c *Config) ReportingConfig() *engine.ReportingConfig {
	r := c.Reporting
	return engine.NewReportingConfig(decimal.RequireFromString(r.RiskFreeRate), r.PeriodsPerYear, r.WriteCSV, r.ReportName, r.OutDir)
}

func (c *Config) LoggerConfig() logger.LogConfig {
	return logger.LogConfig{Level: c.Log.Level, Format: c.Log.Format}
}
