package engine

import (
	"math"

	"github.com/shopspring/decimal"
)

// Metric is a summary value that can be undefined for a run. A zero Metric
// is "not available", which is distinct from a zero value.
type Metric struct {
	Value decimal.Decimal
	Inf   bool
	OK    bool
}

func metricOf(v decimal.Decimal) Metric {
	return Metric{Value: v, OK: true}
}

func infMetric() Metric {
	return Metric{Inf: true, OK: true}
}

// metricOfFloat maps NaN and -Inf to not available and +Inf to Inf.
func metricOfFloat(f float64) Metric {
	switch {
	case math.IsNaN(f), math.IsInf(f, -1):
		return Metric{}
	case math.IsInf(f, 1):
		return infMetric()
	}
	return metricOf(decimal.NewFromFloat(f))
}

// Float64 returns +Inf for infinite metrics and false when not available.
func (m Metric) Float64() (float64, bool) {
	if !m.OK {
		return 0, false
	}
	if m.Inf {
		return math.Inf(1), true
	}
	return m.Value.InexactFloat64(), true
}

func (m Metric) String() string {
	switch {
	case !m.OK:
		return "n/a"
	case m.Inf:
		return "inf"
	}
	return m.Value.Round(5).String()
}
