package report

import (
	"github.com/shopspring/decimal"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// Trend labels the direction of a metric between two windows.
type Trend string

const (
	TrendIncreasing   Trend = "Increasing"
	TrendDecreasing   Trend = "Decreasing"
	TrendStable       Trend = "Stable"
	TrendImproving    Trend = "Improving"
	TrendWorsening    Trend = "Worsening"
	TrendInsufficient Trend = "Insufficient data"
)

// costTrendBand is the relative cost change, in percent, inside which the
// cost trend counts as stable.
var costTrendBand = decimal.NewFromInt(10)

// Comparison holds the change from the previous window to the current one.
type Comparison struct {
	Current  model.PeriodTotals
	Previous model.PeriodTotals
	// UsageGrowth is the invocation growth in percent. Zero when the
	// previous window had no invocations.
	UsageGrowth float64
	CostTrend   Trend
	ErrorTrend  Trend
}

// Compare derives usage growth and the cost and error trends.
func Compare(current, previous model.PeriodTotals) Comparison {
	c := Comparison{
		Current:    current,
		Previous:   previous,
		CostTrend:  TrendInsufficient,
		ErrorTrend: TrendInsufficient,
	}

	if previous.Invocations > 0 {
		c.UsageGrowth = (current.Invocations - previous.Invocations) / previous.Invocations * 100
	}

	if previous.Cost.IsPositive() {
		change := current.Cost.Sub(previous.Cost).Div(previous.Cost).Mul(decimal.NewFromInt(100))
		switch {
		case change.GreaterThan(costTrendBand):
			c.CostTrend = TrendIncreasing
		case change.LessThan(costTrendBand.Neg()):
			c.CostTrend = TrendDecreasing
		default:
			c.CostTrend = TrendStable
		}
	}

	if current.Invocations > 0 && previous.Invocations > 0 {
		cur, prev := current.ErrorRate(), previous.ErrorRate()
		switch {
		case cur < prev:
			c.ErrorTrend = TrendImproving
		case cur > prev:
			c.ErrorTrend = TrendWorsening
		default:
			c.ErrorTrend = TrendStable
		}
	}
	return c
}
