package report

import (
	"github.com/shopspring/decimal"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// Thresholds for the recommendation rules.
const (
	minSuccessRate      = 95.0
	highInvocationCount = 10000
	highLatencyMs       = 30000
	recommendationAllOK = "System performing well - continue monitoring"
)

var highCost = decimal.NewFromInt(1000)

// Recommendations returns actionable advice for a window's totals.
func Recommendations(t model.PeriodTotals) []string {
	var out []string
	if t.Invocations > 0 && t.SuccessRate() < minSuccessRate {
		out = append(out, "Investigate error patterns - success rate below 95%")
	}
	if t.Invocations > highInvocationCount {
		out = append(out, "Consider implementing caching to reduce API calls")
	}
	if t.Cost.GreaterThan(highCost) {
		out = append(out, "Review token usage patterns for cost optimization opportunities")
	}
	if t.Models == 1 {
		out = append(out, "Consider diversifying model usage for better resilience")
	}
	if t.AvgLatencyMs > highLatencyMs {
		out = append(out, "Investigate high response times - consider request optimization")
	}
	if len(out) == 0 {
		out = append(out, recommendationAllOK)
	}
	return out
}
