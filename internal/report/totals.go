// Package report assembles, serializes and renders monitoring reports.
package report

import (
	"time"

	"github.com/theirongolddev/bedrockmon/internal/cost"
	"github.com/theirongolddev/bedrockmon/internal/model"
)

// Totals computes the headline numbers of a window from its series and cost
// records. Only samples inside [start, end) count; zero bounds are open.
func Totals(series model.SeriesMap, costs []model.CostRecord, start, end time.Time) model.PeriodTotals {
	t := model.PeriodTotals{WindowStart: start, WindowEnd: end}

	models := make(map[string]struct{})
	var latencySum float64
	var latencyN int

	for _, key := range series.Keys() {
		if series.ShadowedTokenAlias(key) {
			continue
		}
		s := series[key]
		samples := s.Between(start, end)
		if len(samples) == 0 {
			continue
		}
		if id, ok := key.Dimensions.Value(model.DimModelID); ok {
			models[id] = struct{}{}
		}

		var sum float64
		for _, smp := range samples {
			sum += smp.Value
		}

		switch {
		case key.Metric == model.MetricInvocations:
			t.Invocations += sum
		case model.IsErrorMetric(key.Metric):
			t.Errors += sum
		case model.IsInputTokenMetric(key.Metric):
			t.InputTokens += int64(sum)
		case model.IsOutputTokenMetric(key.Metric):
			t.OutputTokens += int64(sum)
		case model.IsLatencyMetric(key.Metric):
			latencySum += sum
			latencyN += len(samples)
		}
	}

	if latencyN > 0 {
		t.AvgLatencyMs = latencySum / float64(latencyN)
	}
	t.Models = len(models)
	t.Cost = cost.Total(costs)
	return t
}
