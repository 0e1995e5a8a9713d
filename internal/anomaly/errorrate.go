package anomaly

import (
	"time"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// ErrorRateSeries derives an ErrorRate series (errors / invocations * 100)
// for every dimension key that has both an Invocations series and at least
// one error series. Buckets without invocations are skipped.
func ErrorRateSeries(series model.SeriesMap) model.SeriesMap {
	errorsByKey := make(map[model.DimensionKey]map[int64]float64)
	for _, k := range series.Keys() {
		if !model.IsErrorMetric(k.Metric) {
			continue
		}
		buckets := errorsByKey[k.Dimensions]
		if buckets == nil {
			buckets = make(map[int64]float64)
			errorsByKey[k.Dimensions] = buckets
		}
		for _, s := range series[k].Samples {
			buckets[s.Timestamp.UnixNano()] += s.Value
		}
	}

	out := make(model.SeriesMap)
	for _, inv := range series.Metric(model.MetricInvocations) {
		errs, ok := errorsByKey[inv.Key.Dimensions]
		if !ok {
			continue
		}
		key := model.SeriesKey{Metric: model.MetricErrorRate, Dimensions: inv.Key.Dimensions}
		var samples []model.MetricSample
		for _, s := range inv.Samples {
			if s.Value <= 0 {
				continue
			}
			samples = append(samples, model.MetricSample{
				Timestamp:  s.Timestamp,
				MetricName: model.MetricErrorRate,
				Dimensions: s.Dimensions,
				Value:      errs[s.Timestamp.UnixNano()] / s.Value * 100,
				Unit:       model.UnitPercent,
			})
		}
		out[key] = model.NewSeries(key, model.UnitPercent, samples)
	}
	return out
}

// WithErrorRates returns a copy of series extended by ErrorRateSeries.
func WithErrorRates(series model.SeriesMap) model.SeriesMap {
	out := make(model.SeriesMap, len(series))
	for k, s := range series {
		out[k] = s
	}
	for k, s := range ErrorRateSeries(series) {
		out[k] = s
	}
	return out
}

// Window returns a baseline window covering [start, end).
func Window(opts Options, start, end time.Time) Options {
	opts.BaselineStart = start
	opts.BaselineEnd = end
	return opts
}
