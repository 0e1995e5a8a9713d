package collector

import (
	"time"

	"github.com/theirongolddev/bedrockmon/internal/model"
	"github.com/theirongolddev/bedrockmon/internal/provider"
)

// Bucketize folds raw points into fixed buckets [start+i*period,
// start+(i+1)*period). Count metrics are summed, everything else is
// averaged. Points outside [start, end) are dropped, and empty buckets
// produce no sample.
func Bucketize(key model.SeriesKey, unit model.Unit, points []provider.Point, start, end time.Time, period time.Duration) *model.MetricSeries {
	type acc struct {
		sum float64
		n   int
	}
	buckets := make(map[int64]*acc)
	for _, p := range points {
		if p.Timestamp.Before(start) || !p.Timestamp.Before(end) {
			continue
		}
		idx := int64(p.Timestamp.Sub(start) / period)
		a := buckets[idx]
		if a == nil {
			a = &acc{}
			buckets[idx] = a
		}
		a.sum += p.Value
		a.n++
	}

	samples := make([]model.MetricSample, 0, len(buckets))
	for idx, a := range buckets {
		v := a.sum
		if !unit.Summed() {
			v = a.sum / float64(a.n)
		}
		samples = append(samples, model.MetricSample{
			Timestamp:  start.Add(time.Duration(idx) * period),
			MetricName: key.Metric,
			Dimensions: key.Dimensions,
			Value:      v,
			Unit:       unit,
		})
	}
	return model.NewSeries(key, unit, samples)
}
