// Package anomaly flags samples that deviate from a series' baseline.
package anomaly

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/theirongolddev/bedrockmon/internal/model"
	"github.com/theirongolddev/bedrockmon/internal/stats"
)

// ErrInvalidOptions is returned for a non-positive multiplier, fewer than
// two minimum samples or an inverted baseline window.
var ErrInvalidOptions = errors.New("anomaly: invalid options")

// Options configures a detection run.
type Options struct {
	// ThresholdMultiplier k: a sample is anomalous when |v-mean| > k*stddev.
	ThresholdMultiplier float64
	// MinSamples is the least number of baseline samples a series needs.
	MinSamples int
	// BaselineStart and BaselineEnd, when set, restrict the samples the
	// baseline is computed from to [BaselineStart, BaselineEnd). Every
	// sample of the series is still evaluated.
	BaselineStart time.Time
	BaselineEnd   time.Time
	// Floors drops anomalies of a metric whose observed value does not
	// exceed the floor.
	Floors map[string]float64
}

// DefaultOptions returns k=2 with five minimum samples and the 5% error
// rate floor.
func DefaultOptions() Options {
	return Options{
		ThresholdMultiplier: 2.0,
		MinSamples:          5,
		Floors:              map[string]float64{model.MetricErrorRate: 5},
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	k := o.ThresholdMultiplier
	if k <= 0 || math.IsNaN(k) || math.IsInf(k, 0) {
		return fmt.Errorf("%w: threshold multiplier must be positive, got %v", ErrInvalidOptions, k)
	}
	if o.MinSamples < 2 {
		return fmt.Errorf("%w: min samples must be at least 2, got %d", ErrInvalidOptions, o.MinSamples)
	}
	if !o.BaselineStart.IsZero() && !o.BaselineEnd.IsZero() && !o.BaselineStart.Before(o.BaselineEnd) {
		return fmt.Errorf("%w: baseline window start must precede end", ErrInvalidOptions)
	}
	return nil
}

// ComputeBaseline returns the baseline of s. ok is false when the baseline
// has fewer than MinSamples samples.
func ComputeBaseline(s *model.MetricSeries, opts Options) (model.Baseline, bool) {
	samples := s.Samples
	if !opts.BaselineStart.IsZero() || !opts.BaselineEnd.IsZero() {
		samples = s.Between(opts.BaselineStart, opts.BaselineEnd)
	}
	b := model.Baseline{
		MetricName:  s.Key.Metric,
		Dimensions:  s.Key.Dimensions,
		SampleCount: len(samples),
	}
	if len(samples) == 0 || len(samples) < opts.MinSamples {
		return b, false
	}
	vals := make([]float64, len(samples))
	for i, smp := range samples {
		vals[i] = smp.Value
	}
	b.Mean = stats.Mean(vals)
	b.StdDev = stats.PopStdDev(vals)
	b.WindowStart = samples[0].Timestamp
	b.WindowEnd = samples[len(samples)-1].Timestamp
	return b, true
}

// Baselines returns the baseline of every series with enough samples, in
// key order.
func Baselines(series model.SeriesMap, opts Options) ([]model.Baseline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	var out []model.Baseline
	for _, k := range series.Keys() {
		if b, ok := ComputeBaseline(series[k], opts); ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// Detect returns the anomalies of every series, ordered by descending
// absolute deviation, then ascending timestamp, then series key. Series
// with too few samples or zero standard deviation yield nothing.
func Detect(series model.SeriesMap, opts Options) ([]model.Anomaly, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	k := opts.ThresholdMultiplier

	var found []model.Anomaly
	for _, key := range series.Keys() {
		s := series[key]
		if s == nil {
			continue
		}
		b, ok := ComputeBaseline(s, opts)
		if !ok || b.StdDev == 0 {
			continue
		}
		floor, hasFloor := opts.Floors[key.Metric]

		for _, smp := range s.Samples {
			dev := math.Abs(smp.Value - b.Mean)
			if dev <= k*b.StdDev {
				continue
			}
			if hasFloor && smp.Value <= floor {
				continue
			}
			sev := model.SeverityWarning
			if dev > 2*k*b.StdDev {
				sev = model.SeverityCritical
			}
			found = append(found, model.Anomaly{
				MetricName:          key.Metric,
				Dimensions:          key.Dimensions,
				Timestamp:           smp.Timestamp,
				ObservedValue:       smp.Value,
				BaselineMean:        b.Mean,
				BaselineStdDev:      b.StdDev,
				DeviationMultiplier: dev / b.StdDev,
				Severity:            sev,
			})
		}
	}

	Sort(found)
	return found, nil
}

// Sort orders anomalies by descending absolute deviation, then ascending
// timestamp, then metric and dimension key.
func Sort(anomalies []model.Anomaly) {
	sort.SliceStable(anomalies, func(i, j int) bool {
		a, b := anomalies[i], anomalies[j]
		da := math.Abs(a.ObservedValue - a.BaselineMean)
		db := math.Abs(b.ObservedValue - b.BaselineMean)
		if da != db {
			return da > db
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Key().Less(b.Key())
	})
}

// CountBySeverity tallies anomalies.
func CountBySeverity(anomalies []model.Anomaly) (warning, critical int) {
	for _, a := range anomalies {
		if a.Severity == model.SeverityCritical {
			critical++
		} else {
			warning++
		}
	}
	return warning, critical
}
