package anomaly

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func series(metric string, dims model.DimensionKey, values ...float64) *model.MetricSeries {
	key := model.SeriesKey{Metric: metric, Dimensions: dims}
	samples := make([]model.MetricSample, len(values))
	for i, v := range values {
		samples[i] = model.MetricSample{
			Timestamp:  t0.Add(time.Duration(i) * 5 * time.Minute),
			MetricName: metric,
			Dimensions: dims,
			Value:      v,
			Unit:       model.UnitForMetric(metric),
		}
	}
	return model.NewSeries(key, model.UnitForMetric(metric), samples)
}

func set(ss ...*model.MetricSeries) model.SeriesMap {
	m := make(model.SeriesMap, len(ss))
	for _, s := range ss {
		m[s.Key] = s
	}
	return m
}

func TestDetectFlagsOnlyOutlier(t *testing.T) {
	s := series("Invocations", "", 10, 10, 10, 10, 50)
	got, err := Detect(set(s), Options{ThresholdMultiplier: 1.0, MinSamples: 5})
	require.NoError(t, err)
	require.Len(t, got, 1)

	a := got[0]
	assert.Equal(t, 50.0, a.ObservedValue)
	assert.InDelta(t, 18.0, a.BaselineMean, 1e-9)
	assert.InDelta(t, 16.0, a.BaselineStdDev, 1e-9)
	assert.InDelta(t, 2.0, a.DeviationMultiplier, 1e-9)
	// 32 is not strictly greater than 2*1*16, so the anomaly stays a warning.
	assert.Equal(t, model.SeverityWarning, a.Severity)
	assert.True(t, a.Timestamp.Equal(t0.Add(20*time.Minute)))
}

func TestDetectCritical(t *testing.T) {
	s := series("Invocations", "", 10, 10, 10, 10, 10, 10, 10, 10, 10, 100)
	got, err := Detect(set(s), Options{ThresholdMultiplier: 1.0, MinSamples: 2})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.SeverityCritical, got[0].Severity)
}

func TestDetectZeroStdDevYieldsNothing(t *testing.T) {
	s := series("Invocations", "", 7, 7, 7, 7, 7, 7)
	got, err := Detect(set(s), Options{ThresholdMultiplier: 0.1, MinSamples: 2})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDetectTooFewSamplesYieldsNothing(t *testing.T) {
	s := series("Invocations", "", 1, 1000, 1)
	got, err := Detect(set(s), Options{ThresholdMultiplier: 0.5, MinSamples: 4})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDetectInvalidOptions(t *testing.T) {
	tests := []Options{
		{ThresholdMultiplier: 0, MinSamples: 5},
		{ThresholdMultiplier: -1, MinSamples: 5},
		{ThresholdMultiplier: 2, MinSamples: 1},
		{ThresholdMultiplier: 2, MinSamples: 5, BaselineStart: t0.Add(time.Hour), BaselineEnd: t0},
	}
	for _, opts := range tests {
		_, err := Detect(model.SeriesMap{}, opts)
		assert.True(t, errors.Is(err, ErrInvalidOptions), "opts %+v: %v", opts, err)
	}
}

func TestDetectOrdering(t *testing.T) {
	a := series("Invocations", "ModelId=a", 10, 10, 10, 10, 50)
	b := series("Invocations", "ModelId=b", 10, 10, 10, 10, 50)
	c := series("InvocationLatency", "ModelId=a", 100, 100, 100, 100, 500)
	d := series("Errors", "", 10, 50, 10, 10, 10)

	got, err := Detect(set(a, b, c, d), Options{ThresholdMultiplier: 1.0, MinSamples: 5})
	require.NoError(t, err)
	require.Len(t, got, 4)

	// Largest absolute deviation first.
	assert.Equal(t, "InvocationLatency", got[0].MetricName)
	// Equal deviation: earlier timestamp first.
	assert.Equal(t, "Errors", got[1].MetricName)
	// Equal deviation and timestamp: key order.
	assert.Equal(t, model.DimensionKey("ModelId=a"), got[2].Dimensions)
	assert.Equal(t, model.DimensionKey("ModelId=b"), got[3].Dimensions)
}

func TestDetectBaselineWindow(t *testing.T) {
	// Baseline from the first six samples only; the later shift is flagged.
	s := series("InvocationLatency", "", 100, 102, 98, 101, 99, 100, 300, 310)
	opts := Options{
		ThresholdMultiplier: 3,
		MinSamples:          5,
		BaselineStart:       t0,
		BaselineEnd:         t0.Add(30 * time.Minute),
	}
	got, err := Detect(set(s), opts)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 310.0, got[0].ObservedValue)
	assert.Equal(t, model.SeverityCritical, got[0].Severity)

	b, ok := ComputeBaseline(s, opts)
	require.True(t, ok)
	assert.Equal(t, 6, b.SampleCount)
	assert.InDelta(t, 100.0, b.Mean, 1e-9)
}

func TestDetectHonorsFloor(t *testing.T) {
	s := series(model.MetricErrorRate, "", 0, 0, 0, 0, 0, 0, 0, 3)
	got, err := Detect(set(s), DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, got, "error rate below the floor must not alert")

	s = series(model.MetricErrorRate, "", 0, 0, 0, 0, 0, 0, 0, 30)
	got, err = Detect(set(s), DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestBaselinesSkipsShortSeries(t *testing.T) {
	long := series("Invocations", "ModelId=a", 1, 2, 3, 4, 5)
	short := series("Invocations", "ModelId=b", 1, 2)
	got, err := Baselines(set(long, short), Options{ThresholdMultiplier: 2, MinSamples: 3})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.DimensionKey("ModelId=a"), got[0].Dimensions)
	assert.InDelta(t, 3.0, got[0].Mean, 1e-9)
}

func TestErrorRateSeries(t *testing.T) {
	inv := series(model.MetricInvocations, "ModelId=a", 100, 0, 200)
	client := series(model.MetricClientErrors, "ModelId=a", 5, 1, 10)
	server := series(model.MetricServerErrors, "ModelId=a", 5, 0, 0)
	other := series(model.MetricInvocations, "ModelId=b", 50)

	rates := ErrorRateSeries(set(inv, client, server, other))
	require.Len(t, rates, 1)

	s := rates[model.SeriesKey{Metric: model.MetricErrorRate, Dimensions: "ModelId=a"}]
	require.NotNil(t, s)
	assert.Equal(t, []float64{10, 5}, s.Values())
	assert.Equal(t, model.UnitPercent, s.Unit)

	all := WithErrorRates(set(inv, client))
	assert.Len(t, all, 3)
}

func TestCountBySeverity(t *testing.T) {
	w, c := CountBySeverity([]model.Anomaly{
		{Severity: model.SeverityWarning},
		{Severity: model.SeverityCritical},
		{Severity: model.SeverityWarning},
	})
	assert.Equal(t, 2, w)
	assert.Equal(t, 1, c)
}
