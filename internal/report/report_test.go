package report

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func fixedOpts() Options {
	return Options{
		WindowStart: t0,
		WindowEnd:   t0.Add(24 * time.Hour),
		Now:         func() time.Time { return t0.Add(25 * time.Hour) },
		NewID:       func() string { return "r-1" },
	}
}

func mkSeries(metric string, dims map[string]string, values ...float64) *model.MetricSeries {
	key := model.SeriesKey{Metric: metric, Dimensions: model.NewDimensionKey(dims)}
	samples := make([]model.MetricSample, len(values))
	for i, v := range values {
		samples[i] = model.MetricSample{
			Timestamp:  t0.Add(time.Duration(i) * 5 * time.Minute),
			MetricName: metric,
			Dimensions: key.Dimensions,
			Value:      v,
		}
	}
	return model.NewSeries(key, model.UnitForMetric(metric), samples)
}

func seriesMap(ss ...*model.MetricSeries) model.SeriesMap {
	m := make(model.SeriesMap, len(ss))
	for _, s := range ss {
		m[s.Key] = s
	}
	return m
}

func record(modelID, user, c string) model.CostRecord {
	dims := map[string]string{model.DimModelID: modelID}
	if user != "" {
		dims[model.DimUserID] = user
	}
	r := model.CostRecord{ModelID: modelID, Dimensions: model.NewDimensionKey(dims), Currency: "USD"}
	if c != "" {
		d := decimal.RequireFromString(c)
		r.EstimatedCost = &d
	}
	return r
}

func section(t *testing.T, r model.Report, heading string) model.Section {
	t.Helper()
	sec, ok := r.Section(heading)
	require.True(t, ok, "missing section %q", heading)
	return sec
}

func TestBuildTopNBoundedAndOrdered(t *testing.T) {
	var costs []model.CostRecord
	for i := 0; i < 15; i++ {
		costs = append(costs, record("m", fmt.Sprintf("u%02d", i), fmt.Sprintf("%d", i%4)))
	}

	opts := fixedOpts()
	opts.TopN = 5
	r := Build("t", nil, nil, costs, opts)

	top := section(t, r, SectionTopCost)
	require.Len(t, top.Rows, 5)

	var keys []string
	for _, row := range top.Rows {
		k, _ := row.Get("key")
		keys = append(keys, k)
	}
	// cost 3 for u03, u07, u11; cost 2 for u02, u06, ...
	assert.Equal(t, []string{
		"ModelId=m,UserId=u03",
		"ModelId=m,UserId=u07",
		"ModelId=m,UserId=u11",
		"ModelId=m,UserId=u02",
		"ModelId=m,UserId=u06",
	}, keys)
}

func TestBuildDefaultTopN(t *testing.T) {
	var costs []model.CostRecord
	for i := 0; i < 25; i++ {
		costs = append(costs, record(fmt.Sprintf("m%02d", i), "", "1"))
	}
	r := Build("t", nil, nil, costs, fixedOpts())
	assert.Len(t, section(t, r, SectionTopCost).Rows, DefaultTopN)
}

func TestBuildGroupByDimensionSections(t *testing.T) {
	costs := []model.CostRecord{
		record("a", "u1", "1"),
		record("a", "u2", "2"),
		record("b", "u1", "4"),
	}
	opts := fixedOpts()
	opts.GroupBy = []string{model.DimModelID, model.DimUserID}
	r := Build("t", nil, nil, costs, opts)

	byModel := section(t, r, SectionTopCostBy(model.DimModelID))
	require.Len(t, byModel.Rows, 2)
	k, _ := byModel.Rows[0].Get("key")
	assert.Equal(t, "b", k)
	c, _ := byModel.Rows[1].Get("cost")
	assert.Equal(t, "$3.00", c)

	byUser := section(t, r, SectionTopCostBy(model.DimUserID))
	k, _ = byUser.Rows[0].Get("key")
	assert.Equal(t, "u1", k)
}

func TestBuildUnestimatedUsageIsSeparate(t *testing.T) {
	costs := []model.CostRecord{record("known", "", "2"), record("mystery", "", "")}
	costs[1].InputTokens = 100

	r := Build("t", nil, nil, costs, fixedOpts())

	un := section(t, r, SectionUnestimated)
	require.Len(t, un.Rows, 1)
	m, _ := un.Rows[0].Get("model")
	assert.Equal(t, "mystery", m)

	top := section(t, r, SectionTopCost)
	require.Len(t, top.Rows, 1)

	total, _ := section(t, r, SectionSummary).Rows[8].Get("value")
	assert.Equal(t, "$2.00", total)
}

func TestBuildIsDeterministicAndPure(t *testing.T) {
	series := seriesMap(
		mkSeries(model.MetricInvocations, map[string]string{model.DimModelID: "a"}, 1, 2, 3),
		mkSeries(model.MetricLatency, map[string]string{model.DimModelID: "a"}, 100, 200, 300),
	)
	anomalies := []model.Anomaly{{MetricName: model.MetricInvocations, Severity: model.SeverityWarning, Timestamp: t0}}
	costs := []model.CostRecord{record("a", "", "1")}

	a := Build("t", series, anomalies, costs, fixedOpts())
	b := Build("t", series, anomalies, costs, fixedOpts())
	assert.Equal(t, a, b)
	assert.Len(t, series, 2)
}

func TestBuildSectionsAndWindow(t *testing.T) {
	series := seriesMap(mkSeries(model.MetricInvocations, map[string]string{model.DimModelID: "a"}, 5, 5))
	opts := fixedOpts()
	opts.WindowStart, opts.WindowEnd = time.Time{}, time.Time{}
	opts.Failures = map[model.SeriesKey]error{{Metric: "OutputTokenCount"}: errors.New("boom")}
	budget := decimal.NewFromInt(100)
	opts.MonthlyBudget = &budget
	opts.Previous = &model.PeriodTotals{Invocations: 5}

	r := Build("Bedrock usage", series, nil, nil, opts)

	assert.Equal(t, "r-1", r.ID)
	assert.Equal(t, t0, r.WindowStart)
	assert.Equal(t, t0.Add(5*time.Minute), r.WindowEnd)

	var headings []string
	for _, s := range r.Sections {
		headings = append(headings, s.Heading)
	}
	assert.Equal(t, []string{
		SectionSummary, SectionStatistics, SectionAnomalies, SectionTopCost,
		SectionFailures, SectionComparison, SectionBudget, SectionRecommendations,
	}, headings)

	f := section(t, r, SectionFailures)
	msg, _ := f.Rows[0].Get("error")
	assert.Equal(t, "boom", msg)

	cmp := section(t, r, SectionComparison)
	change, _ := cmp.Rows[0].Get("change")
	assert.Equal(t, "+100.0%", change)
}

func TestRoundTripPreservesOrder(t *testing.T) {
	series := seriesMap(
		mkSeries(model.MetricInvocations, map[string]string{model.DimModelID: "b"}, 1, 2),
		mkSeries(model.MetricInvocations, map[string]string{model.DimModelID: "a"}, 3, 4),
	)
	costs := []model.CostRecord{record("a", "u1", "1"), record("b", "u2", "1"), record("c", "", "")}
	r := Build("t", series, nil, costs, fixedOpts())

	data, err := Marshal(r)
	require.NoError(t, err)
	got, err := Unmarshal(data)
	require.NoError(t, err)

	require.Equal(t, len(r.Sections), len(got.Sections))
	for i := range r.Sections {
		assert.Equal(t, r.Sections[i].Heading, got.Sections[i].Heading)
		assert.Equal(t, r.Sections[i].Rows, got.Sections[i].Rows)
	}
	assert.True(t, r.GeneratedAt.Equal(got.GeneratedAt))
	assert.Equal(t, r.ID, got.ID)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	_, err := Unmarshal([]byte("{not json"))
	assert.Error(t, err)
}

func TestTotals(t *testing.T) {
	series := seriesMap(
		mkSeries(model.MetricInvocations, map[string]string{model.DimModelID: "a"}, 10, 10),
		mkSeries(model.MetricInvocations, map[string]string{model.DimModelID: "b"}, 5),
		mkSeries(model.MetricClientErrors, map[string]string{model.DimModelID: "a"}, 1),
		mkSeries(model.MetricInputTokens, map[string]string{model.DimModelID: "a"}, 100, 50),
		mkSeries(model.MetricOutputTokens, map[string]string{model.DimModelID: "a"}, 20),
		mkSeries(model.MetricLatency, map[string]string{model.DimModelID: "a"}, 100, 300),
	)
	tot := Totals(series, []model.CostRecord{record("a", "", "1.5")}, time.Time{}, time.Time{})

	assert.Equal(t, 25.0, tot.Invocations)
	assert.Equal(t, 1.0, tot.Errors)
	assert.Equal(t, int64(150), tot.InputTokens)
	assert.Equal(t, int64(20), tot.OutputTokens)
	assert.Equal(t, 200.0, tot.AvgLatencyMs)
	assert.Equal(t, 2, tot.Models)
	assert.InDelta(t, 96.0, tot.SuccessRate(), 1e-9)
	assert.True(t, tot.Cost.Equal(decimal.RequireFromString("1.5")))

	windowed := Totals(series, nil, t0.Add(5*time.Minute), time.Time{})
	assert.Equal(t, 10.0, windowed.Invocations)
}

func TestTotalsCountsOneTokenFamilyPerKey(t *testing.T) {
	dims := map[string]string{model.DimModelID: "a"}
	series := seriesMap(
		mkSeries(model.MetricInputTokens, dims, 1000),
		mkSeries(model.MetricInputTokensAlt, dims, 1000),
		mkSeries(model.MetricOutputTokens, dims, 40),
		mkSeries(model.MetricOutputTokensAlt, map[string]string{model.DimModelID: "b"}, 60),
	)
	tot := Totals(series, nil, time.Time{}, time.Time{})

	assert.Equal(t, int64(1000), tot.InputTokens)
	assert.Equal(t, int64(100), tot.OutputTokens)
}

func TestCompare(t *testing.T) {
	prev := model.PeriodTotals{Invocations: 100, Errors: 10, Cost: decimal.NewFromInt(100)}

	tests := []struct {
		name      string
		cur       model.PeriodTotals
		growth    float64
		costTrend Trend
		errTrend  Trend
	}{
		{"growth", model.PeriodTotals{Invocations: 150, Errors: 3, Cost: decimal.NewFromInt(120)}, 50, TrendIncreasing, TrendImproving},
		{"stable", model.PeriodTotals{Invocations: 100, Errors: 10, Cost: decimal.NewFromInt(110)}, 0, TrendStable, TrendStable},
		{"decline", model.PeriodTotals{Invocations: 50, Errors: 25, Cost: decimal.NewFromInt(80)}, -50, TrendDecreasing, TrendWorsening},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Compare(tt.cur, prev)
			assert.InDelta(t, tt.growth, c.UsageGrowth, 1e-9)
			assert.Equal(t, tt.costTrend, c.CostTrend)
			assert.Equal(t, tt.errTrend, c.ErrorTrend)
		})
	}

	empty := Compare(model.PeriodTotals{Invocations: 1}, model.PeriodTotals{})
	assert.Equal(t, TrendInsufficient, empty.CostTrend)
	assert.Equal(t, TrendInsufficient, empty.ErrorTrend)
	assert.Zero(t, empty.UsageGrowth)
}

func TestRecommendations(t *testing.T) {
	assert.Equal(t, []string{recommendationAllOK},
		Recommendations(model.PeriodTotals{Invocations: 100, Models: 2, Cost: decimal.NewFromInt(5)}))

	recs := Recommendations(model.PeriodTotals{
		Invocations:  20000,
		Errors:       2000,
		Models:       1,
		AvgLatencyMs: 31000,
		Cost:         decimal.NewFromInt(5000),
	})
	assert.Len(t, recs, 5)
	assert.Contains(t, recs[0], "success rate below 95%")
}

func TestRenderText(t *testing.T) {
	costs := []model.CostRecord{record("a", "", "2")}
	r := Build("Bedrock usage", nil, nil, costs, fixedOpts())

	var buf bytes.Buffer
	require.NoError(t, RenderText(&buf, r))
	out := buf.String()
	assert.Contains(t, out, "Bedrock usage")
	assert.Contains(t, out, SectionTopCost)
	assert.Contains(t, out, "Anomalies: none")
	assert.Contains(t, out, "ModelId=a")
}

func TestRenderHTMLEscapes(t *testing.T) {
	r := model.Report{
		ID:    "r-1",
		Title: "<b>usage</b>",
		Sections: []model.Section{
			{Heading: "Anomalies", Rows: []model.Row{{{Key: "severity", Value: "critical"}, {Key: "series", Value: "x<y"}}}},
			{Heading: SectionRecommendations, Rows: []model.Row{{{Key: "recommendation", Value: "keep going"}}}},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, r))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "&lt;b&gt;usage&lt;/b&gt;")
	assert.Contains(t, out, `<td class="bad">critical</td>`)
	assert.Contains(t, out, "x&lt;y")
	assert.Contains(t, out, "<li>keep going</li>")
}
