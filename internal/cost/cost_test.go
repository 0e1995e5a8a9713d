package cost

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/bedrockmon/internal/config"
	"github.com/theirongolddev/bedrockmon/internal/model"
)

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func tokenSeries(metric string, dims map[string]string, values ...float64) *model.MetricSeries {
	key := model.SeriesKey{Metric: metric, Dimensions: model.NewDimensionKey(dims)}
	samples := make([]model.MetricSample, len(values))
	for i, v := range values {
		samples[i] = model.MetricSample{Timestamp: t0.Add(time.Duration(i) * time.Minute), Value: v}
	}
	return model.NewSeries(key, model.UnitCount, samples)
}

func set(ss ...*model.MetricSeries) model.SeriesMap {
	m := make(model.SeriesMap)
	for _, s := range ss {
		m[s.Key] = s
	}
	return m
}

var priceA = config.StaticPrices{
	"modelA": {InputPerToken: dec("0.001"), OutputPerToken: dec("0.002")},
}

func TestEstimateWorkedExample(t *testing.T) {
	dims := map[string]string{"ModelId": "modelA"}
	recs := Estimate(set(
		tokenSeries(model.MetricInputTokens, dims, 600, 400),
		tokenSeries(model.MetricOutputTokens, dims, 500),
	), priceA, "USD")

	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, "modelA", r.ModelID)
	assert.Equal(t, int64(1000), r.InputTokens)
	assert.Equal(t, int64(500), r.OutputTokens)
	require.True(t, r.Estimated())
	assert.True(t, r.EstimatedCost.Equal(dec("2.0")), r.EstimatedCost.String())
	assert.Equal(t, "USD", r.Currency)
}

func TestEstimateCountsOneTokenFamilyPerKey(t *testing.T) {
	dims := map[string]string{"ModelId": "modelA"}
	recs := Estimate(set(
		tokenSeries(model.MetricInputTokens, dims, 1000),
		tokenSeries(model.MetricInputTokensAlt, dims, 1000),
		tokenSeries(model.MetricOutputTokensAlt, dims, 500),
	), priceA, "USD")

	require.Len(t, recs, 1)
	assert.Equal(t, int64(1000), recs[0].InputTokens, "alias must not add to InputTokenCount")
	assert.Equal(t, int64(500), recs[0].OutputTokens, "alias alone still counts")
	require.True(t, recs[0].Estimated())
	assert.True(t, recs[0].EstimatedCost.Equal(dec("2")), recs[0].EstimatedCost.String())
}

func TestEstimateIsLinear(t *testing.T) {
	p := priceA["modelA"]
	for _, tc := range []struct{ in, out int64 }{{1, 1}, {1000, 500}, {123457, 98765}} {
		once := Price(p, tc.in, tc.out)
		twice := Price(p, 2*tc.in, 2*tc.out)
		assert.True(t, twice.Equal(once.Mul(decimal.NewFromInt(2))), "in=%d out=%d", tc.in, tc.out)
	}
}

func TestEstimateUnknownModelIsUnestimated(t *testing.T) {
	recs := Estimate(set(
		tokenSeries(model.MetricInputTokens, map[string]string{"ModelId": "mystery"}, 10),
		tokenSeries(model.MetricInputTokensAlt, nil, 7),
		tokenSeries(model.MetricInvocations, map[string]string{"ModelId": "modelA"}, 3),
	), priceA, "USD")

	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.False(t, r.Estimated(), "record %+v", r)
	}
	assert.Equal(t, "", recs[0].ModelID)
	assert.Equal(t, "mystery", recs[1].ModelID)
	assert.Len(t, Unestimated(recs), 2)
	assert.True(t, Total(recs).IsZero())
}

func TestGroupByAndTopN(t *testing.T) {
	c := func(s string) *decimal.Decimal { d := dec(s); return &d }
	recs := []model.CostRecord{
		{ModelID: "a", Dimensions: "ModelId=a,UserId=u1", EstimatedCost: c("5")},
		{ModelID: "a", Dimensions: "ModelId=a,UserId=u2", EstimatedCost: c("1")},
		{ModelID: "b", Dimensions: "ModelId=b,UserId=u1", EstimatedCost: c("6")},
		{ModelID: "c", Dimensions: "ModelId=c,UserId=u3", EstimatedCost: c("3")},
		{ModelID: "d", Dimensions: "ModelId=d,UserId=u4", EstimatedCost: c("3")},
		{ModelID: "x", Dimensions: "ModelId=x"},
	}

	byModel := GroupBy(recs, "ModelId")
	keys := make([]string, len(byModel))
	for i, g := range byModel {
		keys[i] = g.Key
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, keys)
	assert.True(t, byModel[0].Cost.Equal(dec("6")))
	assert.Equal(t, 2, byModel[0].Records)

	byUser := GroupBy(recs, "UserId")
	assert.Equal(t, "u1", byUser[0].Key)
	assert.True(t, byUser[0].Cost.Equal(dec("11")))

	top := TopN(GroupBy(recs, ""), 3)
	require.Len(t, top, 3)
	assert.Equal(t, "ModelId=b,UserId=u1", top[0].Key)
	assert.Equal(t, "ModelId=a,UserId=u1", top[1].Key)
	// Tie at 3: ascending key.
	assert.Equal(t, "ModelId=c,UserId=u3", top[2].Key)

	assert.Empty(t, TopN(byModel, 0))
	assert.Len(t, TopN(byModel, 10), 4)

	assert.True(t, Total(recs).Equal(dec("18")))
}

func TestTopNProperty(t *testing.T) {
	var groups []model.GroupCost
	for i := 0; i < 25; i++ {
		groups = append(groups, model.GroupCost{
			Key:  string(rune('a' + i%7)) + string(rune('a'+i)),
			Cost: decimal.NewFromInt(int64(i % 5)),
		})
	}
	for n := 1; n <= 30; n += 4 {
		top := TopN(groups, n)
		assert.LessOrEqual(t, len(top), n)
		for i := 1; i < len(top); i++ {
			prev, cur := top[i-1], top[i]
			cmp := prev.Cost.Cmp(cur.Cost)
			assert.True(t, cmp > 0 || (cmp == 0 && prev.Key < cur.Key), "order broken at %d: %+v %+v", i, prev, cur)
		}
	}
}

func TestSplitByTokenType(t *testing.T) {
	c := dec("2")
	recs := []model.CostRecord{{ModelID: "modelA", InputTokens: 1000, OutputTokens: 500, EstimatedCost: &c}}
	s := SplitByTokenType(recs, priceA)
	assert.True(t, s.Input.Equal(dec("1")))
	assert.True(t, s.Output.Equal(dec("1")))
	assert.True(t, s.Total().Equal(c))
}

func TestBudgetProjection(t *testing.T) {
	st := Budget(dec("10"), t0, t0.Add(48*time.Hour), dec("100"))
	assert.True(t, st.DailyBurnRate.Equal(dec("5")), st.DailyBurnRate.String())
	assert.True(t, st.ProjectedMonthly.Equal(dec("150")))
	assert.InDelta(t, 150.0, st.BudgetUsedPercent, 1e-9)
	assert.True(t, st.OverBudget)

	st = Budget(dec("10"), t0, t0.Add(48*time.Hour), decimal.Zero)
	assert.False(t, st.OverBudget)
	assert.Zero(t, st.BudgetUsedPercent)
}
