package model

import (
	"testing"
	"time"
)

func TestDimensionKeyCanonical(t *testing.T) {
	a := NewDimensionKey(map[string]string{"UserId": "alice", "ModelId": "anthropic.claude-v2"})
	b := NewDimensionKey(map[string]string{"ModelId": "anthropic.claude-v2", "UserId": "alice"})
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
	if string(a) != "ModelId=anthropic.claude-v2,UserId=alice" {
		t.Fatalf("key = %q", a)
	}
	if v, ok := a.Value("UserId"); !ok || v != "alice" {
		t.Fatalf("Value(UserId) = %q, %v", v, ok)
	}
	if got := a.Project("ModelId"); string(got) != "ModelId=anthropic.claude-v2" {
		t.Fatalf("Project = %q", got)
	}
}

func TestDimensionKeyEscaping(t *testing.T) {
	dims := map[string]string{"UserId": `a,b=c\d`, "ModelId": "m"}
	k := NewDimensionKey(dims)
	got := k.Map()
	if len(got) != 2 || got["UserId"] != dims["UserId"] || got["ModelId"] != "m" {
		t.Fatalf("Map() = %#v, want %#v", got, dims)
	}
}

func TestDimensionKeyAll(t *testing.T) {
	k := NewDimensionKey(nil)
	if k != AllDimensions {
		t.Fatalf("empty mapping key = %q", k)
	}
	if k.String() != "(all)" {
		t.Fatalf("String() = %q", k.String())
	}
	if len(k.Pairs()) != 0 {
		t.Fatalf("Pairs() = %v, want none", k.Pairs())
	}
}

func TestNewSeriesSortsAndDedups(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	key := SeriesKey{Metric: MetricInvocations}
	s := NewSeries(key, UnitCount, []MetricSample{
		{Timestamp: base.Add(10 * time.Minute), Value: 3},
		{Timestamp: base, Value: 1},
		{Timestamp: base.Add(5 * time.Minute), Value: 2},
		{Timestamp: base, Value: 9},
	})

	want := []float64{9, 2, 3}
	got := s.Values()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSeriesBetween(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var samples []MetricSample
	for i := 0; i < 6; i++ {
		samples = append(samples, MetricSample{Timestamp: base.Add(time.Duration(i) * time.Hour), Value: float64(i)})
	}
	s := NewSeries(SeriesKey{Metric: MetricLatency}, UnitMilliseconds, samples)

	got := s.Between(base.Add(time.Hour), base.Add(3*time.Hour))
	if len(got) != 2 || got[0].Value != 1 || got[1].Value != 2 {
		t.Fatalf("Between = %+v", got)
	}
	if n := len(s.Between(time.Time{}, time.Time{})); n != 6 {
		t.Fatalf("open Between len = %d, want 6", n)
	}
}

func TestSeriesMapKeysOrdered(t *testing.T) {
	m := SeriesMap{
		{Metric: "B"}:                        nil,
		{Metric: "A", Dimensions: "ModelId=z"}: nil,
		{Metric: "A", Dimensions: "ModelId=a"}: nil,
	}
	keys := m.Keys()
	want := []string{"A{ModelId=a}", "A{ModelId=z}", "B"}
	for i, k := range keys {
		if k.String() != want[i] {
			t.Errorf("keys[%d] = %s, want %s", i, k, want[i])
		}
	}
}

func TestShadowedTokenAlias(t *testing.T) {
	m := SeriesMap{
		{Metric: MetricInputTokens, Dimensions: "ModelId=a"}:     nil,
		{Metric: MetricInputTokensAlt, Dimensions: "ModelId=a"}:  nil,
		{Metric: MetricInputTokensAlt, Dimensions: "ModelId=b"}:  nil,
		{Metric: MetricOutputTokensAlt, Dimensions: "ModelId=a"}: nil,
	}
	tests := []struct {
		key  SeriesKey
		want bool
	}{
		{SeriesKey{Metric: MetricInputTokensAlt, Dimensions: "ModelId=a"}, true},
		{SeriesKey{Metric: MetricInputTokensAlt, Dimensions: "ModelId=b"}, false},
		{SeriesKey{Metric: MetricOutputTokensAlt, Dimensions: "ModelId=a"}, false},
		{SeriesKey{Metric: MetricInputTokens, Dimensions: "ModelId=a"}, false},
	}
	for _, tt := range tests {
		if got := m.ShadowedTokenAlias(tt.key); got != tt.want {
			t.Errorf("ShadowedTokenAlias(%s) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
