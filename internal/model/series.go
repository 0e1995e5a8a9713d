// Package model defines domain types for bedrockmon series, anomalies and costs.
package model

import (
	"sort"
	"strings"
	"time"
)

// Unit is the measurement unit of a metric sample.
type Unit string

const (
	UnitCount        Unit = "Count"
	UnitMilliseconds Unit = "Milliseconds"
	UnitPercent      Unit = "Percent"
	UnitNone         Unit = "None"
)

// Summed reports whether bucketing should add values rather than average them.
func (u Unit) Summed() bool { return u == UnitCount }

// Dimension is one name=value pair of a DimensionKey.
type Dimension struct {
	Name  string
	Value string
}

// DimensionKey is the canonical encoding of a dimension mapping: pairs
// sorted by name, joined as "name=value,name=value". The empty key means
// the series aggregates across all dimension values.
type DimensionKey string

// AllDimensions is the key of an ungrouped series.
const AllDimensions DimensionKey = ""

// NewDimensionKey builds the canonical key for a dimension mapping.
func NewDimensionKey(dims map[string]string) DimensionKey {
	if len(dims) == 0 {
		return AllDimensions
	}
	names := make([]string, 0, len(dims))
	for name := range dims {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(escapeDim(name))
		b.WriteByte('=')
		b.WriteString(escapeDim(dims[name]))
	}
	return DimensionKey(b.String())
}

// Pairs decodes the key into its ordered pairs.
func (k DimensionKey) Pairs() []Dimension {
	if k == AllDimensions {
		return nil
	}
	var (
		pairs   []Dimension
		cur     strings.Builder
		name    string
		escaped bool
	)
	flush := func() {
		pairs = append(pairs, Dimension{Name: name, Value: cur.String()})
		cur.Reset()
		name = ""
	}
	for _, r := range string(k) {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '=' && name == "":
			name = cur.String()
			cur.Reset()
		case r == ',':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return pairs
}

// Map decodes the key into a fresh dimension mapping.
func (k DimensionKey) Map() map[string]string {
	pairs := k.Pairs()
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		m[p.Name] = p.Value
	}
	return m
}

// Value returns the value of a single dimension.
func (k DimensionKey) Value(name string) (string, bool) {
	for _, p := range k.Pairs() {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Project keeps only the named dimensions.
func (k DimensionKey) Project(names ...string) DimensionKey {
	m := k.Map()
	keep := make(map[string]string, len(names))
	for _, n := range names {
		if v, ok := m[n]; ok {
			keep[n] = v
		}
	}
	return NewDimensionKey(keep)
}

func (k DimensionKey) String() string {
	if k == AllDimensions {
		return "(all)"
	}
	return string(k)
}

func escapeDim(s string) string {
	if !strings.ContainsAny(s, `\,=`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if r == '\\' || r == ',' || r == '=' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SeriesKey identifies one collected series.
type SeriesKey struct {
	Metric     string
	Dimensions DimensionKey
}

func (k SeriesKey) String() string {
	if k.Dimensions == AllDimensions {
		return k.Metric
	}
	return k.Metric + "{" + string(k.Dimensions) + "}"
}

// Less orders keys by metric name, then dimension key.
func (k SeriesKey) Less(o SeriesKey) bool {
	if k.Metric != o.Metric {
		return k.Metric < o.Metric
	}
	return k.Dimensions < o.Dimensions
}

// MetricSample is one observation. Samples are values and never mutated.
type MetricSample struct {
	Timestamp  time.Time    `json:"timestamp"`
	MetricName string       `json:"metric"`
	Dimensions DimensionKey `json:"dimensions"`
	Value      float64      `json:"value"`
	Unit       Unit         `json:"unit"`
}

// MetricSeries holds the samples of one SeriesKey in ascending time order
// with at most one sample per timestamp.
type MetricSeries struct {
	Key     SeriesKey
	Unit    Unit
	Samples []MetricSample
}

// NewSeries sorts samples ascending by timestamp. When two samples share a
// timestamp the one appearing later in the input wins.
func NewSeries(key SeriesKey, unit Unit, samples []MetricSample) *MetricSeries {
	sorted := make([]MetricSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	out := sorted[:0]
	for _, s := range sorted {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(s.Timestamp) {
			out[n-1] = s
			continue
		}
		out = append(out, s)
	}
	return &MetricSeries{Key: key, Unit: unit, Samples: out}
}

// Len returns the number of samples.
func (s *MetricSeries) Len() int { return len(s.Samples) }

// Values returns the sample values in time order.
func (s *MetricSeries) Values() []float64 {
	vals := make([]float64, len(s.Samples))
	for i, smp := range s.Samples {
		vals[i] = smp.Value
	}
	return vals
}

// Between returns the samples with start <= ts < end. A zero bound is open.
func (s *MetricSeries) Between(start, end time.Time) []MetricSample {
	var out []MetricSample
	for _, smp := range s.Samples {
		if !start.IsZero() && smp.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && !smp.Timestamp.Before(end) {
			continue
		}
		out = append(out, smp)
	}
	return out
}

// SeriesMap is the collected data keyed by series.
type SeriesMap map[SeriesKey]*MetricSeries

// Keys returns the keys in metric, then dimension order.
func (m SeriesMap) Keys() []SeriesKey {
	keys := make([]SeriesKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Metric returns the series of one metric in key order.
func (m SeriesMap) Metric(name string) []*MetricSeries {
	var out []*MetricSeries
	for _, k := range m.Keys() {
		if k.Metric == name {
			out = append(out, m[k])
		}
	}
	return out
}

// ShadowedTokenAlias reports whether k is a log-alias token series
// (InputTokens, OutputTokens) whose CloudWatch counterpart exists for the
// same dimensions. Token totals count one family per key.
func (m SeriesMap) ShadowedTokenAlias(k SeriesKey) bool {
	var canonical string
	switch k.Metric {
	case MetricInputTokensAlt:
		canonical = MetricInputTokens
	case MetricOutputTokensAlt:
		canonical = MetricOutputTokens
	default:
		return false
	}
	_, ok := m[SeriesKey{Metric: canonical, Dimensions: k.Dimensions}]
	return ok
}
