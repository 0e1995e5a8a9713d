package provider

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// SampleSource is a store of raw samples, such as the local SQLite cache.
type SampleSource interface {
	// SampleDimensions returns the distinct dimension keys recorded for
	// metric in [start, end).
	SampleDimensions(ctx context.Context, metric string, start, end time.Time) ([]model.DimensionKey, error)
	// ReadSamples returns samples of metric in [start, end) ordered by
	// timestamp, skipping offset rows and returning at most limit.
	ReadSamples(ctx context.Context, metric string, start, end time.Time, offset, limit int) ([]model.MetricSample, error)
}

// Replay serves previously recorded samples as a Provider. Points are
// returned raw; the collector folds them into buckets.
type Replay struct {
	name       string
	src        SampleSource
	dimensions []string
	pageSize   int
}

// NewReplay wraps src. pageSize bounds the rows read per Query call.
func NewReplay(name string, src SampleSource, dimensions []string, pageSize int) *Replay {
	if pageSize <= 0 {
		pageSize = 5000
	}
	if len(dimensions) == 0 {
		dimensions = []string{model.DimModelID, model.DimUserID}
	}
	return &Replay{name: name, src: src, dimensions: dimensions, pageSize: pageSize}
}

func (r *Replay) Name() string { return r.name }

func (r *Replay) SupportedDimensions() []string { return r.dimensions }

func (r *Replay) ListSeries(ctx context.Context, metric string, groupBy []string, start, end time.Time) ([]map[string]string, error) {
	if len(groupBy) == 0 {
		return []map[string]string{{}}, nil
	}
	keys, err := r.src.SampleDimensions(ctx, metric, start, end)
	if err != nil {
		return nil, fmt.Errorf("%s: listing dimensions: %w", r.name, err)
	}

	seen := make(map[model.DimensionKey]bool)
	var out []map[string]string
	for _, k := range keys {
		projected := k.Project(groupBy...)
		if len(projected.Pairs()) != len(groupBy) || seen[projected] {
			continue
		}
		seen[projected] = true
		out = append(out, projected.Map())
	}
	sort.Slice(out, func(i, j int) bool {
		return model.NewDimensionKey(out[i]) < model.NewDimensionKey(out[j])
	})
	return out, nil
}

// Query reads one page of rows and keeps those whose dimensions contain
// every requested pair. The page token is the row offset.
func (r *Replay) Query(ctx context.Context, q Query) (Page, error) {
	offset := 0
	if q.PageToken != "" {
		n, err := strconv.Atoi(q.PageToken)
		if err != nil || n < 0 {
			return Page{}, fmt.Errorf("%s: invalid page token %q", r.name, q.PageToken)
		}
		offset = n
	}

	rows, err := r.src.ReadSamples(ctx, q.MetricName, q.Start, q.End, offset, r.pageSize)
	if err != nil {
		return Page{}, fmt.Errorf("%s: reading samples: %w", r.name, err)
	}

	page := Page{Unit: model.UnitForMetric(q.MetricName)}
	for _, s := range rows {
		if s.Unit != "" {
			page.Unit = s.Unit
		}
		if !matchesDims(s.Dimensions, q.Dimensions) {
			continue
		}
		page.Points = append(page.Points, Point{Timestamp: s.Timestamp, Value: s.Value})
	}
	if len(rows) == r.pageSize {
		page.NextToken = strconv.Itoa(offset + len(rows))
	}
	return page, nil
}

func matchesDims(key model.DimensionKey, want map[string]string) bool {
	if len(want) == 0 {
		return true
	}
	have := key.Map()
	for name, v := range want {
		if have[name] != v {
			return false
		}
	}
	return true
}

// MemorySource is an in-memory SampleSource, used for files loaded
// directly and for tests.
type MemorySource struct {
	mu      sync.RWMutex
	samples []model.MetricSample
}

// NewMemorySource returns a source holding samples.
func NewMemorySource(samples ...model.MetricSample) *MemorySource {
	m := &MemorySource{}
	m.Add(samples...)
	return m
}

// Add appends samples, keeping the set ordered by timestamp.
func (m *MemorySource) Add(samples ...model.MetricSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, samples...)
	sort.SliceStable(m.samples, func(i, j int) bool {
		return m.samples[i].Timestamp.Before(m.samples[j].Timestamp)
	})
}

func (m *MemorySource) SampleDimensions(_ context.Context, metric string, start, end time.Time) ([]model.DimensionKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[model.DimensionKey]bool)
	var keys []model.DimensionKey
	for _, s := range m.samples {
		if s.MetricName != metric || !inWindow(s.Timestamp, start, end) || seen[s.Dimensions] {
			continue
		}
		seen[s.Dimensions] = true
		keys = append(keys, s.Dimensions)
	}
	return keys, nil
}

func (m *MemorySource) ReadSamples(_ context.Context, metric string, start, end time.Time, offset, limit int) ([]model.MetricSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.MetricSample
	skipped := 0
	for _, s := range m.samples {
		if s.MetricName != metric || !inWindow(s.Timestamp, start, end) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func inWindow(ts, start, end time.Time) bool {
	return !ts.Before(start) && ts.Before(end)
}
