// Package source discovers and parses JSONL files of exported metric
// samples and Bedrock model invocation logs.
package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// Line kinds.
const (
	kindSample     = "sample"
	kindInvocation = "invocation"
)

const invocationSchema = "ModelInvocationLog"

var (
	metricKey     = []byte(`"metric"`)
	schemaTypeKey = []byte(`"schemaType"`)
)

// ParseResult holds the output of parsing a single JSONL file.
type ParseResult struct {
	Samples     []model.MetricSample
	Lines       int
	Invocations int
	Skipped     int
	ParseErrors int
	Err         error
}

// ParseFile reads a JSONL file and produces deduplicated samples.
func ParseFile(df DiscoveredFile) ParseResult {
	f, err := os.Open(df.Path)
	if err != nil {
		return ParseResult{Err: err}
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

type sampleKey struct {
	metric string
	dims   model.DimensionKey
	ts     int64
}

// Parse reads JSONL from r. Each line is routed by its top-level keys:
//   - "schemaType":"ModelInvocationLog" → invocation record, deduplicated by
//     requestId (last wins) and rolled up into per-minute Invocations,
//     token and error counts per ModelId and UserId
//   - "metric" → sample line; duplicate (metric, dimensions, timestamp)
//     lines keep the last value
//   - everything else → skipped
//
// Malformed lines are counted and skipped.
func Parse(r io.Reader) ParseResult {
	var res ParseResult

	samples := make(map[sampleKey]model.MetricSample)
	invocations := make(map[string]RawInvocation)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256*1024), 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		res.Lines++

		switch lineKind(line) {
		case kindSample:
			var raw RawSample
			if err := json.Unmarshal(line, &raw); err != nil {
				res.ParseErrors++
				continue
			}
			s, ok := raw.toSample()
			if !ok {
				res.ParseErrors++
				continue
			}
			samples[sampleKey{s.MetricName, s.Dimensions, s.Timestamp.UnixNano()}] = s

		case kindInvocation:
			var raw RawInvocation
			if err := json.Unmarshal(line, &raw); err != nil {
				res.ParseErrors++
				continue
			}
			if _, err := time.Parse(time.RFC3339Nano, raw.Timestamp); err != nil || raw.ModelID == "" {
				res.ParseErrors++
				continue
			}
			id := raw.RequestID
			if id == "" {
				id = "line-" + strconv.Itoa(res.Lines)
			}
			invocations[id] = raw

		default:
			res.Skipped++
		}
	}

	if err := scanner.Err(); err != nil {
		return ParseResult{Err: err}
	}

	res.Invocations = len(invocations)
	for _, s := range rollUp(invocations) {
		k := sampleKey{s.MetricName, s.Dimensions, s.Timestamp.UnixNano()}
		if prev, ok := samples[k]; ok {
			s.Value += prev.Value
		}
		samples[k] = s
	}

	res.Samples = make([]model.MetricSample, 0, len(samples))
	for _, s := range samples {
		res.Samples = append(res.Samples, s)
	}
	sort.Slice(res.Samples, func(i, j int) bool {
		a, b := res.Samples[i], res.Samples[j]
		if a.MetricName != b.MetricName {
			return a.MetricName < b.MetricName
		}
		if a.Dimensions != b.Dimensions {
			return a.Dimensions < b.Dimensions
		}
		return a.Timestamp.Before(b.Timestamp)
	})
	return res
}

func (raw RawSample) toSample() (model.MetricSample, bool) {
	if raw.Metric == "" || raw.Value == nil {
		return model.MetricSample{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return model.MetricSample{}, false
	}
	unit := model.Unit(raw.Unit)
	if unit == "" {
		unit = model.UnitForMetric(raw.Metric)
	}
	return model.MetricSample{
		Timestamp:  ts.UTC(),
		MetricName: raw.Metric,
		Dimensions: model.NewDimensionKey(raw.Dimensions),
		Value:      *raw.Value,
		Unit:       unit,
	}, true
}

// rollUp folds invocation records into per-minute count samples.
func rollUp(invocations map[string]RawInvocation) []model.MetricSample {
	sums := make(map[sampleKey]float64)
	add := func(metric string, dims model.DimensionKey, ts time.Time, v float64) {
		sums[sampleKey{metric, dims, ts.UnixNano()}] += v
	}

	for _, inv := range invocations {
		ts, _ := time.Parse(time.RFC3339Nano, inv.Timestamp)
		minute := ts.UTC().Truncate(time.Minute)

		dims := map[string]string{model.DimModelID: inv.ModelID}
		if inv.Identity != nil {
			if user := userFromARN(inv.Identity.ARN); user != "" {
				dims[model.DimUserID] = user
			}
		}
		key := model.NewDimensionKey(dims)

		add(model.MetricInvocations, key, minute, 1)
		if inv.ErrorCode != "" {
			add(model.MetricErrors, key, minute, 1)
		}
		if inv.Input != nil {
			add(model.MetricInputTokens, key, minute, float64(inv.Input.InputTokenCount))
		}
		if inv.Output != nil {
			add(model.MetricOutputTokens, key, minute, float64(inv.Output.OutputTokenCount))
		}
	}

	out := make([]model.MetricSample, 0, len(sums))
	for k, v := range sums {
		out = append(out, model.MetricSample{
			Timestamp:  time.Unix(0, k.ts).UTC(),
			MetricName: k.metric,
			Dimensions: k.dims,
			Value:      v,
			Unit:       model.UnitCount,
		})
	}
	return out
}

// userFromARN returns the last path segment of a caller ARN:
//
//	"arn:aws:sts::123:assumed-role/Analyst/alice" -> "alice"
//	"arn:aws:iam::123:user/bob"                   -> "bob"
//	"arn:aws:iam::123:root"                       -> "root"
func userFromARN(arn string) string {
	if i := strings.LastIndexByte(arn, '/'); i >= 0 {
		return arn[i+1:]
	}
	if i := strings.LastIndexByte(arn, ':'); i >= 0 {
		return arn[i+1:]
	}
	return arn
}

// lineKind classifies a JSONL line from its top-level keys without a full
// parse.
func lineKind(line []byte) string {
	if v, ok := topLevelString(line, schemaTypeKey); ok && v == invocationSchema {
		return kindInvocation
	}
	if v, ok := topLevelString(line, metricKey); ok && v != "" {
		return kindSample
	}
	return ""
}

// topLevelString finds the top-level key in a JSON object and returns its
// string value. Tracks brace depth and string boundaries so nested keys are
// ignored. found is true when the key exists, even with a non-string value.
func topLevelString(line, key []byte) (val string, found bool) {
	depth := 0
	for i := 0; i < len(line); {
		switch line[i] {
		case '"':
			if depth == 1 && bytes.HasPrefix(line[i:], key) {
				v, isKey := classifyValue(line, i+len(key))
				if isKey {
					return v, true
				}
				// the key text appeared as a value. Continue scanning.
			}
			i = skipJSONString(line, i)
		case '{':
			depth++
			i++
		case '}':
			depth--
			i++
		default:
			i++
		}
	}
	return "", false
}

// classifyValue checks whether pos follows a JSON key (expects : then value).
// isKey=false means the match was a value, not a key.
func classifyValue(line []byte, pos int) (val string, isKey bool) {
	i := skipSpaces(line, pos)
	if i >= len(line) || line[i] != ':' {
		return "", false
	}
	i = skipSpaces(line, i+1)
	if i >= len(line) || line[i] != '"' {
		return "", true // key with non-string value (null, number, etc.)
	}
	i++ // past opening quote

	end := bytes.IndexByte(line[i:], '"')
	if end < 0 || end > 256 {
		return "", true
	}
	return string(line[i : i+end]), true
}

// skipJSONString advances past a JSON string starting at the opening quote.
//
//nolint:gosec // manual bounds checking throughout
func skipJSONString(line []byte, i int) int {
	i++ // skip opening quote
	for i < len(line) {
		switch line[i] {
		case '\\':
			i += 2
		case '"':
			return i + 1
		default:
			i++
		}
	}
	return i
}

func skipSpaces(line []byte, i int) int {
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return i
}
