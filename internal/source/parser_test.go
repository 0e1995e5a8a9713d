package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// writeFile creates a temp JSONL file and returns a DiscoveredFile for it.
func writeFile(t *testing.T, lines ...string) DiscoveredFile {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "samples.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return DiscoveredFile{Path: path, Rel: "samples.jsonl"}
}

func find(samples []model.MetricSample, metric string, dims model.DimensionKey) []model.MetricSample {
	var out []model.MetricSample
	for _, s := range samples {
		if s.MetricName == metric && s.Dimensions == dims {
			out = append(out, s)
		}
	}
	return out
}

func TestParseFile_Samples(t *testing.T) {
	df := writeFile(t,
		`{"timestamp":"2025-06-01T10:05:00Z","metric":"Invocations","dimensions":{"ModelId":"m"},"value":4}`,
		`{"timestamp":"2025-06-01T10:00:00Z","metric":"Invocations","dimensions":{"ModelId":"m"},"value":2}`,
		`{"timestamp":"2025-06-01T10:00:00Z","metric":"InvocationLatency","dimensions":{"ModelId":"m"},"value":950.5}`,
	)

	result := ParseFile(df)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.Samples) != 3 {
		t.Fatalf("Samples = %d, want 3", len(result.Samples))
	}

	inv := find(result.Samples, model.MetricInvocations, "ModelId=m")
	if len(inv) != 2 || inv[0].Value != 2 || inv[1].Value != 4 {
		t.Errorf("Invocations = %+v, want ascending [2 4]", inv)
	}
	if inv[0].Unit != model.UnitCount {
		t.Errorf("Unit = %q, want Count", inv[0].Unit)
	}

	lat := find(result.Samples, model.MetricLatency, "ModelId=m")
	if len(lat) != 1 || lat[0].Unit != model.UnitMilliseconds {
		t.Errorf("latency = %+v, want one Milliseconds sample", lat)
	}
}

func TestParseFile_SampleDedup(t *testing.T) {
	df := writeFile(t,
		`{"timestamp":"2025-06-01T10:00:00Z","metric":"Invocations","dimensions":{"ModelId":"m"},"value":1}`,
		`{"timestamp":"2025-06-01T10:00:00Z","metric":"Invocations","dimensions":{"ModelId":"m"},"value":7}`,
	)

	result := ParseFile(df)
	if len(result.Samples) != 1 {
		t.Fatalf("Samples = %d, want 1 (dedup)", len(result.Samples))
	}
	if result.Samples[0].Value != 7 {
		t.Errorf("Value = %v, want 7 (last wins)", result.Samples[0].Value)
	}
}

func TestParseFile_InvocationLogs(t *testing.T) {
	df := writeFile(t,
		`{"schemaType":"ModelInvocationLog","timestamp":"2025-06-01T10:00:05Z","requestId":"r1","modelId":"anthropic.claude-v2","identity":{"arn":"arn:aws:sts::1:assumed-role/Dev/alice"},"input":{"inputTokenCount":100},"output":{"outputTokenCount":10}}`,
		`{"schemaType":"ModelInvocationLog","timestamp":"2025-06-01T10:00:40Z","requestId":"r2","modelId":"anthropic.claude-v2","identity":{"arn":"arn:aws:sts::1:assumed-role/Dev/alice"},"input":{"inputTokenCount":50},"output":{"outputTokenCount":5}}`,
		`{"schemaType":"ModelInvocationLog","timestamp":"2025-06-01T10:00:40Z","requestId":"r2","modelId":"anthropic.claude-v2","identity":{"arn":"arn:aws:sts::1:assumed-role/Dev/alice"},"input":{"inputTokenCount":60},"output":{"outputTokenCount":6}}`,
		`{"schemaType":"ModelInvocationLog","timestamp":"2025-06-01T10:01:00Z","requestId":"r3","modelId":"anthropic.claude-v2","identity":{"arn":"arn:aws:sts::1:assumed-role/Dev/alice"},"errorCode":"ThrottlingException","input":{"inputTokenCount":0}}`,
	)

	result := ParseFile(df)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Invocations != 3 {
		t.Errorf("Invocations = %d, want 3 (dedup by requestId)", result.Invocations)
	}

	key := model.DimensionKey("ModelId=anthropic.claude-v2,UserId=alice")
	inv := find(result.Samples, model.MetricInvocations, key)
	if len(inv) != 2 {
		t.Fatalf("invocation buckets = %d, want 2", len(inv))
	}
	want := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if !inv[0].Timestamp.Equal(want) || inv[0].Value != 2 {
		t.Errorf("first bucket = %v %v, want %v 2", inv[0].Timestamp, inv[0].Value, want)
	}

	in := find(result.Samples, model.MetricInputTokens, key)
	if in[0].Value != 160 {
		t.Errorf("input tokens = %v, want 160 (100 + last r2)", in[0].Value)
	}

	errs := find(result.Samples, model.MetricErrors, key)
	if len(errs) != 1 || errs[0].Value != 1 {
		t.Errorf("errors = %+v, want one error in second minute", errs)
	}
}

func TestParseFile_EmptyFile(t *testing.T) {
	df := writeFile(t)
	result := ParseFile(df)
	if result.Err != nil {
		t.Fatalf("unexpected error on empty file: %v", result.Err)
	}
	if len(result.Samples) != 0 {
		t.Error("expected no samples for empty file")
	}
}

func TestParseFile_MalformedLines(t *testing.T) {
	df := writeFile(t,
		`not json at all`,
		`{"timestamp":"2025-06-01T10:00:00Z","metric":"Invocations","value":1}`,
		`{"metric":"Invocations","broken json`,
		`{"timestamp":"yesterday","metric":"Invocations","value":1}`,
		`{"timestamp":"2025-06-01T10:00:00Z","metric":"Invocations"}`,
	)

	result := ParseFile(df)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	// Malformed lines should be skipped, not cause a fatal error.
	if len(result.Samples) != 1 {
		t.Errorf("Samples = %d, want 1", len(result.Samples))
	}
	if result.ParseErrors != 3 {
		t.Errorf("ParseErrors = %d, want 3", result.ParseErrors)
	}
	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}
	if result.Samples[0].Dimensions != model.AllDimensions {
		t.Errorf("Dimensions = %q, want all", result.Samples[0].Dimensions)
	}
}

func TestParseFile_Missing(t *testing.T) {
	result := ParseFile(DiscoveredFile{Path: filepath.Join(t.TempDir(), "nope.jsonl")})
	if result.Err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestUserFromARN(t *testing.T) {
	tests := map[string]string{
		"arn:aws:sts::123:assumed-role/Analyst/alice": "alice",
		"arn:aws:iam::123:user/bob":                   "bob",
		"arn:aws:iam::123:root":                       "root",
		"carol":                                       "carol",
	}
	for arn, want := range tests {
		if got := userFromARN(arn); got != want {
			t.Errorf("userFromARN(%q) = %q, want %q", arn, got, want)
		}
	}
}

func TestLineKind(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"sample", `{"metric":"Invocations","value":1}`, kindSample},
		{"invocation", `{"schemaType":"ModelInvocationLog","modelId":"x"}`, kindInvocation},
		{"spaced", `{"schemaType": "ModelInvocationLog"}`, kindInvocation},
		{"nested metric ignored", `{"data":{"metric":"x"},"type":"user"}`, ""},
		{"metric as value", `{"name":"metric","x":1}`, ""},
		{"other schema", `{"schemaType":"Other","metric":"Invocations"}`, kindSample},
		{"no keys", `{"message":"hello"}`, ""},
		{"empty", `{}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lineKind([]byte(tt.input))
			if got != tt.want {
				t.Errorf("lineKind(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// FuzzLineKind tests that the byte-level classifier never panics on
// arbitrary input, which is important since it processes untrusted files.
func FuzzLineKind(f *testing.F) {
	f.Add([]byte(`{"metric":"Invocations","timestamp":"2025-06-01T10:00:00Z","value":1}`))
	f.Add([]byte(`{"schemaType":"ModelInvocationLog","input":{"inputTokenCount":1}}`))
	f.Add([]byte(`{"data":{"metric":"nested"},"metric":"x"}`))
	f.Add([]byte(`not json`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"metric":null}`))
	f.Add([]byte(`{"metric":123}`))
	f.Add([]byte(``))
	f.Add([]byte(`{"metric":"Inv`)) // unterminated string
	f.Add([]byte(`{"a":"\`))

	f.Fuzz(func(t *testing.T, data []byte) {
		switch got := lineKind(data); got {
		case "", kindSample, kindInvocation:
		default:
			t.Errorf("unexpected kind %q from input %q", got, data)
		}
		// Parse must never panic either.
		_ = Parse(strings.NewReader(string(data)))
	})
}
