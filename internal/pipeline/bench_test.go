package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/theirongolddev/bedrockmon/internal/collector"
	"github.com/theirongolddev/bedrockmon/internal/model"
	"github.com/theirongolddev/bedrockmon/internal/source"
	"github.com/theirongolddev/bedrockmon/internal/store"
)

// benchDir writes files JSONL files with lines samples each spread over
// eight models.
func benchDir(b *testing.B, files, lines int) string {
	b.Helper()
	dir := b.TempDir()
	for f := 0; f < files; f++ {
		out := make([]string, lines)
		for i := range out {
			out[i] = sampleLine(t0.Add(time.Duration(i)*time.Minute), fmt.Sprintf("model-%d", i%8), float64(i%97))
		}
		writeJSONL(b, filepath.Join(dir, fmt.Sprintf("part-%03d.jsonl", f)), out...)
	}
	return dir
}

func BenchmarkLoad(b *testing.B) {
	dir := benchDir(b, 16, 2000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		result, err := Load(dir, nil)
		if err != nil {
			b.Fatal(err)
		}
		_ = result
	}
}

func BenchmarkParseFile(b *testing.B) {
	dir := benchDir(b, 1, 20000)
	files, err := source.ScanDir(dir)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		result := source.ParseFile(files[0])
		if result.Err != nil {
			b.Fatal(result.Err)
		}
	}
}

func BenchmarkImportUnchanged(b *testing.B) {
	dir := benchDir(b, 16, 500)
	st, err := store.Open(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer func() { _ = st.Close() }()
	if _, err := Import(dir, st, nil); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Import(dir, st, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRun(b *testing.B) {
	res, err := Load(benchDir(b, 4, 5000), nil)
	if err != nil {
		b.Fatal(err)
	}
	r := NewRunner(collector.New(res.Provider(nil), collector.Options{}), nil)
	req := Request{
		Start:       t0,
		End:         t0.Add(24 * time.Hour),
		MetricNames: []string{model.MetricInvocations},
		GroupBy:     []string{model.DimModelID},
		Period:      5 * time.Minute,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Run(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}
