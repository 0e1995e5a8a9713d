// Package pipeline orchestrates collection, detection, cost estimation and
// report assembly, and imports sample files into the local store.
package pipeline

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/theirongolddev/bedrockmon/internal/model"
	"github.com/theirongolddev/bedrockmon/internal/provider"
	"github.com/theirongolddev/bedrockmon/internal/source"
)

// LoadResult holds the samples parsed from a directory.
type LoadResult struct {
	Samples     []model.MetricSample
	TotalFiles  int
	ParsedFiles int
	Lines       int
	Invocations int
	ParseErrors int
	FileErrors  int
}

// ProgressFunc is called during loading to report progress.
// current is the number of files processed so far, total is the total count.
type ProgressFunc func(current, total int)

// Load discovers and parses all JSONL files under dir without touching the
// store. It uses a bounded worker pool for parallel parsing.
func Load(dir string, progressFn ProgressFunc) (*LoadResult, error) {
	files, err := source.ScanDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	result := &LoadResult{TotalFiles: len(files)}
	if len(files) == 0 {
		return result, nil
	}

	for _, pr := range parseAll(files, 0, len(files), progressFn) {
		if pr.Err != nil {
			result.FileErrors++
			continue
		}
		result.ParsedFiles++
		result.Lines += pr.Lines
		result.Invocations += pr.Invocations
		result.ParseErrors += pr.ParseErrors
		result.Samples = append(result.Samples, pr.Samples...)
	}

	return result, nil
}

// parseAll parses files on a worker pool. Progress is reported as
// done+processed out of total.
func parseAll(files []source.DiscoveredFile, done, total int, progressFn ProgressFunc) []source.ParseResult {
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers < 1 {
		numWorkers = 4
	}
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	results := make([]source.ParseResult, len(files))
	var wg sync.WaitGroup
	var processed atomic.Int64

	for i := range files {
		work <- i
	}
	close(work)

	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for idx := range work {
				results[idx] = source.ParseFile(files[idx])
				n := processed.Add(1)
				if progressFn != nil {
					progressFn(int(n)+done, total)
				}
			}
		}()
	}

	wg.Wait()
	return results
}

// Provider serves the loaded samples through the replay adapter so the
// collector can read files without importing them first.
func (r *LoadResult) Provider(dimensions []string) *provider.Replay {
	return provider.NewReplay("files", provider.NewMemorySource(r.Samples...), dimensions, 0)
}
