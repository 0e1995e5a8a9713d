package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/theirongolddev/bedrockmon/internal/source"
	"github.com/theirongolddev/bedrockmon/internal/store"
)

// ImportResult reports what an incremental import did.
type ImportResult struct {
	TotalFiles  int
	Unchanged   int
	Imported    int
	Removed     int
	Samples     int
	ParseErrors int
	FileErrors  int
}

// Import discovers JSONL files under dir, diffs them against the store's
// file tracker, parses only new or changed files and replaces their
// samples. Tracked files under dir that no longer exist are removed.
func Import(dir string, st *store.Store, progressFn ProgressFunc) (*ImportResult, error) {
	files, err := source.ScanDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	tracked, err := st.GetTrackedFiles()
	if err != nil {
		return nil, fmt.Errorf("reading file tracker: %w", err)
	}

	result := &ImportResult{TotalFiles: len(files)}

	type stamped struct {
		file        source.DiscoveredFile
		mtime, size int64
	}
	var toImport []stamped
	seen := make(map[string]struct{}, len(files))

	for _, f := range files {
		seen[f.Path] = struct{}{}
		info, err := os.Stat(f.Path)
		if err != nil {
			result.FileErrors++
			continue
		}

		cached, ok := tracked[f.Path]
		if ok && cached.MtimeNs == info.ModTime().UnixNano() && cached.SizeBytes == info.Size() {
			result.Unchanged++
			continue
		}
		toImport = append(toImport, stamped{f, info.ModTime().UnixNano(), info.Size()})
	}

	root, _ := filepath.Abs(dir)
	for path := range tracked {
		if _, ok := seen[path]; ok {
			continue
		}
		abs, _ := filepath.Abs(path)
		if !within(root, abs) {
			continue
		}
		if err := st.DeleteFile(path); err != nil {
			return nil, fmt.Errorf("removing %s: %w", path, err)
		}
		result.Removed++
	}

	if len(toImport) == 0 {
		return result, nil
	}

	toParse := make([]source.DiscoveredFile, len(toImport))
	for i, s := range toImport {
		toParse[i] = s.file
	}

	for i, pr := range parseAll(toParse, result.Unchanged, result.TotalFiles, progressFn) {
		if pr.Err != nil {
			result.FileErrors++
			continue
		}
		s := toImport[i]
		if err := st.SaveFileSamples(s.file.Path, pr.Samples, s.mtime, s.size); err != nil {
			return nil, fmt.Errorf("saving %s: %w", s.file.Path, err)
		}
		result.Imported++
		result.Samples += len(pr.Samples)
		result.ParseErrors += pr.ParseErrors
	}

	return result, nil
}

func within(root, path string) bool {
	if root == path {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
