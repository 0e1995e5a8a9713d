package source

import (
	"os"
	"path/filepath"
	"strings"
)

// ScanDir walks dir and discovers all JSONL sample and invocation log
// files. A missing directory yields no files.
func ScanDir(dir string) ([]DiscoveredFile, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		if isJSONL(dir) {
			return []DiscoveredFile{{Path: dir, Rel: filepath.Base(dir)}}, nil
		}
		return nil, nil
	}

	var files []DiscoveredFile

	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // intentionally skip unreadable entries
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isJSONL(path) {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		files = append(files, DiscoveredFile{Path: path, Rel: rel})
		return nil
	})

	return files, err
}

func isJSONL(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".jsonl")
}
