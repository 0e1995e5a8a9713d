package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// File writes reports to the local filesystem. The format follows the file
// extension.
type File struct {
	// Dir holds delivered reports and anchors relative Persist locations.
	Dir string
	// Ext selects the format of delivered reports. Defaults to ".json".
	Ext string
}

func (f *File) Name() string { return "file" }

// Deliver writes the report under Dir/YYYY/MM/DD.
func (f *File) Deliver(ctx context.Context, r model.Report) error {
	ext := f.Ext
	if ext == "" {
		ext = ".json"
	}
	return f.Persist(ctx, r, DatedKey("", r.GeneratedAt, ReportName(r, ext)))
}

// Persist writes the report to location.
func (f *File) Persist(_ context.Context, r model.Report, location string) error {
	if location == "" {
		return ErrNoLocation
	}
	path := location
	if !filepath.IsAbs(path) && f.Dir != "" {
		path = filepath.Join(f.Dir, path)
	}

	body, _, err := Encode(r, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
