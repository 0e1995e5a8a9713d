// Package store provides the SQLite database holding imported samples and
// archived reports.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theirongolddev/bedrockmon/internal/model"
	"github.com/theirongolddev/bedrockmon/internal/report"

	_ "modernc.org/sqlite" // register sqlite driver
)

// ErrReportNotFound is returned by LoadReport for an unknown ID.
var ErrReportNotFound = errors.New("report not found")

// Store is a SQLite-backed sample and report store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FileInfo holds the tracked mtime and size for an imported file.
type FileInfo struct {
	MtimeNs     int64
	SizeBytes   int64
	SampleCount int
}

// GetTrackedFiles returns a map of file_path -> FileInfo for all imported files.
func (s *Store) GetTrackedFiles() (map[string]FileInfo, error) {
	rows, err := s.db.Query("SELECT file_path, mtime_ns, size_bytes, sample_count FROM file_tracker")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]FileInfo)
	for rows.Next() {
		var path string
		var fi FileInfo
		if err := rows.Scan(&path, &fi.MtimeNs, &fi.SizeBytes, &fi.SampleCount); err != nil {
			return nil, err
		}
		result[path] = fi
	}
	return result, rows.Err()
}

// SaveFileSamples replaces the samples previously imported from path and
// updates its tracking info. A sample already recorded by another file
// with the same metric, dimensions and timestamp is overwritten.
func (s *Store) SaveFileSamples(path string, samples []model.MetricSample, mtimeNs, sizeBytes int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM samples WHERE file_path = ?", path); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO samples
		(metric, dimensions, ts_ms, value, unit, file_path)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, smp := range samples {
		_, err := stmt.Exec(smp.MetricName, string(smp.Dimensions), smp.Timestamp.UnixMilli(),
			smp.Value, string(smp.Unit), path)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(`INSERT OR REPLACE INTO file_tracker
		(file_path, mtime_ns, size_bytes, sample_count, imported_at)
		VALUES (?, ?, ?, ?, ?)`,
		path, mtimeNs, sizeBytes, len(samples), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteFile removes the samples and tracking entry of a vanished file.
func (s *Store) DeleteFile(path string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM samples WHERE file_path = ?", path); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM file_tracker WHERE file_path = ?", path); err != nil {
		return err
	}
	return tx.Commit()
}

// SampleCount returns the number of stored samples.
func (s *Store) SampleCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&count)
	return count, err
}

// Metrics returns the distinct metric names stored.
func (s *Store) Metrics(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT metric FROM samples ORDER BY metric")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SampleDimensions returns the distinct dimension keys recorded for metric
// in [start, end).
func (s *Store) SampleDimensions(ctx context.Context, metric string, start, end time.Time) ([]model.DimensionKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT dimensions FROM samples
		WHERE metric = ? AND ts_ms >= ? AND ts_ms < ?
		ORDER BY dimensions`, metric, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.DimensionKey
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, model.DimensionKey(k))
	}
	return out, rows.Err()
}

// ReadSamples returns samples of metric in [start, end) ordered by
// timestamp, skipping offset rows and returning at most limit.
func (s *Store) ReadSamples(ctx context.Context, metric string, start, end time.Time, offset, limit int) ([]model.MetricSample, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT dimensions, ts_ms, value, unit FROM samples
		WHERE metric = ? AND ts_ms >= ? AND ts_ms < ?
		ORDER BY ts_ms, dimensions
		LIMIT ? OFFSET ?`, metric, start.UnixMilli(), end.UnixMilli(), limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.MetricSample
	for rows.Next() {
		var (
			dims, unit string
			tsMs       int64
			value      float64
		)
		if err := rows.Scan(&dims, &tsMs, &value, &unit); err != nil {
			return nil, err
		}
		out = append(out, model.MetricSample{
			Timestamp:  time.UnixMilli(tsMs).UTC(),
			MetricName: metric,
			Dimensions: model.DimensionKey(dims),
			Value:      value,
			Unit:       model.Unit(unit),
		})
	}
	return out, rows.Err()
}

// ReportMeta describes an archived report without its body.
type ReportMeta struct {
	ID          string
	Title       string
	Environment string
	GeneratedAt time.Time
	WindowStart time.Time
	WindowEnd   time.Time
	Location    string
}

// SaveReport archives a report. location records where it was persisted;
// it may be empty.
func (s *Store) SaveReport(ctx context.Context, r model.Report, location string) error {
	body, err := report.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO reports
		(id, title, environment, generated_at, window_start, window_end, location, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, r.Environment, formatTime(r.GeneratedAt),
		formatTime(r.WindowStart), formatTime(r.WindowEnd), location, string(body))
	if err != nil {
		return fmt.Errorf("saving report %s: %w", r.ID, err)
	}
	return nil
}

// LoadReport reads an archived report by ID.
func (s *Store) LoadReport(ctx context.Context, id string) (model.Report, error) {
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM reports WHERE id = ?", id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Report{}, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	if err != nil {
		return model.Report{}, err
	}
	return report.Unmarshal([]byte(body))
}

// ListReports returns up to limit archived reports, newest first.
func (s *Store) ListReports(ctx context.Context, limit int) ([]ReportMeta, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, title, environment, generated_at, window_start, window_end, location
		FROM reports ORDER BY generated_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ReportMeta
	for rows.Next() {
		var (
			m                                 ReportMeta
			env, loc, generated, wStart, wEnd sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Title, &env, &generated, &wStart, &wEnd, &loc); err != nil {
			return nil, err
		}
		m.Environment = env.String
		m.Location = loc.String
		m.GeneratedAt = parseTime(generated)
		m.WindowStart = parseTime(wStart)
		m.WindowEnd = parseTime(wEnd)
		out = append(out, m)
	}
	return out, rows.Err()
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s.String)
	return t
}
