package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS samples (
    metric               TEXT NOT NULL,
    dimensions           TEXT NOT NULL,
    ts_ms                INTEGER NOT NULL,
    value                REAL NOT NULL,
    unit                 TEXT NOT NULL DEFAULT '',
    file_path            TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (metric, dimensions, ts_ms)
);

CREATE TABLE IF NOT EXISTS file_tracker (
    file_path            TEXT PRIMARY KEY,
    mtime_ns             INTEGER NOT NULL,
    size_bytes           INTEGER NOT NULL,
    sample_count         INTEGER NOT NULL DEFAULT 0,
    imported_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
    id                   TEXT PRIMARY KEY,
    title                TEXT NOT NULL,
    environment          TEXT,
    generated_at         TEXT NOT NULL,
    window_start         TEXT,
    window_end           TEXT,
    location             TEXT,
    body                 TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_metric_ts ON samples(metric, ts_ms);
CREATE INDEX IF NOT EXISTS idx_samples_file ON samples(file_path);
CREATE INDEX IF NOT EXISTS idx_reports_generated ON reports(generated_at);
`
