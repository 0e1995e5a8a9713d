// Package sink delivers and persists reports to external destinations.
package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/theirongolddev/bedrockmon/internal/cli"
	"github.com/theirongolddev/bedrockmon/internal/model"
	"github.com/theirongolddev/bedrockmon/internal/report"
)

// Deliverer hands a report to a destination chosen by the sink.
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, r model.Report) error
}

// Persister stores a report at a caller-chosen location.
type Persister interface {
	Name() string
	Persist(ctx context.Context, r model.Report, location string) error
}

// ErrNoLocation is returned by Persist when no location is given and the
// sink has no default.
var ErrNoLocation = errors.New("no location")

// Fanout delivers to every sink and joins their errors. A failing sink
// does not stop the others.
type Fanout []Deliverer

func (f Fanout) Name() string {
	names := make([]string, len(f))
	for i, d := range f {
		names[i] = d.Name()
	}
	return "fanout(" + strings.Join(names, ",") + ")"
}

func (f Fanout) Deliver(ctx context.Context, r model.Report) error {
	var errs []error
	for _, d := range f {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := d.Deliver(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ReportName returns the default file name of a report.
func ReportName(r model.Report, ext string) string {
	ts := r.GeneratedAt.UTC().Format("20060102T150405Z")
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	if id == "" {
		return "bedrock-report-" + ts + ext
	}
	return "bedrock-report-" + ts + "-" + id + ext
}

// DatedKey places name under prefix/YYYY/MM/DD.
func DatedKey(prefix string, t time.Time, name string) string {
	return path.Join(prefix, t.UTC().Format("2006/01/02"), name)
}

// Encode renders a report in the format implied by the name's extension:
// .html, .txt, or JSON for anything else.
func Encode(r model.Report, name string) (body []byte, contentType string, err error) {
	var buf bytes.Buffer
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm":
		err = report.RenderHTML(&buf, r)
		contentType = "text/html; charset=utf-8"
	case ".txt":
		err = report.RenderText(&buf, r)
		contentType = "text/plain; charset=utf-8"
	default:
		var data []byte
		data, err = report.Marshal(r)
		buf.Write(data)
		contentType = "application/json"
	}
	if err != nil {
		return nil, "", err
	}
	return buf.Bytes(), contentType, nil
}

// Summary renders a short plain-text digest of a report for alert
// channels: the headline figures and the top anomalies. At most
// maxAnomalies anomalies are listed; zero or negative lists all of them.
func Summary(r model.Report, maxAnomalies int) string {
	var b strings.Builder
	b.WriteString(r.Title)
	if r.Environment != "" {
		fmt.Fprintf(&b, " (%s)", r.Environment)
	}
	b.WriteString("\n")
	b.WriteString(cli.FormatWindow(r.WindowStart, r.WindowEnd))
	b.WriteString("\n\n")

	if sec, ok := r.Section(report.SectionSummary); ok {
		for _, row := range sec.Rows {
			name, _ := row.Get("name")
			value, _ := row.Get("value")
			switch name {
			case "Invocations", "Success rate", "Estimated cost", "Anomalies", "Critical":
				fmt.Fprintf(&b, "%s: %s\n", name, value)
			}
		}
	}

	if sec, ok := r.Section(report.SectionAnomalies); ok && len(sec.Rows) > 0 {
		b.WriteString("\nTop anomalies:\n")
		for i, row := range sec.Rows {
			if maxAnomalies > 0 && i >= maxAnomalies {
				fmt.Fprintf(&b, "  ... and %d more\n", len(sec.Rows)-maxAnomalies)
				break
			}
			sev, _ := row.Get("severity")
			series, _ := row.Get("series")
			at, _ := row.Get("time")
			observed, _ := row.Get("observed")
			dev, _ := row.Get("deviation")
			fmt.Fprintf(&b, "  [%s] %s at %s: %s (%s)\n", strings.ToUpper(sev), series, at, observed, dev)
		}
	}
	return b.String()
}

// AnomalyCount returns the number of rows in the report's anomaly section.
func AnomalyCount(r model.Report) int {
	sec, ok := r.Section(report.SectionAnomalies)
	if !ok {
		return 0
	}
	return len(sec.Rows)
}
