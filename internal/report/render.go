package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/theirongolddev/bedrockmon/internal/cli"
	"github.com/theirongolddev/bedrockmon/internal/model"
)

// RenderText writes the report as terminal tables.
func RenderText(w io.Writer, r model.Report) error {
	var b strings.Builder
	b.WriteString(cli.RenderTitle(r.Title))
	b.WriteString("\n\n")

	for _, sec := range r.Sections {
		if len(sec.Rows) == 0 {
			b.WriteString(cli.RenderNote(sec.Heading + ": none"))
			b.WriteString("\n")
			continue
		}
		if sec.Heading == SectionRecommendations {
			b.WriteString(cli.RenderNote(sec.Heading))
			for _, row := range sec.Rows {
				v, _ := row.Get("recommendation")
				b.WriteString("   - " + v + "\n")
			}
			b.WriteString("\n")
			continue
		}
		b.WriteString(cli.RenderTable(sectionTable(sec)))
		b.WriteString("\n")
	}
	b.WriteString(cli.RenderNote(fmt.Sprintf("report %s generated %s", r.ID, cli.FormatTime(r.GeneratedAt))))

	_, err := io.WriteString(w, b.String())
	return err
}

func sectionTable(sec model.Section) cli.Table {
	t := cli.Table{Title: sec.Heading}
	headers := columns(sec)
	keyed := !(len(headers) == 2 && headers[0] == "name" && headers[1] == "value")
	if keyed {
		t.Headers = headers
		t.LeftCols = leftColumns(headers)
	}
	for _, row := range sec.Rows {
		cells := make([]string, len(headers))
		for i, h := range headers {
			cells[i], _ = row.Get(h)
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// columns returns the union of field keys in first-seen order.
func columns(sec model.Section) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, row := range sec.Rows {
		for _, f := range row {
			if !seen[f.Key] {
				seen[f.Key] = true
				cols = append(cols, f.Key)
			}
		}
	}
	return cols
}

func leftColumns(headers []string) int {
	n := 0
	for _, h := range headers {
		switch h {
		case "rank", "severity", "series", "key", "model", "metric", "time", "error", "name":
			n++
		default:
			return max(n, 1)
		}
	}
	return max(n, 1)
}

//go:embed report.html.tmpl
var htmlSource string

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"columns": columns,
	"cell": func(row model.Row, key string) string {
		v, _ := row.Get(key)
		return v
	},
	"severityClass": func(v string) string {
		switch strings.ToLower(v) {
		case "critical", "over budget", "worsening", "increasing":
			return "bad"
		case "warning":
			return "warn"
		case "ok", "improving", "decreasing":
			return "good"
		}
		return ""
	},
	"when": cli.FormatTime,
}).Parse(htmlSource))

// RenderHTML writes the report as a standalone HTML document.
func RenderHTML(w io.Writer, r model.Report) error {
	if err := htmlTemplate.Execute(w, r); err != nil {
		return fmt.Errorf("rendering html report: %w", err)
	}
	return nil
}
