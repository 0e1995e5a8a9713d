package cli

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestRenderTableLayout(t *testing.T) {
	out := RenderTable(Table{
		Title:   "Top cost",
		Headers: []string{"Model", "Cost"},
		Rows: [][]string{
			{"anthropic.claude-v2", "$2.00"},
			{"---"},
			{"TOTAL", "$2.00"},
		},
	})
	if !strings.Contains(out, "Top cost") {
		t.Fatalf("missing title:\n%s", out)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	// title, top border, header, header separator, row, separator, row, bottom border
	if len(lines) != 8 {
		t.Fatalf("got %d lines, want 8:\n%s", len(lines), out)
	}
	if !strings.Contains(out, "anthropic.claude-v2") || !strings.Contains(out, "TOTAL") {
		t.Fatalf("missing cells:\n%s", out)
	}
}

func TestRenderTableAlignsWideRunes(t *testing.T) {
	out := RenderTable(Table{
		Headers:  []string{"Series", "Deviation"},
		Rows:     [][]string{{"a → b", "5.00σ"}, {"plain", "1.0"}},
		LeftCols: 2,
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	want := lipgloss.Width(lines[0])
	for _, l := range lines {
		if got := lipgloss.Width(l); got != want {
			t.Fatalf("line width %d, want %d:\n%s", got, want, out)
		}
	}
}

func TestRenderTableEmpty(t *testing.T) {
	if out := RenderTable(Table{}); out != "" {
		t.Fatalf("empty table rendered %q", out)
	}
}

func TestRenderSparkline(t *testing.T) {
	if got := RenderSparkline([]float64{0, 1, 2, 4}); got != "▁▂▄█" {
		t.Fatalf("RenderSparkline = %q", got)
	}
}

func TestDownsample(t *testing.T) {
	got := downsample([]float64{1, 3, 5, 7, 9, 11}, 3)
	want := []float64{2, 6, 10}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("downsample = %v, want %v", got, want)
		}
	}
}

func TestRenderChart(t *testing.T) {
	out := RenderChart([]float64{1, 2, 3, 2, 1}, 10, 4, "Invocations")
	if !strings.Contains(out, "Invocations") {
		t.Fatalf("chart missing caption:\n%s", out)
	}
	if RenderChart(nil, 10, 4, "x") != "" {
		t.Fatal("empty chart should render nothing")
	}
}
