package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme colors (Flexoki Dark)
var (
	ColorBorder    = lipgloss.Color("#282726")
	ColorTextDim   = lipgloss.Color("#575653")
	ColorTextMuted = lipgloss.Color("#6F6E69")
	ColorText      = lipgloss.Color("#FFFCF0")
	ColorAccent    = lipgloss.Color("#3AA99F")
	ColorGreen     = lipgloss.Color("#879A39")
	ColorOrange    = lipgloss.Color("#DA702C")
	ColorRed       = lipgloss.Color("#D14D41")
	ColorBlue      = lipgloss.Color("#4385BE")
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText).
			Align(lipgloss.Center)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent)

	valueStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	mutedStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	warnStyle = lipgloss.NewStyle().
			Foreground(ColorOrange)

	critStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorRed)

	okStyle = lipgloss.NewStyle().
		Foreground(ColorGreen)

	dimStyle = lipgloss.NewStyle().
			Foreground(ColorTextDim)
)

// Table represents a bordered text table for CLI output.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Widths  []int // optional column widths, auto-calculated if nil
	// LeftCols is the number of leading left-aligned columns; the rest are
	// right-aligned. Zero means one.
	LeftCols int
}

// RenderTitle renders a centered title bar in a bordered box.
func RenderTitle(title string) string {
	width := 55
	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Width(width).
		Align(lipgloss.Center).
		Padding(0, 1)

	return border.Render(titleStyle.Render(title))
}

// RenderTable renders a bordered table with headers and rows. A row holding
// the single cell "---" draws a separator.
func RenderTable(t Table) string {
	if len(t.Rows) == 0 && len(t.Headers) == 0 {
		return ""
	}

	numCols := len(t.Headers)
	if numCols == 0 {
		numCols = len(t.Rows[0])
	}
	widths := columnWidths(t, numCols)

	leftCols := t.LeftCols
	if leftCols < 1 {
		leftCols = 1
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  " + headerStyle.Render(t.Title) + "\n")
	}

	b.WriteString(rule(widths, "╭", "┬", "╮"))
	if len(t.Headers) > 0 {
		cells := make([]string, numCols)
		for i, h := range t.Headers {
			cells[i] = headerStyle.Render(pad(h, widths[i], true))
		}
		b.WriteString(line(cells))
		b.WriteString(rule(widths, "├", "┼", "┤"))
	}

	for _, row := range t.Rows {
		if len(row) == 1 && row[0] == "---" {
			b.WriteString(rule(widths, "├", "┼", "┤"))
			continue
		}
		cells := make([]string, numCols)
		for i := range cells {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			cells[i] = cellStyle(cell).Render(pad(cell, widths[i], i < leftCols))
		}
		b.WriteString(line(cells))
	}

	b.WriteString(rule(widths, "╰", "┴", "╯"))
	return b.String()
}

func columnWidths(t Table, numCols int) []int {
	widths := make([]int, numCols)
	if t.Widths != nil {
		copy(widths, t.Widths)
		return widths
	}
	grow := func(i int, s string) {
		if w := lipgloss.Width(s); i < numCols && w > widths[i] {
			widths[i] = w
		}
	}
	for i, h := range t.Headers {
		grow(i, h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			grow(i, cell)
		}
	}
	return widths
}

// pad fits cell into a column of display width w plus one space each side.
func pad(cell string, w int, left bool) string {
	gap := strings.Repeat(" ", max(0, w-lipgloss.Width(cell)))
	if left {
		return " " + cell + gap + " "
	}
	return " " + gap + cell + " "
}

func rule(widths []int, left, mid, right string) string {
	segs := make([]string, len(widths))
	for i, w := range widths {
		segs[i] = strings.Repeat("─", w+2)
	}
	return dimStyle.Render(left+strings.Join(segs, mid)+right) + "\n"
}

func line(cells []string) string {
	sep := dimStyle.Render("│")
	return sep + strings.Join(cells, sep) + sep + "\n"
}

// cellStyle highlights severity and status words.
func cellStyle(cell string) lipgloss.Style {
	switch strings.ToLower(cell) {
	case "critical", "over budget", "worsening", "increasing":
		return critStyle
	case "warning":
		return warnStyle
	case "ok", "improving", "decreasing":
		return okStyle
	}
	return valueStyle
}

// RenderNote renders a dim single-line remark under a table.
func RenderNote(note string) string {
	return "  " + mutedStyle.Render(note) + "\n"
}

// RenderSparkline generates a unicode block sparkline from a series of values.
func RenderSparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}

	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	peak := values[0]
	for _, v := range values[1:] {
		if v > peak {
			peak = v
		}
	}
	if peak == 0 {
		peak = 1
	}

	var b strings.Builder
	for _, v := range values {
		idx := int(v / peak * float64(len(blocks)-1))
		if idx >= len(blocks) {
			idx = len(blocks) - 1
		}
		if idx < 0 {
			idx = 0
		}
		b.WriteRune(blocks[idx])
	}

	return b.String()
}
