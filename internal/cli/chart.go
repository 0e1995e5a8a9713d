package cli

import (
	"strings"

	"github.com/guptarohit/asciigraph"
)

// RenderChart plots a series as an ASCII line chart. The data is
// downsampled to width points by averaging.
func RenderChart(values []float64, width, height int, caption string) string {
	if len(values) == 0 {
		return ""
	}
	if width <= 0 {
		width = 60
	}
	if height <= 0 {
		height = 8
	}
	data := downsample(values, width)
	if len(data) == 1 {
		data = append(data, data[0])
	}

	graph := asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(asciigraph.Blue),
	)
	var b strings.Builder
	for _, line := range strings.Split(graph, "\n") {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func downsample(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		lo := i * len(values) / n
		hi := (i + 1) * len(values) / n
		var sum float64
		for _, v := range values[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}
