package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/bedrockmon/internal/cli"
	"github.com/theirongolddev/bedrockmon/internal/collector"
	"github.com/theirongolddev/bedrockmon/internal/model"
	"github.com/theirongolddev/bedrockmon/internal/stats"
)

var (
	flagCollectChart  bool
	flagChartHeight   int
	flagChartWidth    int
	flagSparkPoints   int
	flagCollectSeries string
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect metric series and show per-series statistics",
	RunE:  runCollect,
}

func init() {
	collectCmd.Flags().BoolVar(&flagCollectChart, "chart", false, "Plot each series as an ASCII chart")
	collectCmd.Flags().IntVar(&flagChartHeight, "chart-height", 10, "Chart height in rows")
	collectCmd.Flags().IntVar(&flagChartWidth, "chart-width", 60, "Chart width in columns")
	collectCmd.Flags().IntVar(&flagSparkPoints, "spark", 24, "Sparkline points per series")
	collectCmd.Flags().StringVar(&flagCollectSeries, "series", "", "Only chart series whose key contains this text")
	rootCmd.AddCommand(collectCmd)
}

func runCollect(c *cobra.Command, _ []string) error {
	ctx := c.Context()

	start, end, err := resolveWindow()
	if err != nil {
		return err
	}
	p, closeFn, err := openProvider(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	req := baseRequest(start, end)
	res, err := newCollector(p).Collect(ctx, collector.Request{
		Start:       req.Start,
		End:         req.End,
		MetricNames: req.MetricNames,
		GroupBy:     req.GroupBy,
		Period:      req.Period,
	})
	if err != nil {
		return err
	}

	keys := res.Series.Keys()
	if len(keys) == 0 {
		fmt.Println("\n  No series in the selected window.")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("SERIES  %s  every %s", cli.FormatWindow(res.Start, res.End), res.Period)))
	fmt.Println()

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		s := res.Series[k]
		values := s.Values()
		sum := stats.Summarize(values)
		total := "-"
		if s.Unit.Summed() {
			total = cli.FormatValue(sum.Sum, s.Unit)
		}
		rows = append(rows, []string{
			k.String(),
			strconv.Itoa(sum.Count),
			total,
			cli.FormatValue(sum.Mean, s.Unit),
			cli.FormatValue(sum.P90, s.Unit),
			cli.FormatValue(sum.Max, s.Unit),
			cli.RenderSparkline(lastN(values, flagSparkPoints)),
		})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Title:    "Collected Series",
		Headers:  []string{"Series", "Buckets", "Total", "Mean", "P90", "Max", "Trend"},
		Rows:     rows,
		LeftCols: 1,
	}))

	if res.Partial() {
		failed := make([][]string, 0, len(res.Failures))
		for _, k := range res.FailedKeys() {
			failed = append(failed, []string{k.String(), res.Failures[k].Error()})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:    "Collection Failures",
			Headers:  []string{"Series", "Error"},
			Rows:     failed,
			LeftCols: 2,
		}))
	}

	if flagCollectChart {
		for _, k := range keys {
			if flagCollectSeries != "" && !containsFold(k.String(), flagCollectSeries) {
				continue
			}
			s := res.Series[k]
			fmt.Println(cli.RenderChart(s.Values(), flagChartWidth, flagChartHeight, chartCaption(k, s.Unit)))
			fmt.Println()
		}
	}

	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  %d series, %d failed\n", len(res.Series), len(res.Failures))
	}
	return nil
}

func lastN(values []float64, n int) []float64 {
	if n <= 0 || len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

func chartCaption(k model.SeriesKey, unit model.Unit) string {
	return fmt.Sprintf("%s (%s)", k, unit)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
