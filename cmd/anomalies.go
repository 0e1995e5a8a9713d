package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/bedrockmon/internal/anomaly"
	"github.com/theirongolddev/bedrockmon/internal/cli"
	"github.com/theirongolddev/bedrockmon/internal/model"
	"github.com/theirongolddev/bedrockmon/internal/pipeline"
)

var (
	flagThreshold  float64
	flagMinSamples int
	flagBaselines  bool
)

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "Detect samples that deviate from each series' baseline",
	RunE:  runAnomalies,
}

func init() {
	anomaliesCmd.Flags().Float64VarP(&flagThreshold, "threshold", "k", 0, "Deviation multiplier (default from config)")
	anomaliesCmd.Flags().IntVar(&flagMinSamples, "min-samples", 0, "Minimum baseline samples (default from config)")
	anomaliesCmd.Flags().BoolVar(&flagBaselines, "baselines", false, "Also list the baseline of every series")
	rootCmd.AddCommand(anomaliesCmd)
}

func runAnomalies(c *cobra.Command, _ []string) error {
	res, err := runAnalysis(c.Context(), func(req *pipeline.Request) {
		if flagThreshold != 0 {
			req.ThresholdMultiplier = flagThreshold
		}
		if flagMinSamples != 0 {
			req.MinSamples = flagMinSamples
		}
	})
	if err != nil {
		return err
	}

	warn, crit := anomaly.CountBySeverity(res.Anomalies)
	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("ANOMALIES  %d critical  %d warning", crit, warn)))
	fmt.Println()
	printFailures(res)

	if len(res.Anomalies) == 0 {
		fmt.Print(cli.RenderNote(fmt.Sprintf("No anomalies across %d series.", len(res.Series))))
	} else {
		rows := make([][]string, 0, len(res.Anomalies))
		for _, a := range res.Anomalies {
			unit := model.UnitForMetric(a.MetricName)
			rows = append(rows, []string{
				string(a.Severity),
				a.Key().String(),
				cli.FormatTime(a.Timestamp),
				cli.FormatValue(a.ObservedValue, unit),
				cli.FormatValue(a.BaselineMean, unit),
				cli.FormatValue(a.BaselineStdDev, unit),
				strconv.FormatFloat(a.DeviationMultiplier, 'f', 2, 64) + "σ",
			})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:    "Anomalies",
			Headers:  []string{"Severity", "Series", "Time", "Observed", "Mean", "StdDev", "Deviation"},
			Rows:     rows,
			LeftCols: 3,
		}))
	}

	if flagBaselines {
		rows := make([][]string, 0, len(res.Baselines))
		for _, b := range res.Baselines {
			unit := model.UnitForMetric(b.MetricName)
			rows = append(rows, []string{
				model.SeriesKey{Metric: b.MetricName, Dimensions: b.Dimensions}.String(),
				strconv.Itoa(b.SampleCount),
				cli.FormatValue(b.Mean, unit),
				cli.FormatValue(b.StdDev, unit),
			})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Baselines",
			Headers: []string{"Series", "Samples", "Mean", "StdDev"},
			Rows:    rows,
		}))
	}
	return nil
}
