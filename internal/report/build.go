package report

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/theirongolddev/bedrockmon/internal/anomaly"
	"github.com/theirongolddev/bedrockmon/internal/cli"
	"github.com/theirongolddev/bedrockmon/internal/cost"
	"github.com/theirongolddev/bedrockmon/internal/model"
	"github.com/theirongolddev/bedrockmon/internal/stats"
)

// Section headings.
const (
	SectionSummary         = "Summary"
	SectionStatistics      = "Metric statistics"
	SectionAnomalies       = "Anomalies"
	SectionTopCost         = "Top cost by dimension key"
	SectionUnestimated     = "Unestimated usage"
	SectionFailures        = "Collection failures"
	SectionComparison      = "Period comparison"
	SectionBudget          = "Budget"
	SectionRecommendations = "Recommendations"

	// DefaultTopN bounds the top cost lists.
	DefaultTopN = 10
)

// SectionTopCostBy returns the heading of the top cost list for one
// group-by dimension.
func SectionTopCostBy(dimension string) string {
	return "Top cost by " + dimension
}

// Options controls what Build puts in a report.
type Options struct {
	Environment string
	// WindowStart and WindowEnd bound the report. When zero they are taken
	// from the earliest and latest sample.
	WindowStart time.Time
	WindowEnd   time.Time
	TopN        int
	GroupBy     []string
	Currency    string
	// Failures lists the series the collector could not fetch.
	Failures map[model.SeriesKey]error
	// Previous enables the period comparison section.
	Previous      *model.PeriodTotals
	MonthlyBudget *decimal.Decimal

	Now   func() time.Time
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.TopN == 0 {
		o.TopN = DefaultTopN
	}
	if o.Currency == "" {
		o.Currency = "USD"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// Build assembles a report. It performs no I/O; the inputs are not
// modified.
func Build(title string, series model.SeriesMap, anomalies []model.Anomaly, costs []model.CostRecord, opts Options) model.Report {
	opts = opts.withDefaults()

	start, end := opts.WindowStart, opts.WindowEnd
	if start.IsZero() || end.IsZero() {
		first, last := sampleBounds(series)
		if start.IsZero() {
			start = first
		}
		if end.IsZero() {
			end = last
		}
	}

	r := model.Report{
		ID:          opts.NewID(),
		Title:       title,
		Environment: opts.Environment,
		GeneratedAt: opts.Now().UTC(),
		WindowStart: start.UTC(),
		WindowEnd:   end.UTC(),
	}

	totals := Totals(series, costs, time.Time{}, time.Time{})
	totals.WindowStart, totals.WindowEnd = start, end

	r.Sections = append(r.Sections,
		summarySection(totals, anomalies, costs, opts),
		statisticsSection(series),
		anomalySection(anomalies),
		topCostSection(SectionTopCost, cost.GroupBy(costs, ""), opts),
	)
	if len(opts.GroupBy) > 1 {
		for _, dim := range opts.GroupBy {
			r.Sections = append(r.Sections, topCostSection(SectionTopCostBy(dim), cost.GroupBy(costs, dim), opts))
		}
	}
	if un := cost.Unestimated(costs); len(un) > 0 {
		r.Sections = append(r.Sections, unestimatedSection(un))
	}
	if len(opts.Failures) > 0 {
		r.Sections = append(r.Sections, failureSection(opts.Failures))
	}
	if opts.Previous != nil {
		r.Sections = append(r.Sections, comparisonSection(Compare(totals, *opts.Previous), opts.Currency))
	}
	if opts.MonthlyBudget != nil {
		st := cost.Budget(totals.Cost, start, end, *opts.MonthlyBudget)
		r.Sections = append(r.Sections, budgetSection(st, opts.Currency))
	}
	r.Sections = append(r.Sections, recommendationSection(Recommendations(totals)))
	return r
}

func sampleBounds(series model.SeriesMap) (first, last time.Time) {
	for _, s := range series {
		if s.Len() == 0 {
			continue
		}
		if ts := s.Samples[0].Timestamp; first.IsZero() || ts.Before(first) {
			first = ts
		}
		if ts := s.Samples[s.Len()-1].Timestamp; ts.After(last) {
			last = ts
		}
	}
	return first, last
}

func kv(key, value string) model.Row {
	return model.Row{{Key: "name", Value: key}, {Key: "value", Value: value}}
}

func summarySection(t model.PeriodTotals, anomalies []model.Anomaly, costs []model.CostRecord, opts Options) model.Section {
	warning, critical := anomaly.CountBySeverity(anomalies)
	rows := []model.Row{
		kv("Window", cli.FormatWindow(t.WindowStart, t.WindowEnd)),
		kv("Invocations", cli.FormatNumber(int64(t.Invocations))),
		kv("Errors", cli.FormatNumber(int64(t.Errors))),
		kv("Success rate", cli.FormatPercent(t.SuccessRate())),
		kv("Input tokens", cli.FormatNumber(t.InputTokens)),
		kv("Output tokens", cli.FormatNumber(t.OutputTokens)),
		kv("Avg latency", cli.FormatValue(t.AvgLatencyMs, model.UnitMilliseconds)),
		kv("Models", strconv.Itoa(t.Models)),
		kv("Estimated cost", cli.FormatCost(t.Cost, opts.Currency)),
		kv("Unestimated records", strconv.Itoa(len(cost.Unestimated(costs)))),
		kv("Anomalies", strconv.Itoa(len(anomalies))),
		kv("Critical", strconv.Itoa(critical)),
		kv("Warning", strconv.Itoa(warning)),
	}
	if opts.Environment != "" {
		rows = append([]model.Row{kv("Environment", opts.Environment)}, rows...)
	}
	return model.Section{Heading: SectionSummary, Rows: rows}
}

func statisticsSection(series model.SeriesMap) model.Section {
	sec := model.Section{Heading: SectionStatistics}
	for _, key := range series.Keys() {
		s := series[key]
		sum := stats.Summarize(s.Values())
		f := func(v float64) string { return cli.FormatValue(v, s.Unit) }
		total := "-"
		if s.Unit.Summed() {
			total = f(sum.Sum)
		}
		sec.Rows = append(sec.Rows, model.Row{
			{Key: "series", Value: key.String()},
			{Key: "samples", Value: strconv.Itoa(sum.Count)},
			{Key: "total", Value: total},
			{Key: "mean", Value: f(sum.Mean)},
			{Key: "p50", Value: f(sum.P50)},
			{Key: "p90", Value: f(sum.P90)},
			{Key: "p99", Value: f(sum.P99)},
			{Key: "max", Value: f(sum.Max)},
		})
	}
	return sec
}

func anomalySection(anomalies []model.Anomaly) model.Section {
	sec := model.Section{Heading: SectionAnomalies}
	for _, a := range anomalies {
		unit := model.UnitForMetric(a.MetricName)
		sec.Rows = append(sec.Rows, model.Row{
			{Key: "severity", Value: string(a.Severity)},
			{Key: "series", Value: a.Key().String()},
			{Key: "time", Value: cli.FormatTime(a.Timestamp)},
			{Key: "observed", Value: cli.FormatValue(a.ObservedValue, unit)},
			{Key: "mean", Value: cli.FormatValue(a.BaselineMean, unit)},
			{Key: "stddev", Value: cli.FormatValue(a.BaselineStdDev, unit)},
			{Key: "deviation", Value: strconv.FormatFloat(a.DeviationMultiplier, 'f', 2, 64) + "σ"},
		})
	}
	return sec
}

func topCostSection(heading string, groups []model.GroupCost, opts Options) model.Section {
	sec := model.Section{Heading: heading}
	for i, g := range cost.TopN(groups, opts.TopN) {
		sec.Rows = append(sec.Rows, model.Row{
			{Key: "rank", Value: strconv.Itoa(i + 1)},
			{Key: "key", Value: g.Key},
			{Key: "input_tokens", Value: cli.FormatNumber(g.InputTokens)},
			{Key: "output_tokens", Value: cli.FormatNumber(g.OutputTokens)},
			{Key: "cost", Value: cli.FormatCost(g.Cost, opts.Currency)},
		})
	}
	return sec
}

func unestimatedSection(records []model.CostRecord) model.Section {
	sec := model.Section{Heading: SectionUnestimated}
	for _, r := range records {
		id := r.ModelID
		if id == "" {
			id = cost.NoValue
		}
		sec.Rows = append(sec.Rows, model.Row{
			{Key: "model", Value: id},
			{Key: "key", Value: r.Dimensions.String()},
			{Key: "input_tokens", Value: cli.FormatNumber(r.InputTokens)},
			{Key: "output_tokens", Value: cli.FormatNumber(r.OutputTokens)},
		})
	}
	return sec
}

func failureSection(failures map[model.SeriesKey]error) model.Section {
	keys := make([]model.SeriesKey, 0, len(failures))
	for k := range failures {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	sec := model.Section{Heading: SectionFailures}
	for _, k := range keys {
		sec.Rows = append(sec.Rows, model.Row{
			{Key: "series", Value: k.String()},
			{Key: "error", Value: failures[k].Error()},
		})
	}
	return sec
}

func comparisonSection(c Comparison, currency string) model.Section {
	cur, prev := c.Current, c.Previous
	row := func(name, current, previous, change string) model.Row {
		return model.Row{
			{Key: "metric", Value: name},
			{Key: "current", Value: current},
			{Key: "previous", Value: previous},
			{Key: "change", Value: change},
		}
	}
	return model.Section{Heading: SectionComparison, Rows: []model.Row{
		row("Invocations", cli.FormatNumber(int64(cur.Invocations)), cli.FormatNumber(int64(prev.Invocations)),
			cli.FormatChange(cur.Invocations, prev.Invocations)),
		row("Error rate", cli.FormatPercent(cur.ErrorRate()), cli.FormatPercent(prev.ErrorRate()), string(c.ErrorTrend)),
		row("Estimated cost", cli.FormatCost(cur.Cost, currency), cli.FormatCost(prev.Cost, currency), string(c.CostTrend)),
		row("Usage growth", "", "", strconv.FormatFloat(c.UsageGrowth, 'f', 2, 64)+"%"),
	}}
}

func budgetSection(st model.BudgetStatus, currency string) model.Section {
	status := "ok"
	if st.OverBudget {
		status = "over budget"
	}
	return model.Section{Heading: SectionBudget, Rows: []model.Row{
		kv("Monthly budget", cli.FormatCost(st.MonthlyBudget, currency)),
		kv("Window spend", cli.FormatCost(st.WindowSpend, currency)),
		kv("Daily burn rate", cli.FormatCost(st.DailyBurnRate, currency)),
		kv("Projected month", cli.FormatCost(st.ProjectedMonthly, currency)),
		kv("Budget used", cli.FormatPercent(st.BudgetUsedPercent)),
		kv("Status", status),
	}}
}

func recommendationSection(recs []string) model.Section {
	sec := model.Section{Heading: SectionRecommendations}
	for _, r := range recs {
		sec.Rows = append(sec.Rows, model.Row{{Key: "recommendation", Value: r}})
	}
	return sec
}
