package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/theirongolddev/bedrockmon/internal/anomaly"
	"github.com/theirongolddev/bedrockmon/internal/collector"
	"github.com/theirongolddev/bedrockmon/internal/config"
	"github.com/theirongolddev/bedrockmon/internal/cost"
	"github.com/theirongolddev/bedrockmon/internal/logging"
	"github.com/theirongolddev/bedrockmon/internal/model"
	"github.com/theirongolddev/bedrockmon/internal/report"
)

// DefaultTitle is used when a request carries no title.
const DefaultTitle = "Bedrock usage report"

// Request describes one analysis run.
type Request struct {
	Start       time.Time
	End         time.Time
	MetricNames []string
	GroupBy     []string
	Period      time.Duration

	// ThresholdMultiplier and MinSamples default to anomaly.DefaultOptions
	// (k=2, five samples) when zero, so an explicit k of 0 is not expressible.
	// Negative values are passed through and fail with
	// anomaly.ErrInvalidOptions.
	ThresholdMultiplier float64
	MinSamples          int
	// BaselineStart and BaselineEnd restrict the baseline samples. Zero
	// means the whole window.
	BaselineStart time.Time
	BaselineEnd   time.Time
	// Floors replaces the default per-metric floors when non-nil.
	Floors map[string]float64

	// Prices nil means every record is unestimated.
	Prices      cost.PriceTable
	TopN        int
	Title       string
	Environment string
	Currency    string

	// ComparePrevious also collects the equally long window ending at
	// Start and adds a period comparison.
	ComparePrevious bool
	MonthlyBudget   *decimal.Decimal
}

// Result is everything a run produced.
type Result struct {
	Series     model.SeriesMap
	Collection *collector.Result
	Anomalies  []model.Anomaly
	Baselines  []model.Baseline
	Costs      []model.CostRecord
	Previous   *model.PeriodTotals
	Report     model.Report
}

// Runner wires the collector, detector, estimator and report builder.
type Runner struct {
	collector *collector.Collector
	log       *zap.Logger

	// Now and NewID are passed to the report builder; nil uses the
	// builder's defaults.
	Now   func() time.Time
	NewID func() string
}

// NewRunner creates a Runner reading through c.
func NewRunner(c *collector.Collector, log *zap.Logger) *Runner {
	return &Runner{collector: c, log: logging.OrNop(log)}
}

func (req Request) detection() anomaly.Options {
	opts := anomaly.DefaultOptions()
	if req.ThresholdMultiplier != 0 {
		opts.ThresholdMultiplier = req.ThresholdMultiplier
	}
	if req.MinSamples != 0 {
		opts.MinSamples = req.MinSamples
	}
	if req.Floors != nil {
		opts.Floors = req.Floors
	}
	opts.BaselineStart, opts.BaselineEnd = req.BaselineStart, req.BaselineEnd
	return opts
}

// Run collects the window, detects anomalies and estimates cost
// concurrently, then assembles the report. Invalid detection options and
// collector validation errors fail before any provider call completes.
// Per-series provider failures end up in the report's failure section.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	detectOpts := req.detection()
	if err := detectOpts.Validate(); err != nil {
		return nil, err
	}
	if detectOpts.BaselineStart.IsZero() && detectOpts.BaselineEnd.IsZero() {
		detectOpts = anomaly.Window(detectOpts, req.Start, req.End)
	}

	prices := req.Prices
	if prices == nil {
		prices = config.StaticPrices{}
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	creq := collector.Request{
		Start:       req.Start,
		End:         req.End,
		MetricNames: req.MetricNames,
		GroupBy:     req.GroupBy,
		Period:      req.Period,
	}

	var cur, prev *collector.Result
	var prevErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := r.collector.Collect(gctx, creq)
		if err != nil {
			return err
		}
		cur = res
		return nil
	})
	if req.ComparePrevious {
		preq := creq
		preq.Start = req.Start.Add(-req.End.Sub(req.Start))
		preq.End = req.Start
		g.Go(func() error {
			prev, prevErr = r.collector.Collect(gctx, preq)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	series := anomaly.WithErrorRates(cur.Series)

	var anomalies []model.Anomaly
	var baselines []model.Baseline
	var costs []model.CostRecord
	g, _ = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		anomalies, err = anomaly.Detect(series, detectOpts)
		if err != nil {
			return fmt.Errorf("detecting anomalies: %w", err)
		}
		baselines, err = anomaly.Baselines(series, detectOpts)
		return err
	})
	g.Go(func() error {
		costs = cost.Estimate(cur.Series, prices, currency)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Series:     series,
		Collection: cur,
		Anomalies:  anomalies,
		Baselines:  baselines,
		Costs:      costs,
	}

	if req.ComparePrevious {
		if prevErr != nil {
			r.log.Warn("previous window collection failed; skipping comparison", zap.Error(prevErr))
		} else {
			totals := report.Totals(prev.Series, cost.Estimate(prev.Series, prices, currency), prev.Start, prev.End)
			result.Previous = &totals
		}
	}

	title := req.Title
	if title == "" {
		title = DefaultTitle
	}
	result.Report = report.Build(title, series, anomalies, costs, report.Options{
		Environment:   req.Environment,
		WindowStart:   req.Start,
		WindowEnd:     req.End,
		TopN:          req.TopN,
		GroupBy:       req.GroupBy,
		Currency:      currency,
		Failures:      cur.Failures,
		Previous:      result.Previous,
		MonthlyBudget: req.MonthlyBudget,
		Now:           r.Now,
		NewID:         r.NewID,
	})

	warn, crit := anomaly.CountBySeverity(anomalies)
	r.log.Info("run finished",
		zap.Int("series", len(series)),
		zap.Int("failures", len(cur.Failures)),
		zap.Int("warnings", warn),
		zap.Int("critical", crit),
		zap.String("cost", cost.Total(costs).StringFixed(2)),
	)
	return result, nil
}
