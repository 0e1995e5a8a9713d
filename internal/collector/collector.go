// Package collector pulls bucketed metric series from a provider.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/theirongolddev/bedrockmon/internal/logging"
	"github.com/theirongolddev/bedrockmon/internal/model"
	"github.com/theirongolddev/bedrockmon/internal/provider"
	"github.com/theirongolddev/bedrockmon/internal/retry"
)

// DefaultPeriod is the bucket width used when a request leaves it unset.
const DefaultPeriod = 5 * time.Minute

// Request selects what to collect.
type Request struct {
	Start       time.Time
	End         time.Time
	MetricNames []string
	GroupBy     []string
	Period      time.Duration
}

// Result holds the successfully collected series and the keys that failed.
type Result struct {
	Start    time.Time
	End      time.Time
	Period   time.Duration
	Series   model.SeriesMap
	Failures map[model.SeriesKey]error
}

// Partial reports whether some keys failed.
func (r *Result) Partial() bool { return len(r.Failures) > 0 }

// FailedKeys returns the failed keys in metric, then dimension order.
func (r *Result) FailedKeys() []model.SeriesKey {
	m := make(model.SeriesMap, len(r.Failures))
	for k := range r.Failures {
		m[k] = nil
	}
	return m.Keys()
}

// Options tunes the collector.
type Options struct {
	// Concurrency bounds in-flight provider calls. Defaults to 4.
	Concurrency int
	// Retry wraps every provider call. Retryable defaults to
	// provider.IsRetryable.
	Retry retry.Policy
	// Limiter paces provider calls. Nil means unlimited.
	Limiter *rate.Limiter
	// DefaultPeriod replaces a zero Request.Period.
	DefaultPeriod time.Duration
	// MaxPages guards against providers that never stop paging.
	MaxPages int
	Logger   *zap.Logger
}

// NewLimiter builds a token bucket from requests per second. A
// non-positive rate disables limiting.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Collector fetches series from one provider.
type Collector struct {
	p    provider.Provider
	opts Options
	log  *zap.Logger
}

// New creates a Collector.
func New(p provider.Provider, opts Options) *Collector {
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = provider.IsRetryable
	}
	if opts.DefaultPeriod <= 0 {
		opts.DefaultPeriod = DefaultPeriod
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1000
	}
	return &Collector{p: p, opts: opts, log: logging.OrNop(opts.Logger)}
}

// Provider returns the backend the collector reads from.
func (c *Collector) Provider() provider.Provider { return c.p }

type job struct {
	key  model.SeriesKey
	dims map[string]string
}

type outcome struct {
	series *model.MetricSeries
	err    error
}

// Collect fetches every (metric, dimension combination) in the window.
// Validation errors are returned immediately. Provider failures are
// recorded per key in Result.Failures and never discard other keys.
// Cancellation of ctx returns ctx.Err().
func (c *Collector) Collect(ctx context.Context, req Request) (*Result, error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}
	period := req.Period
	if period <= 0 {
		period = c.opts.DefaultPeriod
	}
	metrics := dedupe(req.MetricNames)
	began := time.Now()

	result := &Result{
		Start:    req.Start,
		End:      req.End,
		Period:   period,
		Series:   make(model.SeriesMap),
		Failures: make(map[model.SeriesKey]error),
	}

	// Discover the dimension combinations of each metric.
	combos := make([][]map[string]string, len(metrics))
	discoverErrs := make([]error, len(metrics))
	c.runPool(ctx, len(metrics), func(i int) {
		var list []map[string]string
		attempts, err := c.call(ctx, func(actx context.Context) error {
			var err error
			list, err = c.p.ListSeries(actx, metrics[i], req.GroupBy, req.Start, req.End)
			return err
		})
		if err != nil {
			discoverErrs[i] = c.wrap(model.SeriesKey{Metric: metrics[i]}, req, attempts, err)
			return
		}
		combos[i] = list
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var jobs []job
	seen := make(map[model.SeriesKey]bool)
	for i, m := range metrics {
		if discoverErrs[i] != nil {
			key := model.SeriesKey{Metric: m}
			result.Failures[key] = discoverErrs[i]
			c.log.Warn("series discovery failed", zap.String("metric", m), zap.Error(discoverErrs[i]))
			continue
		}
		for _, dims := range combos[i] {
			key := model.SeriesKey{Metric: m, Dimensions: model.NewDimensionKey(dims)}
			if seen[key] {
				continue
			}
			seen[key] = true
			jobs = append(jobs, job{key: key, dims: dims})
		}
	}

	outcomes := make([]outcome, len(jobs))
	var done atomic.Int64
	c.runPool(ctx, len(jobs), func(i int) {
		s, err := c.fetch(ctx, jobs[i], req, period)
		outcomes[i] = outcome{series: s, err: err}
		n := done.Add(1)
		c.log.Debug("series fetched",
			zap.Stringer("key", jobs[i].key),
			zap.Int64("done", n),
			zap.Int("total", len(jobs)),
		)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, o := range outcomes {
		if o.err != nil {
			result.Failures[jobs[i].key] = o.err
			c.log.Warn("series collection failed", zap.Stringer("key", jobs[i].key), zap.Error(o.err))
			continue
		}
		result.Series[jobs[i].key] = o.series
	}

	c.log.Info("collection finished",
		zap.String("provider", c.p.Name()),
		zap.Int("series", len(result.Series)),
		zap.Int("failures", len(result.Failures)),
		zap.Duration("elapsed", time.Since(began)),
	)
	return result, nil
}

func (c *Collector) validate(req Request) error {
	if !req.Start.Before(req.End) {
		return &InvalidRangeError{Start: req.Start, End: req.End}
	}
	if len(dedupe(req.MetricNames)) == 0 {
		return ErrNoMetrics
	}
	for _, d := range req.GroupBy {
		if !provider.Supports(c.p, d) {
			return &UnsupportedDimensionError{
				Dimension: d,
				Provider:  c.p.Name(),
				Supported: c.p.SupportedDimensions(),
			}
		}
	}
	return nil
}

// fetch follows page tokens for one key until the provider stops paging.
// A failure on any page fails the whole key.
func (c *Collector) fetch(ctx context.Context, j job, req Request, period time.Duration) (*model.MetricSeries, error) {
	q := provider.Query{
		MetricName: j.key.Metric,
		Dimensions: j.dims,
		Start:      req.Start,
		End:        req.End,
		Period:     period,
	}

	unit := model.UnitForMetric(j.key.Metric)
	var points []provider.Point
	tokens := make(map[string]bool)
	for pages := 0; ; pages++ {
		if pages >= c.opts.MaxPages {
			return nil, fmt.Errorf("%w: more than %d pages", ErrPageLoop, c.opts.MaxPages)
		}
		var page provider.Page
		attempts, err := c.call(ctx, func(actx context.Context) error {
			var err error
			page, err = c.p.Query(actx, q)
			return err
		})
		if err != nil {
			return nil, c.wrap(j.key, req, attempts, err)
		}
		if page.Unit != "" {
			unit = page.Unit
		}
		points = append(points, page.Points...)

		if page.NextToken == "" {
			break
		}
		if tokens[page.NextToken] {
			return nil, ErrPageLoop
		}
		tokens[page.NextToken] = true
		q.PageToken = page.NextToken
	}

	return Bucketize(j.key, unit, points, req.Start, req.End, period), nil
}

// call paces and retries one provider call.
func (c *Collector) call(ctx context.Context, op func(context.Context) error) (int, error) {
	return c.opts.Retry.Do(ctx, func(actx context.Context) error {
		if c.opts.Limiter != nil {
			if err := c.opts.Limiter.Wait(actx); err != nil {
				return err
			}
		}
		return op(actx)
	})
}

// wrap turns retry exhaustion into a ProviderUnavailableError. Permanent
// errors are returned with key context only.
func (c *Collector) wrap(key model.SeriesKey, req Request, attempts int, err error) error {
	if errors.Is(err, retry.ErrExhausted) {
		return &ProviderUnavailableError{
			Provider:   c.p.Name(),
			Metric:     key.Metric,
			Dimensions: key.Dimensions,
			Start:      req.Start,
			End:        req.End,
			Attempts:   attempts,
			Cause:      err,
		}
	}
	return fmt.Errorf("collecting %s: %w", key, err)
}

// runPool runs fn for 0..n-1 over a bounded worker pool. Workers stop
// taking new work once ctx is done.
func (c *Collector) runPool(ctx context.Context, n int, fn func(i int)) {
	if n == 0 {
		return
	}
	numWorkers := c.opts.Concurrency
	if numWorkers > n {
		numWorkers = n
	}

	work := make(chan int, n)
	for i := 0; i < n; i++ {
		work <- i
	}
	close(work)

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for idx := range work {
				if ctx.Err() != nil {
					return
				}
				fn(idx)
			}
		}()
	}
	wg.Wait()
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
