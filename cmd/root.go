// Package cmd implements the bedrockmon CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/theirongolddev/bedrockmon/internal/cli"
	"github.com/theirongolddev/bedrockmon/internal/collector"
	"github.com/theirongolddev/bedrockmon/internal/config"
	"github.com/theirongolddev/bedrockmon/internal/logging"
	"github.com/theirongolddev/bedrockmon/internal/model"
	"github.com/theirongolddev/bedrockmon/internal/pipeline"
	"github.com/theirongolddev/bedrockmon/internal/provider"
	"github.com/theirongolddev/bedrockmon/internal/retry"
	"github.com/theirongolddev/bedrockmon/internal/store"
)

// Provider kinds.
const (
	providerCloudWatch = "cloudwatch"
	providerPrometheus = "prometheus"
	providerSQLite     = "sqlite"
	providerFiles      = "files"
)

var (
	flagConfig   string
	flagSince    time.Duration
	flagStart    string
	flagEnd      string
	flagMetrics  []string
	flagGroupBy  []string
	flagPeriod   time.Duration
	flagProvider string
	flagDataDir  string
	flagQuiet    bool
	flagLogLevel string
)

// Loaded once per invocation by the root pre-run hook.
var (
	appCfg config.Config
	appLog *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bedrockmon",
	Short: "Bedrock usage, anomaly and cost monitor",
	Long: "Collect Amazon Bedrock usage metrics, flag statistical anomalies, " +
		"estimate cost and build reports.",
	PersistentPreRunE: loadSettings,
	RunE:              runReport,
	SilenceUsage:      true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	err := rootCmd.Execute()
	logging.Flush(appLog)
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default "+config.ConfigPath()+")")
	rootCmd.PersistentFlags().DurationVar(&flagSince, "since", 0, "Trailing window ending at --end (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagStart, "start", "", "Window start (RFC 3339 or YYYY-MM-DD)")
	rootCmd.PersistentFlags().StringVar(&flagEnd, "end", "", "Window end, exclusive (RFC 3339 or YYYY-MM-DD, default now)")
	rootCmd.PersistentFlags().StringSliceVar(&flagMetrics, "metrics", nil, "Metric names to collect")
	rootCmd.PersistentFlags().StringSliceVar(&flagGroupBy, "group-by", nil, "Dimensions to group by (ModelId, UserId)")
	rootCmd.PersistentFlags().DurationVar(&flagPeriod, "period", 0, "Bucket width (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "Metrics backend: cloudwatch, prometheus, sqlite or files")
	rootCmd.PersistentFlags().StringVarP(&flagDataDir, "data-dir", "d", ".", "JSONL directory for the files provider and import")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn or error")

	addReportFlags(rootCmd)
}

func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return config.ConfigPath()
}

func loadSettings(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadFrom(configPath())
	if err != nil {
		return err
	}
	if flagProvider != "" {
		cfg.Provider.Kind = flagProvider
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	appCfg, appLog = cfg, log
	return nil
}

// resolveWindow returns [start, end) from the window flags.
func resolveWindow() (time.Time, time.Time, error) {
	end := time.Now().UTC()
	if flagEnd != "" {
		t, err := parseTimeFlag(flagEnd)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--end: %w", err)
		}
		end = t
	}

	if flagStart != "" {
		start, err := parseTimeFlag(flagStart)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--start: %w", err)
		}
		return start, end, nil
	}

	since := flagSince
	if since <= 0 {
		since = appCfg.General.Window.Duration
	}
	return end.Add(-since), end, nil
}

func parseTimeFlag(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

func loadAWSConfig(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if appCfg.CloudWatch.Region != "" {
		opts = append(opts, awsconfig.WithRegion(appCfg.CloudWatch.Region))
	}
	if appCfg.CloudWatch.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(appCfg.CloudWatch.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// openProvider builds the configured metrics backend. The returned func
// releases it.
func openProvider(ctx context.Context) (provider.Provider, func(), error) {
	noop := func() {}
	switch kind := strings.ToLower(appCfg.Provider.Kind); kind {
	case providerCloudWatch:
		awsCfg, err := loadAWSConfig(ctx)
		if err != nil {
			return nil, noop, err
		}
		cw := appCfg.CloudWatch
		return provider.NewCloudWatchFromConfig(awsCfg, cw.Namespace, cw.Dimensions, appLog), noop, nil

	case providerPrometheus:
		pc := appCfg.Prometheus
		if pc.URL == "" {
			return nil, noop, errors.New("prometheus provider needs prometheus.url or BEDROCKMON_PROMETHEUS_URL")
		}
		return provider.NewPrometheus(pc.URL, pc.MetricPrefix, pc.Dimensions, pc.MaxPoints, appLog), noop, nil

	case providerSQLite:
		st, err := store.Open(appCfg.StorePath())
		if err != nil {
			return nil, noop, err
		}
		return provider.NewReplay(providerSQLite, st, nil, 0), func() { _ = st.Close() }, nil

	case providerFiles:
		res, err := pipeline.Load(flagDataDir, progressFn("Parsing"))
		if err != nil {
			return nil, noop, err
		}
		if !flagQuiet {
			fmt.Fprintf(os.Stderr, "\r  Parsed %s samples from %d files    \n",
				cli.FormatNumber(int64(len(res.Samples))), res.ParsedFiles)
		}
		return res.Provider(nil), noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown provider %q: want cloudwatch, prometheus, sqlite or files", kind)
	}
}

func progressFn(label string) pipeline.ProgressFunc {
	return func(current, total int) {
		if flagQuiet {
			return
		}
		if current%100 == 0 || current == total {
			fmt.Fprintf(os.Stderr, "\r  %s [%d/%d]", label, current, total)
		}
	}
}

func newCollector(p provider.Provider) *collector.Collector {
	rc := appCfg.Retry
	return collector.New(p, collector.Options{
		Concurrency: appCfg.Collector.Concurrency,
		Retry: retry.Policy{
			MaxAttempts:    rc.MaxAttempts,
			BaseDelay:      rc.BaseDelay.Duration,
			MaxDelay:       rc.MaxDelay.Duration,
			Jitter:         rc.Jitter,
			AttemptTimeout: rc.AttemptTimeout.Duration,
		},
		Limiter:       collector.NewLimiter(appCfg.Collector.RateLimit, appCfg.Collector.Burst),
		DefaultPeriod: appCfg.General.Period.Duration,
		Logger:        appLog,
	})
}

// baseRequest builds a run request from config and flags.
func baseRequest(start, end time.Time) pipeline.Request {
	g := appCfg.General
	req := pipeline.Request{
		Start:               start,
		End:                 end,
		MetricNames:         firstNonEmpty(flagMetrics, g.Metrics, model.DefaultMetrics),
		GroupBy:             firstNonEmpty(flagGroupBy, g.GroupBy, nil),
		Period:              g.Period.Duration,
		ThresholdMultiplier: appCfg.Detection.ThresholdMultiplier,
		MinSamples:          appCfg.Detection.MinSamples,
		Floors:              appCfg.Detection.Floors,
		Prices:              config.NewPriceTable(end, appCfg.Pricing),
		TopN:                g.TopN,
		Environment:         g.Environment,
		Currency:            g.Currency,
	}
	if flagPeriod > 0 {
		req.Period = flagPeriod
	}
	if b := appCfg.Budget.MonthlyUSD; b != nil {
		d := decimal.NewFromFloat(*b)
		req.MonthlyBudget = &d
	}
	return req
}

func firstNonEmpty(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}

// runAnalysis opens the provider, resolves the window and runs the
// pipeline. edit adjusts the request before the run.
func runAnalysis(ctx context.Context, edit func(*pipeline.Request)) (*pipeline.Result, error) {
	start, end, err := resolveWindow()
	if err != nil {
		return nil, err
	}

	p, closeFn, err := openProvider(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	req := baseRequest(start, end)
	if edit != nil {
		edit(&req)
	}

	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Collecting %d metrics from %s (%s)\n",
			len(req.MetricNames), p.Name(), cli.FormatWindow(start, end))
	}
	return pipeline.NewRunner(newCollector(p), appLog).Run(ctx, req)
}

// printFailures notes series that could not be collected.
func printFailures(res *pipeline.Result) {
	if !res.Collection.Partial() {
		return
	}
	fmt.Print(cli.RenderNote(fmt.Sprintf("%d series could not be collected; results are partial",
		len(res.Collection.Failures))))
	fmt.Println()
}
