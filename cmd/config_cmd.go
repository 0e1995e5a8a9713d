package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/bedrockmon/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg := appCfg

	fmt.Printf("  Config file: %s\n", configPath())
	if config.Exists(configPath()) {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Environment: %s\n", orNone(cfg.General.Environment))
	fmt.Printf("    Window:      %s\n", cfg.General.Window.Duration)
	fmt.Printf("    Period:      %s\n", cfg.General.Period.Duration)
	fmt.Printf("    Metrics:     %s\n", listOrDefault(cfg.General.Metrics))
	fmt.Printf("    Group by:    %s\n", listOrDefault(cfg.General.GroupBy))
	fmt.Printf("    Currency:    %s\n", cfg.General.Currency)
	fmt.Println()

	fmt.Println("  [Provider]")
	fmt.Printf("    Kind: %s\n", cfg.Provider.Kind)
	switch cfg.Provider.Kind {
	case providerCloudWatch:
		fmt.Printf("    Region:     %s\n", orNone(cfg.CloudWatch.Region))
		fmt.Printf("    Profile:    %s\n", orNone(cfg.CloudWatch.Profile))
		fmt.Printf("    Namespace:  %s\n", cfg.CloudWatch.Namespace)
		fmt.Printf("    Dimensions: %s\n", strings.Join(cfg.CloudWatch.Dimensions, ", "))
	case providerPrometheus:
		fmt.Printf("    URL:        %s\n", orNone(cfg.Prometheus.URL))
		fmt.Printf("    Prefix:     %s\n", cfg.Prometheus.MetricPrefix)
		fmt.Printf("    Dimensions: %s\n", strings.Join(cfg.Prometheus.Dimensions, ", "))
	}
	fmt.Printf("    Store:      %s\n", cfg.StorePath())
	fmt.Println()

	fmt.Println("  [Detection]")
	fmt.Printf("    Threshold:   %.2fσ\n", cfg.Detection.ThresholdMultiplier)
	fmt.Printf("    Min samples: %d\n", cfg.Detection.MinSamples)
	for metric, floor := range cfg.Detection.Floors {
		fmt.Printf("    Floor:       %s <= %g ignored\n", metric, floor)
	}
	fmt.Println()

	fmt.Println("  [Collector]")
	fmt.Printf("    Concurrency: %d\n", cfg.Collector.Concurrency)
	if cfg.Collector.RateLimit > 0 {
		fmt.Printf("    Rate limit:  %.1f req/s (burst %d)\n", cfg.Collector.RateLimit, cfg.Collector.Burst)
	} else {
		fmt.Println("    Rate limit:  unlimited")
	}
	fmt.Printf("    Attempts:    %d\n", cfg.Retry.MaxAttempts)
	fmt.Println()

	fmt.Println("  [Sinks]")
	fmt.Printf("    Report dir: %s\n", orNone(cfg.Sinks.ReportDir))
	fmt.Printf("    Archive:    %v\n", cfg.Sinks.Archive)
	if cfg.Sinks.S3Bucket != "" {
		fmt.Printf("    S3:         s3://%s/%s\n", cfg.Sinks.S3Bucket, cfg.Sinks.S3Prefix)
	} else {
		fmt.Println("    S3:         not configured")
	}
	fmt.Printf("    SNS topic:  %s\n", maskSecret(cfg.Sinks.SNSTopicARN))
	fmt.Printf("    Webhook:    %s\n", maskSecret(cfg.Sinks.WebhookURL))
	fmt.Printf("    Desktop:    %v\n", cfg.Sinks.Desktop)
	fmt.Println()

	fmt.Println("  [Budget]")
	if cfg.Budget.MonthlyUSD != nil {
		fmt.Printf("    Monthly budget: $%.0f\n", *cfg.Budget.MonthlyUSD)
	} else {
		fmt.Println("    Monthly budget: not set")
	}
	fmt.Printf("    Price overrides: %d\n", len(cfg.Pricing.Overrides))
	fmt.Println()

	fmt.Println("  [Daemon]")
	fmt.Printf("    Address:  %s\n", cfg.Daemon.Addr)
	fmt.Printf("    Interval: %s\n", cfg.Daemon.Interval.Duration)
	fmt.Println()

	fmt.Println("  Run `bedrockmon setup` to reconfigure.")
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "not set"
	}
	return s
}

func listOrDefault(l []string) string {
	if len(l) == 0 {
		return "default"
	}
	return strings.Join(l, ", ")
}

// maskSecret hides the middle of webhook URLs and topic ARNs, which often
// carry tokens or account IDs.
func maskSecret(s string) string {
	switch {
	case s == "":
		return "not configured"
	case len(s) > 16:
		return s[:8] + "..." + s[len(s)-4:]
	case len(s) > 4:
		return s[:4] + "..."
	default:
		return "****"
	}
}
