package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/bedrockmon/internal/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive configuration wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

var windowOptions = []struct {
	label string
	value time.Duration
}{
	{"1 hour", time.Hour},
	{"24 hours", 24 * time.Hour},
	{"7 days", 7 * 24 * time.Hour},
	{"30 days", 30 * 24 * time.Hour},
}

// setupAnswers holds form values as strings; huh inputs bind to strings.
type setupAnswers struct {
	provider    string
	region      string
	profile     string
	promURL     string
	environment string
	window      string
	threshold   string
	budget      string
	s3Bucket    string
	snsTopic    string
	webhook     string
	desktop     bool
	archive     bool
	save        bool
}

func answersFrom(cfg config.Config) setupAnswers {
	a := setupAnswers{
		provider:    cfg.Provider.Kind,
		region:      cfg.CloudWatch.Region,
		profile:     cfg.CloudWatch.Profile,
		promURL:     cfg.Prometheus.URL,
		environment: cfg.General.Environment,
		window:      cfg.General.Window.String(),
		threshold:   strconv.FormatFloat(cfg.Detection.ThresholdMultiplier, 'f', -1, 64),
		s3Bucket:    cfg.Sinks.S3Bucket,
		snsTopic:    cfg.Sinks.SNSTopicARN,
		webhook:     cfg.Sinks.WebhookURL,
		desktop:     cfg.Sinks.Desktop,
		archive:     cfg.Sinks.Archive,
		save:        true,
	}
	if cfg.Budget.MonthlyUSD != nil {
		a.budget = strconv.FormatFloat(*cfg.Budget.MonthlyUSD, 'f', -1, 64)
	}
	return a
}

func newSetupForm(a *setupAnswers) *huh.Form {
	windows := make([]huh.Option[string], 0, len(windowOptions))
	for _, w := range windowOptions {
		windows = append(windows, huh.NewOption(w.label, w.value.String()))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Metrics backend").
				Options(
					huh.NewOption("CloudWatch (AWS/Bedrock)", providerCloudWatch),
					huh.NewOption("Prometheus HTTP API", providerPrometheus),
					huh.NewOption("Local store (bedrockmon import)", providerSQLite),
				).
				Value(&a.provider),
			huh.NewInput().
				Title("Environment").
				Description("Shown in report titles and alerts.").
				Value(&a.environment),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("AWS region").
				Placeholder("us-east-1 (blank uses the SDK default)").
				Value(&a.region),
			huh.NewInput().
				Title("AWS profile").
				Placeholder("blank uses the SDK default").
				Value(&a.profile),
		).WithHideFunc(func() bool { return a.provider != providerCloudWatch }),
		huh.NewGroup(
			huh.NewInput().
				Title("Prometheus URL").
				Placeholder("http://localhost:9090").
				Value(&a.promURL).
				Validate(validateURL(true)),
		).WithHideFunc(func() bool { return a.provider != providerPrometheus }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default report window").
				Options(windows...).
				Value(&a.window),
			huh.NewInput().
				Title("Anomaly threshold (standard deviations)").
				Value(&a.threshold).
				Validate(validatePositive(false)),
			huh.NewInput().
				Title("Monthly budget in USD").
				Placeholder("blank for none").
				Value(&a.budget).
				Validate(validatePositive(true)),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("S3 bucket for reports").
				Placeholder("blank to skip").
				Value(&a.s3Bucket),
			huh.NewInput().
				Title("SNS topic ARN for alerts").
				Placeholder("blank to skip").
				Value(&a.snsTopic),
			huh.NewInput().
				Title("Webhook URL").
				Placeholder("blank to skip").
				Value(&a.webhook).
				Validate(validateURL(false)),
			huh.NewConfirm().
				Title("Desktop notifications on anomalies?").
				Value(&a.desktop),
			huh.NewConfirm().
				Title("Archive reports in the local store?").
				Value(&a.archive),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save configuration?").
				Affirmative("Save").
				Negative("Discard").
				Value(&a.save),
		),
	)
}

func validateURL(required bool) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			if required {
				return errors.New("required")
			}
			return nil
		}
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("want an http(s) URL")
		}
		return nil
	}
}

func validatePositive(optional bool) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" && optional {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f <= 0 {
			return errors.New("want a positive number")
		}
		return nil
	}
}

// apply copies validated answers onto cfg.
func (a setupAnswers) apply(cfg *config.Config) error {
	cfg.Provider.Kind = a.provider
	cfg.General.Environment = strings.TrimSpace(a.environment)
	cfg.CloudWatch.Region = strings.TrimSpace(a.region)
	cfg.CloudWatch.Profile = strings.TrimSpace(a.profile)
	cfg.Prometheus.URL = strings.TrimSpace(a.promURL)
	cfg.Sinks.S3Bucket = strings.TrimSpace(a.s3Bucket)
	cfg.Sinks.SNSTopicARN = strings.TrimSpace(a.snsTopic)
	cfg.Sinks.WebhookURL = strings.TrimSpace(a.webhook)
	cfg.Sinks.Desktop = a.desktop
	cfg.Sinks.Archive = a.archive

	window, err := time.ParseDuration(a.window)
	if err != nil {
		return fmt.Errorf("window: %w", err)
	}
	cfg.General.Window.Duration = window

	k, err := strconv.ParseFloat(strings.TrimSpace(a.threshold), 64)
	if err != nil {
		return fmt.Errorf("threshold: %w", err)
	}
	cfg.Detection.ThresholdMultiplier = k

	cfg.Budget.MonthlyUSD = nil
	if b := strings.TrimSpace(a.budget); b != "" {
		v, err := strconv.ParseFloat(b, 64)
		if err != nil {
			return fmt.Errorf("budget: %w", err)
		}
		cfg.Budget.MonthlyUSD = &v
	}
	return nil
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg := appCfg
	answers := answersFrom(cfg)

	fmt.Println()
	fmt.Println("  Welcome to bedrockmon!")
	fmt.Println()

	if err := newSetupForm(&answers).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("  Setup aborted; nothing saved.")
			return nil
		}
		return err
	}
	if !answers.save {
		fmt.Println("  Discarded.")
		return nil
	}

	if err := answers.apply(&cfg); err != nil {
		return err
	}
	if err := config.SaveTo(configPath(), cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", configPath())
	fmt.Println("  Run `bedrockmon setup` anytime to reconfigure.")
	fmt.Println()
	return nil
}
