package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all bedrockmon configuration.
type Config struct {
	General    GeneralConfig    `toml:"general"`
	Provider   ProviderConfig   `toml:"provider"`
	CloudWatch CloudWatchConfig `toml:"cloudwatch"`
	Prometheus PrometheusConfig `toml:"prometheus"`
	SQLite     SQLiteConfig     `toml:"sqlite"`
	Retry      RetryConfig      `toml:"retry"`
	Collector  CollectorConfig  `toml:"collector"`
	Detection  DetectionConfig  `toml:"detection"`
	Budget     BudgetConfig     `toml:"budget"`
	Pricing    PricingOverrides `toml:"pricing"`
	Sinks      SinksConfig      `toml:"sinks"`
	Logging    LoggingConfig    `toml:"logging"`
	Daemon     DaemonConfig     `toml:"daemon"`
}

// GeneralConfig holds the default report window and series selection.
type GeneralConfig struct {
	Environment string   `toml:"environment,omitempty"`
	Window      Duration `toml:"window"`
	Period      Duration `toml:"period"`
	Metrics     []string `toml:"metrics,omitempty"`
	GroupBy     []string `toml:"group_by,omitempty"`
	TopN        int      `toml:"top_n"`
	Currency    string   `toml:"currency"`
}

// ProviderConfig selects the metrics backend.
type ProviderConfig struct {
	Kind string `toml:"kind"` // cloudwatch, prometheus or sqlite
}

// CloudWatchConfig holds CloudWatch settings.
type CloudWatchConfig struct {
	Region     string   `toml:"region,omitempty"`
	Profile    string   `toml:"profile,omitempty"`
	Namespace  string   `toml:"namespace"`
	Dimensions []string `toml:"dimensions"`
}

// PrometheusConfig holds Prometheus HTTP API settings.
type PrometheusConfig struct {
	URL          string   `toml:"url,omitempty"`
	MetricPrefix string   `toml:"metric_prefix"`
	Dimensions   []string `toml:"dimensions"`
	MaxPoints    int      `toml:"max_points"`
}

// SQLiteConfig holds the local sample store location.
type SQLiteConfig struct {
	Path string `toml:"path,omitempty"`
}

// RetryConfig holds the provider retry policy.
type RetryConfig struct {
	MaxAttempts    int      `toml:"max_attempts"`
	BaseDelay      Duration `toml:"base_delay"`
	MaxDelay       Duration `toml:"max_delay"`
	Jitter         float64  `toml:"jitter"`
	AttemptTimeout Duration `toml:"attempt_timeout"`
}

// CollectorConfig bounds outbound provider traffic.
type CollectorConfig struct {
	Concurrency int     `toml:"concurrency"`
	RateLimit   float64 `toml:"rate_limit"` // requests per second, 0 = unlimited
	Burst       int     `toml:"burst"`
}

// DetectionConfig holds anomaly detection settings.
type DetectionConfig struct {
	ThresholdMultiplier float64            `toml:"threshold_multiplier"`
	MinSamples          int                `toml:"min_samples"`
	Floors              map[string]float64 `toml:"floors,omitempty"`
}

// BudgetConfig holds budget tracking settings.
type BudgetConfig struct {
	MonthlyUSD *float64 `toml:"monthly_usd,omitempty"`
}

// PricingOverrides allows user-defined pricing for specific models.
type PricingOverrides struct {
	Overrides map[string]ModelPricingOverride `toml:"overrides,omitempty"`
}

// ModelPricingOverride holds per-model pricing overrides.
type ModelPricingOverride struct {
	InputPerMTok  *float64 `toml:"input_per_mtok,omitempty"`
	OutputPerMTok *float64 `toml:"output_per_mtok,omitempty"`
}

// SinksConfig selects where reports go.
type SinksConfig struct {
	ReportDir   string `toml:"report_dir,omitempty"`
	Archive     bool   `toml:"archive"`
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix"`
	SNSTopicARN string `toml:"sns_topic_arn,omitempty"`
	WebhookURL  string `toml:"webhook_url,omitempty"`
	Desktop     bool   `toml:"desktop"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // console or json
}

// DaemonConfig holds background service settings.
type DaemonConfig struct {
	Addr     string   `toml:"addr"`
	Interval Duration `toml:"interval"`
	Events   int      `toml:"events_buffer"`
}

// Duration is a time.Duration written as a Go duration string in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			Environment: "dev",
			Window:      Duration{24 * time.Hour},
			Period:      Duration{5 * time.Minute},
			TopN:        10,
			Currency:    "USD",
		},
		Provider: ProviderConfig{Kind: "cloudwatch"},
		CloudWatch: CloudWatchConfig{
			Namespace:  "AWS/Bedrock",
			Dimensions: []string{"ModelId"},
		},
		Prometheus: PrometheusConfig{
			MetricPrefix: "bedrock_",
			Dimensions:   []string{"ModelId", "UserId"},
			MaxPoints:    11000,
		},
		Retry: RetryConfig{
			MaxAttempts:    4,
			BaseDelay:      Duration{500 * time.Millisecond},
			MaxDelay:       Duration{10 * time.Second},
			Jitter:         0.2,
			AttemptTimeout: Duration{30 * time.Second},
		},
		Collector: CollectorConfig{
			Concurrency: 4,
			RateLimit:   10,
			Burst:       5,
		},
		Detection: DetectionConfig{
			ThresholdMultiplier: 2.0,
			MinSamples:          5,
			Floors:              map[string]float64{"ErrorRate": 5},
		},
		Sinks: SinksConfig{
			S3Prefix: "reports",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Daemon: DaemonConfig{
			Addr:     "127.0.0.1:8787",
			Interval: Duration{15 * time.Minute},
			Events:   200,
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bedrockmon")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "bedrockmon")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DataDir returns the XDG-compliant data directory for the sample store.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "bedrockmon")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "bedrockmon")
}

// StorePath returns the SQLite path, defaulting into DataDir.
func (c Config) StorePath() string {
	if c.SQLite.Path != "" {
		return c.SQLite.Path
	}
	return filepath.Join(DataDir(), "bedrockmon.db")
}

// LoadFrom reads the config file at path, returning defaults if it doesn't
// exist. A .env file in the working directory or config directory is loaded
// first, then environment variables override file values.
func LoadFrom(path string) (Config, error) {
	loadDotEnv()
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path comes from --config
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}

	applyEnv(&cfg, os.LookupEnv)
	return cfg, nil
}

func loadDotEnv() {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}
	paths = append(paths, filepath.Join(ConfigDir(), ".env"))
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

// applyEnv overlays environment variables onto file values. AWS_* and the
// unprefixed names match what existing Bedrock deployments already export.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("ENVIRONMENT", &cfg.General.Environment)
	str("AWS_REGION", &cfg.CloudWatch.Region)
	str("AWS_PROFILE", &cfg.CloudWatch.Profile)
	str("REPORT_BUCKET", &cfg.Sinks.S3Bucket)
	str("SNS_TOPIC_ARN", &cfg.Sinks.SNSTopicARN)
	str("BEDROCKMON_PROVIDER", &cfg.Provider.Kind)
	str("BEDROCKMON_PROMETHEUS_URL", &cfg.Prometheus.URL)
	str("BEDROCKMON_WEBHOOK_URL", &cfg.Sinks.WebhookURL)
	str("BEDROCKMON_LOG_LEVEL", &cfg.Logging.Level)
	str("BEDROCKMON_DB", &cfg.SQLite.Path)

	if v, ok := lookup("BEDROCKMON_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f > 0 {
			cfg.Detection.ThresholdMultiplier = f
		}
	}
	if v, ok := lookup("BEDROCKMON_MONTHLY_BUDGET"); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f > 0 {
			cfg.Budget.MonthlyUSD = &f
		}
	}
}

// SaveTo writes the config to an explicit path.
func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // path comes from --config
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
