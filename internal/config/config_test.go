package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.General.Period.Duration != 5*time.Minute {
		t.Fatalf("default period = %v, want 5m", cfg.General.Period)
	}
	if cfg.Detection.ThresholdMultiplier != 2.0 {
		t.Fatalf("default threshold = %v, want 2", cfg.Detection.ThresholdMultiplier)
	}
}

func TestLoadFromParsesDurationsAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[general]
window = "6h"
period = "1m"
top_n = 3

[provider]
kind = "prometheus"

[pricing.overrides."custom.model"]
input_per_mtok = 2.5
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.General.Window.Duration != 6*time.Hour || cfg.General.Period.Duration != time.Minute {
		t.Fatalf("window/period = %v/%v", cfg.General.Window, cfg.General.Period)
	}
	if cfg.General.TopN != 3 || cfg.Provider.Kind != "prometheus" {
		t.Fatalf("general = %+v provider = %+v", cfg.General, cfg.Provider)
	}
	o, ok := cfg.Pricing.Overrides["custom.model"]
	if !ok || o.InputPerMTok == nil || *o.InputPerMTok != 2.5 {
		t.Fatalf("override = %+v", o)
	}
	if cfg.Retry.MaxAttempts != 4 {
		t.Fatalf("unset sections should keep defaults, retry = %+v", cfg.Retry)
	}
}

func TestLoadFromRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[general]\nperiod = \"soon\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{
		"ENVIRONMENT":               "prod",
		"REPORT_BUCKET":             "reports-bucket",
		"SNS_TOPIC_ARN":             "arn:aws:sns:us-east-1:123:alerts",
		"BEDROCKMON_THRESHOLD":      "3",
		"BEDROCKMON_MONTHLY_BUDGET": "not-a-number",
	}
	applyEnv(&cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	if cfg.General.Environment != "prod" {
		t.Errorf("environment = %q", cfg.General.Environment)
	}
	if cfg.Sinks.S3Bucket != "reports-bucket" || cfg.Sinks.SNSTopicARN == "" {
		t.Errorf("sinks = %+v", cfg.Sinks)
	}
	if cfg.Detection.ThresholdMultiplier != 3 {
		t.Errorf("threshold = %v, want 3", cfg.Detection.ThresholdMultiplier)
	}
	if cfg.Budget.MonthlyUSD != nil {
		t.Errorf("invalid budget should be ignored, got %v", *cfg.Budget.MonthlyUSD)
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := DefaultConfig()
	cfg.General.Window = Duration{2 * time.Hour}
	if err := SaveTo(path, cfg); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if got.General.Window.Duration != 2*time.Hour {
		t.Fatalf("window = %v, want 2h", got.General.Window)
	}
}
