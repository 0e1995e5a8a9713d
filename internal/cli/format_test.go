package cli

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

func TestFormatNumber(t *testing.T) {
	tests := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		1234567:  "1,234,567",
		-1234567: "-1,234,567",
	}
	for in, want := range tests {
		if got := FormatNumber(in); got != want {
			t.Errorf("FormatNumber(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatCost(t *testing.T) {
	tests := []struct {
		in   string
		cur  string
		want string
	}{
		{"2", "USD", "$2.00"},
		{"0", "USD", "$0.00"},
		{"0.0042", "USD", "$0.0042"},
		{"1234.56", "USD", "$1,235"},
		{"-3.5", "", "-$3.50"},
		{"10", "EUR", "€10.00"},
		{"10", "JPY", "JPY 10.00"},
	}
	for _, tt := range tests {
		if got := FormatCost(decimal.RequireFromString(tt.in), tt.cur); got != tt.want {
			t.Errorf("FormatCost(%s, %s) = %q, want %q", tt.in, tt.cur, got, tt.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	if got := FormatValue(12345, model.UnitCount); got != "12,345" {
		t.Errorf("count = %q", got)
	}
	if got := FormatValue(1520.4, model.UnitMilliseconds); got != "1520ms" {
		t.Errorf("ms = %q", got)
	}
	if got := FormatValue(4.5, model.UnitPercent); got != "4.50%" {
		t.Errorf("percent = %q", got)
	}
}

func TestFormatChange(t *testing.T) {
	if got := FormatChange(125, 100); got != "+25.0%" {
		t.Errorf("FormatChange = %q", got)
	}
	if got := FormatChange(50, 100); got != "-50.0%" {
		t.Errorf("FormatChange = %q", got)
	}
	if got := FormatChange(5, 0); got != "n/a" {
		t.Errorf("FormatChange = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		0:                "0s",
		45 * time.Second: "45s",
		90 * time.Minute: "1h 30m",
		24 * time.Hour:   "1d",
		26 * time.Hour:   "1d 2h",
	}
	for in, want := range tests {
		if got := FormatDuration(in); got != want {
			t.Errorf("FormatDuration(%v) = %q, want %q", in, got, want)
		}
	}
}
