// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// FormatTokens formats a token count with human-readable suffixes.
// e.g., 1234 -> "1.2K", 1234567 -> "1.2M", 1234567890 -> "1.2B"
func FormatTokens(n int64) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// FormatCost formats an exact cost. Sub-cent amounts keep four decimals so
// small per-user costs do not collapse to $0.00.
func FormatCost(cost decimal.Decimal, currency string) string {
	sym := currencySymbol(currency)
	neg := cost.IsNegative()
	abs := cost.Abs()

	var s string
	switch {
	case abs.GreaterThanOrEqual(decimal.NewFromInt(1000)):
		s = FormatNumber(abs.Round(0).IntPart())
	case abs.IsZero() || abs.GreaterThanOrEqual(decimal.NewFromFloat(0.01)):
		s = abs.StringFixed(2)
	default:
		s = abs.StringFixed(4)
	}
	if neg {
		return "-" + sym + s
	}
	return sym + s
}

func currencySymbol(currency string) string {
	switch strings.ToUpper(currency) {
	case "", "USD":
		return "$"
	case "EUR":
		return "€"
	case "GBP":
		return "£"
	}
	return strings.ToUpper(currency) + " "
}

// FormatDuration formats a duration compactly.
// e.g., 26h -> "1d 2h", 90m -> "1h 30m", 45s -> "45s"
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs <= 0 {
		return "0s"
	}
	days := secs / 86400
	hours := (secs % 86400) / 3600
	mins := (secs % 3600) / 60

	switch {
	case days > 0 && hours > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case days > 0:
		return fmt.Sprintf("%dd", days)
	case hours > 0 && mins > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	case mins > 0:
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%ds", secs)
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}

	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// FormatValue formats a metric value according to its unit.
func FormatValue(v float64, unit model.Unit) string {
	switch unit {
	case model.UnitCount:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return FormatNumber(int64(v))
		}
		return strconv.FormatFloat(v, 'f', 2, 64)
	case model.UnitMilliseconds:
		return fmt.Sprintf("%.0fms", v)
	case model.UnitPercent:
		return fmt.Sprintf("%.2f%%", v)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// FormatPercent formats a 0-100 value as a percentage string.
func FormatPercent(f float64) string {
	return fmt.Sprintf("%.1f%%", f)
}

// FormatChange formats the relative change from previous to current.
// e.g., 100 -> 125 gives "+25.0%". A zero previous yields "n/a".
func FormatChange(current, previous float64) string {
	if previous == 0 {
		return "n/a"
	}
	pct := (current - previous) / math.Abs(previous) * 100
	if pct >= 0 {
		return fmt.Sprintf("+%.1f%%", pct)
	}
	return fmt.Sprintf("%.1f%%", pct)
}

// FormatDelta formats a cost delta with sign.
func FormatDelta(current, previous decimal.Decimal, currency string) string {
	delta := current.Sub(previous)
	if delta.IsNegative() {
		return FormatCost(delta, currency)
	}
	return "+" + FormatCost(delta, currency)
}

// FormatTime formats a timestamp in UTC for tables.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}

// FormatWindow formats a [start, end) window.
func FormatWindow(start, end time.Time) string {
	return FormatTime(start) + " → " + FormatTime(end) + " UTC"
}
