package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Metric names published by the AWS/Bedrock namespace.
const (
	MetricInvocations  = "Invocations"
	MetricClientErrors = "InvocationClientErrors"
	MetricServerErrors = "InvocationServerErrors"
	MetricThrottles    = "InvocationThrottles"
	MetricInputTokens  = "InputTokenCount"
	MetricOutputTokens = "OutputTokenCount"
	MetricLatency      = "InvocationLatency"

	// Names used by custom namespaces fed from application logs.
	MetricErrors          = "Errors"
	MetricInputTokensAlt  = "InputTokens"
	MetricOutputTokensAlt = "OutputTokens"
	MetricDuration        = "Duration"

	// MetricErrorRate is derived locally: errors / invocations * 100.
	MetricErrorRate = "ErrorRate"
)

// Well-known dimension names.
const (
	DimModelID = "ModelId"
	DimUserID  = "UserId"
)

// DefaultMetrics is the metric set collected when none is configured.
var DefaultMetrics = []string{
	MetricInvocations,
	MetricClientErrors,
	MetricServerErrors,
	MetricInputTokens,
	MetricOutputTokens,
	MetricLatency,
}

// UnitForMetric returns the unit a metric is reported in.
func UnitForMetric(name string) Unit {
	switch name {
	case MetricLatency, MetricDuration:
		return UnitMilliseconds
	case MetricErrorRate:
		return UnitPercent
	case MetricInvocations, MetricClientErrors, MetricServerErrors, MetricThrottles,
		MetricInputTokens, MetricOutputTokens, MetricErrors,
		MetricInputTokensAlt, MetricOutputTokensAlt:
		return UnitCount
	}
	return UnitNone
}

// IsInputTokenMetric reports whether the metric counts prompt tokens.
func IsInputTokenMetric(name string) bool {
	return name == MetricInputTokens || name == MetricInputTokensAlt
}

// IsOutputTokenMetric reports whether the metric counts completion tokens.
func IsOutputTokenMetric(name string) bool {
	return name == MetricOutputTokens || name == MetricOutputTokensAlt
}

// IsErrorMetric reports whether the metric counts failed invocations.
func IsErrorMetric(name string) bool {
	return name == MetricClientErrors || name == MetricServerErrors || name == MetricErrors
}

// IsLatencyMetric reports whether the metric is a duration.
func IsLatencyMetric(name string) bool {
	return name == MetricLatency || name == MetricDuration
}

// Severity grades an anomaly.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Baseline is the reference distribution of one series for a detection run.
type Baseline struct {
	MetricName  string
	Dimensions  DimensionKey
	Mean        float64
	StdDev      float64
	SampleCount int
	WindowStart time.Time
	WindowEnd   time.Time
}

// Anomaly is a sample whose distance from the baseline mean exceeds the
// configured multiple of the standard deviation.
type Anomaly struct {
	MetricName          string       `json:"metric"`
	Dimensions          DimensionKey `json:"dimensions"`
	Timestamp           time.Time    `json:"timestamp"`
	ObservedValue       float64      `json:"observed"`
	BaselineMean        float64      `json:"baseline_mean"`
	BaselineStdDev      float64      `json:"baseline_stddev"`
	DeviationMultiplier float64      `json:"deviation"`
	Severity            Severity     `json:"severity"`
}

// Key returns the series the anomaly was found in.
func (a Anomaly) Key() SeriesKey {
	return SeriesKey{Metric: a.MetricName, Dimensions: a.Dimensions}
}

// Price is the per-token price of a model.
type Price struct {
	InputPerToken  decimal.Decimal
	OutputPerToken decimal.Decimal
}

// CostRecord is the attributed cost of one dimension key. A nil
// EstimatedCost means the model had no price; it is never treated as zero.
type CostRecord struct {
	ModelID       string           `json:"model_id"`
	Dimensions    DimensionKey     `json:"dimensions"`
	InputTokens   int64            `json:"input_tokens"`
	OutputTokens  int64            `json:"output_tokens"`
	EstimatedCost *decimal.Decimal `json:"estimated_cost,omitempty"`
	Currency      string           `json:"currency"`
}

// Estimated reports whether a price was found for the record's model.
func (r CostRecord) Estimated() bool { return r.EstimatedCost != nil }

// Cost returns the estimated cost, or zero for unestimated records.
func (r CostRecord) Cost() decimal.Decimal {
	if r.EstimatedCost == nil {
		return decimal.Zero
	}
	return *r.EstimatedCost
}

// GroupCost is the summed cost of one group of records.
type GroupCost struct {
	Key          string
	Records      int
	InputTokens  int64
	OutputTokens int64
	Cost         decimal.Decimal
}

// PeriodTotals holds the headline numbers of one window, used to compare
// a report window with the one before it.
type PeriodTotals struct {
	WindowStart  time.Time
	WindowEnd    time.Time
	Invocations  float64
	Errors       float64
	InputTokens  int64
	OutputTokens int64
	AvgLatencyMs float64
	Models       int
	Cost         decimal.Decimal
}

// SuccessRate returns the share of invocations without error, in percent.
func (p PeriodTotals) SuccessRate() float64 {
	if p.Invocations <= 0 {
		return 100
	}
	rate := (p.Invocations - p.Errors) / p.Invocations * 100
	if rate < 0 {
		return 0
	}
	return rate
}

// ErrorRate returns the share of failed invocations, in percent.
func (p PeriodTotals) ErrorRate() float64 {
	return 100 - p.SuccessRate()
}
