// Package provider defines the metrics backend contract and its adapters.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/theirongolddev/bedrockmon/internal/model"
	"github.com/theirongolddev/bedrockmon/internal/retry"
)

// Sentinel errors adapters wrap so the collector can classify failures.
var (
	ErrThrottled   = errors.New("provider throttled the request")
	ErrTimeout     = errors.New("provider request timed out")
	ErrUnavailable = errors.New("provider unavailable")
)

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrThrottled) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, retry.ErrAttemptTimeout)
}

// Query selects one series over a window.
type Query struct {
	MetricName string
	Dimensions map[string]string
	Start      time.Time
	End        time.Time
	Period     time.Duration
	PageToken  string
}

// Point is one raw datapoint returned by a provider.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Page is one page of a query result. An empty NextToken ends the result.
type Page struct {
	Points    []Point
	Unit      model.Unit
	NextToken string
}

// Provider is the public contract any metrics backend must satisfy.
type Provider interface {
	// Name identifies the backend in logs and errors.
	Name() string
	// SupportedDimensions lists the dimension names series can be grouped by.
	SupportedDimensions() []string
	// ListSeries returns the distinct value combinations of groupBy seen
	// for the metric in the window. An empty groupBy yields one empty map.
	ListSeries(ctx context.Context, metric string, groupBy []string, start, end time.Time) ([]map[string]string, error)
	// Query returns one page of datapoints.
	Query(ctx context.Context, q Query) (Page, error)
}

// Supports reports whether p can group by dimension name.
func Supports(p Provider, name string) bool {
	for _, d := range p.SupportedDimensions() {
		if d == name {
			return true
		}
	}
	return false
}
