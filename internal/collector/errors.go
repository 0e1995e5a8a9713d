package collector

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// ErrNoMetrics is returned when a request names no metrics.
var ErrNoMetrics = errors.New("collector: no metric names requested")

// ErrPageLoop is recorded for a key whose provider repeated a page token.
var ErrPageLoop = errors.New("collector: provider repeated a page token")

// InvalidRangeError is returned when the window is empty or inverted.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("collector: invalid range: start %s is not before end %s",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// UnsupportedDimensionError is returned when a group-by dimension is not
// offered by the provider.
type UnsupportedDimensionError struct {
	Dimension string
	Provider  string
	Supported []string
}

func (e *UnsupportedDimensionError) Error() string {
	return fmt.Sprintf("collector: %s cannot group by %q (supported: %s)",
		e.Provider, e.Dimension, strings.Join(e.Supported, ", "))
}

// ProviderUnavailableError records a key whose provider calls kept failing
// after retries.
type ProviderUnavailableError struct {
	Provider   string
	Metric     string
	Dimensions model.DimensionKey
	Start      time.Time
	End        time.Time
	Attempts   int
	Cause      error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("collector: %s unavailable for %s %s [%s, %s) after %d attempts: %v",
		e.Provider, e.Metric, e.Dimensions, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339),
		e.Attempts, e.Cause)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Cause }
