package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/theirongolddev/bedrockmon/internal/logging"
	"github.com/theirongolddev/bedrockmon/internal/model"
)

// Prometheus reads series exported by an application-side Bedrock
// instrumentation through the Prometheus HTTP API. Metric and label names
// are the snake_case forms of the CloudWatch names, with a prefix:
// InputTokenCount{ModelId} becomes bedrock_input_token_count{model_id}.
type Prometheus struct {
	BaseURL    string
	Prefix     string
	Dimensions []string
	MaxPoints  int // points per query_range call; larger windows are paged
	HTTP       *http.Client
	Log        *zap.Logger
	UserAgent  string
}

// NewPrometheus returns a ready-to-use adapter.
func NewPrometheus(baseURL, prefix string, dimensions []string, maxPoints int, log *zap.Logger) *Prometheus {
	if maxPoints <= 0 {
		maxPoints = 11000
	}
	return &Prometheus{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Prefix:     prefix,
		Dimensions: dimensions,
		MaxPoints:  maxPoints,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
		Log:        logging.OrNop(log),
		UserAgent:  "bedrockmon/0.1",
	}
}

type promResponse struct {
	Status    string          `json:"status"`
	ErrorType string          `json:"errorType"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`
}

type promMatrix struct {
	ResultType string `json:"resultType"`
	Result     []struct {
		Metric map[string]string `json:"metric"`
		Values [][]interface{}   `json:"values"`
	} `json:"result"`
}

func (p *Prometheus) Name() string { return "prometheus" }

func (p *Prometheus) SupportedDimensions() []string { return p.Dimensions }

// MetricName maps a CloudWatch-style metric name to its exported name.
func (p *Prometheus) MetricName(metric string) string {
	return p.Prefix + snakeCase(metric)
}

// ListSeries queries /api/v1/series and projects the label sets onto groupBy.
func (p *Prometheus) ListSeries(ctx context.Context, metric string, groupBy []string, start, end time.Time) ([]map[string]string, error) {
	if len(groupBy) == 0 {
		return []map[string]string{{}}, nil
	}

	params := url.Values{}
	params.Set("match[]", p.MetricName(metric))
	if !start.IsZero() {
		params.Set("start", formatPromTime(start))
	}
	if !end.IsZero() {
		params.Set("end", formatPromTime(end))
	}

	var labelSets []map[string]string
	if err := p.get(ctx, "/api/v1/series", params, &labelSets); err != nil {
		return nil, err
	}

	seen := make(map[model.DimensionKey]map[string]string)
	for _, labels := range labelSets {
		dims := make(map[string]string, len(groupBy))
		for _, g := range groupBy {
			v, ok := labels[snakeCase(g)]
			if !ok {
				dims = nil
				break
			}
			dims[g] = v
		}
		if dims != nil {
			seen[model.NewDimensionKey(dims)] = dims
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	out := make([]map[string]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, seen[model.DimensionKey(k)])
	}
	return out, nil
}

// Query runs query_range for at most MaxPoints steps. When the window is
// longer the NextToken carries the start of the next chunk in unix ms.
func (p *Prometheus) Query(ctx context.Context, q Query) (Page, error) {
	step := q.Period
	if step <= 0 {
		step = 5 * time.Minute
	}

	start := q.Start
	if q.PageToken != "" {
		ms, err := strconv.ParseInt(q.PageToken, 10, 64)
		if err != nil {
			return Page{}, fmt.Errorf("prometheus: invalid page token %q: %w", q.PageToken, err)
		}
		start = time.UnixMilli(ms).UTC()
	}

	end := q.End
	next := ""
	if chunkEnd := start.Add(step * time.Duration(p.MaxPoints)); chunkEnd.Before(end) {
		end = chunkEnd
		next = strconv.FormatInt(chunkEnd.UnixMilli(), 10)
	}

	unit := model.UnitForMetric(q.MetricName)
	params := url.Values{}
	params.Set("query", p.expr(q.MetricName, q.Dimensions, unit, step))
	params.Set("start", formatPromTime(start))
	// query_range is inclusive of end; stop one step short of the boundary.
	params.Set("end", formatPromTime(end.Add(-time.Millisecond)))
	params.Set("step", strconv.FormatFloat(step.Seconds(), 'f', -1, 64))

	var matrix promMatrix
	if err := p.get(ctx, "/api/v1/query_range", params, &matrix); err != nil {
		return Page{}, err
	}

	page := Page{Unit: unit, NextToken: next}
	for _, series := range matrix.Result {
		for _, v := range series.Values {
			pt, err := parsePromPoint(v)
			if err != nil {
				p.Log.Debug("skipping malformed prometheus point", zap.Error(err))
				continue
			}
			page.Points = append(page.Points, pt)
		}
	}
	return page, nil
}

// expr builds the PromQL for one bucketed series. Counters are turned into
// per-step increases; gauges are averaged over the step.
func (p *Prometheus) expr(metric string, dims map[string]string, unit model.Unit, step time.Duration) string {
	names := make([]string, 0, len(dims))
	for n := range dims {
		names = append(names, n)
	}
	sort.Strings(names)
	matchers := make([]string, 0, len(names))
	for _, n := range names {
		matchers = append(matchers, fmt.Sprintf("%s=%q", snakeCase(n), dims[n]))
	}
	selector := p.MetricName(metric) + "{" + strings.Join(matchers, ",") + "}"
	rng := "[" + promDuration(step) + "]"

	if unit.Summed() {
		return "sum(increase(" + selector + rng + "))"
	}
	return "avg(avg_over_time(" + selector + rng + "))"
}

func (p *Prometheus) get(ctx context.Context, path string, params url.Values, data any) error {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid prometheus base url: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}

	client := p.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err) {
			return fmt.Errorf("prometheus request: %w: %w", ErrTimeout, err)
		}
		return fmt.Errorf("prometheus request: %w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("reading prometheus response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("prometheus returned %d: %w", resp.StatusCode, ErrThrottled)
	case resp.StatusCode == http.StatusServiceUnavailable ||
		resp.StatusCode == http.StatusBadGateway:
		return fmt.Errorf("prometheus returned %d: %w", resp.StatusCode, ErrUnavailable)
	case resp.StatusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("prometheus returned %d: %w", resp.StatusCode, ErrTimeout)
	}

	var apiResp promResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("prometheus returned %d: %s", resp.StatusCode, truncate(string(body), 200))
		}
		return fmt.Errorf("failed to decode prometheus response: %w", err)
	}
	if apiResp.Status != "success" {
		if apiResp.ErrorType == "timeout" {
			return fmt.Errorf("prometheus query: %w: %s", ErrTimeout, apiResp.Error)
		}
		return fmt.Errorf("prometheus query not successful (%s): %s", apiResp.ErrorType, apiResp.Error)
	}
	if err := json.Unmarshal(apiResp.Data, data); err != nil {
		return fmt.Errorf("failed to decode prometheus data: %w", err)
	}
	return nil
}

func parsePromPoint(v []interface{}) (Point, error) {
	if len(v) != 2 {
		return Point{}, fmt.Errorf("point has %d elements", len(v))
	}
	ts, ok := v[0].(float64)
	if !ok {
		return Point{}, fmt.Errorf("unexpected timestamp type %T", v[0])
	}
	s, ok := v[1].(string)
	if !ok {
		return Point{}, fmt.Errorf("unexpected value type %T", v[1])
	}
	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Point{}, fmt.Errorf("cannot parse value %q: %w", s, err)
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return Point{Timestamp: time.Unix(sec, nsec).UTC().Round(time.Millisecond), Value: val}, nil
}

func formatPromTime(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMilli())/1000, 'f', 3, 64)
}

func promDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		return strconv.FormatInt(int64(d/time.Minute), 10) + "m"
	}
	return strconv.FormatInt(int64(d/time.Second), 10) + "s"
}

// snakeCase converts "InputTokenCount" to "input_token_count".
func snakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isNetTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
