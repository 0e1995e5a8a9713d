package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/theirongolddev/bedrockmon/internal/logging"
	"github.com/theirongolddev/bedrockmon/internal/model"
)

// CloudWatchAPI is the subset of the CloudWatch client used here.
type CloudWatchAPI interface {
	GetMetricData(ctx context.Context, in *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
	ListMetrics(ctx context.Context, in *cloudwatch.ListMetricsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.ListMetricsOutput, error)
}

// CloudWatch reads Bedrock runtime metrics from Amazon CloudWatch.
type CloudWatch struct {
	api        CloudWatchAPI
	namespace  string
	dimensions []string
	log        *zap.Logger
}

// NewCloudWatch wraps a CloudWatch client. The SDK's own retryer should be
// disabled (RetryMaxAttempts = 1); the collector owns retries.
func NewCloudWatch(api CloudWatchAPI, namespace string, dimensions []string, log *zap.Logger) *CloudWatch {
	if namespace == "" {
		namespace = "AWS/Bedrock"
	}
	if len(dimensions) == 0 {
		dimensions = []string{model.DimModelID}
	}
	return &CloudWatch{api: api, namespace: namespace, dimensions: dimensions, log: logging.OrNop(log)}
}

// NewCloudWatchFromConfig builds the adapter from an AWS config.
func NewCloudWatchFromConfig(cfg aws.Config, namespace string, dimensions []string, log *zap.Logger) *CloudWatch {
	client := cloudwatch.NewFromConfig(cfg, func(o *cloudwatch.Options) {
		o.RetryMaxAttempts = 1
	})
	return NewCloudWatch(client, namespace, dimensions, log)
}

func (c *CloudWatch) Name() string { return "cloudwatch" }

func (c *CloudWatch) SupportedDimensions() []string { return c.dimensions }

// ListSeries pages through ListMetrics and keeps metrics whose dimension
// set is exactly groupBy, as GetMetricData matches dimensions exactly.
func (c *CloudWatch) ListSeries(ctx context.Context, metric string, groupBy []string, _, _ time.Time) ([]map[string]string, error) {
	if len(groupBy) == 0 {
		return []map[string]string{{}}, nil
	}

	want := make(map[string]bool, len(groupBy))
	for _, g := range groupBy {
		want[g] = true
	}

	seen := make(map[model.DimensionKey]map[string]string)
	in := &cloudwatch.ListMetricsInput{
		Namespace:  aws.String(c.namespace),
		MetricName: aws.String(metric),
	}
	for {
		out, err := c.api.ListMetrics(ctx, in)
		if err != nil {
			return nil, classifyAWSError("list metrics", err)
		}
		for _, m := range out.Metrics {
			if len(m.Dimensions) != len(want) {
				continue
			}
			dims := make(map[string]string, len(m.Dimensions))
			for _, d := range m.Dimensions {
				name := aws.ToString(d.Name)
				if !want[name] {
					dims = nil
					break
				}
				dims[name] = aws.ToString(d.Value)
			}
			if dims != nil {
				seen[model.NewDimensionKey(dims)] = dims
			}
		}
		if aws.ToString(out.NextToken) == "" {
			break
		}
		in.NextToken = out.NextToken
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	combos := make([]map[string]string, 0, len(keys))
	for _, k := range keys {
		combos = append(combos, seen[model.DimensionKey(k)])
	}
	c.log.Debug("cloudwatch series listed",
		zap.String("metric", metric),
		zap.Int("series", len(combos)),
	)
	return combos, nil
}

// Query issues one GetMetricData page, ascending by timestamp.
func (c *CloudWatch) Query(ctx context.Context, q Query) (Page, error) {
	unit := model.UnitForMetric(q.MetricName)
	stat := "Average"
	if unit.Summed() {
		stat = "Sum"
	}

	dims := make([]cwtypes.Dimension, 0, len(q.Dimensions))
	for name, value := range q.Dimensions {
		dims = append(dims, cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)})
	}
	sort.Slice(dims, func(i, j int) bool { return aws.ToString(dims[i].Name) < aws.ToString(dims[j].Name) })

	in := &cloudwatch.GetMetricDataInput{
		StartTime: aws.Time(q.Start),
		EndTime:   aws.Time(q.End),
		ScanBy:    cwtypes.ScanByTimestampAscending,
		MetricDataQueries: []cwtypes.MetricDataQuery{{
			Id: aws.String("m0"),
			MetricStat: &cwtypes.MetricStat{
				Metric: &cwtypes.Metric{
					Namespace:  aws.String(c.namespace),
					MetricName: aws.String(q.MetricName),
					Dimensions: dims,
				},
				Period: aws.Int32(cloudWatchPeriod(q.Period)),
				Stat:   aws.String(stat),
			},
			ReturnData: aws.Bool(true),
		}},
	}
	if q.PageToken != "" {
		in.NextToken = aws.String(q.PageToken)
	}

	out, err := c.api.GetMetricData(ctx, in)
	if err != nil {
		return Page{}, classifyAWSError("get metric data", err)
	}

	page := Page{Unit: unit, NextToken: aws.ToString(out.NextToken)}
	for _, r := range out.MetricDataResults {
		n := len(r.Timestamps)
		if len(r.Values) < n {
			n = len(r.Values)
		}
		for i := 0; i < n; i++ {
			page.Points = append(page.Points, Point{Timestamp: r.Timestamps[i], Value: r.Values[i]})
		}
	}
	return page, nil
}

// cloudWatchPeriod rounds up to a whole minute, the smallest standard
// resolution period.
func cloudWatchPeriod(d time.Duration) int32 {
	secs := int32(d / time.Second)
	if secs < 60 {
		return 60
	}
	if rem := secs % 60; rem != 0 {
		secs += 60 - rem
	}
	return secs
}

func classifyAWSError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("cloudwatch %s: %w: %w", op, ErrTimeout, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch code := apiErr.ErrorCode(); {
		case code == "Throttling" || code == "ThrottlingException" ||
			code == "RequestLimitExceeded" || code == "TooManyRequestsException":
			return fmt.Errorf("cloudwatch %s: %w: %w", op, ErrThrottled, err)
		case code == "ServiceUnavailable" || strings.HasPrefix(code, "InternalServiceError") ||
			code == "InternalFailure":
			return fmt.Errorf("cloudwatch %s: %w: %w", op, ErrUnavailable, err)
		}
	}
	return fmt.Errorf("cloudwatch %s: %w", op, err)
}
