package provider

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

type fakeCloudWatch struct {
	listPages []*cloudwatch.ListMetricsOutput
	listCalls int
	dataIn    []*cloudwatch.GetMetricDataInput
	dataOut   *cloudwatch.GetMetricDataOutput
	dataErr   error
}

func (f *fakeCloudWatch) ListMetrics(_ context.Context, _ *cloudwatch.ListMetricsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.ListMetricsOutput, error) {
	out := f.listPages[f.listCalls]
	f.listCalls++
	return out, nil
}

func (f *fakeCloudWatch) GetMetricData(_ context.Context, in *cloudwatch.GetMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error) {
	f.dataIn = append(f.dataIn, in)
	return f.dataOut, f.dataErr
}

func dimsOf(pairs ...string) []cwtypes.Dimension {
	var out []cwtypes.Dimension
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, cwtypes.Dimension{Name: aws.String(pairs[i]), Value: aws.String(pairs[i+1])})
	}
	return out
}

func TestCloudWatchListSeriesFollowsPages(t *testing.T) {
	api := &fakeCloudWatch{listPages: []*cloudwatch.ListMetricsOutput{
		{
			Metrics: []cwtypes.Metric{
				{Dimensions: dimsOf("ModelId", "b")},
				{Dimensions: nil},
			},
			NextToken: aws.String("p2"),
		},
		{
			Metrics: []cwtypes.Metric{
				{Dimensions: dimsOf("ModelId", "a")},
				{Dimensions: dimsOf("ModelId", "b")},
				{Dimensions: dimsOf("ModelId", "c", "Region", "x")},
			},
		},
	}}

	cw := NewCloudWatch(api, "", nil, nil)
	combos, err := cw.ListSeries(context.Background(), "Invocations", []string{"ModelId"}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, api.listCalls)
	assert.Equal(t, []map[string]string{{"ModelId": "a"}, {"ModelId": "b"}}, combos)
}

func TestCloudWatchQueryBuildsRequest(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	api := &fakeCloudWatch{dataOut: &cloudwatch.GetMetricDataOutput{
		MetricDataResults: []cwtypes.MetricDataResult{{
			Timestamps: []time.Time{start, start.Add(5 * time.Minute)},
			Values:     []float64{3, 4},
		}},
		NextToken: aws.String("more"),
	}}

	cw := NewCloudWatch(api, "AWS/Bedrock", nil, nil)
	page, err := cw.Query(context.Background(), Query{
		MetricName: model.MetricLatency,
		Dimensions: map[string]string{"ModelId": "m"},
		Start:      start,
		End:        start.Add(time.Hour),
		Period:     90 * time.Second,
		PageToken:  "tok",
	})
	require.NoError(t, err)
	assert.Equal(t, "more", page.NextToken)
	assert.Equal(t, model.UnitMilliseconds, page.Unit)
	require.Len(t, page.Points, 2)

	in := api.dataIn[0]
	assert.Equal(t, "tok", aws.ToString(in.NextToken))
	assert.Equal(t, cwtypes.ScanByTimestampAscending, in.ScanBy)
	stat := in.MetricDataQueries[0].MetricStat
	assert.Equal(t, "Average", aws.ToString(stat.Stat))
	assert.Equal(t, int32(120), aws.ToInt32(stat.Period))
}

func TestCloudWatchThrottlingIsRetryable(t *testing.T) {
	api := &fakeCloudWatch{dataErr: &smithy.GenericAPIError{Code: "ThrottlingException", Message: "Rate exceeded"}}
	cw := NewCloudWatch(api, "", nil, nil)

	_, err := cw.Query(context.Background(), Query{MetricName: model.MetricInvocations, Period: time.Minute})
	require.ErrorIs(t, err, ErrThrottled)
	assert.True(t, IsRetryable(err))
}

func TestCloudWatchAccessDeniedIsPermanent(t *testing.T) {
	api := &fakeCloudWatch{dataErr: &smithy.GenericAPIError{Code: "AccessDenied", Message: "no"}}
	cw := NewCloudWatch(api, "", nil, nil)

	_, err := cw.Query(context.Background(), Query{MetricName: model.MetricInvocations, Period: time.Minute})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestCloudWatchPeriod(t *testing.T) {
	assert.Equal(t, int32(60), cloudWatchPeriod(time.Second))
	assert.Equal(t, int32(300), cloudWatchPeriod(5*time.Minute))
	assert.Equal(t, int32(120), cloudWatchPeriod(61*time.Second))
}
