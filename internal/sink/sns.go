package sink

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// snsSubjectLimit is the maximum SNS subject length.
const snsSubjectLimit = 100

// SNSAPI is the subset of the SNS client used by the sink.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNS publishes a report digest to a topic.
type SNS struct {
	Client   SNSAPI
	TopicARN string
	// MaxAnomalies bounds the anomalies listed in the message.
	MaxAnomalies int
}

// NewSNS builds an SNS sink from an AWS config.
func NewSNS(cfg aws.Config, topicARN string) *SNS {
	return &SNS{Client: sns.NewFromConfig(cfg), TopicARN: topicARN}
}

func (s *SNS) Name() string { return "sns" }

func (s *SNS) Deliver(ctx context.Context, r model.Report) error {
	maxAnomalies := s.MaxAnomalies
	if maxAnomalies <= 0 {
		maxAnomalies = 10
	}

	subject := r.Title
	if n := AnomalyCount(r); n > 0 {
		subject = fmt.Sprintf("Bedrock alert: %d anomalies detected", n)
		if r.Environment != "" {
			subject += " (" + r.Environment + ")"
		}
	}

	_, err := s.Client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.TopicARN),
		Subject:  aws.String(truncate(subject, snsSubjectLimit)),
		Message:  aws.String(Summary(r, maxAnomalies)),
	})
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", s.TopicARN, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
