package sink

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// S3API is the subset of the S3 client used by the sink.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 writes reports to a bucket under prefix/YYYY/MM/DD/.
type S3 struct {
	Client S3API
	Bucket string
	Prefix string
	Log    *zap.Logger
}

// NewS3 builds an S3 sink from an AWS config.
func NewS3(cfg aws.Config, bucket, prefix string, log *zap.Logger) *S3 {
	if log == nil {
		log = zap.NewNop()
	}
	return &S3{Client: s3.NewFromConfig(cfg), Bucket: bucket, Prefix: prefix, Log: log}
}

func (s *S3) Name() string { return "s3" }

// Deliver stores the JSON report under its dated key.
func (s *S3) Deliver(ctx context.Context, r model.Report) error {
	return s.Persist(ctx, r, DatedKey(s.Prefix, r.GeneratedAt, ReportName(r, ".json")))
}

// Persist stores the report at the given object key.
func (s *S3) Persist(ctx context.Context, r model.Report, key string) error {
	if key == "" {
		return ErrNoLocation
	}
	body, contentType, err := Encode(r, key)
	if err != nil {
		return err
	}
	_, err = s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"report-id": r.ID,
		},
	})
	if err != nil {
		return fmt.Errorf("putting s3://%s/%s: %w", s.Bucket, key, err)
	}
	if s.Log != nil {
		s.Log.Info("report stored", zap.String("bucket", s.Bucket), zap.String("key", key))
	}
	return nil
}

// Location returns the s3:// URI of a key.
func (s *S3) Location(key string) string {
	return "s3://" + s.Bucket + "/" + key
}
