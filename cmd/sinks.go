package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/theirongolddev/bedrockmon/internal/sink"
	"github.com/theirongolddev/bedrockmon/internal/store"
)

// buildSinks returns the delivery fan-out configured under [sinks]. The
// returned func releases the archive store when one was opened.
func buildSinks(ctx context.Context) (sink.Fanout, func(), error) {
	sc := appCfg.Sinks
	var out sink.Fanout
	closeFn := func() {}

	if sc.ReportDir != "" {
		out = append(out, &sink.File{Dir: sc.ReportDir})
	}
	if sc.Archive {
		st, err := store.Open(appCfg.StorePath())
		if err != nil {
			return nil, closeFn, err
		}
		closeFn = func() { _ = st.Close() }
		out = append(out, &sink.Archive{Store: st})
	}
	if sc.WebhookURL != "" {
		out = append(out, &sink.Webhook{URL: sc.WebhookURL})
	}
	if sc.Desktop {
		out = append(out, &sink.Desktop{})
	}

	if sc.S3Bucket != "" || sc.SNSTopicARN != "" {
		awsCfg, err := loadAWSConfig(ctx)
		if err != nil {
			closeFn()
			return nil, func() {}, err
		}
		if sc.S3Bucket != "" {
			out = append(out, sink.NewS3(awsCfg, sc.S3Bucket, sc.S3Prefix, appLog))
		}
		if sc.SNSTopicARN != "" {
			out = append(out, sink.NewSNS(awsCfg, sc.SNSTopicARN))
		}
	}
	return out, closeFn, nil
}

// persisterFor picks the sink that writes a report to location: s3:// URLs
// go to S3, http(s) URLs to a webhook and everything else to a file.
// It returns the persister and the location it should be given.
func persisterFor(ctx context.Context, location string) (sink.Persister, string, error) {
	switch {
	case strings.HasPrefix(location, "s3://"):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(location, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, "", fmt.Errorf("invalid S3 location %q: want s3://bucket/key", location)
		}
		awsCfg, err := loadAWSConfig(ctx)
		if err != nil {
			return nil, "", err
		}
		return sink.NewS3(awsCfg, bucket, "", appLog), key, nil
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return &sink.Webhook{}, location, nil
	default:
		return &sink.File{}, location, nil
	}
}
