package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// Webhook posts the JSON report to an HTTP endpoint.
type Webhook struct {
	URL     string
	Headers map[string]string
	HTTP    *http.Client
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Deliver(ctx context.Context, r model.Report) error {
	return w.Persist(ctx, r, w.URL)
}

// Persist posts the report to the URL given as location.
func (w *Webhook) Persist(ctx context.Context, r model.Report, url string) error {
	if url == "" {
		return ErrNoLocation
	}
	body, contentType, err := Encode(r, ".json")
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "bedrockmon")
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}

	client := w.HTTP
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("posting webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
