package sink

import (
	"context"
	"fmt"

	"github.com/gen2brain/beeep"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// Desktop raises a desktop notification for reports with anomalies.
type Desktop struct {
	// Notify shows the notification. Defaults to beeep.
	Notify func(title, message string) error
	// Always notifies even when the report has no anomalies.
	Always bool
}

func (d *Desktop) Name() string { return "desktop" }

func (d *Desktop) Deliver(_ context.Context, r model.Report) error {
	n := AnomalyCount(r)
	if n == 0 && !d.Always {
		return nil
	}
	notify := d.Notify
	if notify == nil {
		notify = func(title, message string) error { return beeep.Notify(title, message, "") }
	}

	title := r.Title
	if n > 0 {
		title = fmt.Sprintf("Bedrock: %d anomalies", n)
	}
	return notify(title, Summary(r, 3))
}
