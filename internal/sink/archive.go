package sink

import (
	"context"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// ReportStore is the part of the SQLite store used for archiving.
type ReportStore interface {
	SaveReport(ctx context.Context, r model.Report, location string) error
}

// Archive keeps reports in the local database so `reports` can list them.
type Archive struct {
	Store ReportStore
}

func (a *Archive) Name() string { return "archive" }

func (a *Archive) Deliver(ctx context.Context, r model.Report) error {
	return a.Store.SaveReport(ctx, r, "")
}

// Persist archives the report and records location as where it was stored
// elsewhere.
func (a *Archive) Persist(ctx context.Context, r model.Report, location string) error {
	return a.Store.SaveReport(ctx, r, location)
}
