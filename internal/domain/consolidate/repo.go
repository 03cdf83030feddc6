package consolidate

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// Repository persists run summaries and their record sets. The master JSON
// document stays the source of truth; the store exists so the read-only API
// can serve the roster and run history without touching the file.
type Repository interface {
	// SaveRun inserts the summary and the full record set in one transaction.
	SaveRun(ctx context.Context, summary *RunSummary, records []ConsolidatedRecord) error
	GetRun(ctx context.Context, id uuid.UUID) (*RunSummary, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*RunSummary, int, error)
	// LatestRun returns the most recent summary, or ErrRunNotFound when no
	// run has been persisted yet.
	LatestRun(ctx context.Context) (*RunSummary, error)
	// ListRecords pages through the latest run's records, optionally
	// filtered by match method.
	ListRecords(ctx context.Context, method MatchMethod, limit, offset int) ([]ConsolidatedRecord, int, error)
}
