package consolidate

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidMethod is returned for a match_method filter outside the four
// known values.
var ErrInvalidMethod = errors.New("unknown match method")

// Service provides read access to the consolidated store for the API.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListRecords pages through the latest run's records. An empty method lists
// everything; otherwise it must be one of the four match methods.
func (s *Service) ListRecords(ctx context.Context, method string, limit, offset int) ([]ConsolidatedRecord, int, error) {
	m := MatchMethod(method)
	if method != "" && !m.Valid() {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	return s.repo.ListRecords(ctx, m, limit, offset)
}

// ListUnmatched returns the records flagged for manual review.
func (s *Service) ListUnmatched(ctx context.Context, limit, offset int) ([]ConsolidatedRecord, int, error) {
	return s.repo.ListRecords(ctx, MatchUnmatched, limit, offset)
}

func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*RunSummary, error) {
	return s.repo.GetRun(ctx, id)
}

func (s *Service) ListRuns(ctx context.Context, limit, offset int) ([]*RunSummary, int, error) {
	return s.repo.ListRuns(ctx, limit, offset)
}

// Stats returns the latest run's summary.
func (s *Service) Stats(ctx context.Context) (*RunSummary, error) {
	return s.repo.LatestRun(ctx)
}
