package store

import (
	"context"

	"github.com/nhle/bdaycal/internal/model"
)

// Store keeps a history of pipeline runs and the records each one touched.
// It is an audit trail only; the CSV ledger stays the source of truth for
// deduplication.
type Store interface {
	StartRun(ctx context.Context, dryRun bool) (string, error)
	RecordEntry(ctx context.Context, runID string, rec model.Record, outcome string) error
	FinishRun(ctx context.Context, runID string, counts model.RunCounts, runErr error) error

	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListEntries(ctx context.Context, runID string) ([]model.RunEntry, error)
}
