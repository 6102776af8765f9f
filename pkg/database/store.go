package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/OldStager01/packet-anomaly/pkg/database/queries"
	"github.com/OldStager01/packet-anomaly/pkg/models"
)

// RunStore persists run lifecycles. A completed report is written in a
// single transaction so readers never see a run without its results.
type RunStore struct {
	db *DB
}

func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) RegisterRun(ctx context.Context, run *models.Run) error {
	return queries.NewRunRepository(s.db).Create(ctx, run)
}

// MarkRunning is a no-op for runs that already finished, since the running
// transition can be observed after the outcome was written.
func (s *RunStore) MarkRunning(ctx context.Context, runID string) error {
	err := queries.NewRunRepository(s.db).UpdateStatus(ctx, runID, models.RunStatusRunning)
	if errors.Is(err, queries.ErrRunNotFound) {
		return nil
	}
	return err
}

func (s *RunStore) MarkFailed(ctx context.Context, runID, reason string, at time.Time) error {
	return queries.NewRunRepository(s.db).MarkFailed(ctx, runID, reason, at)
}

func (s *RunStore) SaveReport(ctx context.Context, report *models.RunReport) error {
	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := queries.NewRunRepository(tx).Complete(ctx, report); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		if err := queries.NewModelResultRepository(tx).InsertAll(ctx, report.RunID, report.Models, report.BestModel); err != nil {
			return fmt.Errorf("failed to save model results: %w", err)
		}
		if err := queries.NewRecordRepository(tx).InsertAll(ctx, report.RunID, report.Records); err != nil {
			return fmt.Errorf("failed to save records: %w", err)
		}
		return nil
	})
}

func (s *RunStore) GetRun(ctx context.Context, id string) (*queries.RunRow, error) {
	return queries.NewRunRepository(s.db).GetByID(ctx, id)
}

func (s *RunStore) ListRuns(ctx context.Context, limit, offset int) ([]*queries.RunRow, error) {
	return queries.NewRunRepository(s.db).List(ctx, limit, offset)
}

func (s *RunStore) ModelResults(ctx context.Context, runID string) ([]queries.ModelResultRow, error) {
	return queries.NewModelResultRepository(s.db).GetByRun(ctx, runID)
}

func (s *RunStore) Records(ctx context.Context, runID string, filter queries.RecordFilter) ([]models.ScoredRecord, error) {
	return queries.NewRecordRepository(s.db).List(ctx, runID, filter)
}
