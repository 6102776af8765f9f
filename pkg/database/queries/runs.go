package queries

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/OldStager01/packet-anomaly/pkg/models"
)

var ErrRunNotFound = errors.New("run not found")

type RunRepository struct {
	db DBTX
}

func NewRunRepository(db DBTX) *RunRepository {
	return &RunRepository{db: db}
}

// RunRow is a persisted run together with its headline results.
type RunRow struct {
	ID           string           `json:"id"`
	Status       models.RunStatus `json:"status"`
	Paths        []string         `json:"paths"`
	Error        string           `json:"error,omitempty"`
	RecordCount  int              `json:"record_count"`
	AnomalyCount int              `json:"anomaly_count"`
	Percentile   float64          `json:"percentile"`
	Threshold    *float64         `json:"threshold,omitempty"`
	BestModel    string           `json:"best_model,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

const runColumns = `id, status, paths, error, record_count, anomaly_count, percentile,
		threshold, best_model, started_at, completed_at`

func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	query := `
		INSERT INTO runs (id, status, paths, started_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, run.ID, run.Status, pq.Array(run.Paths), run.StartedAt)
	return err
}

// UpdateStatus moves an unfinished run to status. Finished runs are left
// untouched and report ErrRunNotFound.
func (r *RunRepository) UpdateStatus(ctx context.Context, id string, status models.RunStatus) error {
	query := `UPDATE runs SET status = $2 WHERE id = $1 AND completed_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (r *RunRepository) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	query := `UPDATE runs SET status = $2, error = $3, completed_at = $4 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, models.RunStatusFailed, reason, at)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// Complete stores the headline results of a finished run, creating the run
// row if it was never registered.
func (r *RunRepository) Complete(ctx context.Context, report *models.RunReport) error {
	query := `
		INSERT INTO runs (id, status, paths, record_count, anomaly_count, percentile,
			threshold, best_model, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			record_count = EXCLUDED.record_count,
			anomaly_count = EXCLUDED.anomaly_count,
			percentile = EXCLUDED.percentile,
			threshold = EXCLUDED.threshold,
			best_model = EXCLUDED.best_model,
			completed_at = EXCLUDED.completed_at`

	_, err := r.db.ExecContext(ctx, query,
		report.RunID,
		models.RunStatusCompleted,
		pq.Array(report.Paths),
		report.RecordCount,
		report.AnomalyCount,
		report.Percentile,
		report.Threshold,
		report.BestModel,
		report.StartedAt,
		report.CompletedAt,
	)
	return err
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*RunRow, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	return run, err
}

func (r *RunRepository) List(ctx context.Context, limit, offset int) ([]*RunRow, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + `
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*RunRow
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*RunRow, error) {
	var (
		run       RunRow
		errText   sql.NullString
		threshold sql.NullFloat64
		bestModel sql.NullString
		completed sql.NullTime
	)

	err := s.Scan(
		&run.ID, &run.Status, pq.Array(&run.Paths), &errText,
		&run.RecordCount, &run.AnomalyCount, &run.Percentile,
		&threshold, &bestModel, &run.StartedAt, &completed,
	)
	if err != nil {
		return nil, err
	}

	run.Error = errText.String
	run.BestModel = bestModel.String
	if threshold.Valid {
		run.Threshold = &threshold.Float64
	}
	if completed.Valid {
		run.CompletedAt = &completed.Time
	}
	return &run, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}
