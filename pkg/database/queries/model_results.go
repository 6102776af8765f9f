package queries

import (
	"context"
	"time"

	"github.com/OldStager01/packet-anomaly/pkg/models"
)

type ModelResultRepository struct {
	db DBTX
}

func NewModelResultRepository(db DBTX) *ModelResultRepository {
	return &ModelResultRepository{db: db}
}

type ModelResultRow struct {
	Position            int     `json:"position"`
	Name                string  `json:"name"`
	Variant             string  `json:"variant"`
	ReconstructionError float64 `json:"mse"`
	Accuracy            float64 `json:"accuracy"`
	TrainingTimeSeconds float64 `json:"training_time_seconds"`
	Selected            bool    `json:"selected"`
}

// InsertAll stores the results of a run in pool order, marking the selected
// model.
func (r *ModelResultRepository) InsertAll(ctx context.Context, runID string, results []models.ModelResult, selected string) error {
	query := `
		INSERT INTO model_results
			(run_id, position, name, variant, mse, accuracy, training_time_seconds, selected)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, name) DO NOTHING`

	for i, res := range results {
		_, err := r.db.ExecContext(ctx, query,
			runID,
			i,
			res.Name,
			res.Variant,
			res.ReconstructionError,
			res.Accuracy,
			res.TrainingTime.Seconds(),
			res.Name == selected,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *ModelResultRepository) GetByRun(ctx context.Context, runID string) ([]ModelResultRow, error) {
	query := `
		SELECT position, name, variant, mse, accuracy, training_time_seconds, selected
		FROM model_results
		WHERE run_id = $1
		ORDER BY position`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ModelResultRow
	for rows.Next() {
		var m ModelResultRow
		err := rows.Scan(
			&m.Position, &m.Name, &m.Variant, &m.ReconstructionError,
			&m.Accuracy, &m.TrainingTimeSeconds, &m.Selected,
		)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}

	return results, rows.Err()
}

// ToModelResult converts a stored row back to the pipeline's result type.
// Reconstructions and training history are not persisted.
func (m ModelResultRow) ToModelResult() models.ModelResult {
	return models.ModelResult{
		Name:                m.Name,
		Variant:             m.Variant,
		ReconstructionError: m.ReconstructionError,
		Accuracy:            m.Accuracy,
		TrainingTime:        time.Duration(m.TrainingTimeSeconds * float64(time.Second)),
	}
}
