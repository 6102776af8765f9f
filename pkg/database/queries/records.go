package queries

import (
	"context"
	"fmt"

	"github.com/OldStager01/packet-anomaly/pkg/models"
)

type RecordRepository struct {
	db DBTX
}

func NewRecordRepository(db DBTX) *RecordRepository {
	return &RecordRepository{db: db}
}

// RecordFilter selects a page of scored records. A nil Anomalous returns
// both normal and anomalous records.
type RecordFilter struct {
	Anomalous *bool
	Limit     int
	Offset    int
}

func (r *RecordRepository) InsertAll(ctx context.Context, runID string, records []models.ScoredRecord) error {
	if len(records) == 0 {
		return nil
	}

	stmt, err := r.db.PrepareContext(ctx, `
		INSERT INTO run_records
			(run_id, idx, timestamp, packet_length, source_ip, dest_ip,
			 payload_sum, payload_len, error, anomaly)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, idx) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx,
			runID,
			rec.Index,
			rec.Record.Timestamp,
			rec.Record.PacketLength,
			rec.Record.SourceIP,
			rec.Record.DestIP,
			rec.Record.PayloadSum,
			rec.Record.PayloadLen,
			rec.Error,
			rec.Anomaly,
		)
		if err != nil {
			return fmt.Errorf("failed to insert record %d: %w", rec.Index, err)
		}
	}
	return nil
}

func (r *RecordRepository) List(ctx context.Context, runID string, filter RecordFilter) ([]models.ScoredRecord, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}

	query := `
		SELECT idx, timestamp, packet_length, source_ip, dest_ip,
			   payload_sum, payload_len, error, anomaly
		FROM run_records
		WHERE run_id = $1 AND ($2::boolean IS NULL OR anomaly = $2)
		ORDER BY idx
		LIMIT $3 OFFSET $4`

	rows, err := r.db.QueryContext(ctx, query, runID, filter.Anomalous, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ScoredRecord
	for rows.Next() {
		var rec models.ScoredRecord
		err := rows.Scan(
			&rec.Index,
			&rec.Record.Timestamp,
			&rec.Record.PacketLength,
			&rec.Record.SourceIP,
			&rec.Record.DestIP,
			&rec.Record.PayloadSum,
			&rec.Record.PayloadLen,
			&rec.Error,
			&rec.Anomaly,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (r *RecordRepository) CountAnomalies(ctx context.Context, runID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM run_records WHERE run_id = $1 AND anomaly`
	err := r.db.QueryRowContext(ctx, query, runID).Scan(&n)
	return n, err
}
