package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-import-api/internal/models"
)

// ImportRecordRepository tracks rows created by a job for rollback.
type ImportRecordRepository struct {
	db *sqlx.DB
}

// NewImportRecordRepository constructs the repository.
func NewImportRecordRepository(db *sqlx.DB) *ImportRecordRepository {
	return &ImportRecordRepository{db: db}
}

// ListByJob returns every tracked record for one job.
func (r *ImportRecordRepository) ListByJob(ctx context.Context, jobID string) ([]models.ImportRecord, error) {
	const query = `SELECT id, job_id, record_id, record_kind, created_at FROM import_records WHERE job_id = $1 ORDER BY created_at ASC`
	var records []models.ImportRecord
	if err := r.db.SelectContext(ctx, &records, query, jobID); err != nil {
		return nil, fmt.Errorf("list import records: %w", err)
	}
	return records, nil
}

// DeleteByJob removes all tracking rows once a rollback completes.
func (r *ImportRecordRepository) DeleteByJob(ctx context.Context, jobID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM import_records WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("delete import records: %w", err)
	}
	return nil
}

// insertImportRecordsTx writes tracking rows inside the same transaction as
// the bulk entity insert, so persistence and bookkeeping commit atomically.
func insertImportRecordsTx(ctx context.Context, tx *sqlx.Tx, jobID string, kind models.ImportKind, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	rows := make([]models.ImportRecord, 0, len(recordIDs))
	for _, id := range recordIDs {
		rows = append(rows, models.ImportRecord{JobID: jobID, RecordID: id, RecordKind: kind})
	}
	const query = `INSERT INTO import_records (job_id, record_id, record_kind) VALUES (:job_id, :record_id, :record_kind)`
	if _, err := tx.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("insert import records: %w", err)
	}
	return nil
}
