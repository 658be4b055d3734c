package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-import-api/internal/models"
)

const importJobColumns = `id, kind, source_bucket, source_key, file_name, uploaded_by, uploaded_by_type, institution_id, status, options, success_rows, failed_rows, error_report_key, error_message, created_at, completed_at`

// ImportJobRepository persists bulk-import job metadata.
type ImportJobRepository struct {
	db *sqlx.DB
}

// NewImportJobRepository constructs the repository.
func NewImportJobRepository(db *sqlx.DB) *ImportJobRepository {
	return &ImportJobRepository{db: db}
}

// Create inserts a new job row with generated defaults.
func (r *ImportJobRepository) Create(ctx context.Context, job *models.ImportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ImportStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO import_jobs (id, kind, source_bucket, source_key, file_name, uploaded_by, uploaded_by_type, institution_id, status, options, success_rows, failed_rows, error_report_key, error_message, created_at, completed_at)
VALUES (:id, :kind, :source_bucket, :source_key, :file_name, :uploaded_by, :uploaded_by_type, :institution_id, :status, :options, :success_rows, :failed_rows, :error_report_key, :error_message, :created_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create import job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier.
func (r *ImportJobRepository) GetByID(ctx context.Context, id string) (*models.ImportJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM import_jobs WHERE id = $1`, importJobColumns)
	var job models.ImportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get import job: %w", err)
	}
	return &job, nil
}

// UpdateImportJobParams defines the mutable fields.
type UpdateImportJobParams struct {
	Status         *models.ImportStatus
	SuccessRows    *int
	FailedRows     *int
	ErrorReportKey *string
	ErrorMessage   *string
	CompletedAt    *time.Time
}

// Update persists the provided changes for a job row.
func (r *ImportJobRepository) Update(ctx context.Context, id string, params UpdateImportJobParams) error {
	set := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.SuccessRows != nil {
		set = append(set, fmt.Sprintf("success_rows = $%d", argPos))
		args = append(args, *params.SuccessRows)
		argPos++
	}
	if params.FailedRows != nil {
		set = append(set, fmt.Sprintf("failed_rows = $%d", argPos))
		args = append(args, *params.FailedRows)
		argPos++
	}
	if params.ErrorReportKey != nil {
		set = append(set, fmt.Sprintf("error_report_key = $%d", argPos))
		args = append(args, *params.ErrorReportKey)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}
	if params.CompletedAt != nil {
		set = append(set, fmt.Sprintf("completed_at = $%d", argPos))
		args = append(args, *params.CompletedAt)
		argPos++
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE import_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update import job: %w", err)
	}
	return nil
}

// List returns jobs for one uploader, newest first.
func (r *ImportJobRepository) List(ctx context.Context, filter models.ImportJobFilter) ([]models.ImportJob, *models.Pagination, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	where := []string{"uploaded_by = $1", "uploaded_by_type = $2"}
	args := []interface{}{filter.UploadedBy, filter.UploadedByType}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	clause := strings.Join(where, " AND ")

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM import_jobs WHERE %s", clause)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, nil, fmt.Errorf("count import jobs: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM import_jobs WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		importJobColumns, clause, len(args)+1, len(args)+2)
	args = append(args, size, (page-1)*size)

	var jobsList []models.ImportJob
	if err := r.db.SelectContext(ctx, &jobsList, query, args...); err != nil {
		return nil, nil, fmt.Errorf("list import jobs: %w", err)
	}

	return jobsList, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListPending fetches pending jobs for cold-start recovery.
func (r *ImportJobRepository) ListPending(ctx context.Context, limit int) ([]models.ImportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM import_jobs WHERE status = 'pending' ORDER BY created_at ASC LIMIT $1`, importJobColumns)
	var jobsList []models.ImportJob
	if err := r.db.SelectContext(ctx, &jobsList, query, limit); err != nil {
		return nil, fmt.Errorf("list pending import jobs: %w", err)
	}
	return jobsList, nil
}
