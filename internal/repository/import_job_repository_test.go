package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-import-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func jobColumns() []string {
	return []string{"id", "kind", "source_bucket", "source_key", "file_name", "uploaded_by", "uploaded_by_type", "institution_id", "status", "options", "success_rows", "failed_rows", "error_report_key", "error_message", "created_at", "completed_at"}
}

func TestImportJobRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewImportJobRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO import_jobs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.ImportJob{
		Kind:           models.ImportKindStudent,
		SourceBucket:   "bulk-imports",
		SourceKey:      "imports/j1/source/students.csv",
		FileName:       "students.csv",
		UploadedBy:     "staff-1",
		UploadedByType: "staff",
		Options:        models.ImportOptions{BatchID: "batch-1", DepartmentID: "dept-1"},
	}
	require.NoError(t, repo.Create(context.Background(), job))
	require.NotEmpty(t, job.ID)
	require.Equal(t, models.ImportStatusPending, job.Status)

	rows := sqlmock.NewRows(jobColumns()).
		AddRow(job.ID, "student", "bulk-imports", job.SourceKey, "students.csv", "staff-1", "staff", nil, "pending", []byte(`{"batchId":"batch-1","departmentId":"dept-1"}`), 0, 0, nil, nil, time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, kind, source_bucket")).
		WithArgs(job.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, job.ID, found.ID)
	require.Equal(t, "batch-1", found.Options.BatchID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportJobRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewImportJobRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, kind, source_bucket")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(jobColumns()))

	found, err := repo.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportJobRepositoryUpdatePartial(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewImportJobRepository(db)
	status := models.ImportStatusCompleted
	success := 42
	failed := 3
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE import_jobs SET status = $1, success_rows = $2, failed_rows = $3, completed_at = $4 WHERE id = $5")).
		WithArgs(status, success, failed, now, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateImportJobParams{
		Status:      &status,
		SuccessRows: &success,
		FailedRows:  &failed,
		CompletedAt: &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportJobRepositoryUpdateNothing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewImportJobRepository(db)
	require.NoError(t, repo.Update(context.Background(), "job-1", UpdateImportJobParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportJobRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewImportJobRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM import_jobs")).
		WithArgs("staff-1", "staff").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	rows := sqlmock.NewRows(jobColumns()).
		AddRow("job-1", "teacher", "bulk-imports", "imports/job-1/source/t.csv", "t.csv", "staff-1", "staff", nil, "completed", []byte(`{}`), 10, 0, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, kind, source_bucket")).
		WithArgs("staff-1", "staff", 20, 0).
		WillReturnRows(rows)

	jobs, pagination, err := repo.List(context.Background(), models.ImportJobFilter{UploadedBy: "staff-1", UploadedByType: "staff"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, 1, pagination.TotalCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportJobRepositoryListPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewImportJobRepository(db)
	rows := sqlmock.NewRows(jobColumns()).
		AddRow("job-1", "student", "bulk-imports", "k", "f.csv", "staff-1", "staff", nil, "pending", []byte(`{}`), 0, 0, nil, nil, time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'pending'")).
		WithArgs(50).
		WillReturnRows(rows)

	jobs, err := repo.ListPending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
