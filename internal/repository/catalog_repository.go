package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-import-api/internal/models"
)

// CatalogRepository reads the batch/department/institution reference data the
// allocator and notifier need. All writes happen elsewhere.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetBatch returns one batch by id.
func (r *CatalogRepository) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, `SELECT id, batch_year, course_id FROM batches WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &batch, nil
}

// GetDepartment returns one department by id.
func (r *CatalogRepository) GetDepartment(ctx context.Context, id string) (*models.Department, error) {
	var department models.Department
	if err := r.db.GetContext(ctx, &department, `SELECT id, name, short_name, institution_id FROM departments WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get department: %w", err)
	}
	return &department, nil
}

// GetInstitution returns one institution by id.
func (r *CatalogRepository) GetInstitution(ctx context.Context, id string) (*models.Institution, error) {
	var institution models.Institution
	if err := r.db.GetContext(ctx, &institution, `SELECT id, name FROM institutions WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get institution: %w", err)
	}
	return &institution, nil
}
