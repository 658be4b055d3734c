package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-import-api/internal/models"
)

// SectionRepository reads and creates class sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// ListOccupancy returns every section of a batch+department together with its
// per-gender headcount in one aggregated read.
func (r *SectionRepository) ListOccupancy(ctx context.Context, batchID, departmentID string) ([]models.SectionOccupancy, error) {
	const query = `SELECT s.id, s.batch_id, s.department_id, s.code, s.capacity, s.created_at,
COUNT(st.id) FILTER (WHERE st.gender = 'MALE') AS male_count,
COUNT(st.id) FILTER (WHERE st.gender = 'FEMALE') AS female_count,
COUNT(st.id) FILTER (WHERE st.gender = 'OTHER') AS other_count
FROM sections s
LEFT JOIN students st ON st.section_id = s.id
WHERE s.batch_id = $1 AND s.department_id = $2
GROUP BY s.id
ORDER BY s.code ASC`
	var sections []models.SectionOccupancy
	if err := r.db.SelectContext(ctx, &sections, query, batchID, departmentID); err != nil {
		return nil, fmt.Errorf("list section occupancy: %w", err)
	}
	return sections, nil
}

// CreateMany inserts the provided sections, generating ids when absent.
func (r *SectionRepository) CreateMany(ctx context.Context, sections []models.Section) error {
	if len(sections) == 0 {
		return nil
	}
	for i := range sections {
		if sections[i].ID == "" {
			sections[i].ID = uuid.NewString()
		}
	}
	const query = `INSERT INTO sections (id, batch_id, department_id, code, capacity) VALUES (:id, :batch_id, :department_id, :code, :capacity)`
	if _, err := r.db.NamedExecContext(ctx, query, sections); err != nil {
		return fmt.Errorf("create sections: %w", err)
	}
	return nil
}
