package models

// Batch is an academic cohort, e.g. the 2024-2028 admission year.
type Batch struct {
	ID        string `db:"id" json:"id"`
	BatchYear string `db:"batch_year" json:"batch_year"`
	CourseID  string `db:"course_id" json:"course_id"`
}

// Department groups sections and staff. ShortName feeds section codes.
type Department struct {
	ID            string `db:"id" json:"id"`
	Name          string `db:"name" json:"name"`
	ShortName     string `db:"short_name" json:"short_name"`
	InstitutionID string `db:"institution_id" json:"institution_id"`
}

// Institution is the owning tenant of departments and batches.
type Institution struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Pagination carries listing metadata.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
