package models

import "time"

// Gender values accepted across student and teacher records.
const (
	GenderMale   = "MALE"
	GenderFemale = "FEMALE"
	GenderOther  = "OTHER"
)

// Section is a capacity-bounded group of students within one batch and
// department. Codes are unique per batch+department scope.
type Section struct {
	ID           string    `db:"id" json:"id"`
	BatchID      string    `db:"batch_id" json:"batch_id"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	Code         string    `db:"code" json:"code"`
	Capacity     int       `db:"capacity" json:"capacity"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// SectionOccupancy carries a section together with its per-gender headcount,
// produced by one aggregated read before allocation.
type SectionOccupancy struct {
	Section
	MaleCount   int `db:"male_count" json:"male_count"`
	FemaleCount int `db:"female_count" json:"female_count"`
	OtherCount  int `db:"other_count" json:"other_count"`
}

// Occupied returns the section's current total headcount.
func (s SectionOccupancy) Occupied() int {
	return s.MaleCount + s.FemaleCount + s.OtherCount
}
