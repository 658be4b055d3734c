package models

import "time"

// Student represents a learner account created by the platform. Bulk-created
// accounts carry a shared placeholder password hash and must use the reset
// flow before first login.
type Student struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone"`
	Gender       string    `db:"gender" json:"gender"`
	RegNo        string    `db:"reg_no" json:"reg_no"`
	PasswordHash string    `db:"password_hash" json:"-"`
	BatchID      string    `db:"batch_id" json:"batch_id"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	SectionID    string    `db:"section_id" json:"section_id"`
	Locked       bool      `db:"locked" json:"locked"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
