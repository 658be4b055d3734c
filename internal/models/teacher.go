package models

import "time"

// Teacher represents a teaching-staff account created by the platform.
type Teacher struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone"`
	Gender       string    `db:"gender" json:"gender"`
	EmployeeNo   string    `db:"employee_no" json:"employee_no"`
	PasswordHash string    `db:"password_hash" json:"-"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	Locked       bool      `db:"locked" json:"locked"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
