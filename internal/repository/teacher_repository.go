package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-import-api/internal/models"
)

// TeacherRepository persists teaching-staff accounts.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs the repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// ExistingEmails returns which of the candidate emails are already taken.
func (r *TeacherRepository) ExistingEmails(ctx context.Context, emails []string) ([]string, error) {
	return r.existingValues(ctx, "email", emails)
}

// ExistingPhones returns which of the candidate phones are already taken.
func (r *TeacherRepository) ExistingPhones(ctx context.Context, phones []string) ([]string, error) {
	return r.existingValues(ctx, "phone", phones)
}

func (r *TeacherRepository) existingValues(ctx context.Context, column string, values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("SELECT %s FROM teachers WHERE %s IN (?)", column, column), values)
	if err != nil {
		return nil, fmt.Errorf("build teachers %s lookup: %w", column, err)
	}
	query = r.db.Rebind(query)
	var found []string
	if err := r.db.SelectContext(ctx, &found, query, args...); err != nil {
		return nil, fmt.Errorf("lookup existing teacher %ss: %w", column, err)
	}
	return found, nil
}

// ListEmployeeNos returns every issued employee number.
func (r *TeacherRepository) ListEmployeeNos(ctx context.Context) ([]string, error) {
	var employeeNos []string
	if err := r.db.SelectContext(ctx, &employeeNos, `SELECT employee_no FROM teachers`); err != nil {
		return nil, fmt.Errorf("list employee numbers: %w", err)
	}
	return employeeNos, nil
}

// CreateBatch inserts all teachers and their rollback-tracking rows in one
// transaction, verifying the read-back covers every inserted row.
func (r *TeacherRepository) CreateBatch(ctx context.Context, jobID string, teachers []models.Teacher) ([]string, error) {
	if len(teachers) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin teacher batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO teachers (name, email, phone, gender, employee_no, password_hash, department_id, locked)
VALUES (:name, :email, :phone, :gender, :employee_no, :password_hash, :department_id, :locked)`
	if _, err := tx.NamedExecContext(ctx, insert, teachers); err != nil {
		return nil, fmt.Errorf("insert teachers: %w", err)
	}

	emails := make([]string, 0, len(teachers))
	for _, t := range teachers {
		emails = append(emails, t.Email)
	}
	query, args, err := sqlx.In(`SELECT id FROM teachers WHERE email IN (?)`, emails)
	if err != nil {
		return nil, fmt.Errorf("build teacher read-back: %w", err)
	}
	query = tx.Rebind(query)
	var ids []string
	if err := tx.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("read back created teachers: %w", err)
	}
	if len(ids) != len(teachers) {
		return nil, fmt.Errorf("teacher read-back mismatch: inserted %d, found %d", len(teachers), len(ids))
	}

	if err := insertImportRecordsTx(ctx, tx, jobID, models.ImportKindTeacher, ids); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit teacher batch: %w", err)
	}
	return ids, nil
}

// DeleteByID removes a teacher row, tolerating already-missing rows.
func (r *TeacherRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM teachers WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete teacher: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete teacher rows affected: %w", err)
	}
	return affected > 0, nil
}
