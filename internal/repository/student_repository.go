package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-import-api/internal/models"
)

// StudentRepository persists learner accounts.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// ExistingEmails returns which of the candidate emails are already taken, in
// one batched read.
func (r *StudentRepository) ExistingEmails(ctx context.Context, emails []string) ([]string, error) {
	return r.existingValues(ctx, "email", emails)
}

// ExistingPhones returns which of the candidate phones are already taken.
func (r *StudentRepository) ExistingPhones(ctx context.Context, phones []string) ([]string, error) {
	return r.existingValues(ctx, "phone", phones)
}

func (r *StudentRepository) existingValues(ctx context.Context, column string, values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("SELECT %s FROM students WHERE %s IN (?)", column, column), values)
	if err != nil {
		return nil, fmt.Errorf("build students %s lookup: %w", column, err)
	}
	query = r.db.Rebind(query)
	var found []string
	if err := r.db.SelectContext(ctx, &found, query, args...); err != nil {
		return nil, fmt.Errorf("lookup existing student %ss: %w", column, err)
	}
	return found, nil
}

// ListRegNos returns every issued registration number. Seeds the identifier
// registry before generation.
func (r *StudentRepository) ListRegNos(ctx context.Context) ([]string, error) {
	var regNos []string
	if err := r.db.SelectContext(ctx, &regNos, `SELECT reg_no FROM students`); err != nil {
		return nil, fmt.Errorf("list registration numbers: %w", err)
	}
	return regNos, nil
}

// CreateBatch inserts all students and their rollback-tracking rows in one
// transaction. The read-back by email must account for every inserted row;
// any shortfall aborts the whole write.
func (r *StudentRepository) CreateBatch(ctx context.Context, jobID string, students []models.Student) ([]string, error) {
	if len(students) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin student batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO students (name, email, phone, gender, reg_no, password_hash, batch_id, department_id, section_id, locked)
VALUES (:name, :email, :phone, :gender, :reg_no, :password_hash, :batch_id, :department_id, :section_id, :locked)`
	if _, err := tx.NamedExecContext(ctx, insert, students); err != nil {
		return nil, fmt.Errorf("insert students: %w", err)
	}

	emails := make([]string, 0, len(students))
	for _, s := range students {
		emails = append(emails, s.Email)
	}
	query, args, err := sqlx.In(`SELECT id FROM students WHERE email IN (?)`, emails)
	if err != nil {
		return nil, fmt.Errorf("build student read-back: %w", err)
	}
	query = tx.Rebind(query)
	var ids []string
	if err := tx.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("read back created students: %w", err)
	}
	if len(ids) != len(students) {
		return nil, fmt.Errorf("student read-back mismatch: inserted %d, found %d", len(students), len(ids))
	}

	if err := insertImportRecordsTx(ctx, tx, jobID, models.ImportKindStudent, ids); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit student batch: %w", err)
	}
	return ids, nil
}

// DeleteByID removes a student row. Deleting an already-missing row is not an
// error; rollback tolerates independent deletions.
func (r *StudentRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete student rows affected: %w", err)
	}
	return affected > 0, nil
}
