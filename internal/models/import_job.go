package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ImportKind enumerates the supported bulk-import varieties.
type ImportKind string

const (
	ImportKindStudent ImportKind = "student"
	ImportKindTeacher ImportKind = "teacher"
)

// ImportStatus captures the job lifecycle. Transitions only move forward:
// pending -> processing -> completed|failed, and completed -> rolled_back via
// the explicit rollback operation.
type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "pending"
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
	ImportStatusRolledBack ImportStatus = "rolled_back"
)

// ImportJob is one bulk-import submission and its audit record. Rows are
// never deleted; rollback removes the records a job created, not the job.
type ImportJob struct {
	ID             string        `db:"id" json:"id"`
	Kind           ImportKind    `db:"kind" json:"kind"`
	SourceBucket   string        `db:"source_bucket" json:"-"`
	SourceKey      string        `db:"source_key" json:"-"`
	FileName       string        `db:"file_name" json:"file_name"`
	UploadedBy     string        `db:"uploaded_by" json:"uploaded_by"`
	UploadedByType string        `db:"uploaded_by_type" json:"uploaded_by_type"`
	InstitutionID  *string       `db:"institution_id" json:"institution_id,omitempty"`
	Status         ImportStatus  `db:"status" json:"status"`
	Options        ImportOptions `db:"options" json:"options"`
	SuccessRows    int           `db:"success_rows" json:"success_rows"`
	FailedRows     int           `db:"failed_rows" json:"failed_rows"`
	ErrorReportKey *string       `db:"error_report_key" json:"error_report_key,omitempty"`
	ErrorMessage   *string       `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	CompletedAt    *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
}

// ImportOptions stores per-kind submission options persisted as JSONB.
// BatchID/DepartmentID are required for student imports, ignored for teachers.
type ImportOptions struct {
	SkipDuplicates    bool   `json:"skipDuplicates,omitempty"`
	SendWelcomeEmails bool   `json:"sendWelcomeEmails,omitempty"`
	BatchID           string `json:"batchId,omitempty"`
	DepartmentID      string `json:"departmentId,omitempty"`
}

// Value marshals options to JSON for persistence.
func (o ImportOptions) Value() (driver.Value, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshal import options: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the options struct.
func (o *ImportOptions) Scan(value interface{}) error {
	if value == nil {
		*o = ImportOptions{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ImportOptions", value)
	}
	if len(data) == 0 {
		*o = ImportOptions{}
		return nil
	}
	if err := json.Unmarshal(data, o); err != nil {
		return fmt.Errorf("unmarshal import options: %w", err)
	}
	return nil
}

// Terminal reports whether the job reached a final state.
func (s ImportStatus) Terminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusFailed || s == ImportStatusRolledBack
}

// ImportJobFilter narrows job listings.
type ImportJobFilter struct {
	UploadedBy     string
	UploadedByType string
	Status         ImportStatus
	Page           int
	PageSize       int
}
