package dto

import (
	"time"

	"github.com/noah-isme/campus-import-api/internal/models"
)

// SubmitImportResponse acknowledges a queued import job.
type SubmitImportResponse struct {
	JobID  string              `json:"job_id"`
	Status models.ImportStatus `json:"status"`
}

// ImportJobResponse is the polling surface for a job.
type ImportJobResponse struct {
	ID             string              `json:"id"`
	Kind           models.ImportKind   `json:"kind"`
	FileName       string              `json:"file_name"`
	Status         models.ImportStatus `json:"status"`
	SuccessRows    int                 `json:"success_rows"`
	FailedRows     int                 `json:"failed_rows"`
	ErrorReportKey *string             `json:"error_report_key,omitempty"`
	Error          *string             `json:"error,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
}

// RollbackResponse reports the outcome of a rollback request.
type RollbackResponse struct {
	JobID          string              `json:"job_id"`
	Status         models.ImportStatus `json:"status"`
	RecordsDeleted int                 `json:"records_deleted"`
}

// JobProgress is the live progress snapshot kept in Redis while a job runs.
type JobProgress struct {
	Status    models.ImportStatus `json:"status"`
	Processed int                 `json:"processed"`
	Total     int                 `json:"total"`
	Timestamp time.Time           `json:"timestamp"`
}

// JobResultEvent is published on the bulk.import.completed / bulk.import.failed
// channels once a job reaches a terminal state.
type JobResultEvent struct {
	JobID          string              `json:"job_id"`
	Status         models.ImportStatus `json:"status"`
	SuccessCount   int                 `json:"success_count"`
	FailureCount   int                 `json:"failure_count"`
	ErrorReportKey string              `json:"error_report_key,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// WelcomeEmailEvent asks the notification layer to render a welcome email for
// one created account. It never carries a password, only a reset prompt.
type WelcomeEmailEvent struct {
	Kind            string            `json:"kind"`
	Email           string            `json:"email"`
	Name            string            `json:"name"`
	Identifiers     map[string]string `json:"generated_identifiers"`
	InstitutionName string            `json:"institution_name,omitempty"`
	DepartmentName  string            `json:"department_name,omitempty"`
	LoginURL        string            `json:"login_url"`
}

// SectionAllocationSummary reports per-section placement results.
type SectionAllocationSummary struct {
	SectionCode       string `json:"section_code"`
	NewSection        bool   `json:"new_section"`
	ExistingStudents  int    `json:"existing_students"`
	NewlyAllocated    int    `json:"newly_allocated"`
	ExistingMale      int    `json:"existing_male"`
	ExistingFemale    int    `json:"existing_female"`
	ExistingOther     int    `json:"existing_other"`
	NewMale           int    `json:"new_male"`
	NewFemale         int    `json:"new_female"`
	NewOther          int    `json:"new_other"`
	TotalInSection    int    `json:"total_in_section"`
	RemainingCapacity int    `json:"remaining_capacity"`
}
