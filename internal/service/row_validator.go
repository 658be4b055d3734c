package service

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Rejection is one row excluded from the import, with a user-facing reason.
// Row positions are 1-based to match the spreadsheet the uploader sees.
type Rejection struct {
	Row    int
	Reason string
	Data   Row
}

// StudentRow is the typed shape of one valid student input row.
type StudentRow struct {
	Name   string `validate:"required,min=2"`
	Email  string `validate:"required,email"`
	Phone  string `validate:"required"`
	Gender string `validate:"required,oneof=MALE FEMALE OTHER"`
}

// TeacherRow is the typed shape of one valid teacher input row.
type TeacherRow struct {
	Name   string `validate:"required,min=2"`
	Email  string `validate:"required,email"`
	Phone  string `validate:"required,min=10"`
	Gender string `validate:"required,oneof=MALE FEMALE OTHER"`
}

// StudentCandidate pairs a typed row with its original position and data.
type StudentCandidate struct {
	Position int
	Data     Row
	StudentRow
}

// TeacherCandidate pairs a typed row with its original position and data.
type TeacherCandidate struct {
	Position int
	Data     Row
	TeacherRow
}

// RowValidator coerces raw rows against the per-kind schema. Validation is
// independent per row; one row's failure never affects another's.
type RowValidator struct {
	validate *validator.Validate
}

// NewRowValidator constructs the validator.
func NewRowValidator() *RowValidator {
	return &RowValidator{validate: validator.New()}
}

// ValidateStudents splits rows into typed candidates and rejections. Every
// failing field is named in the rejection reason, not just the first.
func (v *RowValidator) ValidateStudents(rows []Row) ([]StudentCandidate, []Rejection) {
	var valid []StudentCandidate
	var rejected []Rejection
	for i, row := range rows {
		candidate := StudentRow{
			Name:   strings.TrimSpace(row["name"]),
			Email:  strings.ToLower(strings.TrimSpace(row["email"])),
			Phone:  strings.TrimSpace(row["phone"]),
			Gender: strings.ToUpper(strings.TrimSpace(row["gender"])),
		}
		if reason := v.check(candidate); reason != "" {
			rejected = append(rejected, Rejection{Row: i + 1, Reason: reason, Data: row})
			continue
		}
		valid = append(valid, StudentCandidate{Position: i, Data: row, StudentRow: candidate})
	}
	return valid, rejected
}

// ValidateTeachers splits rows into typed candidates and rejections.
func (v *RowValidator) ValidateTeachers(rows []Row) ([]TeacherCandidate, []Rejection) {
	var valid []TeacherCandidate
	var rejected []Rejection
	for i, row := range rows {
		candidate := TeacherRow{
			Name:   strings.TrimSpace(row["name"]),
			Email:  strings.ToLower(strings.TrimSpace(row["email"])),
			Phone:  strings.TrimSpace(row["phone"]),
			Gender: strings.ToUpper(strings.TrimSpace(row["gender"])),
		}
		if reason := v.check(candidate); reason != "" {
			rejected = append(rejected, Rejection{Row: i + 1, Reason: reason, Data: row})
			continue
		}
		valid = append(valid, TeacherCandidate{Position: i, Data: row, TeacherRow: candidate})
	}
	return valid, rejected
}

func (v *RowValidator) check(candidate interface{}) string {
	err := v.validate.Struct(candidate)
	if err == nil {
		return ""
	}
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	reasons := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		reasons = append(reasons, fieldMessage(fieldErr))
	}
	return strings.Join(reasons, ", ")
}

func fieldMessage(fieldErr validator.FieldError) string {
	field := strings.ToLower(fieldErr.Field())
	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fieldErr.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, strings.ReplaceAll(fieldErr.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
