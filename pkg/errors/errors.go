package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "authentication required")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// Import pipeline failures. The first three are fatal for the whole job.
	ErrMalformedInput    = New("MALFORMED_INPUT", http.StatusBadRequest, "uploaded file could not be parsed")
	ErrCapacityExhausted = New("CAPACITY_EXHAUSTED", http.StatusConflict, "no section has spare capacity")
	ErrCodeSpaceBusy     = New("CODE_SPACE_EXHAUSTED", http.StatusInternalServerError, "failed to generate a unique identifier")
	ErrPersistence       = New("PERSISTENCE_ERROR", http.StatusInternalServerError, "bulk write did not complete")
	ErrReportUpload      = New("REPORT_UPLOAD_FAILED", http.StatusInternalServerError, "error report could not be stored")

	ErrJobNotFound        = New("JOB_NOT_FOUND", http.StatusNotFound, "import job not found")
	ErrJobNotRollbackable = New("JOB_NOT_ROLLBACKABLE", http.StatusConflict, "only completed jobs can be rolled back")
	ErrRollbackExpired    = New("ROLLBACK_WINDOW_EXPIRED", http.StatusConflict, "rollback window has expired")
	ErrBatchTooLarge      = New("BATCH_TOO_LARGE", http.StatusBadRequest, "too many rows in a single import")
	ErrUnsupportedFormat  = New("UNSUPPORTED_FORMAT", http.StatusBadRequest, "only csv and json files are accepted")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
