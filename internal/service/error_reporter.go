package service

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/noah-isme/campus-import-api/pkg/export"
	appErrors "github.com/noah-isme/campus-import-api/pkg/errors"
)

type reportStore interface {
	Put(bucket, key string, data []byte) error
}

// ErrorReporter renders rejected rows into a downloadable CSV and uploads it
// next to the job's source file. Only called when at least one rejection
// exists; an upload failure is reported to the caller but never fails the job.
type ErrorReporter struct {
	store    reportStore
	exporter *export.CSVExporter
	bucket   string
}

// NewErrorReporter constructs the reporter.
func NewErrorReporter(store reportStore, bucket string) *ErrorReporter {
	return &ErrorReporter{store: store, exporter: export.NewCSVExporter(), bucket: bucket}
}

// ReportKey is where the report of a job lives inside the import bucket.
func ReportKey(jobID string) string {
	return fmt.Sprintf("imports/%s/errors.csv", jobID)
}

// Upload renders and stores the report, returning its storage key.
func (r *ErrorReporter) Upload(jobID string, columns []string, rejections []Rejection) (string, error) {
	sorted := make([]Rejection, len(rejections))
	copy(sorted, rejections)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Row < sorted[j].Row })

	records := make([]map[string]string, 0, len(sorted))
	for _, rejection := range sorted {
		record := map[string]string{
			"Row":    strconv.Itoa(rejection.Row),
			"Reason": rejection.Reason,
		}
		for _, column := range columns {
			record[column] = rejection.Data[column]
		}
		records = append(records, record)
	}

	dataset := export.Dataset{
		Columns: append([]string{"Row", "Reason"}, columns...),
		Records: records,
	}
	payload, err := r.exporter.Render(dataset)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrReportUpload.Code, appErrors.ErrReportUpload.Status, "failed to render error report")
	}

	key := ReportKey(jobID)
	if err := r.store.Put(r.bucket, key, payload); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrReportUpload.Code, appErrors.ErrReportUpload.Status, "failed to store error report")
	}
	return key, nil
}
