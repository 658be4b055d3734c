package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/campus-import-api/pkg/errors"
)

type stubReportStore struct {
	bucket string
	key    string
	data   []byte
	err    error
}

func (s *stubReportStore) Put(bucket, key string, data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.bucket = bucket
	s.key = key
	s.data = data
	return nil
}

func TestErrorReporterUpload(t *testing.T) {
	store := &stubReportStore{}
	reporter := NewErrorReporter(store, "uploads")

	rejections := []Rejection{
		{Row: 7, Reason: "duplicate email", Data: Row{"name": "Vikram Singh", "email": "vikram@example.com"}},
		{Row: 2, Reason: "name is required", Data: Row{"name": "", "email": "asha@example.com"}},
	}

	key, err := reporter.Upload("job-1", []string{"name", "email"}, rejections)

	require.NoError(t, err)
	assert.Equal(t, "imports/job-1/errors.csv", key)
	assert.Equal(t, "uploads", store.bucket)
	assert.Equal(t, key, store.key)

	want := "Row,Reason,name,email\n" +
		"2,name is required,,asha@example.com\n" +
		"7,duplicate email,Vikram Singh,vikram@example.com\n"
	assert.Equal(t, want, string(store.data), "rows come out sorted by input position")
}

func TestErrorReporterUploadFailure(t *testing.T) {
	store := &stubReportStore{err: fmt.Errorf("disk full")}
	reporter := NewErrorReporter(store, "uploads")

	_, err := reporter.Upload("job-1", []string{"name"}, []Rejection{{Row: 2, Reason: "name is required"}})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrReportUpload.Code, appErrors.FromError(err).Code)
}
