package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-import-api/internal/dto"
	internalmiddleware "github.com/noah-isme/campus-import-api/internal/middleware"
	"github.com/noah-isme/campus-import-api/internal/models"
	"github.com/noah-isme/campus-import-api/internal/service"
	appErrors "github.com/noah-isme/campus-import-api/pkg/errors"
)

type stubImportService struct {
	submitted  *service.SubmitImportParams
	submitErr  error
	job        *models.ImportJob
	jobErr     error
	progress   *dto.JobProgress
	rollback   *dto.RollbackResponse
	rolledBack []string
	report     []byte
}

func (s *stubImportService) Submit(ctx context.Context, params service.SubmitImportParams) (*models.ImportJob, error) {
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	s.submitted = &params
	return &models.ImportJob{ID: "job-1", Status: models.ImportStatusPending}, nil
}

func (s *stubImportService) GetJob(ctx context.Context, id string) (*models.ImportJob, error) {
	if s.jobErr != nil {
		return nil, s.jobErr
	}
	return s.job, nil
}

func (s *stubImportService) GetProgress(ctx context.Context, id string) (*dto.JobProgress, error) {
	return s.progress, nil
}

func (s *stubImportService) ListJobs(ctx context.Context, filter models.ImportJobFilter) ([]models.ImportJob, *models.Pagination, error) {
	jobs := []models.ImportJob{}
	if s.job != nil {
		jobs = append(jobs, *s.job)
	}
	return jobs, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: len(jobs)}, nil
}

func (s *stubImportService) DownloadErrorReport(ctx context.Context, id string) ([]byte, string, error) {
	if s.report == nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "job has no error report")
	}
	return s.report, id + "-errors.csv", nil
}

func (s *stubImportService) Rollback(ctx context.Context, id string) (*dto.RollbackResponse, error) {
	s.rolledBack = append(s.rolledBack, id)
	return s.rollback, nil
}

func buildImportRouter(svc *stubImportService, window time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(internalmiddleware.RequireIdentity())
	NewImportHandler(svc, window).RegisterRoutes(api)
	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func asStaff(req *http.Request) *http.Request {
	req.Header.Set(internalmiddleware.HeaderUserID, "staff-1")
	req.Header.Set(internalmiddleware.HeaderUserType, "staff")
	req.Header.Set(internalmiddleware.HeaderInstitutionID, "inst-1")
	return req
}

func multipartUpload(t *testing.T, filename string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("name,email,phone,gender\nAsha Rao,asha@example.com,9000000001,FEMALE\n"))
	require.NoError(t, err)
	for field, value := range fields {
		require.NoError(t, writer.WriteField(field, value))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestSubmitEndpoint(t *testing.T) {
	svc := &stubImportService{}
	router := buildImportRouter(svc, 0)

	t.Run("unauthorized without identity headers", func(t *testing.T) {
		body, contentType := multipartUpload(t, "students.csv", map[string]string{"kind": "student"})
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/imports", body)
		req.Header.Set("Content-Type", contentType)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
		require.Contains(t, resp.Body.String(), "UNAUTHORIZED")
	})

	t.Run("accepted", func(t *testing.T) {
		body, contentType := multipartUpload(t, "students.csv", map[string]string{
			"kind":          "student",
			"batch_id":      "batch-1",
			"department_id": "dept-1",
		})
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/imports", body)
		req.Header.Set("Content-Type", contentType)
		resp := performRequest(router, asStaff(req))

		require.Equal(t, http.StatusAccepted, resp.Code)
		require.Contains(t, resp.Body.String(), `"job_id":"job-1"`)

		require.NotNil(t, svc.submitted)
		require.Equal(t, models.ImportKindStudent, svc.submitted.Kind)
		require.Equal(t, "students.csv", svc.submitted.FileName)
		require.Equal(t, "staff-1", svc.submitted.UploadedBy)
		require.NotNil(t, svc.submitted.InstitutionID)
		require.Equal(t, "inst-1", *svc.submitted.InstitutionID)
		require.True(t, svc.submitted.Options.SkipDuplicates, "skip_duplicates defaults on")
		require.False(t, svc.submitted.Options.SendWelcomeEmails)
		require.Equal(t, "batch-1", svc.submitted.Options.BatchID)
	})

	t.Run("option flags parsed", func(t *testing.T) {
		body, contentType := multipartUpload(t, "students.csv", map[string]string{
			"kind":                "student",
			"batch_id":            "batch-1",
			"department_id":       "dept-1",
			"skip_duplicates":     "false",
			"send_welcome_emails": "true",
		})
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/imports", body)
		req.Header.Set("Content-Type", contentType)
		resp := performRequest(router, asStaff(req))

		require.Equal(t, http.StatusAccepted, resp.Code)
		require.False(t, svc.submitted.Options.SkipDuplicates)
		require.True(t, svc.submitted.Options.SendWelcomeEmails)
	})

	t.Run("missing file", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/imports", bytes.NewBufferString(""))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
		resp := performRequest(router, asStaff(req))
		require.Equal(t, http.StatusBadRequest, resp.Code)
		require.Contains(t, resp.Body.String(), "file is required")
	})

	t.Run("service error surfaces", func(t *testing.T) {
		svc.submitErr = appErrors.Clone(appErrors.ErrUnsupportedFormat, "unsupported file extension")
		defer func() { svc.submitErr = nil }()

		body, contentType := multipartUpload(t, "students.xlsx", map[string]string{"kind": "student"})
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/imports", body)
		req.Header.Set("Content-Type", contentType)
		resp := performRequest(router, asStaff(req))
		require.Equal(t, http.StatusBadRequest, resp.Code)
		require.Contains(t, resp.Body.String(), "UNSUPPORTED_FORMAT")
	})
}

func TestGetEndpoint(t *testing.T) {
	svc := &stubImportService{
		job: &models.ImportJob{ID: "job-1", Status: models.ImportStatusProcessing, UploadedBy: "staff-1"},
		progress: &dto.JobProgress{
			Status:    models.ImportStatusProcessing,
			Processed: 40,
			Total:     100,
		},
	}
	router := buildImportRouter(svc, 0)

	t.Run("attaches progress while running", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/api/v1/imports/job-1", nil)
		resp := performRequest(router, asStaff(req))

		require.Equal(t, http.StatusOK, resp.Code)
		var envelope struct {
			Meta map[string]json.RawMessage `json:"meta"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
		require.Contains(t, envelope.Meta, "progress")
	})

	t.Run("no progress once terminal", func(t *testing.T) {
		svc.job.Status = models.ImportStatusCompleted
		defer func() { svc.job.Status = models.ImportStatusProcessing }()

		req, _ := http.NewRequest(http.MethodGet, "/api/v1/imports/job-1", nil)
		resp := performRequest(router, asStaff(req))

		require.Equal(t, http.StatusOK, resp.Code)
		require.NotContains(t, resp.Body.String(), `"progress"`)
	})

	t.Run("forbidden for other users", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/api/v1/imports/job-1", nil)
		req.Header.Set(internalmiddleware.HeaderUserID, "staff-2")
		req.Header.Set(internalmiddleware.HeaderUserType, "staff")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("admin bypasses ownership", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/api/v1/imports/job-1", nil)
		req.Header.Set(internalmiddleware.HeaderUserID, "admin-1")
		req.Header.Set(internalmiddleware.HeaderUserType, "admin")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("not found", func(t *testing.T) {
		svc.jobErr = appErrors.ErrJobNotFound
		defer func() { svc.jobErr = nil }()

		req, _ := http.NewRequest(http.MethodGet, "/api/v1/imports/ghost", nil)
		resp := performRequest(router, asStaff(req))
		require.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestListEndpoint(t *testing.T) {
	svc := &stubImportService{
		job: &models.ImportJob{ID: "job-1", Status: models.ImportStatusCompleted, UploadedBy: "staff-1"},
	}
	router := buildImportRouter(svc, 0)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/imports?page=2&page_size=5", nil)
	resp := performRequest(router, asStaff(req))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"page":2`)
	require.Contains(t, resp.Body.String(), `"page_size":5`)
	require.Contains(t, resp.Body.String(), `"job-1"`)
}

func TestDownloadErrorsEndpoint(t *testing.T) {
	svc := &stubImportService{
		job:    &models.ImportJob{ID: "job-1", Status: models.ImportStatusCompleted, UploadedBy: "staff-1"},
		report: []byte("Row,Reason\n2,name is required\n"),
	}
	router := buildImportRouter(svc, 0)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/imports/job-1/errors", nil)
	resp := performRequest(router, asStaff(req))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "text/csv", resp.Header().Get("Content-Type"))
	require.Contains(t, resp.Header().Get("Content-Disposition"), "job-1-errors.csv")
	require.Contains(t, resp.Body.String(), "name is required")
}

func TestRollbackEndpoint(t *testing.T) {
	completedAt := time.Now().Add(-2 * time.Hour)
	svc := &stubImportService{
		job:      &models.ImportJob{ID: "job-1", Status: models.ImportStatusCompleted, UploadedBy: "staff-1", CompletedAt: &completedAt},
		rollback: &dto.RollbackResponse{JobID: "job-1", Status: models.ImportStatusRolledBack, RecordsDeleted: 12},
	}
	router := buildImportRouter(svc, 24*time.Hour)

	t.Run("inside the window", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/imports/job-1/rollback", nil)
		resp := performRequest(router, asStaff(req))

		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"records_deleted":12`)
		require.Equal(t, []string{"job-1"}, svc.rolledBack)
	})

	t.Run("window expired", func(t *testing.T) {
		expired := time.Now().Add(-25 * time.Hour)
		svc.job.CompletedAt = &expired
		defer func() { svc.job.CompletedAt = &completedAt }()

		req, _ := http.NewRequest(http.MethodPost, "/api/v1/imports/job-1/rollback", nil)
		resp := performRequest(router, asStaff(req))

		require.Equal(t, http.StatusConflict, resp.Code)
		require.Contains(t, resp.Body.String(), "ROLLBACK_WINDOW_EXPIRED")
	})
}
