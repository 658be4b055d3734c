package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-import-api/internal/dto"
	internalmiddleware "github.com/noah-isme/campus-import-api/internal/middleware"
	"github.com/noah-isme/campus-import-api/internal/models"
	"github.com/noah-isme/campus-import-api/internal/service"
	appErrors "github.com/noah-isme/campus-import-api/pkg/errors"
	"github.com/noah-isme/campus-import-api/pkg/response"
)

type importService interface {
	Submit(ctx context.Context, params service.SubmitImportParams) (*models.ImportJob, error)
	GetJob(ctx context.Context, id string) (*models.ImportJob, error)
	GetProgress(ctx context.Context, id string) (*dto.JobProgress, error)
	ListJobs(ctx context.Context, filter models.ImportJobFilter) ([]models.ImportJob, *models.Pagination, error)
	DownloadErrorReport(ctx context.Context, id string) ([]byte, string, error)
	Rollback(ctx context.Context, id string) (*dto.RollbackResponse, error)
}

// ImportHandler exposes the bulk-import HTTP surface.
type ImportHandler struct {
	service        importService
	rollbackWindow time.Duration
	maxUploadBytes int64
}

// NewImportHandler constructs the handler.
func NewImportHandler(service importService, rollbackWindow time.Duration) *ImportHandler {
	if rollbackWindow <= 0 {
		rollbackWindow = 24 * time.Hour
	}
	return &ImportHandler{
		service:        service,
		rollbackWindow: rollbackWindow,
		maxUploadBytes: 10 << 20,
	}
}

// RegisterRoutes attaches the import endpoints to a router group.
func (h *ImportHandler) RegisterRoutes(group *gin.RouterGroup) {
	imports := group.Group("/imports")
	imports.POST("", h.Submit)
	imports.GET("", h.List)
	imports.GET("/:id", h.Get)
	imports.GET("/:id/errors", h.DownloadErrors)
	imports.POST("/:id/rollback", h.Rollback)
}

// Submit accepts a multipart upload and queues the import.
func (h *ImportHandler) Submit(c *gin.Context) {
	identity := internalmiddleware.IdentityFromContext(c)
	if identity == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	kind := models.ImportKind(c.PostForm("kind"))
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	if fileHeader.Size > h.maxUploadBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file exceeds the upload size limit"))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open upload"))
		return
	}
	defer src.Close()
	payload, err := io.ReadAll(io.LimitReader(src, h.maxUploadBytes+1))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}

	options := models.ImportOptions{
		SkipDuplicates:    formBool(c, "skip_duplicates", true),
		SendWelcomeEmails: formBool(c, "send_welcome_emails", false),
		BatchID:           c.PostForm("batch_id"),
		DepartmentID:      c.PostForm("department_id"),
	}

	var institutionID *string
	if identity.InstitutionID != "" {
		institutionID = &identity.InstitutionID
	}

	job, err := h.service.Submit(c.Request.Context(), service.SubmitImportParams{
		Kind:           kind,
		FileName:       fileHeader.Filename,
		Data:           payload,
		UploadedBy:     identity.UserID,
		UploadedByType: identity.UserType,
		InstitutionID:  institutionID,
		Options:        options,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.SubmitImportResponse{JobID: job.ID, Status: job.Status})
}

// List returns the caller's jobs, newest first.
func (h *ImportHandler) List(c *gin.Context) {
	identity := internalmiddleware.IdentityFromContext(c)
	if identity == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	filter := models.ImportJobFilter{
		UploadedBy:     identity.UserID,
		UploadedByType: identity.UserType,
		Status:         models.ImportStatus(c.Query("status")),
		Page:           page,
		PageSize:       pageSize,
	}

	jobs, pagination, err := h.service.ListJobs(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]dto.ImportJobResponse, 0, len(jobs))
	for i := range jobs {
		items = append(items, toJobResponse(&jobs[i]))
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get returns one job, with live progress attached while it runs.
func (h *ImportHandler) Get(c *gin.Context) {
	job, ok := h.authorizedJob(c)
	if !ok {
		return
	}

	var meta map[string]interface{}
	if !job.Status.Terminal() {
		if progress, err := h.service.GetProgress(c.Request.Context(), job.ID); err == nil && progress != nil {
			meta = map[string]interface{}{"progress": progress}
		}
	}
	if meta != nil {
		response.JSON(c, http.StatusOK, toJobResponse(job), nil, meta)
		return
	}
	response.JSON(c, http.StatusOK, toJobResponse(job), nil)
}

// DownloadErrors streams the rejection report of a job.
func (h *ImportHandler) DownloadErrors(c *gin.Context) {
	job, ok := h.authorizedJob(c)
	if !ok {
		return
	}

	payload, filename, err := h.service.DownloadErrorReport(c.Request.Context(), job.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv", payload)
}

// Rollback reverses a completed job. The time window is a policy of this
// layer: the core rollback operation only checks job state.
func (h *ImportHandler) Rollback(c *gin.Context) {
	job, ok := h.authorizedJob(c)
	if !ok {
		return
	}

	if job.Status == models.ImportStatusCompleted && job.CompletedAt != nil &&
		time.Since(*job.CompletedAt) > h.rollbackWindow {
		response.Error(c, appErrors.ErrRollbackExpired)
		return
	}

	result, err := h.service.Rollback(c.Request.Context(), job.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// authorizedJob loads the requested job and enforces that only the uploader
// or an admin may touch it.
func (h *ImportHandler) authorizedJob(c *gin.Context) (*models.ImportJob, bool) {
	identity := internalmiddleware.IdentityFromContext(c)
	if identity == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}

	job, err := h.service.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if job.UploadedBy != identity.UserID && identity.UserType != "admin" {
		response.Error(c, appErrors.ErrForbidden)
		return nil, false
	}
	return job, true
}

func toJobResponse(job *models.ImportJob) dto.ImportJobResponse {
	return dto.ImportJobResponse{
		ID:             job.ID,
		Kind:           job.Kind,
		FileName:       job.FileName,
		Status:         job.Status,
		SuccessRows:    job.SuccessRows,
		FailedRows:     job.FailedRows,
		ErrorReportKey: job.ErrorReportKey,
		Error:          job.ErrorMessage,
		CreatedAt:      job.CreatedAt,
		CompletedAt:    job.CompletedAt,
	}
}

func formBool(c *gin.Context, field string, fallback bool) bool {
	raw, ok := c.GetPostForm(field)
	if !ok || raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
