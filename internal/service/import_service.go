package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-import-api/internal/dto"
	"github.com/noah-isme/campus-import-api/internal/models"
	"github.com/noah-isme/campus-import-api/internal/repository"
	"github.com/noah-isme/campus-import-api/pkg/config"
	appErrors "github.com/noah-isme/campus-import-api/pkg/errors"
	"github.com/noah-isme/campus-import-api/pkg/jobs"
)

type jobStore interface {
	Create(ctx context.Context, job *models.ImportJob) error
	GetByID(ctx context.Context, id string) (*models.ImportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateImportJobParams) error
	List(ctx context.Context, filter models.ImportJobFilter) ([]models.ImportJob, *models.Pagination, error)
	ListPending(ctx context.Context, limit int) ([]models.ImportJob, error)
}

type recordStore interface {
	ListByJob(ctx context.Context, jobID string) ([]models.ImportRecord, error)
	DeleteByJob(ctx context.Context, jobID string) error
}

type entityDeleter interface {
	DeleteByID(ctx context.Context, id string) (bool, error)
}

type objectStore interface {
	Put(bucket, key string, data []byte) error
	Get(bucket, key string) ([]byte, error)
	Delete(bucket, key string) error
}

type enqueuer interface {
	Enqueue(job jobs.Job) error
	Depth() int
}

type resultPublisher interface {
	PublishResult(ctx context.Context, event dto.JobResultEvent) error
	PublishWelcomeEmails(ctx context.Context, events []dto.WelcomeEmailEvent) error
}

type rejectionReporter interface {
	Upload(jobID string, columns []string, rejections []Rejection) (string, error)
}

// ImportService orchestrates the job lifecycle: submission, the queue-driven
// pipeline run, polling reads and rollback. One job is processed start to
// finish by a single worker; handlers stay idempotent because queue delivery
// is at-least-once.
type ImportService struct {
	jobs      jobStore
	records   recordStore
	students  entityDeleter
	teachers  entityDeleter
	store     objectStore
	queue     enqueuer
	parser    *ParserService
	reporter  rejectionReporter
	progress  *ProgressService
	events    resultPublisher
	metrics   *MetricsService
	importers map[models.ImportKind]kindImporter
	cfg       config.ImportConfig
	bucket    string
	logger    *zap.Logger
}

// ImportServiceDeps bundles collaborators for NewImportService.
type ImportServiceDeps struct {
	Jobs     jobStore
	Records  recordStore
	Students entityDeleter
	Teachers entityDeleter
	Store    objectStore
	Parser   *ParserService
	Reporter rejectionReporter
	Progress *ProgressService
	Events   resultPublisher
	Metrics  *MetricsService
	Cfg      config.ImportConfig
	Bucket   string
	Logger   *zap.Logger
}

// NewImportService constructs the orchestrator over one importer per kind.
func NewImportService(deps ImportServiceDeps, importers ...kindImporter) *ImportService {
	byKind := make(map[models.ImportKind]kindImporter, len(importers))
	for _, importer := range importers {
		byKind[importer.Kind()] = importer
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{
		jobs:      deps.Jobs,
		records:   deps.Records,
		students:  deps.Students,
		teachers:  deps.Teachers,
		store:     deps.Store,
		parser:    deps.Parser,
		reporter:  deps.Reporter,
		progress:  deps.Progress,
		events:    deps.Events,
		metrics:   deps.Metrics,
		importers: byKind,
		cfg:       deps.Cfg,
		bucket:    deps.Bucket,
		logger:    logger,
	}
}

// SetQueue wires the worker queue after construction; the queue handler and
// the service reference each other.
func (s *ImportService) SetQueue(queue enqueuer) {
	s.queue = queue
}

// SubmitImportParams carries one upload into the pipeline.
type SubmitImportParams struct {
	Kind           models.ImportKind
	FileName       string
	Data           []byte
	UploadedBy     string
	UploadedByType string
	InstitutionID  *string
	Options        models.ImportOptions
}

var acceptedExtensions = map[string]struct{}{
	".csv":  {},
	".json": {},
}

// Submit stores the uploaded file, records the job as pending and enqueues
// it. Validation here is shallow; row-level problems surface in the report.
func (s *ImportService) Submit(ctx context.Context, params SubmitImportParams) (*models.ImportJob, error) {
	ext := strings.ToLower(filepath.Ext(params.FileName))
	if _, ok := acceptedExtensions[ext]; !ok {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFormat, fmt.Sprintf("unsupported file extension %q", ext))
	}
	if _, ok := s.importers[params.Kind]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported import kind %q", params.Kind))
	}
	if params.Kind == models.ImportKindStudent && (params.Options.BatchID == "" || params.Options.DepartmentID == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student imports require batch_id and department_id")
	}
	if len(params.Data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "uploaded file is empty")
	}

	jobID := uuid.NewString()
	sourceKey := fmt.Sprintf("imports/%s/source/%s", jobID, filepath.Base(params.FileName))
	if err := s.store.Put(s.bucket, sourceKey, params.Data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store uploaded file")
	}

	job := &models.ImportJob{
		ID:             jobID,
		Kind:           params.Kind,
		SourceBucket:   s.bucket,
		SourceKey:      sourceKey,
		FileName:       filepath.Base(params.FileName),
		UploadedBy:     params.UploadedBy,
		UploadedByType: params.UploadedByType,
		InstitutionID:  params.InstitutionID,
		Status:         models.ImportStatusPending,
		Options:        params.Options,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record import job")
	}

	if err := s.enqueue(job); err != nil {
		// The job stays pending and will be picked up by recovery.
		s.logger.Sugar().Warnw("failed to enqueue import job", "job_id", job.ID, "error", err)
	}
	return job, nil
}

func (s *ImportService) enqueue(job *models.ImportJob) error {
	if s.queue == nil {
		return fmt.Errorf("queue not wired")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Kind: string(job.Kind)}); err != nil {
		return err
	}
	s.metrics.SetQueueDepth(s.queue.Depth())
	return nil
}

// HandleJob is the queue handler. It tolerates redelivery: anything not in
// the pending state is skipped.
func (s *ImportService) HandleJob(ctx context.Context, queued jobs.Job) error {
	if s.queue != nil {
		s.metrics.SetQueueDepth(s.queue.Depth())
	}
	job, err := s.jobs.GetByID(ctx, queued.ID)
	if err != nil {
		return err
	}
	if job == nil {
		s.logger.Sugar().Warnw("queued job no longer exists", "job_id", queued.ID)
		return nil
	}
	if job.Status != models.ImportStatusPending {
		s.logger.Sugar().Infow("skipping redelivered job", "job_id", job.ID, "status", job.Status)
		return nil
	}
	s.process(ctx, job)
	return nil
}

// process runs the pipeline for one job. Fatal errors transition the job to
// failed here rather than bubbling to the queue, so business failures are
// never retried.
func (s *ImportService) process(ctx context.Context, job *models.ImportJob) {
	started := time.Now()

	processing := models.ImportStatusProcessing
	if err := s.jobs.Update(ctx, job.ID, repository.UpdateImportJobParams{Status: &processing}); err != nil {
		s.logger.Sugar().Errorw("failed to mark job processing", "job_id", job.ID, "error", err)
		return
	}
	job.Status = processing

	payload, err := s.store.Get(job.SourceBucket, job.SourceKey)
	if err != nil {
		s.fail(ctx, job, started, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read uploaded file"))
		return
	}

	rows, columns, err := s.parser.Parse(payload, job.FileName)
	if err != nil {
		s.fail(ctx, job, started, err)
		return
	}
	if s.cfg.MaxRowsPerJob > 0 && len(rows) > s.cfg.MaxRowsPerJob {
		s.fail(ctx, job, started, appErrors.Clone(appErrors.ErrBatchTooLarge,
			fmt.Sprintf("file has %d rows, the limit is %d per import", len(rows), s.cfg.MaxRowsPerJob)))
		return
	}

	s.setProgress(ctx, job, 0, len(rows))

	importer, ok := s.importers[job.Kind]
	if !ok {
		s.fail(ctx, job, started, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("no importer registered for kind %q", job.Kind)))
		return
	}
	outcome, err := importer.Run(ctx, job, rows)
	if err != nil {
		s.fail(ctx, job, started, err)
		return
	}
	s.setProgress(ctx, job, len(rows), len(rows))

	s.complete(ctx, job, started, columns, outcome)
}

func (s *ImportService) complete(ctx context.Context, job *models.ImportJob, started time.Time, columns []string, outcome *importOutcome) {
	successRows := len(outcome.CreatedIDs)
	failedRows := len(outcome.Rejections)

	var reportKey *string
	if failedRows > 0 {
		key, err := s.reporter.Upload(job.ID, columns, outcome.Rejections)
		if err != nil {
			// Non-fatal: the job still completes, the reference is omitted.
			s.logger.Sugar().Errorw("failed to upload error report", "job_id", job.ID, "error", err)
		} else {
			reportKey = &key
		}
	}

	completed := models.ImportStatusCompleted
	now := time.Now().UTC()
	params := repository.UpdateImportJobParams{
		Status:         &completed,
		SuccessRows:    &successRows,
		FailedRows:     &failedRows,
		ErrorReportKey: reportKey,
		CompletedAt:    &now,
	}
	if err := s.jobs.Update(ctx, job.ID, params); err != nil {
		s.logger.Sugar().Errorw("failed to persist job completion", "job_id", job.ID, "error", err)
		return
	}

	event := dto.JobResultEvent{
		JobID:        job.ID,
		Status:       completed,
		SuccessCount: successRows,
		FailureCount: failedRows,
	}
	if reportKey != nil {
		event.ErrorReportKey = *reportKey
	}
	if err := s.events.PublishResult(ctx, event); err != nil {
		s.logger.Sugar().Errorw("failed to publish completion event", "job_id", job.ID, "error", err)
	}
	if len(outcome.Emails) > 0 {
		if err := s.events.PublishWelcomeEmails(ctx, outcome.Emails); err != nil {
			s.logger.Sugar().Errorw("failed to publish welcome emails", "job_id", job.ID, "error", err)
		}
	}

	// The source file served its purpose; the error report is retained.
	if err := s.store.Delete(job.SourceBucket, job.SourceKey); err != nil {
		s.logger.Sugar().Warnw("failed to delete source file", "job_id", job.ID, "key", job.SourceKey, "error", err)
	}
	s.clearProgress(ctx, job)

	s.metrics.ObserveJob(string(job.Kind), string(completed), successRows, failedRows, time.Since(started))
	sectionsCreated := 0
	for _, summary := range outcome.Summaries {
		if summary.NewSection {
			sectionsCreated++
		}
	}
	s.metrics.ObserveSectionsCreated(sectionsCreated)

	s.logger.Sugar().Infow("import job completed",
		"job_id", job.ID,
		"kind", job.Kind,
		"success_rows", successRows,
		"failed_rows", failedRows,
		"sections_created", sectionsCreated,
	)
}

func (s *ImportService) fail(ctx context.Context, job *models.ImportJob, started time.Time, cause error) {
	appErr := appErrors.FromError(cause)
	failed := models.ImportStatusFailed
	now := time.Now().UTC()
	message := appErr.Message
	params := repository.UpdateImportJobParams{
		Status:       &failed,
		ErrorMessage: &message,
		CompletedAt:  &now,
	}
	if err := s.jobs.Update(ctx, job.ID, params); err != nil {
		s.logger.Sugar().Errorw("failed to persist job failure", "job_id", job.ID, "error", err)
	}

	event := dto.JobResultEvent{JobID: job.ID, Status: failed, Error: message}
	if err := s.events.PublishResult(ctx, event); err != nil {
		s.logger.Sugar().Errorw("failed to publish failure event", "job_id", job.ID, "error", err)
	}
	s.clearProgress(ctx, job)

	s.metrics.ObserveJob(string(job.Kind), string(failed), 0, 0, time.Since(started))
	s.logger.Sugar().Errorw("import job failed", "job_id", job.ID, "kind", job.Kind, "code", appErr.Code, "error", cause)
}

func (s *ImportService) setProgress(ctx context.Context, job *models.ImportJob, processed, total int) {
	err := s.progress.Set(ctx, job.ID, dto.JobProgress{Status: job.Status, Processed: processed, Total: total})
	if err != nil {
		s.logger.Sugar().Warnw("failed to store job progress", "job_id", job.ID, "error", err)
	}
}

func (s *ImportService) clearProgress(ctx context.Context, job *models.ImportJob) {
	if err := s.progress.Clear(ctx, job.ID); err != nil {
		s.logger.Sugar().Warnw("failed to clear job progress", "job_id", job.ID, "error", err)
	}
}

// GetJob returns one job for polling.
func (s *ImportService) GetJob(ctx context.Context, id string) (*models.ImportJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, appErrors.ErrJobNotFound
	}
	return job, nil
}

// GetProgress returns the live snapshot for a running job, or nil.
func (s *ImportService) GetProgress(ctx context.Context, id string) (*dto.JobProgress, error) {
	return s.progress.Get(ctx, id)
}

// ListJobs pages through jobs for the HTTP layer.
func (s *ImportService) ListJobs(ctx context.Context, filter models.ImportJobFilter) ([]models.ImportJob, *models.Pagination, error) {
	return s.jobs.List(ctx, filter)
}

// DownloadErrorReport fetches the stored rejection report of a job.
func (s *ImportService) DownloadErrorReport(ctx context.Context, id string) ([]byte, string, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if job.ErrorReportKey == nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "job has no error report")
	}
	payload, err := s.store.Get(s.bucket, *job.ErrorReportKey)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "error report is no longer available")
	}
	return payload, fmt.Sprintf("%s-errors.csv", job.ID), nil
}

// Rollback deletes everything a completed job created and marks the job
// rolled back. Rows deleted independently in the meantime are skipped. A
// second rollback is a no-op. The rollback time window is enforced by the
// HTTP layer, not here.
func (s *ImportService) Rollback(ctx context.Context, id string) (*dto.RollbackResponse, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status == models.ImportStatusRolledBack {
		return &dto.RollbackResponse{JobID: job.ID, Status: job.Status, RecordsDeleted: 0}, nil
	}
	if job.Status != models.ImportStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrJobNotRollbackable,
			fmt.Sprintf("job is %s, only completed jobs can be rolled back", job.Status))
	}

	records, err := s.records.ListByJob(ctx, job.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load import records")
	}

	deleted := 0
	for _, record := range records {
		var deleter entityDeleter
		switch record.RecordKind {
		case models.ImportKindStudent:
			deleter = s.students
		case models.ImportKindTeacher:
			deleter = s.teachers
		default:
			s.logger.Sugar().Warnw("unknown record kind during rollback", "job_id", job.ID, "kind", record.RecordKind)
			continue
		}
		found, err := deleter.DeleteByID(ctx, record.RecordID)
		if err != nil {
			s.logger.Sugar().Warnw("failed to delete record during rollback", "job_id", job.ID, "record_id", record.RecordID, "error", err)
			continue
		}
		if found {
			deleted++
		}
	}

	if err := s.records.DeleteByJob(ctx, job.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear import records")
	}

	rolledBack := models.ImportStatusRolledBack
	if err := s.jobs.Update(ctx, job.ID, repository.UpdateImportJobParams{Status: &rolledBack}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark job rolled back")
	}

	s.metrics.ObserveRollback()
	s.logger.Sugar().Infow("import job rolled back", "job_id", job.ID, "records_deleted", deleted, "records_tracked", len(records))
	return &dto.RollbackResponse{JobID: job.ID, Status: rolledBack, RecordsDeleted: deleted}, nil
}

// RecoverPendingJobs re-enqueues jobs that were submitted but never picked
// up, e.g. across a restart.
func (s *ImportService) RecoverPendingJobs(ctx context.Context, limit int) error {
	pending, err := s.jobs.ListPending(ctx, limit)
	if err != nil {
		return err
	}
	for i := range pending {
		if err := s.enqueue(&pending[i]); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", pending[i].ID, "error", err)
			continue
		}
		s.logger.Sugar().Infow("requeued pending import job", "job_id", pending[i].ID)
	}
	return nil
}
