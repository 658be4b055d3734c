package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-import-api/internal/dto"
	"github.com/noah-isme/campus-import-api/internal/models"
	"github.com/noah-isme/campus-import-api/pkg/codes"
	"github.com/noah-isme/campus-import-api/pkg/config"
	appErrors "github.com/noah-isme/campus-import-api/pkg/errors"
)

// ScopeLock serializes section allocation for one batch+department scope so
// two concurrent jobs cannot plan against the same stale occupancy snapshot.
type ScopeLock interface {
	Acquire(ctx context.Context, wait time.Duration) error
	Release(ctx context.Context) error
}

// LockFactory builds a scope lock for a key.
type LockFactory func(key string) ScopeLock

// importOutcome is what one kind-specific import run hands back to the
// orchestrator.
type importOutcome struct {
	CreatedIDs []string
	Rejections []Rejection
	Summaries  []dto.SectionAllocationSummary
	Emails     []dto.WelcomeEmailEvent
}

// kindImporter is the capability set the orchestrator drives per import kind.
// Each implementation owns validation, dedup, identifier generation and the
// batched write for its kind.
type kindImporter interface {
	Kind() models.ImportKind
	Run(ctx context.Context, job *models.ImportJob, rows []Row) (*importOutcome, error)
}

type studentStore interface {
	uniquenessStore
	ListRegNos(ctx context.Context) ([]string, error)
	CreateBatch(ctx context.Context, jobID string, students []models.Student) ([]string, error)
}

type teacherStore interface {
	uniquenessStore
	ListEmployeeNos(ctx context.Context) ([]string, error)
	CreateBatch(ctx context.Context, jobID string, teachers []models.Teacher) ([]string, error)
}

type catalogStore interface {
	GetBatch(ctx context.Context, id string) (*models.Batch, error)
	GetDepartment(ctx context.Context, id string) (*models.Department, error)
	GetInstitution(ctx context.Context, id string) (*models.Institution, error)
}

// sharedPasswordHash produces the one placeholder hash every account in a job
// receives. The underlying secret is random and discarded; accounts unlock
// through the password-reset flow, never with a bulk-distributed password.
func sharedPasswordHash() (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash placeholder password: %w", err)
	}
	return string(hash), nil
}

// rejectDuplicatesOrFail enforces the skip_duplicates option: with the option
// set, duplicate rows become ordinary rejections; without it, any duplicate
// aborts the whole job.
func rejectDuplicatesOrFail(job *models.ImportJob, duplicates []Rejection) ([]Rejection, error) {
	if len(duplicates) > 0 && !job.Options.SkipDuplicates {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("%d duplicate rows found and skip_duplicates is not set", len(duplicates)))
	}
	return duplicates, nil
}

// StudentImporter runs student imports end to end: validate, dedup, allocate
// sections under the scope lock, generate registration numbers and persist.
type StudentImporter struct {
	students  studentStore
	catalog   catalogStore
	validator *RowValidator
	dedup     *DedupService
	allocator *AllocatorService
	locks     LockFactory
	cfg       config.ImportConfig
	logger    *zap.Logger
}

// NewStudentImporter constructs the student-kind importer.
func NewStudentImporter(students studentStore, catalog catalogStore, validator *RowValidator, dedup *DedupService, allocator *AllocatorService, locks LockFactory, cfg config.ImportConfig, logger *zap.Logger) *StudentImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentImporter{
		students:  students,
		catalog:   catalog,
		validator: validator,
		dedup:     dedup,
		allocator: allocator,
		locks:     locks,
		cfg:       cfg,
		logger:    logger,
	}
}

func (im *StudentImporter) Kind() models.ImportKind {
	return models.ImportKindStudent
}

func (im *StudentImporter) Run(ctx context.Context, job *models.ImportJob, rows []Row) (*importOutcome, error) {
	candidates, rejections := im.validator.ValidateStudents(rows)

	survivors, duplicates, err := im.dedup.FilterStudents(ctx, im.students, candidates)
	if err != nil {
		return nil, err
	}
	duplicates, err = rejectDuplicatesOrFail(job, duplicates)
	if err != nil {
		return nil, err
	}
	rejections = append(rejections, duplicates...)

	outcome := &importOutcome{Rejections: rejections}
	if len(survivors) == 0 {
		return outcome, nil
	}

	batch, err := im.catalog.GetBatch(ctx, job.Options.BatchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("batch %s does not exist", job.Options.BatchID))
	}
	department, err := im.catalog.GetDepartment(ctx, job.Options.DepartmentID)
	if err != nil {
		return nil, err
	}
	if department == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("department %s does not exist", job.Options.DepartmentID))
	}

	// Allocation and the batched write happen under one advisory lock per
	// batch+department so occupancy reads stay truthful across jobs.
	lock := im.locks(fmt.Sprintf("bulk:alloc:%s:%s", batch.ID, department.ID))
	if err := lock.Acquire(ctx, im.cfg.AllocationLockTTL); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "allocation scope is busy")
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			im.logger.Sugar().Warnw("failed to release allocation lock", "job_id", job.ID, "error", err)
		}
	}()

	allocation, err := im.allocator.Allocate(ctx, batch, department, survivors)
	if err != nil {
		return nil, err
	}

	existingRegNos, err := im.students.ListRegNos(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration numbers")
	}
	registry := codes.NewRegistry(existingRegNos)

	hash, err := sharedPasswordHash()
	if err != nil {
		return nil, err
	}

	students := make([]models.Student, len(survivors))
	for i, candidate := range survivors {
		regNo, err := registry.Reserve(codes.RegistrationNumber, codes.MaxRegNoAttempts)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrCodeSpaceBusy.Code, appErrors.ErrCodeSpaceBusy.Status, "failed to generate a registration number")
		}
		students[i] = models.Student{
			Name:         candidate.Name,
			Email:        candidate.Email,
			Phone:        candidate.Phone,
			Gender:       candidate.Gender,
			RegNo:        regNo,
			PasswordHash: hash,
			BatchID:      batch.ID,
			DepartmentID: department.ID,
			SectionID:    allocation.Assignments[i],
			Locked:       true,
		}
	}

	ids, err := im.students.CreateBatch(ctx, job.ID, students)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "student bulk write did not complete")
	}

	outcome.CreatedIDs = ids
	outcome.Summaries = allocation.Summaries
	if job.Options.SendWelcomeEmails {
		outcome.Emails = im.welcomeEmails(ctx, department, students, allocation)
	}
	return outcome, nil
}

func (im *StudentImporter) welcomeEmails(ctx context.Context, department *models.Department, students []models.Student, allocation *AllocationResult) []dto.WelcomeEmailEvent {
	institutionName := ""
	if institution, err := im.catalog.GetInstitution(ctx, department.InstitutionID); err == nil && institution != nil {
		institutionName = institution.Name
	} else if err != nil {
		im.logger.Sugar().Warnw("failed to resolve institution for welcome emails", "institution_id", department.InstitutionID, "error", err)
	}

	emails := make([]dto.WelcomeEmailEvent, 0, len(students))
	for _, student := range students {
		emails = append(emails, dto.WelcomeEmailEvent{
			Kind:  "welcome-email",
			Email: student.Email,
			Name:  student.Name,
			Identifiers: map[string]string{
				"registration_number": student.RegNo,
				"section_code":        allocation.SectionCodeByID[student.SectionID],
			},
			InstitutionName: institutionName,
			DepartmentName:  department.Name,
			LoginURL:        im.cfg.LoginURL,
		})
	}
	return emails
}

// TeacherImporter runs teacher imports: validate, dedup, generate employee
// numbers and persist. Teachers are not allocated to sections.
type TeacherImporter struct {
	teachers  teacherStore
	catalog   catalogStore
	validator *RowValidator
	dedup     *DedupService
	cfg       config.ImportConfig
	logger    *zap.Logger
}

// NewTeacherImporter constructs the teacher-kind importer.
func NewTeacherImporter(teachers teacherStore, catalog catalogStore, validator *RowValidator, dedup *DedupService, cfg config.ImportConfig, logger *zap.Logger) *TeacherImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherImporter{
		teachers:  teachers,
		catalog:   catalog,
		validator: validator,
		dedup:     dedup,
		cfg:       cfg,
		logger:    logger,
	}
}

func (im *TeacherImporter) Kind() models.ImportKind {
	return models.ImportKindTeacher
}

func (im *TeacherImporter) Run(ctx context.Context, job *models.ImportJob, rows []Row) (*importOutcome, error) {
	candidates, rejections := im.validator.ValidateTeachers(rows)

	survivors, duplicates, err := im.dedup.FilterTeachers(ctx, im.teachers, candidates)
	if err != nil {
		return nil, err
	}
	duplicates, err = rejectDuplicatesOrFail(job, duplicates)
	if err != nil {
		return nil, err
	}
	rejections = append(rejections, duplicates...)

	outcome := &importOutcome{Rejections: rejections}
	if len(survivors) == 0 {
		return outcome, nil
	}

	var department *models.Department
	if job.Options.DepartmentID != "" {
		department, err = im.catalog.GetDepartment(ctx, job.Options.DepartmentID)
		if err != nil {
			return nil, err
		}
		if department == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("department %s does not exist", job.Options.DepartmentID))
		}
	}

	existingNos, err := im.teachers.ListEmployeeNos(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee numbers")
	}
	registry := codes.NewRegistry(existingNos)

	hash, err := sharedPasswordHash()
	if err != nil {
		return nil, err
	}

	teachers := make([]models.Teacher, len(survivors))
	for i, candidate := range survivors {
		employeeNo, err := registry.Reserve(func() string {
			return codes.EmployeeNumber(im.cfg.EmployeeNoPrefix)
		}, codes.MaxEmployeeNoAttempts)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrCodeSpaceBusy.Code, appErrors.ErrCodeSpaceBusy.Status, "failed to generate an employee number")
		}
		teachers[i] = models.Teacher{
			Name:         candidate.Name,
			Email:        candidate.Email,
			Phone:        candidate.Phone,
			Gender:       candidate.Gender,
			EmployeeNo:   employeeNo,
			PasswordHash: hash,
			DepartmentID: job.Options.DepartmentID,
			Locked:       true,
		}
	}

	ids, err := im.teachers.CreateBatch(ctx, job.ID, teachers)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "teacher bulk write did not complete")
	}

	outcome.CreatedIDs = ids
	if job.Options.SendWelcomeEmails {
		outcome.Emails = im.welcomeEmails(ctx, department, teachers)
	}
	return outcome, nil
}

func (im *TeacherImporter) welcomeEmails(ctx context.Context, department *models.Department, teachers []models.Teacher) []dto.WelcomeEmailEvent {
	institutionName := ""
	departmentName := ""
	if department != nil {
		departmentName = department.Name
		if institution, err := im.catalog.GetInstitution(ctx, department.InstitutionID); err == nil && institution != nil {
			institutionName = institution.Name
		} else if err != nil {
			im.logger.Sugar().Warnw("failed to resolve institution for welcome emails", "institution_id", department.InstitutionID, "error", err)
		}
	}

	emails := make([]dto.WelcomeEmailEvent, 0, len(teachers))
	for _, teacher := range teachers {
		emails = append(emails, dto.WelcomeEmailEvent{
			Kind:  "welcome-email",
			Email: teacher.Email,
			Name:  teacher.Name,
			Identifiers: map[string]string{
				"employee_number": teacher.EmployeeNo,
			},
			InstitutionName: institutionName,
			DepartmentName:  departmentName,
			LoginURL:        im.cfg.LoginURL,
		})
	}
	return emails
}
