package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-import-api/internal/models"
	"github.com/noah-isme/campus-import-api/pkg/config"
	appErrors "github.com/noah-isme/campus-import-api/pkg/errors"
)

type stubStudentStore struct {
	existingEmails []string
	existingPhones []string
	regNos         []string
	created        []models.Student
	createdJobID   string
	createErr      error
}

func (s *stubStudentStore) ExistingEmails(ctx context.Context, emails []string) ([]string, error) {
	return s.existingEmails, nil
}

func (s *stubStudentStore) ExistingPhones(ctx context.Context, phones []string) ([]string, error) {
	return s.existingPhones, nil
}

func (s *stubStudentStore) ListRegNos(ctx context.Context) ([]string, error) {
	return s.regNos, nil
}

func (s *stubStudentStore) CreateBatch(ctx context.Context, jobID string, students []models.Student) ([]string, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.createdJobID = jobID
	s.created = students
	ids := make([]string, len(students))
	for i := range students {
		ids[i] = fmt.Sprintf("stu-%d", i+1)
	}
	return ids, nil
}

type stubTeacherStore struct {
	existingEmails []string
	existingPhones []string
	employeeNos    []string
	created        []models.Teacher
}

func (s *stubTeacherStore) ExistingEmails(ctx context.Context, emails []string) ([]string, error) {
	return s.existingEmails, nil
}

func (s *stubTeacherStore) ExistingPhones(ctx context.Context, phones []string) ([]string, error) {
	return s.existingPhones, nil
}

func (s *stubTeacherStore) ListEmployeeNos(ctx context.Context) ([]string, error) {
	return s.employeeNos, nil
}

func (s *stubTeacherStore) CreateBatch(ctx context.Context, jobID string, teachers []models.Teacher) ([]string, error) {
	s.created = teachers
	ids := make([]string, len(teachers))
	for i := range teachers {
		ids[i] = fmt.Sprintf("tea-%d", i+1)
	}
	return ids, nil
}

type stubCatalogStore struct {
	batch       *models.Batch
	department  *models.Department
	institution *models.Institution
}

func (s *stubCatalogStore) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	return s.batch, nil
}

func (s *stubCatalogStore) GetDepartment(ctx context.Context, id string) (*models.Department, error) {
	return s.department, nil
}

func (s *stubCatalogStore) GetInstitution(ctx context.Context, id string) (*models.Institution, error) {
	return s.institution, nil
}

type stubScopeLock struct {
	key        string
	acquired   int
	released   int
	acquireErr error
}

func (l *stubScopeLock) Acquire(ctx context.Context, wait time.Duration) error {
	if l.acquireErr != nil {
		return l.acquireErr
	}
	l.acquired++
	return nil
}

func (l *stubScopeLock) Release(ctx context.Context) error {
	l.released++
	return nil
}

func testImportConfig() config.ImportConfig {
	return config.ImportConfig{
		SectionCapacity:     70,
		MinSectionOccupancy: 5,
		MaxRowsPerJob:       500,
		EmployeeNoPrefix:    "SOA",
		AllocationLockTTL:   time.Second,
		LoginURL:            "https://portal.example.com/login",
	}
}

func testCatalog() *stubCatalogStore {
	return &stubCatalogStore{
		batch:       &models.Batch{ID: "batch-1", BatchYear: "2024-2028"},
		department:  &models.Department{ID: "dept-1", Name: "Computer Science", ShortName: "CSE", InstitutionID: "inst-1"},
		institution: &models.Institution{ID: "inst-1", Name: "Sunrise Institute"},
	}
}

func newTestStudentImporter(students *stubStudentStore, lock *stubScopeLock) *StudentImporter {
	sections := &stubSectionStore{}
	allocator := NewAllocatorService(sections, AllocatorConfig{SectionCapacity: 70, MinSectionOccupancy: 5}, zap.NewNop())
	factory := LockFactory(func(key string) ScopeLock {
		lock.key = key
		return lock
	})
	return NewStudentImporter(students, testCatalog(), NewRowValidator(), NewDedupService(), allocator, factory, testImportConfig(), zap.NewNop())
}

func studentJob(options models.ImportOptions) *models.ImportJob {
	if options.BatchID == "" {
		options.BatchID = "batch-1"
	}
	if options.DepartmentID == "" {
		options.DepartmentID = "dept-1"
	}
	return &models.ImportJob{ID: "job-1", Kind: models.ImportKindStudent, Options: options}
}

func TestStudentImporterRun(t *testing.T) {
	students := &stubStudentStore{}
	lock := &stubScopeLock{}
	importer := newTestStudentImporter(students, lock)

	rows := []Row{
		studentRow("Asha Rao", "asha@example.com", "9000000001", "FEMALE"),
		studentRow("Vikram Singh", "vikram@example.com", "9000000002", "MALE"),
		studentRow("", "broken", "", ""),
	}

	outcome, err := importer.Run(context.Background(), studentJob(models.ImportOptions{SkipDuplicates: true}), rows)

	require.NoError(t, err)
	assert.Len(t, outcome.CreatedIDs, 2)
	assert.Len(t, outcome.Rejections, 1)
	assert.Empty(t, outcome.Emails)
	require.Len(t, outcome.Summaries, 1)
	assert.True(t, outcome.Summaries[0].NewSection)
	assert.Equal(t, 2, outcome.Summaries[0].NewlyAllocated)

	assert.Equal(t, "bulk:alloc:batch-1:dept-1", lock.key)
	assert.Equal(t, 1, lock.acquired)
	assert.Equal(t, 1, lock.released)

	require.Len(t, students.created, 2)
	assert.Equal(t, "job-1", students.createdJobID)
	for _, student := range students.created {
		assert.NotEmpty(t, student.RegNo)
		assert.GreaterOrEqual(t, len(student.RegNo), 7)
		assert.LessOrEqual(t, len(student.RegNo), 8)
		assert.NotEmpty(t, student.SectionID)
		assert.True(t, student.Locked)
		assert.Equal(t, "batch-1", student.BatchID)
	}
	assert.Equal(t, students.created[0].PasswordHash, students.created[1].PasswordHash,
		"one shared placeholder hash per job")
	assert.NotEqual(t, students.created[0].RegNo, students.created[1].RegNo)
}

func TestStudentImporterWelcomeEmails(t *testing.T) {
	students := &stubStudentStore{}
	importer := newTestStudentImporter(students, &stubScopeLock{})

	rows := []Row{studentRow("Asha Rao", "asha@example.com", "9000000001", "FEMALE")}
	outcome, err := importer.Run(context.Background(), studentJob(models.ImportOptions{SkipDuplicates: true, SendWelcomeEmails: true}), rows)

	require.NoError(t, err)
	require.Len(t, outcome.Emails, 1)
	email := outcome.Emails[0]
	assert.Equal(t, "welcome-email", email.Kind)
	assert.Equal(t, "asha@example.com", email.Email)
	assert.Equal(t, "Sunrise Institute", email.InstitutionName)
	assert.Equal(t, "Computer Science", email.DepartmentName)
	assert.Equal(t, "https://portal.example.com/login", email.LoginURL)
	assert.NotEmpty(t, email.Identifiers["registration_number"])
	assert.NotEmpty(t, email.Identifiers["section_code"])
}

func TestStudentImporterDuplicatesFatalWithoutSkip(t *testing.T) {
	students := &stubStudentStore{existingEmails: []string{"asha@example.com"}}
	importer := newTestStudentImporter(students, &stubScopeLock{})

	rows := []Row{studentRow("Asha Rao", "asha@example.com", "9000000001", "FEMALE")}
	_, err := importer.Run(context.Background(), studentJob(models.ImportOptions{SkipDuplicates: false}), rows)

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, students.created)
}

func TestStudentImporterAllRowsRejected(t *testing.T) {
	students := &stubStudentStore{existingEmails: []string{"asha@example.com"}}
	lock := &stubScopeLock{}
	importer := newTestStudentImporter(students, lock)

	rows := []Row{studentRow("Asha Rao", "asha@example.com", "9000000001", "FEMALE")}
	outcome, err := importer.Run(context.Background(), studentJob(models.ImportOptions{SkipDuplicates: true}), rows)

	require.NoError(t, err)
	assert.Empty(t, outcome.CreatedIDs)
	assert.Len(t, outcome.Rejections, 1)
	assert.Zero(t, lock.acquired, "nothing to allocate, nothing to lock")
}

func TestStudentImporterMissingBatch(t *testing.T) {
	students := &stubStudentStore{}
	lock := &stubScopeLock{}
	sections := &stubSectionStore{}
	allocator := NewAllocatorService(sections, AllocatorConfig{SectionCapacity: 70, MinSectionOccupancy: 5}, zap.NewNop())
	catalog := testCatalog()
	catalog.batch = nil
	factory := LockFactory(func(key string) ScopeLock { return lock })
	importer := NewStudentImporter(students, catalog, NewRowValidator(), NewDedupService(), allocator, factory, testImportConfig(), zap.NewNop())

	rows := []Row{studentRow("Asha Rao", "asha@example.com", "9000000001", "FEMALE")}
	_, err := importer.Run(context.Background(), studentJob(models.ImportOptions{SkipDuplicates: true}), rows)

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentImporterLockBusy(t *testing.T) {
	students := &stubStudentStore{}
	lock := &stubScopeLock{acquireErr: fmt.Errorf("lock held")}
	importer := newTestStudentImporter(students, lock)

	rows := []Row{studentRow("Asha Rao", "asha@example.com", "9000000001", "FEMALE")}
	_, err := importer.Run(context.Background(), studentJob(models.ImportOptions{SkipDuplicates: true}), rows)

	require.Error(t, err)
	assert.Empty(t, students.created)
}

func TestTeacherImporterRun(t *testing.T) {
	teachers := &stubTeacherStore{}
	importer := NewTeacherImporter(teachers, testCatalog(), NewRowValidator(), NewDedupService(), testImportConfig(), zap.NewNop())

	rows := []Row{
		studentRow("Meera Iyer", "meera@example.com", "9000000003", "FEMALE"),
		studentRow("Arjun Nair", "arjun@example.com", "9000000004", "MALE"),
	}
	job := &models.ImportJob{ID: "job-2", Kind: models.ImportKindTeacher, Options: models.ImportOptions{SkipDuplicates: true, DepartmentID: "dept-1", SendWelcomeEmails: true}}

	outcome, err := importer.Run(context.Background(), job, rows)

	require.NoError(t, err)
	assert.Len(t, outcome.CreatedIDs, 2)
	assert.Empty(t, outcome.Summaries, "teachers are not allocated to sections")
	require.Len(t, teachers.created, 2)
	for _, teacher := range teachers.created {
		assert.Regexp(t, `^SOA[A-Z0-9]{5}$`, teacher.EmployeeNo)
		assert.Equal(t, "dept-1", teacher.DepartmentID)
		assert.True(t, teacher.Locked)
	}
	require.Len(t, outcome.Emails, 2)
	assert.NotEmpty(t, outcome.Emails[0].Identifiers["employee_number"])
	assert.Equal(t, "Computer Science", outcome.Emails[0].DepartmentName)
}
