package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/srms-dev/srms-api/internal/models"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
)

type mockClassCrudRepo struct {
	classes map[string]*models.Class
	codes   map[string]bool
}

func newMockClassCrudRepo() *mockClassCrudRepo {
	return &mockClassCrudRepo{classes: make(map[string]*models.Class), codes: make(map[string]bool)}
}

func (m *mockClassCrudRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	c, ok := m.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (m *mockClassCrudRepo) Create(ctx context.Context, class *models.Class) error {
	if m.codes[class.Code] {
		return &pq.Error{Code: "23505"}
	}
	m.codes[class.Code] = true
	class.ID = uuid.NewString()
	stored := *class
	m.classes[class.ID] = &stored
	return nil
}

func (m *mockClassCrudRepo) Update(ctx context.Context, class *models.Class) error {
	if _, ok := m.classes[class.ID]; !ok {
		return sql.ErrNoRows
	}
	stored := *class
	m.classes[class.ID] = &stored
	return nil
}

func (m *mockClassCrudRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	out := make([]models.Class, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *mockClassCrudRepo) Roster(ctx context.Context, classID string) ([]models.Student, error) {
	return nil, nil
}

func (m *mockClassCrudRepo) Deactivate(ctx context.Context, id string) error {
	c, ok := m.classes[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Active = false
	return nil
}

type mockClassStudents struct {
	students map[string]*models.Student
}

func (m *mockClassStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	s, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (m *mockClassStudents) SetClass(ctx context.Context, studentID string, classID *string) error {
	s, ok := m.students[studentID]
	if !ok {
		return sql.ErrNoRows
	}
	s.ClassID = classID
	return nil
}

func (m *mockClassStudents) CountByClass(ctx context.Context, classID string) (int, error) {
	count := 0
	for _, s := range m.students {
		if s.ClassID != nil && *s.ClassID == classID {
			count++
		}
	}
	return count, nil
}

type mockTeacherFinder struct {
	teachers map[string]*models.Teacher
}

func (m *mockTeacherFinder) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	t, ok := m.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

type classFixture struct {
	svc      *ClassService
	repo     *mockClassCrudRepo
	students *mockClassStudents
	audit    *mockAudit
}

func newClassFixture() *classFixture {
	repo := newMockClassCrudRepo()
	students := &mockClassStudents{students: map[string]*models.Student{
		"st-1": {ID: "st-1", UserID: "user-st-1", RollNo: "R-001"},
		"st-2": {ID: "st-2", UserID: "user-st-2", RollNo: "R-002"},
		"st-3": {ID: "st-3", UserID: "user-st-3", RollNo: "R-003"},
	}}
	teachers := &mockTeacherFinder{teachers: map[string]*models.Teacher{
		"t1": {ID: "t1", UserID: "user-t1"},
	}}
	audit := &mockAudit{}
	svc := NewClassService(repo, students, teachers, audit, validator.New(), zap.NewNop())
	return &classFixture{svc: svc, repo: repo, students: students, audit: audit}
}

func (f *classFixture) createClass(t *testing.T, maxStrength int) *models.Class {
	t.Helper()
	class, err := f.svc.Create(context.Background(), adminActor(), models.CreateClassRequest{
		Name: "CSE 1A", Code: "CSE-1A", Year: 1, Semester: 1, MaxStrength: maxStrength,
	})
	require.NoError(t, err)
	return class
}

func TestCreateClassDefaultsStrength(t *testing.T) {
	f := newClassFixture()

	class := f.createClass(t, 0)
	assert.Equal(t, 60, class.MaxStrength)
	assert.True(t, class.Active)
}

func TestCreateClassDuplicateCode(t *testing.T) {
	f := newClassFixture()
	f.createClass(t, 0)

	_, err := f.svc.Create(context.Background(), adminActor(), models.CreateClassRequest{
		Name: "CSE 1A again", Code: "CSE-1A", Year: 1, Semester: 1,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateClassUnknownTeacher(t *testing.T) {
	f := newClassFixture()
	missing := "no-such-teacher"

	_, err := f.svc.Create(context.Background(), adminActor(), models.CreateClassRequest{
		Name: "CSE 1B", Code: "CSE-1B", Year: 1, Semester: 1, ClassTeacherID: &missing,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollStudentRespectsCapacity(t *testing.T) {
	f := newClassFixture()
	class := f.createClass(t, 2)

	require.NoError(t, f.svc.EnrollStudent(context.Background(), adminActor(), class.ID, models.EnrollStudentRequest{StudentID: "st-1"}))
	require.NoError(t, f.svc.EnrollStudent(context.Background(), adminActor(), class.ID, models.EnrollStudentRequest{StudentID: "st-2"}))

	err := f.svc.EnrollStudent(context.Background(), adminActor(), class.ID, models.EnrollStudentRequest{StudentID: "st-3"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollStudentTwiceConflicts(t *testing.T) {
	f := newClassFixture()
	class := f.createClass(t, 10)

	require.NoError(t, f.svc.EnrollStudent(context.Background(), adminActor(), class.ID, models.EnrollStudentRequest{StudentID: "st-1"}))

	err := f.svc.EnrollStudent(context.Background(), adminActor(), class.ID, models.EnrollStudentRequest{StudentID: "st-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollIntoInactiveClass(t *testing.T) {
	f := newClassFixture()
	class := f.createClass(t, 10)
	require.NoError(t, f.svc.Deactivate(context.Background(), adminActor(), class.ID))

	err := f.svc.EnrollStudent(context.Background(), adminActor(), class.ID, models.EnrollStudentRequest{StudentID: "st-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRemoveStudentFreesSeat(t *testing.T) {
	f := newClassFixture()
	class := f.createClass(t, 1)

	require.NoError(t, f.svc.EnrollStudent(context.Background(), adminActor(), class.ID, models.EnrollStudentRequest{StudentID: "st-1"}))
	require.NoError(t, f.svc.RemoveStudent(context.Background(), adminActor(), class.ID, "st-1"))

	// The freed seat accepts the next student.
	require.NoError(t, f.svc.EnrollStudent(context.Background(), adminActor(), class.ID, models.EnrollStudentRequest{StudentID: "st-2"}))
}

func TestRemoveStudentNotEnrolled(t *testing.T) {
	f := newClassFixture()
	class := f.createClass(t, 10)

	err := f.svc.RemoveStudent(context.Background(), adminActor(), class.ID, "st-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUpdateClassStrengthBelowRoster(t *testing.T) {
	f := newClassFixture()
	class := f.createClass(t, 10)

	require.NoError(t, f.svc.EnrollStudent(context.Background(), adminActor(), class.ID, models.EnrollStudentRequest{StudentID: "st-1"}))
	require.NoError(t, f.svc.EnrollStudent(context.Background(), adminActor(), class.ID, models.EnrollStudentRequest{StudentID: "st-2"}))
	// CurrentStrength is a joined column in the real repository query.
	f.repo.classes[class.ID].CurrentStrength = 2

	tooSmall := 1
	_, err := f.svc.Update(context.Background(), adminActor(), class.ID, models.UpdateClassRequest{MaxStrength: &tooSmall})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	bigger := 80
	updated, err := f.svc.Update(context.Background(), adminActor(), class.ID, models.UpdateClassRequest{MaxStrength: &bigger})
	require.NoError(t, err)
	assert.Equal(t, 80, updated.MaxStrength)
}
