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

type mockSubjectCrudRepo struct {
	subjects map[string]*models.Subject
	codes    map[string]bool
}

func newMockSubjectCrudRepo() *mockSubjectCrudRepo {
	return &mockSubjectCrudRepo{subjects: make(map[string]*models.Subject), codes: make(map[string]bool)}
}

func (m *mockSubjectCrudRepo) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	s, ok := m.subjects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (m *mockSubjectCrudRepo) Create(ctx context.Context, subject *models.Subject) error {
	if m.codes[subject.Code] {
		return &pq.Error{Code: "23505"}
	}
	m.codes[subject.Code] = true
	subject.ID = uuid.NewString()
	stored := *subject
	m.subjects[subject.ID] = &stored
	return nil
}

func (m *mockSubjectCrudRepo) Update(ctx context.Context, subject *models.Subject) error {
	if _, ok := m.subjects[subject.ID]; !ok {
		return sql.ErrNoRows
	}
	stored := *subject
	m.subjects[subject.ID] = &stored
	return nil
}

func (m *mockSubjectCrudRepo) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	out := make([]models.Subject, 0, len(m.subjects))
	for _, s := range m.subjects {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (m *mockSubjectCrudRepo) Deactivate(ctx context.Context, id string) error {
	s, ok := m.subjects[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Active = false
	return nil
}

func newSubjectFixture() (*SubjectService, *mockSubjectCrudRepo) {
	repo := newMockSubjectCrudRepo()
	teachers := &mockTeacherFinder{teachers: map[string]*models.Teacher{
		"t1": {ID: "t1", UserID: "user-t1"},
	}}
	svc := NewSubjectService(repo, teachers, &mockAudit{}, validator.New(), zap.NewNop())
	return svc, repo
}

func TestCreateSubjectDefaultsCategory(t *testing.T) {
	svc, _ := newSubjectFixture()

	subject, err := svc.Create(context.Background(), adminActor(), models.CreateSubjectRequest{
		Code: "MATH101", Name: "Mathematics", MaxMarks: 100, PassMarks: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SubjectTheory, subject.Category)
	assert.True(t, subject.Active)
}

func TestCreateSubjectPassAboveMax(t *testing.T) {
	svc, _ := newSubjectFixture()

	_, err := svc.Create(context.Background(), adminActor(), models.CreateSubjectRequest{
		Code: "MATH101", Name: "Mathematics", MaxMarks: 50, PassMarks: 60,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateSubjectDuplicateCode(t *testing.T) {
	svc, _ := newSubjectFixture()

	_, err := svc.Create(context.Background(), adminActor(), models.CreateSubjectRequest{
		Code: "MATH101", Name: "Mathematics", MaxMarks: 100, PassMarks: 40,
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), adminActor(), models.CreateSubjectRequest{
		Code: "MATH101", Name: "Mathematics II", MaxMarks: 100, PassMarks: 40,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateSubjectUnknownTeacher(t *testing.T) {
	svc, _ := newSubjectFixture()
	missing := "no-such-teacher"

	_, err := svc.Create(context.Background(), adminActor(), models.CreateSubjectRequest{
		Code: "MATH101", Name: "Mathematics", MaxMarks: 100, PassMarks: 40, AssignedTeacherID: &missing,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUpdateSubjectChecksCombinedScheme(t *testing.T) {
	svc, _ := newSubjectFixture()

	subject, err := svc.Create(context.Background(), adminActor(), models.CreateSubjectRequest{
		Code: "MATH101", Name: "Mathematics", MaxMarks: 100, PassMarks: 40,
	})
	require.NoError(t, err)

	// Lowering max marks below the existing pass marks must fail even
	// though neither field is invalid on its own.
	lower := 30.0
	_, err = svc.Update(context.Background(), adminActor(), subject.ID, models.UpdateSubjectRequest{MaxMarks: &lower})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	max, pass := 50.0, 25.0
	updated, err := svc.Update(context.Background(), adminActor(), subject.ID, models.UpdateSubjectRequest{MaxMarks: &max, PassMarks: &pass})
	require.NoError(t, err)
	assert.Equal(t, 50.0, updated.MaxMarks)
	assert.Equal(t, 25.0, updated.PassMarks)
}

func TestUpdateSubjectClearsTeacher(t *testing.T) {
	svc, repo := newSubjectFixture()
	teacherID := "t1"

	subject, err := svc.Create(context.Background(), adminActor(), models.CreateSubjectRequest{
		Code: "MATH101", Name: "Mathematics", MaxMarks: 100, PassMarks: 40, AssignedTeacherID: &teacherID,
	})
	require.NoError(t, err)

	empty := ""
	updated, err := svc.Update(context.Background(), adminActor(), subject.ID, models.UpdateSubjectRequest{AssignedTeacherID: &empty})
	require.NoError(t, err)
	assert.Nil(t, updated.AssignedTeacherID)
	assert.Nil(t, repo.subjects[subject.ID].AssignedTeacherID)
}

func TestDeactivateSubject(t *testing.T) {
	svc, repo := newSubjectFixture()

	subject, err := svc.Create(context.Background(), adminActor(), models.CreateSubjectRequest{
		Code: "MATH101", Name: "Mathematics", MaxMarks: 100, PassMarks: 40,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), adminActor(), subject.ID))
	assert.False(t, repo.subjects[subject.ID].Active)

	err = svc.Deactivate(context.Background(), adminActor(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
