package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/srms-dev/srms-api/internal/grading"
	"github.com/srms-dev/srms-api/internal/models"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
)

type mockResultRepo struct {
	results  map[string]*models.Result
	keys     map[string]bool
	approved map[string]bool
}

func newMockResultRepo() *mockResultRepo {
	return &mockResultRepo{
		results:  make(map[string]*models.Result),
		keys:     make(map[string]bool),
		approved: make(map[string]bool),
	}
}

func resultKey(r *models.Result) string {
	return fmt.Sprintf("%s|%s|%d|%s", r.StudentID, r.SubjectID, r.Semester, r.ExamType)
}

func (m *mockResultRepo) FindByID(ctx context.Context, id string) (*models.Result, error) {
	r, ok := m.results[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *r
	return &copied, nil
}

func (m *mockResultRepo) FindByComposite(ctx context.Context, studentID, subjectID string, semester int, examType models.ExamType) (*models.Result, error) {
	for _, r := range m.results {
		if r.StudentID == studentID && r.SubjectID == subjectID && r.Semester == semester && r.ExamType == examType {
			copied := *r
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockResultRepo) Create(ctx context.Context, result *models.Result) error {
	key := resultKey(result)
	if m.keys[key] {
		return &pq.Error{Code: "23505"}
	}
	m.keys[key] = true
	result.ID = uuid.NewString()
	stored := *result
	m.results[result.ID] = &stored
	return nil
}

func (m *mockResultRepo) Update(ctx context.Context, result *models.Result) error {
	stored := *result
	m.results[result.ID] = &stored
	return nil
}

func (m *mockResultRepo) List(ctx context.Context, filter models.ResultFilter) ([]models.Result, int, error) {
	var out []models.Result
	for _, r := range m.results {
		if filter.StudentID != "" && r.StudentID != filter.StudentID {
			continue
		}
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *mockResultRepo) Approve(ctx context.Context, id, approverID string) (bool, error) {
	r, ok := m.results[id]
	if !ok || r.IsApproved {
		return false, nil
	}
	r.IsApproved = true
	r.ApprovedBy = &approverID
	return true, nil
}

func (m *mockResultRepo) Delete(ctx context.Context, id string) error {
	r, ok := m.results[id]
	if !ok {
		return sql.ErrNoRows
	}
	delete(m.keys, resultKey(r))
	delete(m.results, id)
	return nil
}

type mockSubjectRepo struct {
	subjects map[string]*models.Subject
}

func (m *mockSubjectRepo) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	s, ok := m.subjects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s, nil
}

type mockStudentRepo struct {
	students map[string]*models.Student
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	s, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s, nil
}

func (m *mockStudentRepo) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	for _, s := range m.students {
		if s.UserID == userID {
			return s, nil
		}
	}
	return nil, sql.ErrNoRows
}

type mockTeacherChecker struct {
	teachersByUser map[string]*models.Teacher
	assignments    map[string]bool
}

func (m *mockTeacherChecker) FindByUserID(ctx context.Context, userID string) (*models.Teacher, error) {
	t, ok := m.teachersByUser[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

func (m *mockTeacherChecker) IsAssignedToSubject(ctx context.Context, teacherID, subjectID string) (bool, error) {
	return m.assignments[teacherID+"|"+subjectID], nil
}

type staticGradingConfig struct{}

func (staticGradingConfig) GradeScale(ctx context.Context) grading.Scale {
	return grading.DefaultScale()
}

func (staticGradingConfig) ExamTypes(ctx context.Context) []models.ExamType {
	return []models.ExamType{"midterm", "final", "quiz", "assignment"}
}

type mockNotifier struct {
	pushed []models.CreateNotificationRequest
}

func (m *mockNotifier) Push(ctx context.Context, req models.CreateNotificationRequest) {
	m.pushed = append(m.pushed, req)
}

type mockInvalidator struct {
	patterns []string
}

func (m *mockInvalidator) Invalidate(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

type resultFixture struct {
	svc      *ResultService
	repo     *mockResultRepo
	notify   *mockNotifier
	cache    *mockInvalidator
	audit    *mockAudit
	teachers *mockTeacherChecker
}

func newResultFixture() *resultFixture {
	repo := newMockResultRepo()
	subjects := &mockSubjectRepo{subjects: map[string]*models.Subject{
		"sub-math": {ID: "sub-math", Code: "MATH101", Name: "Mathematics", MaxMarks: 100, PassMarks: 40, Active: true},
		"sub-phys": {ID: "sub-phys", Code: "PHYS101", Name: "Physics", MaxMarks: 50, PassMarks: 20, Active: true},
	}}
	students := &mockStudentRepo{students: map[string]*models.Student{
		"st-1": {ID: "st-1", UserID: "user-st-1", RollNo: "R-001"},
	}}
	teachers := &mockTeacherChecker{
		teachersByUser: map[string]*models.Teacher{"user-t1": {ID: "t1", UserID: "user-t1"}},
		assignments:    map[string]bool{"t1|sub-math": true},
	}
	notify := &mockNotifier{}
	cache := &mockInvalidator{}
	audit := &mockAudit{}

	svc := NewResultService(repo, subjects, students, teachers, staticGradingConfig{}, audit, notify, cache, validator.New(), zap.NewNop())
	return &resultFixture{svc: svc, repo: repo, notify: notify, cache: cache, audit: audit, teachers: teachers}
}

func adminActor() *models.User {
	return &models.User{ID: "admin-1", Role: models.RoleAdmin}
}

func studentActor() *models.User {
	return &models.User{ID: "user-st-1", Role: models.RoleStudent}
}

func TestEnterMarksDerivesGrade(t *testing.T) {
	f := newResultFixture()

	resp, err := f.svc.EnterMarks(context.Background(), adminActor(), EnterMarksRequest{Results: []MarkEntry{
		{StudentID: "st-1", SubjectID: "sub-math", Semester: 1, ExamType: "final", MarksObtained: 85},
	}})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Created)
	require.Len(t, resp.Results, 1)

	r := resp.Results[0]
	assert.Equal(t, 85.0, r.Percentage)
	assert.Equal(t, "A", r.Grade)
	assert.Equal(t, 9.0, r.GradePoint)
	assert.True(t, r.IsPassed)
	assert.Equal(t, []string{"analytics:*"}, f.cache.patterns)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.AuditActionEnterMarks, f.audit.entries[0].Action)
}

func TestEnterMarksScalesToMaxMarks(t *testing.T) {
	f := newResultFixture()

	// 35/50 is 70 percent, grade B+.
	resp, err := f.svc.EnterMarks(context.Background(), adminActor(), EnterMarksRequest{Results: []MarkEntry{
		{StudentID: "st-1", SubjectID: "sub-phys", Semester: 1, ExamType: "final", MarksObtained: 35},
	}})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Created)
	assert.Equal(t, 70.0, resp.Results[0].Percentage)
	assert.Equal(t, "B+", resp.Results[0].Grade)
}

func TestEnterMarksPartialFailure(t *testing.T) {
	f := newResultFixture()

	resp, err := f.svc.EnterMarks(context.Background(), adminActor(), EnterMarksRequest{Results: []MarkEntry{
		{StudentID: "st-1", SubjectID: "sub-math", Semester: 1, ExamType: "final", MarksObtained: 80},
		{StudentID: "missing", SubjectID: "sub-math", Semester: 1, ExamType: "final", MarksObtained: 60},
		{StudentID: "st-1", SubjectID: "sub-math", Semester: 1, ExamType: "bogus", MarksObtained: 60},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Created)
	assert.Equal(t, 2, resp.Failed)
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, 1, resp.Errors[0].Index)
	assert.Equal(t, appErrors.ErrNotFound.Code, resp.Errors[0].Code)
	assert.Equal(t, 2, resp.Errors[1].Index)
	assert.Equal(t, appErrors.ErrValidation.Code, resp.Errors[1].Code)
}

func TestEnterMarksReplacesExistingEntry(t *testing.T) {
	f := newResultFixture()
	entry := MarkEntry{StudentID: "st-1", SubjectID: "sub-math", Semester: 1, ExamType: "final", MarksObtained: 80}

	first, err := f.svc.EnterMarks(context.Background(), adminActor(), EnterMarksRequest{Results: []MarkEntry{entry}})
	require.NoError(t, err)
	require.Equal(t, 1, first.Created)
	id := first.Results[0].ID

	entry.MarksObtained = 92
	resp, err := f.svc.EnterMarks(context.Background(), adminActor(), EnterMarksRequest{Results: []MarkEntry{entry}})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Created)
	assert.Equal(t, 1, resp.Updated)
	assert.Equal(t, 0, resp.Failed)

	// The stored result keeps its identity and re-derives the grade.
	stored, err := f.svc.Get(context.Background(), adminActor(), id)
	require.NoError(t, err)
	assert.Equal(t, 92.0, stored.MarksObtained)
	assert.Equal(t, "A+", stored.Grade)
	assert.Equal(t, 10.0, stored.GradePoint)
}

func TestEnterMarksApprovedEntryStaysFrozen(t *testing.T) {
	f := newResultFixture()
	entry := MarkEntry{StudentID: "st-1", SubjectID: "sub-math", Semester: 1, ExamType: "final", MarksObtained: 80}

	first, err := f.svc.EnterMarks(context.Background(), adminActor(), EnterMarksRequest{Results: []MarkEntry{entry}})
	require.NoError(t, err)
	_, err = f.svc.Approve(context.Background(), adminActor(), first.Results[0].ID)
	require.NoError(t, err)

	entry.MarksObtained = 40
	resp, err := f.svc.EnterMarks(context.Background(), adminActor(), EnterMarksRequest{Results: []MarkEntry{entry}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, appErrors.ErrApproved.Code, resp.Errors[0].Code)
}

func TestEnterMarksConcurrentInsertConflict(t *testing.T) {
	f := newResultFixture()

	// A writer that raced past the lookup leaves only the constraint.
	f.repo.keys["st-1|sub-math|1|final"] = true

	resp, err := f.svc.EnterMarks(context.Background(), adminActor(), EnterMarksRequest{Results: []MarkEntry{
		{StudentID: "st-1", SubjectID: "sub-math", Semester: 1, ExamType: "final", MarksObtained: 80},
	}})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Created)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, appErrors.ErrConflict.Code, resp.Errors[0].Code)
}

func TestEnterMarksTeacherNeedsAssignment(t *testing.T) {
	f := newResultFixture()
	teacher := &models.User{ID: "user-t1", Role: models.RoleTeacher}

	resp, err := f.svc.EnterMarks(context.Background(), teacher, EnterMarksRequest{Results: []MarkEntry{
		{StudentID: "st-1", SubjectID: "sub-math", Semester: 1, ExamType: "final", MarksObtained: 70},
		{StudentID: "st-1", SubjectID: "sub-phys", Semester: 1, ExamType: "final", MarksObtained: 30},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Created)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, appErrors.ErrForbidden.Code, resp.Errors[0].Code)
}

func TestEnterMarksAboveMaxRejected(t *testing.T) {
	f := newResultFixture()

	resp, err := f.svc.EnterMarks(context.Background(), adminActor(), EnterMarksRequest{Results: []MarkEntry{
		{StudentID: "st-1", SubjectID: "sub-phys", Semester: 1, ExamType: "final", MarksObtained: 60},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, appErrors.ErrValidation.Code, resp.Errors[0].Code)
}

func TestUpdateResultRecomputesDerived(t *testing.T) {
	f := newResultFixture()

	resp, err := f.svc.EnterMarks(context.Background(), adminActor(), EnterMarksRequest{Results: []MarkEntry{
		{StudentID: "st-1", SubjectID: "sub-math", Semester: 1, ExamType: "final", MarksObtained: 85},
	}})
	require.NoError(t, err)
	id := resp.Results[0].ID

	marks := 35.0
	updated, err := f.svc.Update(context.Background(), adminActor(), id, UpdateResultRequest{MarksObtained: &marks})
	require.NoError(t, err)
	assert.Equal(t, 35.0, updated.Percentage)
	assert.Equal(t, "F", updated.Grade)
	assert.Equal(t, 0.0, updated.GradePoint)
	assert.False(t, updated.IsPassed)
}

func TestApproveIsTerminal(t *testing.T) {
	f := newResultFixture()

	resp, err := f.svc.EnterMarks(context.Background(), adminActor(), EnterMarksRequest{Results: []MarkEntry{
		{StudentID: "st-1", SubjectID: "sub-math", Semester: 1, ExamType: "final", MarksObtained: 85},
	}})
	require.NoError(t, err)
	id := resp.Results[0].ID

	approved, err := f.svc.Approve(context.Background(), adminActor(), id)
	require.NoError(t, err)
	assert.True(t, approved.IsApproved)
	require.Len(t, f.notify.pushed, 1)
	assert.Equal(t, "user-st-1", f.notify.pushed[0].UserID)

	_, err = f.svc.Approve(context.Background(), adminActor(), id)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrApproved.Code, appErrors.FromError(err).Code)

	marks := 50.0
	_, err = f.svc.Update(context.Background(), adminActor(), id, UpdateResultRequest{MarksObtained: &marks})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrApproved.Code, appErrors.FromError(err).Code)

	err = f.svc.Delete(context.Background(), adminActor(), id)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrApproved.Code, appErrors.FromError(err).Code)
}

func TestDeleteUnapprovedResult(t *testing.T) {
	f := newResultFixture()

	resp, err := f.svc.EnterMarks(context.Background(), adminActor(), EnterMarksRequest{Results: []MarkEntry{
		{StudentID: "st-1", SubjectID: "sub-math", Semester: 1, ExamType: "final", MarksObtained: 85},
	}})
	require.NoError(t, err)
	id := resp.Results[0].ID

	require.NoError(t, f.svc.Delete(context.Background(), adminActor(), id))
	_, err = f.svc.Get(context.Background(), adminActor(), id)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentListsOnlyOwnResults(t *testing.T) {
	f := newResultFixture()
	f.svc.students.(*mockStudentRepo).students["st-2"] = &models.Student{ID: "st-2", UserID: "user-st-2", RollNo: "R-002"}

	_, err := f.svc.EnterMarks(context.Background(), adminActor(), EnterMarksRequest{Results: []MarkEntry{
		{StudentID: "st-1", SubjectID: "sub-math", Semester: 1, ExamType: "final", MarksObtained: 85},
		{StudentID: "st-2", SubjectID: "sub-math", Semester: 1, ExamType: "final", MarksObtained: 60},
	}})
	require.NoError(t, err)

	// The requested filter is overridden with the actor's own student ID.
	results, _, err := f.svc.List(context.Background(), studentActor(), models.ResultFilter{StudentID: "st-2"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "st-1", results[0].StudentID)
}

func TestStudentCannotReadOthersResult(t *testing.T) {
	f := newResultFixture()
	f.svc.students.(*mockStudentRepo).students["st-2"] = &models.Student{ID: "st-2", UserID: "user-st-2", RollNo: "R-002"}

	resp, err := f.svc.EnterMarks(context.Background(), adminActor(), EnterMarksRequest{Results: []MarkEntry{
		{StudentID: "st-2", SubjectID: "sub-math", Semester: 1, ExamType: "final", MarksObtained: 60},
	}})
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), studentActor(), resp.Results[0].ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentWithoutProfileForbidden(t *testing.T) {
	f := newResultFixture()

	_, _, err := f.svc.List(context.Background(), &models.User{ID: "user-x", Role: models.RoleStudent}, models.ResultFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
