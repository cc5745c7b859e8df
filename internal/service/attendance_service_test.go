package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/srms-dev/srms-api/internal/models"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
)

type mockAttendanceRepo struct {
	records map[string]*models.Attendance
	keys    map[string]bool
}

func newMockAttendanceRepo() *mockAttendanceRepo {
	return &mockAttendanceRepo{
		records: make(map[string]*models.Attendance),
		keys:    make(map[string]bool),
	}
}

func attendanceKey(r *models.Attendance) string {
	return fmt.Sprintf("%s|%s|%s", r.StudentID, r.SubjectID, r.Date.Format("2006-01-02"))
}

func (m *mockAttendanceRepo) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *r
	return &copied, nil
}

func (m *mockAttendanceRepo) FindByComposite(ctx context.Context, studentID, subjectID string, date time.Time) (*models.Attendance, error) {
	for _, r := range m.records {
		if r.StudentID == studentID && r.SubjectID == subjectID && r.Date.Equal(date) {
			copied := *r
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttendanceRepo) Create(ctx context.Context, record *models.Attendance) error {
	key := attendanceKey(record)
	if m.keys[key] {
		return &pq.Error{Code: "23505"}
	}
	m.keys[key] = true
	record.ID = uuid.NewString()
	stored := *record
	m.records[record.ID] = &stored
	return nil
}

func (m *mockAttendanceRepo) Update(ctx context.Context, record *models.Attendance) error {
	if _, ok := m.records[record.ID]; !ok {
		return sql.ErrNoRows
	}
	stored := *record
	m.records[record.ID] = &stored
	return nil
}

func (m *mockAttendanceRepo) List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error) {
	out := make([]models.Attendance, 0, len(m.records))
	for _, r := range m.records {
		if filter.StudentID != "" && r.StudentID != filter.StudentID {
			continue
		}
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *mockAttendanceRepo) StatusCounts(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceStatusCount, error) {
	buckets := make(map[models.AttendanceStatus]int)
	for _, r := range m.records {
		if r.StudentID != studentID {
			continue
		}
		if from != nil && r.Date.Before(*from) {
			continue
		}
		if to != nil && r.Date.After(*to) {
			continue
		}
		buckets[r.Status]++
	}
	out := make([]models.AttendanceStatusCount, 0, len(buckets))
	for status, count := range buckets {
		out = append(out, models.AttendanceStatusCount{Status: status, Count: count})
	}
	return out, nil
}

func (m *mockAttendanceRepo) SubjectBreakdown(ctx context.Context, studentID string) ([]models.AttendanceSubjectBreakdown, error) {
	return nil, nil
}

func (m *mockAttendanceRepo) Delete(ctx context.Context, id string) error {
	r, ok := m.records[id]
	if !ok {
		return sql.ErrNoRows
	}
	delete(m.keys, attendanceKey(r))
	delete(m.records, id)
	return nil
}

type attendanceFixture struct {
	svc   *AttendanceService
	repo  *mockAttendanceRepo
	audit *mockAudit
}

func newAttendanceFixture() *attendanceFixture {
	repo := newMockAttendanceRepo()
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
	audit := &mockAudit{}

	svc := NewAttendanceService(repo, students, subjects, teachers, audit, validator.New(), zap.NewNop())
	return &attendanceFixture{svc: svc, repo: repo, audit: audit}
}

func yesterday() string {
	return time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
}

func TestMarkAttendanceStoresRecords(t *testing.T) {
	f := newAttendanceFixture()

	resp, err := f.svc.Mark(context.Background(), adminActor(), MarkAttendanceRequest{Records: []AttendanceEntry{
		{StudentID: "st-1", SubjectID: "sub-math", Date: yesterday(), Status: "present"},
		{StudentID: "st-1", SubjectID: "sub-phys", Date: yesterday(), Status: "absent"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Created)
	assert.Equal(t, 0, resp.Failed)
	require.Len(t, resp.Records, 2)
	assert.Equal(t, models.AttendancePresent, resp.Records[0].Status)
}

func TestMarkAttendanceRejectsFutureDate(t *testing.T) {
	f := newAttendanceFixture()
	future := time.Now().UTC().AddDate(0, 0, 2).Format("2006-01-02")

	resp, err := f.svc.Mark(context.Background(), adminActor(), MarkAttendanceRequest{Records: []AttendanceEntry{
		{StudentID: "st-1", SubjectID: "sub-math", Date: future, Status: "present"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, appErrors.ErrValidation.Code, resp.Errors[0].Code)
}

func TestMarkAttendanceReplacesExistingDay(t *testing.T) {
	f := newAttendanceFixture()
	entry := AttendanceEntry{StudentID: "st-1", SubjectID: "sub-math", Date: yesterday(), Status: "present"}

	first, err := f.svc.Mark(context.Background(), adminActor(), MarkAttendanceRequest{Records: []AttendanceEntry{entry}})
	require.NoError(t, err)
	require.Equal(t, 1, first.Created)
	id := first.Records[0].ID

	entry.Status = "absent"
	resp, err := f.svc.Mark(context.Background(), adminActor(), MarkAttendanceRequest{Records: []AttendanceEntry{entry}})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Created)
	assert.Equal(t, 1, resp.Updated)
	assert.Equal(t, 0, resp.Failed)

	stored, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceAbsent, stored.Status)
}

func TestMarkAttendanceConcurrentInsertConflict(t *testing.T) {
	f := newAttendanceFixture()
	entry := AttendanceEntry{StudentID: "st-1", SubjectID: "sub-math", Date: yesterday(), Status: "present"}

	// A writer that raced past the lookup leaves only the constraint.
	f.repo.keys["st-1|sub-math|"+yesterday()] = true

	resp, err := f.svc.Mark(context.Background(), adminActor(), MarkAttendanceRequest{Records: []AttendanceEntry{entry}})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Created)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, appErrors.ErrConflict.Code, resp.Errors[0].Code)
}

func TestMarkAttendanceTeacherNeedsAssignment(t *testing.T) {
	f := newAttendanceFixture()
	teacher := &models.User{ID: "user-t1", Role: models.RoleTeacher}

	resp, err := f.svc.Mark(context.Background(), teacher, MarkAttendanceRequest{Records: []AttendanceEntry{
		{StudentID: "st-1", SubjectID: "sub-math", Date: yesterday(), Status: "present"},
		{StudentID: "st-1", SubjectID: "sub-phys", Date: yesterday(), Status: "present"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Created)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, appErrors.ErrForbidden.Code, resp.Errors[0].Code)
}

func TestMarkAttendanceUnknownStudent(t *testing.T) {
	f := newAttendanceFixture()

	resp, err := f.svc.Mark(context.Background(), adminActor(), MarkAttendanceRequest{Records: []AttendanceEntry{
		{StudentID: "missing", SubjectID: "sub-math", Date: yesterday(), Status: "present"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, appErrors.ErrNotFound.Code, resp.Errors[0].Code)
}

func TestSummaryPercentageCountsOnlyPresent(t *testing.T) {
	f := newAttendanceFixture()
	base := time.Now().UTC().AddDate(0, 0, -10)

	// 6 present, 1 late, 3 absent across math and physics. Only the
	// present records count toward the percentage, so 6 of 10 is 60.
	statuses := []string{"present", "present", "present", "late", "absent", "absent", "absent", "present", "present", "present"}
	records := make([]AttendanceEntry, 0, len(statuses))
	for i, status := range statuses {
		subject := "sub-math"
		if i%2 == 1 {
			subject = "sub-phys"
		}
		records = append(records, AttendanceEntry{
			StudentID: "st-1",
			SubjectID: subject,
			Date:      base.AddDate(0, 0, i).Format("2006-01-02"),
			Status:    status,
		})
	}
	resp, err := f.svc.Mark(context.Background(), adminActor(), MarkAttendanceRequest{Records: records})
	require.NoError(t, err)
	require.Equal(t, 10, resp.Created)

	summary, err := f.svc.Summary(context.Background(), adminActor(), "st-1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, 6, summary.Present)
	assert.Equal(t, 60.0, summary.Percentage)
	assert.Equal(t, "R-001", summary.RollNo)
}

func TestSummaryWindowFilters(t *testing.T) {
	f := newAttendanceFixture()
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	entries := []AttendanceEntry{
		{StudentID: "st-1", SubjectID: "sub-math", Date: "2026-03-02", Status: "present"},
		{StudentID: "st-1", SubjectID: "sub-math", Date: "2026-03-03", Status: "absent"},
		{StudentID: "st-1", SubjectID: "sub-math", Date: "2026-03-10", Status: "present"},
	}
	_, err := f.svc.Mark(context.Background(), adminActor(), MarkAttendanceRequest{Records: entries})
	require.NoError(t, err)

	to := base.AddDate(0, 0, 3)
	summary, err := f.svc.Summary(context.Background(), adminActor(), "st-1", &base, &to)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Present)
	assert.Equal(t, 50.0, summary.Percentage)
}

func TestSummaryNoRecords(t *testing.T) {
	f := newAttendanceFixture()

	summary, err := f.svc.Summary(context.Background(), adminActor(), "st-1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, 0.0, summary.Percentage)
}

func TestUpdateAttendanceCorrectsStatus(t *testing.T) {
	f := newAttendanceFixture()

	resp, err := f.svc.Mark(context.Background(), adminActor(), MarkAttendanceRequest{Records: []AttendanceEntry{
		{StudentID: "st-1", SubjectID: "sub-math", Date: yesterday(), Status: "absent"},
	}})
	require.NoError(t, err)
	id := resp.Records[0].ID

	status := "late"
	remarks := "arrived after roll call"
	updated, err := f.svc.Update(context.Background(), adminActor(), id, UpdateAttendanceRequest{Status: &status, Remarks: &remarks})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceLate, updated.Status)
	require.NotNil(t, updated.Remarks)
	assert.Equal(t, remarks, *updated.Remarks)
}

func TestDeleteAttendanceFreesDay(t *testing.T) {
	f := newAttendanceFixture()
	entry := AttendanceEntry{StudentID: "st-1", SubjectID: "sub-math", Date: yesterday(), Status: "absent"}

	resp, err := f.svc.Mark(context.Background(), adminActor(), MarkAttendanceRequest{Records: []AttendanceEntry{entry}})
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(context.Background(), adminActor(), resp.Records[0].ID))

	// The day can be marked again once the record is gone.
	entry.Status = "present"
	again, err := f.svc.Mark(context.Background(), adminActor(), MarkAttendanceRequest{Records: []AttendanceEntry{entry}})
	require.NoError(t, err)
	assert.Equal(t, 1, again.Created)
}

func TestStudentSummaryScopedToSelf(t *testing.T) {
	f := newAttendanceFixture()

	_, err := f.svc.Mark(context.Background(), adminActor(), MarkAttendanceRequest{Records: []AttendanceEntry{
		{StudentID: "st-1", SubjectID: "sub-math", Date: yesterday(), Status: "present"},
	}})
	require.NoError(t, err)

	summary, err := f.svc.Summary(context.Background(), studentActor(), "st-1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "st-1", summary.StudentID)

	_, err = f.svc.Summary(context.Background(), studentActor(), "st-2", nil, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestStudentListsOnlyOwnAttendance(t *testing.T) {
	f := newAttendanceFixture()
	f.svc.students.(*mockStudentRepo).students["st-2"] = &models.Student{ID: "st-2", UserID: "user-st-2", RollNo: "R-002"}

	_, err := f.svc.Mark(context.Background(), adminActor(), MarkAttendanceRequest{Records: []AttendanceEntry{
		{StudentID: "st-1", SubjectID: "sub-math", Date: yesterday(), Status: "present"},
		{StudentID: "st-2", SubjectID: "sub-math", Date: yesterday(), Status: "absent"},
	}})
	require.NoError(t, err)

	records, _, err := f.svc.List(context.Background(), studentActor(), models.AttendanceFilter{StudentID: "st-2"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "st-1", records[0].StudentID)
}
