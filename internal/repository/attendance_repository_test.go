package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srms-dev/srms-api/internal/models"
)

func attendanceRows(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "student_id", "subject_id", "date", "status", "remarks", "created_by", "created_at", "updated_at",
		"roll_no", "student_name", "subject_name",
	}).AddRow(id, "st-1", "sub-1", now, string(models.AttendancePresent), nil, "admin-1", now, now,
		"R-001", "Asha Rahman", "Mathematics")
}

func TestAttendanceFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(`(?s)SELECT .* FROM attendances a`).
		WithArgs("a-1").
		WillReturnRows(attendanceRows("a-1"))

	record, err := repo.FindByID(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttendancePresent, record.Status)
	assert.Equal(t, "Mathematics", record.SubjectName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceFindByComposite(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)SELECT .* FROM attendances a.*WHERE a.student_id = \$1 AND a.subject_id = \$2 AND a.date = \$3`).
		WithArgs("st-1", "sub-1", day).
		WillReturnRows(attendanceRows("a-1"))

	record, err := repo.FindByComposite(context.Background(), "st-1", "sub-1", day)
	require.NoError(t, err)
	assert.Equal(t, "a-1", record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceCreateReturnsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendances").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Attendance{StudentID: "st-1", SubjectID: "sub-1", Date: time.Now(), Status: models.AttendancePresent})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceListDateWindow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)SELECT .* FROM attendances a.* WHERE 1=1 AND a\.student_id = \$1 AND a\.date >= \$2 AND a\.date <= \$3 ORDER BY a\.date DESC LIMIT 20 OFFSET 0`).
		WithArgs("st-1", from, to).
		WillReturnRows(attendanceRows("a-1"))
	mock.ExpectQuery(`(?s)SELECT COUNT\(\*\) FROM attendances a`).
		WithArgs("st-1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), models.AttendanceFilter{StudentID: "st-1", From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceStatusCounts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow(string(models.AttendanceAbsent), 3).
		AddRow(string(models.AttendancePresent), 17)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM attendances WHERE student_id = $1 GROUP BY status ORDER BY status")).
		WithArgs("st-1").
		WillReturnRows(rows)

	counts, err := repo.StatusCounts(context.Background(), "st-1", nil, nil)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, models.AttendanceAbsent, counts[0].Status)
	assert.Equal(t, 17, counts[1].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceSubjectBreakdownGroupsRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"subject_id", "subject_name", "status", "count"}).
		AddRow("sub-1", "Mathematics", string(models.AttendanceAbsent), 2).
		AddRow("sub-1", "Mathematics", string(models.AttendancePresent), 8).
		AddRow("sub-2", "Physics", string(models.AttendancePresent), 10)
	mock.ExpectQuery(`(?s)SELECT a\.subject_id, sub\.name AS subject_name`).
		WithArgs("st-1").
		WillReturnRows(rows)

	breakdown, err := repo.SubjectBreakdown(context.Background(), "st-1")
	require.NoError(t, err)
	require.Len(t, breakdown, 2)
	assert.Equal(t, "Mathematics", breakdown[0].SubjectName)
	assert.Equal(t, 10, breakdown[0].Total)
	require.Len(t, breakdown[0].Breakdown, 2)
	assert.Equal(t, 10, breakdown[1].Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendances WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
