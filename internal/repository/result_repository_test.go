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

func resultRows(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "student_id", "subject_id", "semester", "exam_type", "marks_obtained", "percentage", "grade", "grade_point", "is_passed",
		"remarks", "created_by", "is_approved", "approved_by", "approved_at", "created_at", "updated_at",
		"roll_no", "student_name", "subject_name", "subject_code", "subject_max_marks",
	}).AddRow(id, "st-1", "sub-1", 1, "final", 85.0, 85.0, "A", 9.0, true,
		nil, "admin-1", false, nil, nil, now, now,
		"R-001", "Asha Rahman", "Mathematics", "MATH101", 100.0)
}

func TestResultFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	mock.ExpectQuery(`(?s)SELECT .* FROM results r`).
		WithArgs("r-1").
		WillReturnRows(resultRows("r-1"))

	result, err := repo.FindByID(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "MATH101", result.SubjectCode)
	assert.Equal(t, 100.0, result.SubjectMaxMarks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultFindByComposite(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	mock.ExpectQuery(`(?s)SELECT .* FROM results r.*WHERE r.student_id = \$1 AND r.subject_id = \$2 AND r.semester = \$3 AND r.exam_type = \$4`).
		WithArgs("st-1", "sub-1", 1, "final").
		WillReturnRows(resultRows("r-1"))

	result, err := repo.FindByComposite(context.Background(), "st-1", "sub-1", 1, "final")
	require.NoError(t, err)
	assert.Equal(t, "r-1", result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultFindByCompositeNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	mock.ExpectQuery(`(?s)SELECT .* FROM results r`).
		WithArgs("st-1", "sub-1", 1, "final").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByComposite(context.Background(), "st-1", "sub-1", 1, "final")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultCreateReturnsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	mock.ExpectExec("INSERT INTO results").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Result{StudentID: "st-1", SubjectID: "sub-1", Semester: 1, ExamType: "final"})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultListFiltersByStudentAndApproval(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	approved := true
	mock.ExpectQuery(`(?s)SELECT .* FROM results r.* WHERE 1=1 AND r\.student_id = \$1 AND r\.is_approved = \$2 ORDER BY r\.created_at DESC LIMIT 20 OFFSET 0`).
		WithArgs("st-1", approved).
		WillReturnRows(resultRows("r-1"))
	mock.ExpectQuery(`(?s)SELECT COUNT\(\*\) FROM results r`).
		WithArgs("st-1", approved).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	results, total, err := repo.List(context.Background(), models.ResultFilter{StudentID: "st-1", Approved: &approved})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultListByStudentSemesterScoped(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	semester := 2
	mock.ExpectQuery(`(?s)SELECT .* FROM results r.* WHERE r\.student_id = \$1 AND r\.semester = \$2 ORDER BY sub\.code ASC`).
		WithArgs("st-1", semester).
		WillReturnRows(resultRows("r-1"))

	results, err := repo.ListByStudent(context.Background(), "st-1", &semester)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultApproveReportsNoChange(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE results SET is_approved = TRUE, approved_by = $2, approved_at = $3, updated_at = $3 WHERE id = $1 AND is_approved = FALSE")).
		WithArgs("r-1", "admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.Approve(context.Background(), "r-1", "admin-1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultApprove(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	mock.ExpectExec("UPDATE results SET is_approved = TRUE").
		WithArgs("r-1", "admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := repo.Approve(context.Background(), "r-1", "admin-1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM results WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
