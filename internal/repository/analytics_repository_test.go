package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srms-dev/srms-api/internal/models"
)

func TestTopPerformersRankedByAvgMarks(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	rows := sqlmock.NewRows([]string{"student_id", "name", "roll_no", "avg_marks", "avg_grade_point", "total_subjects"}).
		AddRow("st-2", "Rafi Karim", "R-002", 85.0, 8.5, 2).
		AddRow("st-1", "Asha Rahman", "R-001", 80.0, 9.0, 2)

	mock.ExpectQuery(`(?s)SELECT r.student_id.*ORDER BY avg_marks DESC, avg_grade_point DESC.*LIMIT 10`).
		WithArgs("cls-1").
		WillReturnRows(rows)

	performers, err := repo.TopPerformers(context.Background(), models.TopPerformersFilter{ClassID: "cls-1"})
	require.NoError(t, err)
	require.Len(t, performers, 2)
	assert.Equal(t, "st-2", performers[0].StudentID)
	assert.Equal(t, 85.0, performers[0].AvgMarks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopPerformersSemesterScopedAndCapped(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	semester := 1
	rows := sqlmock.NewRows([]string{"student_id", "name", "roll_no", "avg_marks", "avg_grade_point", "total_subjects"})

	mock.ExpectQuery(`(?s)SELECT r.student_id.*AND r.semester = \$2.*ORDER BY avg_marks DESC, avg_grade_point DESC.*LIMIT 10`).
		WithArgs("cls-1", semester).
		WillReturnRows(rows)

	// A limit past the cap falls back to the default page of 10.
	performers, err := repo.TopPerformers(context.Background(), models.TopPerformersFilter{ClassID: "cls-1", Semester: &semester, Limit: 500})
	require.NoError(t, err)
	assert.Empty(t, performers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassPerformanceOrderedByAvgMarks(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	rows := sqlmock.NewRows([]string{"student_id", "name", "roll_no", "avg_marks", "avg_grade_point", "total_subjects", "passed"}).
		AddRow("st-2", "Rafi Karim", "R-002", 85.0, 8.5, 2, true).
		AddRow("st-1", "Asha Rahman", "R-001", 80.0, 9.0, 2, false)

	mock.ExpectQuery(`(?s)SELECT r.student_id.*BOOL_AND\(r.is_passed\) AS passed.*ORDER BY avg_marks DESC, avg_grade_point DESC`).
		WithArgs("cls-1").
		WillReturnRows(rows)

	performance, err := repo.ClassPerformance(context.Background(), "cls-1", nil)
	require.NoError(t, err)
	require.Len(t, performance, 2)
	assert.Equal(t, "st-2", performance[0].StudentID)
	assert.False(t, performance[1].Passed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
