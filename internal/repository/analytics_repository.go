package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/srms-dev/srms-api/internal/models"
)

// AnalyticsRepository runs the aggregation queries that back the
// analytics views. Everything here is read-only.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository creates a new instance of AnalyticsRepository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// TopPerformers ranks the students of a class by average marks, then
// average grade point on ties.
func (r *AnalyticsRepository) TopPerformers(ctx context.Context, filter models.TopPerformersFilter) ([]models.TopPerformer, error) {
	query := `SELECT r.student_id,
            u.first_name || ' ' || u.last_name AS name,
            s.roll_no,
            ROUND(AVG(r.marks_obtained)::numeric, 2) AS avg_marks,
            ROUND(AVG(r.grade_point)::numeric, 2) AS avg_grade_point,
            COUNT(DISTINCT r.subject_id) AS total_subjects
        FROM results r
        JOIN students s ON s.id = r.student_id
        JOIN users u ON u.id = s.user_id
        WHERE s.class_id = $1`
	args := []interface{}{filter.ClassID}

	if filter.Semester != nil {
		query += fmt.Sprintf(" AND r.semester = $%d", len(args)+1)
		args = append(args, *filter.Semester)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	query += fmt.Sprintf(` GROUP BY r.student_id, u.first_name, u.last_name, s.roll_no
        ORDER BY avg_marks DESC, avg_grade_point DESC
        LIMIT %d`, limit)

	var performers []models.TopPerformer
	if err := r.db.SelectContext(ctx, &performers, query, args...); err != nil {
		return nil, fmt.Errorf("top performers: %w", err)
	}
	return performers, nil
}

// GradeDistribution buckets a subject's results by grade.
func (r *AnalyticsRepository) GradeDistribution(ctx context.Context, filter models.DistributionFilter) ([]models.GradeBucket, error) {
	query := `SELECT grade,
            COUNT(*) AS count,
            ROUND(AVG(marks_obtained)::numeric, 2) AS avg_marks
        FROM results
        WHERE subject_id = $1`
	args := []interface{}{filter.SubjectID}

	if filter.Semester != nil {
		query += fmt.Sprintf(" AND semester = $%d", len(args)+1)
		args = append(args, *filter.Semester)
	}
	query += ` GROUP BY grade ORDER BY grade`

	var buckets []models.GradeBucket
	if err := r.db.SelectContext(ctx, &buckets, query, args...); err != nil {
		return nil, fmt.Errorf("grade distribution: %w", err)
	}
	return buckets, nil
}

// SubjectStatistics computes the overall statistics block for a subject.
func (r *AnalyticsRepository) SubjectStatistics(ctx context.Context, filter models.DistributionFilter) (*models.SubjectStatistics, error) {
	query := `SELECT COUNT(DISTINCT student_id) AS total_students,
            COALESCE(ROUND(AVG(marks_obtained)::numeric, 2), 0) AS avg_marks,
            COALESCE(MAX(marks_obtained), 0) AS max_marks,
            COALESCE(MIN(marks_obtained), 0) AS min_marks,
            COUNT(*) FILTER (WHERE is_passed) AS passed_count
        FROM results
        WHERE subject_id = $1`
	args := []interface{}{filter.SubjectID}

	if filter.Semester != nil {
		query += fmt.Sprintf(" AND semester = $%d", len(args)+1)
		args = append(args, *filter.Semester)
	}

	var stats models.SubjectStatistics
	if err := r.db.GetContext(ctx, &stats, query, args...); err != nil {
		return nil, fmt.Errorf("subject statistics: %w", err)
	}
	return &stats, nil
}

// Trends buckets results by year, month and semester of entry time.
// Bucketing is done over created_at in UTC.
func (r *AnalyticsRepository) Trends(ctx context.Context, filter models.TrendsFilter) ([]models.TrendBucket, error) {
	query := `SELECT EXTRACT(YEAR FROM r.created_at AT TIME ZONE 'UTC')::int AS year,
            EXTRACT(MONTH FROM r.created_at AT TIME ZONE 'UTC')::int AS month,
            r.semester,
            ROUND(AVG(r.marks_obtained)::numeric, 2) AS avg_marks,
            ROUND(AVG(r.grade_point)::numeric, 2) AS avg_grade_point,
            COUNT(*) AS total_results,
            ROUND((COUNT(*) FILTER (WHERE r.is_passed))::numeric * 100 / COUNT(*), 2) AS pass_rate
        FROM results r
        JOIN students s ON s.id = r.student_id
        WHERE 1=1`
	var args []interface{}

	if filter.From != nil {
		query += fmt.Sprintf(" AND r.created_at >= $%d", len(args)+1)
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND r.created_at <= $%d", len(args)+1)
		args = append(args, *filter.To)
	}
	if filter.ClassID != "" {
		query += fmt.Sprintf(" AND s.class_id = $%d", len(args)+1)
		args = append(args, filter.ClassID)
	}
	if filter.SubjectID != "" {
		query += fmt.Sprintf(" AND r.subject_id = $%d", len(args)+1)
		args = append(args, filter.SubjectID)
	}

	query += ` GROUP BY year, month, r.semester ORDER BY year ASC, month ASC, r.semester ASC`

	var buckets []models.TrendBucket
	if err := r.db.SelectContext(ctx, &buckets, query, args...); err != nil {
		return nil, fmt.Errorf("performance trends: %w", err)
	}
	for i := range buckets {
		buckets[i].Period = fmt.Sprintf("%04d-%02d", buckets[i].Year, buckets[i].Month)
	}
	return buckets, nil
}

// ClassPerformance returns each student's aggregate row for a class
// report. Passed is the AND across the student's results while the
// averages are means; the reducers differ on purpose.
func (r *AnalyticsRepository) ClassPerformance(ctx context.Context, classID string, semester *int) ([]models.StudentPerformance, error) {
	query := `SELECT r.student_id,
            u.first_name || ' ' || u.last_name AS name,
            s.roll_no,
            ROUND(AVG(r.marks_obtained)::numeric, 2) AS avg_marks,
            ROUND(AVG(r.grade_point)::numeric, 2) AS avg_grade_point,
            COUNT(DISTINCT r.subject_id) AS total_subjects,
            BOOL_AND(r.is_passed) AS passed
        FROM results r
        JOIN students s ON s.id = r.student_id
        JOIN users u ON u.id = s.user_id
        WHERE s.class_id = $1`
	args := []interface{}{classID}

	if semester != nil {
		query += fmt.Sprintf(" AND r.semester = $%d", len(args)+1)
		args = append(args, *semester)
	}
	query += ` GROUP BY r.student_id, u.first_name, u.last_name, s.roll_no ORDER BY avg_marks DESC, avg_grade_point DESC`

	var performance []models.StudentPerformance
	if err := r.db.SelectContext(ctx, &performance, query, args...); err != nil {
		return nil, fmt.Errorf("class performance: %w", err)
	}
	return performance, nil
}
