package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/srms-dev/srms-api/internal/models"
)

const resultColumns = `r.id, r.student_id, r.subject_id, r.semester, r.exam_type, r.marks_obtained, r.percentage, r.grade, r.grade_point, r.is_passed,
        r.remarks, r.created_by, r.is_approved, r.approved_by, r.approved_at, r.created_at, r.updated_at,
        s.roll_no, u.first_name || ' ' || u.last_name AS student_name, sub.name AS subject_name, sub.code AS subject_code, sub.max_marks AS subject_max_marks`

const resultJoins = `FROM results r
        JOIN students s ON s.id = r.student_id
        JOIN users u ON u.id = s.user_id
        JOIN subjects sub ON sub.id = r.subject_id`

// ResultRepository provides database access for results.
type ResultRepository struct {
	db *sqlx.DB
}

// NewResultRepository creates a new instance of ResultRepository.
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// FindByID returns a result with its joined display fields.
func (r *ResultRepository) FindByID(ctx context.Context, id string) (*models.Result, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE r.id = $1`, resultColumns, resultJoins)
	var result models.Result
	if err := r.db.GetContext(ctx, &result, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find result by id: %w", err)
	}
	return &result, nil
}

// FindByComposite looks a result up by its unique
// (student, subject, semester, exam type) key.
func (r *ResultRepository) FindByComposite(ctx context.Context, studentID, subjectID string, semester int, examType models.ExamType) (*models.Result, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE r.student_id = $1 AND r.subject_id = $2 AND r.semester = $3 AND r.exam_type = $4`, resultColumns, resultJoins)
	var result models.Result
	if err := r.db.GetContext(ctx, &result, query, studentID, subjectID, semester, examType); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find result by composite key: %w", err)
	}
	return &result, nil
}

// Create inserts a new result. The composite key on
// (student_id, subject_id, semester, exam_type) rejects duplicates even
// under concurrent writers; the violation is returned unwrapped.
func (r *ResultRepository) Create(ctx context.Context, result *models.Result) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	result.CreatedAt = now
	result.UpdatedAt = now

	const query = `INSERT INTO results (id, student_id, subject_id, semester, exam_type, marks_obtained, percentage, grade, grade_point, is_passed, remarks, created_by, is_approved, created_at, updated_at)
        VALUES (:id, :student_id, :subject_id, :semester, :exam_type, :marks_obtained, :percentage, :grade, :grade_point, :is_passed, :remarks, :created_by, :is_approved, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, result); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create result: %w", err)
	}
	return nil
}

// Update rewrites marks and every derived field together so a result is
// never persisted with stale grades.
func (r *ResultRepository) Update(ctx context.Context, result *models.Result) error {
	result.UpdatedAt = time.Now().UTC()
	const query = `UPDATE results SET marks_obtained = :marks_obtained, percentage = :percentage, grade = :grade, grade_point = :grade_point, is_passed = :is_passed, remarks = :remarks, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, result); err != nil {
		return fmt.Errorf("update result: %w", err)
	}
	return nil
}

// List returns results based on filters with total count.
func (r *ResultRepository) List(ctx context.Context, filter models.ResultFilter) ([]models.Result, int, error) {
	baseQuery := resultJoins + ` WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("r.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("r.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.Semester != nil {
		conditions = append(conditions, fmt.Sprintf("r.semester = $%d", len(args)+1))
		args = append(args, *filter.Semester)
	}
	if filter.ExamType != "" {
		conditions = append(conditions, fmt.Sprintf("r.exam_type = $%d", len(args)+1))
		args = append(args, filter.ExamType)
	}
	if filter.Approved != nil {
		conditions = append(conditions, fmt.Sprintf("r.is_approved = $%d", len(args)+1))
		args = append(args, *filter.Approved)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	_, pageSize, offset := normalizePage(filter.Page, filter.PageSize)

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY r.created_at DESC LIMIT %d OFFSET %d", resultColumns, baseQuery, pageSize, offset)

	var results []models.Result
	if err := r.db.SelectContext(ctx, &results, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	return results, total, nil
}

// ListByStudent returns a student's results for a semester with joined
// display fields, ordered by subject code for stable reports.
func (r *ResultRepository) ListByStudent(ctx context.Context, studentID string, semester *int) ([]models.Result, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE r.student_id = $1`, resultColumns, resultJoins)
	args := []interface{}{studentID}
	if semester != nil {
		query += fmt.Sprintf(" AND r.semester = $%d", len(args)+1)
		args = append(args, *semester)
	}
	query += " ORDER BY sub.code ASC"

	var results []models.Result
	if err := r.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, fmt.Errorf("list results by student: %w", err)
	}
	return results, nil
}

// Approve marks a result approved. Returns sql.ErrNoRows when the
// result does not exist, and reports whether the call changed anything
// so already-approved results can be rejected upstream.
func (r *ResultRepository) Approve(ctx context.Context, id, approverID string) (bool, error) {
	const query = `UPDATE results SET is_approved = TRUE, approved_by = $2, approved_at = $3, updated_at = $3 WHERE id = $1 AND is_approved = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, approverID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("approve result: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("approve result: %w", err)
	}
	return rows > 0, nil
}

// Delete removes a result.
func (r *ResultRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM results WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
