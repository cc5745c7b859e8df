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

const attendanceColumns = `a.id, a.student_id, a.subject_id, a.date, a.status, a.remarks, a.created_by, a.created_at, a.updated_at,
        s.roll_no, u.first_name || ' ' || u.last_name AS student_name, sub.name AS subject_name`

const attendanceJoins = `FROM attendances a
        JOIN students s ON s.id = a.student_id
        JOIN users u ON u.id = s.user_id
        JOIN subjects sub ON sub.id = a.subject_id`

// AttendanceRepository provides database access for attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository creates a new instance of AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// FindByID returns an attendance record with joined display fields.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE a.id = $1`, attendanceColumns, attendanceJoins)
	var record models.Attendance
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance by id: %w", err)
	}
	return &record, nil
}

// FindByComposite looks an attendance record up by its unique
// (student, subject, date) key.
func (r *AttendanceRepository) FindByComposite(ctx context.Context, studentID, subjectID string, date time.Time) (*models.Attendance, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE a.student_id = $1 AND a.subject_id = $2 AND a.date = $3`, attendanceColumns, attendanceJoins)
	var record models.Attendance
	if err := r.db.GetContext(ctx, &record, query, studentID, subjectID, date); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance by composite key: %w", err)
	}
	return &record, nil
}

// Create inserts a new attendance record. The composite key on
// (student_id, subject_id, date) rejects duplicates even under
// concurrent writers; the violation is returned unwrapped.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.Attendance) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	const query = `INSERT INTO attendances (id, student_id, subject_id, date, status, remarks, created_by, created_at, updated_at)
        VALUES (:id, :student_id, :subject_id, :date, :status, :remarks, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create attendance: %w", err)
	}
	return nil
}

// Update changes the status and remarks of an existing record.
func (r *AttendanceRepository) Update(ctx context.Context, record *models.Attendance) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE attendances SET status = :status, remarks = :remarks, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	return nil
}

// List returns attendance records based on filters with total count.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error) {
	baseQuery := attendanceJoins + ` WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("a.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	_, pageSize, offset := normalizePage(filter.Page, filter.PageSize)

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY a.date DESC LIMIT %d OFFSET %d", attendanceColumns, baseQuery, pageSize, offset)

	var records []models.Attendance
	if err := r.db.SelectContext(ctx, &records, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}

	return records, total, nil
}

// StatusCounts aggregates a student's attendance by status, optionally
// scoped to a date range.
func (r *AttendanceRepository) StatusCounts(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceStatusCount, error) {
	query := `SELECT status, COUNT(*) AS count FROM attendances WHERE student_id = $1`
	args := []interface{}{studentID}
	if from != nil {
		query += fmt.Sprintf(" AND date >= $%d", len(args)+1)
		args = append(args, *from)
	}
	if to != nil {
		query += fmt.Sprintf(" AND date <= $%d", len(args)+1)
		args = append(args, *to)
	}
	query += " GROUP BY status ORDER BY status"

	var counts []models.AttendanceStatusCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("attendance status counts: %w", err)
	}
	return counts, nil
}

type subjectStatusCount struct {
	SubjectID   string                  `db:"subject_id"`
	SubjectName string                  `db:"subject_name"`
	Status      models.AttendanceStatus `db:"status"`
	Count       int                     `db:"count"`
}

// SubjectBreakdown aggregates a student's attendance per subject and status.
func (r *AttendanceRepository) SubjectBreakdown(ctx context.Context, studentID string) ([]models.AttendanceSubjectBreakdown, error) {
	const query = `SELECT a.subject_id, sub.name AS subject_name, a.status, COUNT(*) AS count
        FROM attendances a
        JOIN subjects sub ON sub.id = a.subject_id
        WHERE a.student_id = $1
        GROUP BY a.subject_id, sub.name, a.status
        ORDER BY sub.name, a.status`

	var rows []subjectStatusCount
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("attendance subject breakdown: %w", err)
	}

	var out []models.AttendanceSubjectBreakdown
	index := map[string]int{}
	for _, row := range rows {
		i, ok := index[row.SubjectID]
		if !ok {
			out = append(out, models.AttendanceSubjectBreakdown{
				SubjectID:   row.SubjectID,
				SubjectName: row.SubjectName,
			})
			i = len(out) - 1
			index[row.SubjectID] = i
		}
		out[i].Total += row.Count
		out[i].Breakdown = append(out[i].Breakdown, models.AttendanceStatusCount{Status: row.Status, Count: row.Count})
	}
	return out, nil
}

// Delete removes an attendance record.
func (r *AttendanceRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM attendances WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
