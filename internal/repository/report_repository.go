package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/srms-dev/srms-api/internal/models"
)

const reportJobColumns = `id, type, target_id, semester, format, status, progress, result_url, error_message, created_by, created_at, updated_at, finished_at`

// ReportRepository stores asynchronous export jobs.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository creates a new instance of ReportRepository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// CreateJob inserts a queued export job.
func (r *ReportRepository) CreateJob(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}

	const query = `INSERT INTO report_jobs (id, type, target_id, semester, format, status, progress, created_by, created_at, updated_at)
        VALUES (:id, :type, :target_id, :semester, :format, :status, :progress, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindJobByID returns an export job.
func (r *ReportRepository) FindJobByID(ctx context.Context, id string) (*models.ReportJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM report_jobs WHERE id = $1`, reportJobColumns)
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find report job: %w", err)
	}
	return &job, nil
}

// UpdateJobStatus moves a job between states.
func (r *ReportRepository) UpdateJobStatus(ctx context.Context, id string, status models.ReportStatus, progress int) error {
	const query = `UPDATE report_jobs SET status = $2, progress = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, progress, time.Now().UTC()); err != nil {
		return fmt.Errorf("update report job status: %w", err)
	}
	return nil
}

// FinishJob records a successful export together with its download URL.
func (r *ReportRepository) FinishJob(ctx context.Context, id, resultURL string) error {
	now := time.Now().UTC()
	const query = `UPDATE report_jobs SET status = $2, progress = 100, result_url = $3, updated_at = $4, finished_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusFinished, resultURL, now); err != nil {
		return fmt.Errorf("finish report job: %w", err)
	}
	return nil
}

// FailJob records a failed export with its error message.
func (r *ReportRepository) FailJob(ctx context.Context, id, message string) error {
	now := time.Now().UTC()
	const query = `UPDATE report_jobs SET status = $2, error_message = $3, updated_at = $4, finished_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusFailed, message, now); err != nil {
		return fmt.Errorf("fail report job: %w", err)
	}
	return nil
}

// ListJobsByUser returns the export jobs submitted by a user, newest first.
func (r *ReportRepository) ListJobsByUser(ctx context.Context, userID string, page, pageSize int) ([]models.ReportJob, int, error) {
	_, pageSize, offset := normalizePage(page, pageSize)

	listQuery := fmt.Sprintf(`SELECT %s FROM report_jobs WHERE created_by = $1 ORDER BY created_at DESC LIMIT %d OFFSET %d`, reportJobColumns, pageSize, offset)
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, listQuery, userID); err != nil {
		return nil, 0, fmt.Errorf("list report jobs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM report_jobs WHERE created_by = $1`, userID); err != nil {
		return nil, 0, fmt.Errorf("count report jobs: %w", err)
	}
	return jobs, total, nil
}

// DeleteFinishedBefore removes finished and failed jobs older than the
// cutoff and returns their stored result URLs so files can be removed too.
func (r *ReportRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	const query = `DELETE FROM report_jobs
        WHERE status IN ($1, $2) AND finished_at < $3
        RETURNING COALESCE(result_url, '')`
	var urls []string
	if err := r.db.SelectContext(ctx, &urls, query, models.ReportStatusFinished, models.ReportStatusFailed, cutoff); err != nil {
		return nil, fmt.Errorf("delete finished report jobs: %w", err)
	}
	return urls, nil
}
