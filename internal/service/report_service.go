package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/srms-dev/srms-api/internal/models"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
	"github.com/srms-dev/srms-api/pkg/export"
	"github.com/srms-dev/srms-api/pkg/jobs"
)

type reportResultRepository interface {
	ListByStudent(ctx context.Context, studentID string, semester *int) ([]models.Result, error)
}

type reportStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type reportClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type classPerformanceRepository interface {
	ClassPerformance(ctx context.Context, classID string, semester *int) ([]models.StudentPerformance, error)
}

type reportJobRepository interface {
	CreateJob(ctx context.Context, job *models.ReportJob) error
	FindJobByID(ctx context.Context, id string) (*models.ReportJob, error)
	UpdateJobStatus(ctx context.Context, id string, status models.ReportStatus, progress int) error
	FinishJob(ctx context.Context, id, resultURL string) error
	FailJob(ctx context.Context, id, message string) error
	ListJobsByUser(ctx context.Context, userID string, page, pageSize int) ([]models.ReportJob, int, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

type reportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportReportRequest queues an asynchronous report export.
type ExportReportRequest struct {
	Type     string `json:"type" validate:"required,oneof=student class"`
	TargetID string `json:"target_id" validate:"required"`
	Semester *int   `json:"semester" validate:"omitempty,min=1"`
	Format   string `json:"format" validate:"required,oneof=csv pdf"`
}

// ReportConfig tunes report generation and export lifetime.
type ReportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ReportService assembles student and class reports and runs the
// asynchronous export pipeline behind them.
type ReportService struct {
	results     reportResultRepository
	students    reportStudentRepository
	classes     reportClassRepository
	performance classPerformanceRepository
	jobs        reportJobRepository
	storage     reportStorage
	csv         csvRenderer
	pdf         pdfRenderer
	signer      *export.Signer
	queue       *jobs.Queue
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         ReportConfig
}

// NewReportService constructs a ReportService instance. The export
// queue is wired afterwards via AttachQueue because the queue handler
// needs the service itself.
func NewReportService(
	results reportResultRepository,
	students reportStudentRepository,
	classes reportClassRepository,
	performance classPerformanceRepository,
	jobRepo reportJobRepository,
	storage reportStorage,
	signer *export.Signer,
	cfg ReportConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ReportService{
		results:     results,
		students:    students,
		classes:     classes,
		performance: performance,
		jobs:        jobRepo,
		storage:     storage,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		signer:      signer,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// AttachQueue wires the worker queue that processes export jobs.
func (s *ReportService) AttachQueue(queue *jobs.Queue) {
	s.queue = queue
}

// StudentReport aggregates a student's results for a semester. CGPA is
// the mean grade point while Passed is the AND across results; the two
// reducers are intentionally different.
func (s *ReportService) StudentReport(ctx context.Context, studentID string, semester *int) (*models.StudentReport, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	results, err := s.results.ListByStudent(ctx, studentID, semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load results")
	}

	summary := models.StudentReportSummary{TotalSubjects: len(results), Passed: len(results) > 0}
	var totalPoints float64
	for _, r := range results {
		summary.TotalMarks += r.MarksObtained
		summary.MaxPossible += r.SubjectMaxMarks
		totalPoints += r.GradePoint
		if !r.IsPassed {
			summary.Passed = false
		}
	}
	if summary.MaxPossible > 0 {
		summary.Percentage = round2(summary.TotalMarks / summary.MaxPossible * 100)
	}
	if len(results) > 0 {
		summary.CGPA = round2(totalPoints / float64(len(results)))
	}

	semesterLabel := "all"
	if semester != nil {
		semesterLabel = fmt.Sprintf("%d", *semester)
	}

	return &models.StudentReport{
		Student: models.StudentRef{
			ID:         student.ID,
			Name:       student.FirstName + " " + student.LastName,
			RollNo:     student.RollNo,
			Department: student.Department,
			Batch:      student.Batch,
			ClassID:    student.ClassID,
		},
		Semester: semesterLabel,
		Summary:  summary,
		Results:  results,
	}, nil
}

// ClassReport aggregates per-student performance for a class. A student
// counts as passed only when every one of their results passed.
func (s *ReportService) ClassReport(ctx context.Context, classID string, semester *int) (*models.ClassReport, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	performance, err := s.performance.ClassPerformance(ctx, classID, semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute class performance")
	}

	stats := models.ClassStatistics{TotalStudents: len(performance)}
	var sumAvgMarks float64
	for _, p := range performance {
		if p.Passed {
			stats.PassedStudents++
		}
		sumAvgMarks += p.AvgMarks
	}
	stats.FailedStudents = stats.TotalStudents - stats.PassedStudents
	if stats.TotalStudents > 0 {
		stats.PassPercentage = round2(float64(stats.PassedStudents) / float64(stats.TotalStudents) * 100)
		stats.AvgClassPerformance = round2(sumAvgMarks / float64(stats.TotalStudents))
	}

	return &models.ClassReport{
		Class: models.ClassRef{
			ID:       class.ID,
			Name:     class.Name,
			Code:     class.Code,
			Year:     class.Year,
			Semester: class.Semester,
		},
		Statistics:  stats,
		Performance: performance,
	}, nil
}

// QueueExport records an export job and hands it to the worker queue.
func (s *ReportService) QueueExport(ctx context.Context, actor *models.User, req ExportReportRequest) (*models.ReportJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export queue is not running")
	}

	switch models.ReportType(req.Type) {
	case models.ReportTypeStudent:
		if _, err := s.students.FindByID(ctx, req.TargetID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
	case models.ReportTypeClass:
		if _, err := s.classes.FindByID(ctx, req.TargetID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
		}
	}

	job := &models.ReportJob{
		Type:      models.ReportType(req.Type),
		TargetID:  req.TargetID,
		Semester:  req.Semester,
		Format:    models.ReportFormat(req.Format),
		Status:    models.ReportStatusQueued,
		CreatedBy: actor.ID,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		if failErr := s.jobs.FailJob(ctx, job.ID, "export queue rejected job"); failErr != nil {
			s.logger.Warn("failed to mark rejected job", zap.Error(failErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return job, nil
}

// ProcessExport is the queue handler. It renders the report, stores the
// file and records the signed download URL on the job row.
func (s *ReportService) ProcessExport(ctx context.Context, queued jobs.Job) error {
	job, err := s.jobs.FindJobByID(ctx, queued.ID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", queued.ID, err)
	}
	if job.Status == models.ReportStatusFinished {
		return nil
	}

	if err := s.jobs.UpdateJobStatus(ctx, job.ID, models.ReportStatusProcessing, 10); err != nil {
		s.logger.Warn("failed to mark job processing", zap.String("job_id", job.ID), zap.Error(err))
	}

	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		if failErr := s.jobs.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			s.logger.Warn("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(failErr))
		}
		return err
	}

	var payload []byte
	switch job.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		if failErr := s.jobs.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			s.logger.Warn("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(failErr))
		}
		return err
	}

	filename := fmt.Sprintf("%s/%s-%s.%s", job.CreatedBy, job.Type, job.ID, job.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		if failErr := s.jobs.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			s.logger.Warn("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(failErr))
		}
		return err
	}

	token, _, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		if failErr := s.jobs.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			s.logger.Warn("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(failErr))
		}
		return err
	}

	url := fmt.Sprintf("%s/reports/download/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token)
	if err := s.jobs.FinishJob(ctx, job.ID, url); err != nil {
		return fmt.Errorf("finish export job %s: %w", job.ID, err)
	}

	s.logger.Info("report export finished",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.String("format", string(job.Format)),
	)
	return nil
}

// GetJob returns an export job, scoped to its creator unless the actor
// is an admin.
func (s *ReportService) GetJob(ctx context.Context, actor *models.User, id string) (*models.ReportJob, error) {
	job, err := s.jobs.FindJobByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if actor.Role != models.RoleAdmin && job.CreatedBy != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}
	return job, nil
}

// ListJobs returns the export jobs submitted by the actor.
func (s *ReportService) ListJobs(ctx context.Context, actor *models.User, page, pageSize int) ([]models.ReportJob, *models.Pagination, error) {
	jobsList, total, err := s.jobs.ListJobsByUser(ctx, actor.ID, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list export jobs")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return jobsList, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// OpenDownload validates a signed token and opens the stored file.
func (s *ReportService) OpenDownload(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
	}
	return file, nil
}

// Cleanup prunes expired export files and their job rows.
func (s *ReportService) Cleanup(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.ResultTTL)
	if _, err := s.jobs.DeleteFinishedBefore(ctx, cutoff); err != nil {
		s.logger.Warn("failed to prune export jobs", zap.Error(err))
	}
	deleted, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("failed to prune export files", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("pruned expired export files", zap.Int("count", len(deleted)))
	}
}

// RunCleanup drives Cleanup on an interval until the context ends.
func (s *ReportService) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup(ctx)
		}
	}
}

func (s *ReportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeStudent:
		report, err := s.StudentReport(ctx, job.TargetID, job.Semester)
		if err != nil {
			return export.Dataset{}, "", fmt.Errorf("build student report: %w", err)
		}
		headers := []string{"Subject", "Code", "Exam", "Marks", "Max", "Percentage", "Grade", "Grade Point", "Passed"}
		rows := make([]map[string]string, 0, len(report.Results))
		for _, r := range report.Results {
			rows = append(rows, map[string]string{
				"Subject":     r.SubjectName,
				"Code":        r.SubjectCode,
				"Exam":        string(r.ExamType),
				"Marks":       fmt.Sprintf("%.2f", r.MarksObtained),
				"Max":         fmt.Sprintf("%.2f", r.SubjectMaxMarks),
				"Percentage":  fmt.Sprintf("%.2f", r.Percentage),
				"Grade":       r.Grade,
				"Grade Point": fmt.Sprintf("%.2f", r.GradePoint),
				"Passed":      fmt.Sprintf("%t", r.IsPassed),
			})
		}
		title := fmt.Sprintf("Report card %s (%s)", report.Student.Name, report.Student.RollNo)
		return export.Dataset{Headers: headers, Rows: rows}, title, nil

	case models.ReportTypeClass:
		report, err := s.ClassReport(ctx, job.TargetID, job.Semester)
		if err != nil {
			return export.Dataset{}, "", fmt.Errorf("build class report: %w", err)
		}
		headers := []string{"Roll No", "Name", "Avg Marks", "Avg Grade Point", "Subjects", "Passed"}
		rows := make([]map[string]string, 0, len(report.Performance))
		for _, p := range report.Performance {
			rows = append(rows, map[string]string{
				"Roll No":         p.RollNo,
				"Name":            p.Name,
				"Avg Marks":       fmt.Sprintf("%.2f", p.AvgMarks),
				"Avg Grade Point": fmt.Sprintf("%.2f", p.AvgGradePoint),
				"Subjects":        fmt.Sprintf("%d", p.TotalSubjects),
				"Passed":          fmt.Sprintf("%t", p.Passed),
			})
		}
		title := fmt.Sprintf("Class report %s (%s)", report.Class.Name, report.Class.Code)
		return export.Dataset{Headers: headers, Rows: rows}, title, nil
	}
	return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
}
