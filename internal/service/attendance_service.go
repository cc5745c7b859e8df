package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/srms-dev/srms-api/internal/models"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
)

type attendanceRepository interface {
	FindByID(ctx context.Context, id string) (*models.Attendance, error)
	FindByComposite(ctx context.Context, studentID, subjectID string, date time.Time) (*models.Attendance, error)
	Create(ctx context.Context, record *models.Attendance) error
	Update(ctx context.Context, record *models.Attendance) error
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error)
	StatusCounts(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceStatusCount, error)
	SubjectBreakdown(ctx context.Context, studentID string) ([]models.AttendanceSubjectBreakdown, error)
	Delete(ctx context.Context, id string) error
}

// AttendanceEntry is one record in a bulk attendance payload.
type AttendanceEntry struct {
	StudentID string  `json:"student_id" validate:"required"`
	SubjectID string  `json:"subject_id" validate:"required"`
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	Status    string  `json:"status" validate:"required,oneof=present absent leave late"`
	Remarks   *string `json:"remarks"`
}

// MarkAttendanceRequest carries a batch of attendance records.
type MarkAttendanceRequest struct {
	Records []AttendanceEntry `json:"records" validate:"required,min=1,max=200,dive"`
}

// MarkAttendanceResponse summarizes a bulk entry; items fail
// independently.
type MarkAttendanceResponse struct {
	Created int                 `json:"created"`
	Updated int                 `json:"updated"`
	Failed  int                 `json:"failed"`
	Records []models.Attendance `json:"records"`
	Errors  []BulkEntryError    `json:"errors,omitempty"`
}

// UpdateAttendanceRequest corrects a single record.
type UpdateAttendanceRequest struct {
	Status  *string `json:"status" validate:"omitempty,oneof=present absent leave late"`
	Remarks *string `json:"remarks"`
}

// AttendanceService manages attendance records and summaries.
type AttendanceService struct {
	repo      attendanceRepository
	students  resultStudentRepository
	subjects  resultSubjectRepository
	teachers  teacherAssignmentChecker
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs an AttendanceService instance.
func NewAttendanceService(
	repo attendanceRepository,
	students resultStudentRepository,
	subjects resultSubjectRepository,
	teachers teacherAssignmentChecker,
	audit auditRecorder,
	validate *validator.Validate,
	logger *zap.Logger,
) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AttendanceService{
		repo:      repo,
		students:  students,
		subjects:  subjects,
		teachers:  teachers,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Mark records a batch of attendance. Dates are normalized to midnight
// UTC so the one-record-per-day key holds regardless of client zone.
// An entry whose composite key already exists replaces the stored
// status and remarks.
func (s *AttendanceService) Mark(ctx context.Context, actor *models.User, req MarkAttendanceRequest) (*MarkAttendanceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	resp := &MarkAttendanceResponse{}
	for i, entry := range req.Records {
		record, updated, err := s.markOne(ctx, actor, entry)
		if err != nil {
			appErr := appErrors.FromError(err)
			resp.Failed++
			resp.Errors = append(resp.Errors, BulkEntryError{Index: i, Code: appErr.Code, Message: appErr.Message})
			continue
		}
		if updated {
			resp.Updated++
		} else {
			resp.Created++
		}
		resp.Records = append(resp.Records, *record)
	}

	if resp.Created+resp.Updated > 0 && s.audit != nil {
		after, _ := json.Marshal(map[string]int{"created": resp.Created, "updated": resp.Updated, "failed": resp.Failed})
		s.audit.Record(ctx, models.AuditLog{
			ActorID:      &actor.ID,
			Action:       models.AuditActionMarkAttendance,
			ResourceType: "attendance",
			After:        after,
			Status:       "success",
		})
	}

	return resp, nil
}

func (s *AttendanceService) markOne(ctx context.Context, actor *models.User, entry AttendanceEntry) (*models.Attendance, bool, error) {
	if err := s.validator.Struct(entry); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance entry")
	}

	date, err := time.ParseInLocation("2006-01-02", entry.Date, time.UTC)
	if err != nil {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid date %q", entry.Date))
	}
	if date.After(time.Now().UTC()) {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "attendance date cannot be in the future")
	}

	if _, err := s.students.FindByID(ctx, entry.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if _, err := s.subjects.FindByID(ctx, entry.SubjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if err := s.checkSubjectAccess(ctx, actor, entry.SubjectID); err != nil {
		return nil, false, err
	}

	existing, err := s.repo.FindByComposite(ctx, entry.StudentID, entry.SubjectID, date)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	if existing != nil {
		existing.Status = models.AttendanceStatus(entry.Status)
		existing.Remarks = entry.Remarks
		if err := s.repo.Update(ctx, existing); err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance")
		}
		return existing, true, nil
	}

	record := &models.Attendance{
		StudentID: entry.StudentID,
		SubjectID: entry.SubjectID,
		Date:      date,
		Status:    models.AttendanceStatus(entry.Status),
		Remarks:   entry.Remarks,
		CreatedBy: actor.ID,
	}

	if err := s.repo.Create(ctx, record); err != nil {
		// A concurrent writer can still land first; the constraint wins.
		if isUniqueViolation(err) {
			return nil, false, appErrors.Clone(appErrors.ErrConflict, "attendance already recorded for this student, subject and date")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attendance")
	}
	return record, false, nil
}

// Get returns one attendance record.
func (s *AttendanceService) Get(ctx context.Context, id string) (*models.Attendance, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	return record, nil
}

// List returns attendance records with pagination metadata. Student
// actors are scoped to their own records regardless of the requested
// filter.
func (s *AttendanceService) List(ctx context.Context, actor *models.User, filter models.AttendanceFilter) ([]models.Attendance, *models.Pagination, error) {
	if actor != nil && actor.Role == models.RoleStudent {
		own, err := s.ownStudentID(ctx, actor)
		if err != nil {
			return nil, nil, err
		}
		filter.StudentID = own
	}

	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return records, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Update corrects the status or remarks of an attendance record.
func (s *AttendanceService) Update(ctx context.Context, actor *models.User, id string, req UpdateAttendanceRequest) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	if err := s.checkSubjectAccess(ctx, actor, record.SubjectID); err != nil {
		return nil, err
	}

	before, _ := json.Marshal(record)

	if req.Status != nil {
		record.Status = models.AttendanceStatus(*req.Status)
	}
	if req.Remarks != nil {
		record.Remarks = req.Remarks
	}

	if err := s.repo.Update(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance")
	}

	if s.audit != nil {
		after, _ := json.Marshal(record)
		s.audit.Record(ctx, models.AuditLog{
			ActorID:      &actor.ID,
			Action:       models.AuditActionUpdate,
			ResourceType: "attendance",
			ResourceID:   &record.ID,
			Before:       before,
			After:        after,
			Status:       "success",
		})
	}

	return record, nil
}

// Delete removes an attendance record.
func (s *AttendanceService) Delete(ctx context.Context, actor *models.User, id string) error {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	if err := s.checkSubjectAccess(ctx, actor, record.SubjectID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attendance")
	}
	return nil
}

// Summary aggregates a student's attendance. The overall percentage
// counts present and late records as attended. Students can only view
// their own summary.
func (s *AttendanceService) Summary(ctx context.Context, actor *models.User, studentID string, from, to *time.Time) (*models.AttendanceSummary, error) {
	if actor != nil && actor.Role == models.RoleStudent {
		own, err := s.ownStudentID(ctx, actor)
		if err != nil {
			return nil, err
		}
		if studentID != own {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "")
		}
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	counts, err := s.repo.StatusCounts(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarize attendance")
	}

	summary := &models.AttendanceSummary{
		StudentID: studentID,
		RollNo:    student.RollNo,
		Breakdown: counts,
	}
	for _, c := range counts {
		summary.Total += c.Count
		if c.Status == models.AttendancePresent {
			summary.Present += c.Count
		}
	}
	if summary.Total > 0 {
		summary.Percentage = round2(float64(summary.Present) / float64(summary.Total) * 100)
	}

	subjectWise, err := s.repo.SubjectBreakdown(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to break down attendance")
	}
	summary.SubjectWise = subjectWise

	return summary, nil
}

func (s *AttendanceService) checkSubjectAccess(ctx context.Context, actor *models.User, subjectID string) error {
	if actor == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if actor.Role != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrForbidden, "")
	}
	teacher, err := s.teachers.FindByUserID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "no teacher profile for user")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
	}
	assigned, err := s.teachers.IsAssignedToSubject(ctx, teacher.ID, subjectID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject assignment")
	}
	if !assigned {
		return appErrors.Clone(appErrors.ErrForbidden, "subject is not assigned to teacher")
	}
	return nil
}

// ownStudentID resolves the student profile behind a student actor.
func (s *AttendanceService) ownStudentID(ctx context.Context, actor *models.User) (string, error) {
	student, err := s.students.FindByUserID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrForbidden, "no student profile for user")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	return student.ID, nil
}
