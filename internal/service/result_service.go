package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/srms-dev/srms-api/internal/grading"
	"github.com/srms-dev/srms-api/internal/models"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
)

type resultRepository interface {
	FindByID(ctx context.Context, id string) (*models.Result, error)
	FindByComposite(ctx context.Context, studentID, subjectID string, semester int, examType models.ExamType) (*models.Result, error)
	Create(ctx context.Context, result *models.Result) error
	Update(ctx context.Context, result *models.Result) error
	List(ctx context.Context, filter models.ResultFilter) ([]models.Result, int, error)
	Approve(ctx context.Context, id, approverID string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type resultSubjectRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type resultStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type teacherAssignmentChecker interface {
	FindByUserID(ctx context.Context, userID string) (*models.Teacher, error)
	IsAssignedToSubject(ctx context.Context, teacherID, subjectID string) (bool, error)
}

type gradingConfig interface {
	GradeScale(ctx context.Context) grading.Scale
	ExamTypes(ctx context.Context) []models.ExamType
}

type notifier interface {
	Push(ctx context.Context, req models.CreateNotificationRequest)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// MarkEntry is one mark in a bulk entry payload.
type MarkEntry struct {
	StudentID     string  `json:"student_id" validate:"required"`
	SubjectID     string  `json:"subject_id" validate:"required"`
	Semester      int     `json:"semester" validate:"required,min=1"`
	ExamType      string  `json:"exam_type" validate:"required"`
	MarksObtained float64 `json:"marks_obtained" validate:"gte=0"`
	Remarks       *string `json:"remarks"`
}

// EnterMarksRequest carries a batch of marks to record.
type EnterMarksRequest struct {
	Results []MarkEntry `json:"results" validate:"required,min=1,max=200,dive"`
}

// BulkEntryError reports why one item of a batch was rejected.
type BulkEntryError struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EnterMarksResponse summarizes a bulk entry. Items fail independently;
// one bad entry never blocks the rest of the batch.
type EnterMarksResponse struct {
	Created int              `json:"created"`
	Updated int              `json:"updated"`
	Failed  int              `json:"failed"`
	Results []models.Result  `json:"results"`
	Errors  []BulkEntryError `json:"errors,omitempty"`
}

// UpdateResultRequest carries a mark correction.
type UpdateResultRequest struct {
	MarksObtained *float64 `json:"marks_obtained" validate:"omitempty,gte=0"`
	Remarks       *string  `json:"remarks"`
}

// ResultService manages mark entry and the derived grade fields.
type ResultService struct {
	repo      resultRepository
	subjects  resultSubjectRepository
	students  resultStudentRepository
	teachers  teacherAssignmentChecker
	configs   gradingConfig
	audit     auditRecorder
	notify    notifier
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewResultService constructs a ResultService instance.
func NewResultService(
	repo resultRepository,
	subjects resultSubjectRepository,
	students resultStudentRepository,
	teachers teacherAssignmentChecker,
	configs gradingConfig,
	audit auditRecorder,
	notify notifier,
	cache cacheInvalidator,
	validate *validator.Validate,
	logger *zap.Logger,
) *ResultService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ResultService{
		repo:      repo,
		subjects:  subjects,
		students:  students,
		teachers:  teachers,
		configs:   configs,
		audit:     audit,
		notify:    notify,
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// EnterMarks records a batch of marks. Each entry is validated, derived
// and written on its own; failures are collected per item and returned
// alongside the successes. An entry whose composite key already exists
// replaces the stored marks unless that result has been approved.
func (s *ResultService) EnterMarks(ctx context.Context, actor *models.User, req EnterMarksRequest) (*EnterMarksResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid marks payload")
	}

	scale := s.configs.GradeScale(ctx)
	examTypes := s.configs.ExamTypes(ctx)

	resp := &EnterMarksResponse{}
	for i, entry := range req.Results {
		result, updated, err := s.enterOne(ctx, actor, entry, scale, examTypes)
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
		resp.Results = append(resp.Results, *result)
	}

	if resp.Created+resp.Updated > 0 {
		s.recordAudit(ctx, actor, models.AuditActionEnterMarks, "result", nil, map[string]int{"created": resp.Created, "updated": resp.Updated, "failed": resp.Failed})
		s.invalidateAnalytics(ctx)
	}

	return resp, nil
}

func (s *ResultService) enterOne(ctx context.Context, actor *models.User, entry MarkEntry, scale grading.Scale, examTypes []models.ExamType) (*models.Result, bool, error) {
	if err := s.validator.Struct(entry); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mark entry")
	}
	if !examTypeAllowed(entry.ExamType, examTypes) {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown exam type %q", entry.ExamType))
	}

	if _, err := s.students.FindByID(ctx, entry.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	subject, err := s.subjects.FindByID(ctx, entry.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	if err := s.checkSubjectAccess(ctx, actor, subject.ID); err != nil {
		return nil, false, err
	}

	derived, err := grading.Compute(entry.MarksObtained, subject.MaxMarks, subject.PassMarks, scale)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "marks out of range for subject")
	}

	existing, err := s.repo.FindByComposite(ctx, entry.StudentID, entry.SubjectID, entry.Semester, models.ExamType(entry.ExamType))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load result")
	}
	if existing != nil {
		if existing.IsApproved {
			return nil, false, appErrors.Clone(appErrors.ErrApproved, "approved results cannot be re-entered")
		}
		existing.MarksObtained = entry.MarksObtained
		existing.Percentage = derived.Percentage
		existing.Grade = derived.Grade
		existing.GradePoint = derived.GradePoint
		existing.IsPassed = derived.IsPassed
		existing.Remarks = entry.Remarks
		if err := s.repo.Update(ctx, existing); err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update result")
		}
		existing.SubjectName = subject.Name
		existing.SubjectCode = subject.Code
		return existing, true, nil
	}

	result := &models.Result{
		StudentID:     entry.StudentID,
		SubjectID:     entry.SubjectID,
		Semester:      entry.Semester,
		ExamType:      models.ExamType(entry.ExamType),
		MarksObtained: entry.MarksObtained,
		Percentage:    derived.Percentage,
		Grade:         derived.Grade,
		GradePoint:    derived.GradePoint,
		IsPassed:      derived.IsPassed,
		Remarks:       entry.Remarks,
		CreatedBy:     actor.ID,
	}

	if err := s.repo.Create(ctx, result); err != nil {
		// A concurrent writer can still land first; the constraint wins.
		if isUniqueViolation(err) {
			return nil, false, appErrors.Clone(appErrors.ErrConflict, "result already exists for this student, subject, semester and exam type")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store result")
	}

	result.SubjectName = subject.Name
	result.SubjectCode = subject.Code
	return result, false, nil
}

// Get returns one result. Students can only read their own.
func (s *ResultService) Get(ctx context.Context, actor *models.User, id string) (*models.Result, error) {
	result, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "result not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load result")
	}
	if actor != nil && actor.Role == models.RoleStudent {
		own, err := s.ownStudentID(ctx, actor)
		if err != nil {
			return nil, err
		}
		if result.StudentID != own {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "result not found")
		}
	}
	return result, nil
}

// List returns results with pagination metadata. Student actors are
// scoped to their own results regardless of the requested filter.
func (s *ResultService) List(ctx context.Context, actor *models.User, filter models.ResultFilter) ([]models.Result, *models.Pagination, error) {
	if actor != nil && actor.Role == models.RoleStudent {
		own, err := s.ownStudentID(ctx, actor)
		if err != nil {
			return nil, nil, err
		}
		filter.StudentID = own
	}

	results, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list results")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return results, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Update corrects the marks or remarks of an unapproved result. The
// derived fields are recomputed from the current subject scheme in the
// same write; approved results are immutable.
func (s *ResultService) Update(ctx context.Context, actor *models.User, id string, req UpdateResultRequest) (*models.Result, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid result payload")
	}

	result, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "result not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load result")
	}
	if result.IsApproved {
		return nil, appErrors.Clone(appErrors.ErrApproved, "")
	}
	if err := s.checkSubjectAccess(ctx, actor, result.SubjectID); err != nil {
		return nil, err
	}

	before, _ := json.Marshal(result)

	if req.MarksObtained != nil {
		subject, err := s.subjects.FindByID(ctx, result.SubjectID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
		}
		derived, err := grading.Compute(*req.MarksObtained, subject.MaxMarks, subject.PassMarks, s.configs.GradeScale(ctx))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "marks out of range for subject")
		}
		result.MarksObtained = *req.MarksObtained
		result.Percentage = derived.Percentage
		result.Grade = derived.Grade
		result.GradePoint = derived.GradePoint
		result.IsPassed = derived.IsPassed
	}
	if req.Remarks != nil {
		result.Remarks = req.Remarks
	}

	if err := s.repo.Update(ctx, result); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update result")
	}

	after, _ := json.Marshal(result)
	s.recordAuditChange(ctx, actor, models.AuditActionUpdate, "result", &result.ID, before, after)
	s.invalidateAnalytics(ctx)

	return result, nil
}

// Approve marks a result approved. Approval is terminal; a second
// approval attempt and any later edit are both rejected.
func (s *ResultService) Approve(ctx context.Context, actor *models.User, id string) (*models.Result, error) {
	changed, err := s.repo.Approve(ctx, id, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve result")
	}
	if !changed {
		result, err := s.repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "result not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load result")
		}
		if result.IsApproved {
			return nil, appErrors.Clone(appErrors.ErrApproved, "")
		}
		return nil, appErrors.Clone(appErrors.ErrInternal, "approval did not apply")
	}

	result, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approved result")
	}

	s.recordAudit(ctx, actor, models.AuditActionApprove, "result", &result.ID, map[string]string{"status": "approved"})
	s.notifyStudent(ctx, result)
	s.invalidateAnalytics(ctx)

	return result, nil
}

// Delete removes an unapproved result.
func (s *ResultService) Delete(ctx context.Context, actor *models.User, id string) error {
	result, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "result not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load result")
	}
	if result.IsApproved {
		return appErrors.Clone(appErrors.ErrApproved, "approved results cannot be deleted")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "result not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete result")
	}

	before, _ := json.Marshal(result)
	s.recordAuditChange(ctx, actor, models.AuditActionDelete, "result", &result.ID, before, nil)
	s.invalidateAnalytics(ctx)
	return nil
}

// checkSubjectAccess restricts teachers to subjects assigned to them.
// Admins pass unconditionally.
func (s *ResultService) checkSubjectAccess(ctx context.Context, actor *models.User, subjectID string) error {
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
func (s *ResultService) ownStudentID(ctx context.Context, actor *models.User) (string, error) {
	student, err := s.students.FindByUserID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrForbidden, "no student profile for user")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	return student.ID, nil
}

func (s *ResultService) notifyStudent(ctx context.Context, result *models.Result) {
	if s.notify == nil {
		return
	}
	student, err := s.students.FindByID(ctx, result.StudentID)
	if err != nil {
		s.logger.Warn("failed to load student for result notification", zap.Error(err))
		return
	}
	data, _ := json.Marshal(map[string]string{"result_id": result.ID, "subject_id": result.SubjectID})
	s.notify.Push(ctx, models.CreateNotificationRequest{
		UserID:   student.UserID,
		Type:     string(models.NotifyInApp),
		Title:    "Result published",
		Body:     fmt.Sprintf("Your %s result for %s has been approved.", result.ExamType, result.SubjectName),
		Priority: "medium",
		Data:     data,
	})
}

func (s *ResultService) recordAudit(ctx context.Context, actor *models.User, action, resourceType string, resourceID *string, payload interface{}) {
	if s.audit == nil {
		return
	}
	after, _ := json.Marshal(payload)
	entry := models.AuditLog{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		After:        after,
		Status:       "success",
	}
	if actor != nil {
		entry.ActorID = &actor.ID
	}
	s.audit.Record(ctx, entry)
}

func (s *ResultService) recordAuditChange(ctx context.Context, actor *models.User, action, resourceType string, resourceID *string, before, after json.RawMessage) {
	if s.audit == nil {
		return
	}
	entry := models.AuditLog{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Before:       before,
		After:        after,
		Status:       "success",
	}
	if actor != nil {
		entry.ActorID = &actor.ID
	}
	s.audit.Record(ctx, entry)
}

func (s *ResultService) invalidateAnalytics(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "analytics:*"); err != nil {
		s.logger.Warn("failed to invalidate analytics cache", zap.Error(err))
	}
}

func examTypeAllowed(examType string, allowed []models.ExamType) bool {
	for _, t := range allowed {
		if string(t) == examType {
			return true
		}
	}
	return false
}
