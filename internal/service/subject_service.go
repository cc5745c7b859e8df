package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/srms-dev/srms-api/internal/models"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
)

type subjectRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	Deactivate(ctx context.Context, id string) error
}

type subjectTeacherRepository interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

// SubjectService manages subjects and their marking schemes. The
// pass-marks-within-max invariant is enforced here on every write so
// grade derivation can rely on it.
type SubjectService struct {
	repo      subjectRepository
	teachers  subjectTeacherRepository
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs a SubjectService instance.
func NewSubjectService(repo subjectRepository, teachers subjectTeacherRepository, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SubjectService{repo: repo, teachers: teachers, audit: audit, validator: validate, logger: logger}
}

// Create registers a subject.
func (s *SubjectService) Create(ctx context.Context, actor *models.User, req models.CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	if req.PassMarks > req.MaxMarks {
		return nil, appErrors.Clone(appErrors.ErrValidation, "pass marks cannot exceed max marks")
	}
	if req.AssignedTeacherID != nil {
		if err := s.checkTeacher(ctx, *req.AssignedTeacherID); err != nil {
			return nil, err
		}
	}

	category := models.SubjectCategory(req.Category)
	if category == "" {
		category = models.SubjectTheory
	}

	subject := &models.Subject{
		Code:              req.Code,
		Name:              req.Name,
		MaxMarks:          req.MaxMarks,
		PassMarks:         req.PassMarks,
		AssignedTeacherID: req.AssignedTeacherID,
		Description:       req.Description,
		Category:          category,
		Credits:           req.Credits,
		Active:            true,
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "subject code is already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}

	if s.audit != nil {
		after, _ := json.Marshal(subject)
		s.audit.Record(ctx, models.AuditLog{
			ActorID:      &actor.ID,
			Action:       models.AuditActionCreate,
			ResourceType: "subject",
			ResourceID:   &subject.ID,
			After:        after,
			Status:       "success",
		})
	}

	return subject, nil
}

// Get returns a subject.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// List returns subjects with pagination metadata.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return subjects, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Update modifies a subject. Changing the marking scheme does not
// rewrite existing results; they keep the derivation they were written
// with until their marks are edited.
func (s *SubjectService) Update(ctx context.Context, actor *models.User, id string, req models.UpdateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	before, _ := json.Marshal(subject)

	if req.Name != nil {
		subject.Name = *req.Name
	}
	if req.MaxMarks != nil {
		subject.MaxMarks = *req.MaxMarks
	}
	if req.PassMarks != nil {
		subject.PassMarks = *req.PassMarks
	}
	if subject.PassMarks > subject.MaxMarks {
		return nil, appErrors.Clone(appErrors.ErrValidation, "pass marks cannot exceed max marks")
	}
	if req.AssignedTeacherID != nil {
		if *req.AssignedTeacherID != "" {
			if err := s.checkTeacher(ctx, *req.AssignedTeacherID); err != nil {
				return nil, err
			}
			subject.AssignedTeacherID = req.AssignedTeacherID
		} else {
			subject.AssignedTeacherID = nil
		}
	}
	if req.Description != nil {
		subject.Description = req.Description
	}
	if req.Category != nil {
		subject.Category = models.SubjectCategory(*req.Category)
	}
	if req.Credits != nil {
		subject.Credits = *req.Credits
	}
	if req.Active != nil {
		subject.Active = *req.Active
	}

	if err := s.repo.Update(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}

	if s.audit != nil {
		after, _ := json.Marshal(subject)
		s.audit.Record(ctx, models.AuditLog{
			ActorID:      &actor.ID,
			Action:       models.AuditActionUpdate,
			ResourceType: "subject",
			ResourceID:   &subject.ID,
			Before:       before,
			After:        after,
			Status:       "success",
		})
	}

	return subject, nil
}

// Deactivate soft-deletes a subject; historical results stay resolvable.
func (s *SubjectService) Deactivate(ctx context.Context, actor *models.User, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate subject")
	}

	if s.audit != nil {
		s.audit.Record(ctx, models.AuditLog{
			ActorID:      &actor.ID,
			Action:       models.AuditActionDelete,
			ResourceType: "subject",
			ResourceID:   &id,
			After:        []byte(`{"active":false}`),
			Status:       "success",
		})
	}

	return nil
}

func (s *SubjectService) checkTeacher(ctx context.Context, teacherID string) error {
	if _, err := s.teachers.FindByID(ctx, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assigned teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return nil
}
